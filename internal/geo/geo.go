package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/geomark/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Positions are carried as EPSG:4326 degrees. Screen math happens in EPSG:3857
// (web mercator), which is what tile-based map widgets render.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

const (
	// DefaultTolerance is the angular distance, in degrees, under which two centers are considered equal.
	DefaultTolerance = 1e-5

	// TileSize is the edge length in pixels of one web mercator tile.
	TileSize = 256

	earthRadiusMeters = 6371008.8
	mercatorHalfWorld = 20037508.342789244
)

var (
	to3857   = wgs84.EPSG().Transform(4326, 3857)
	from3857 = wgs84.EPSG().Transform(3857, 4326)
)

// PositionFromString parses a "lat,lng" string into a core.Position.
func PositionFromString(coords string) (core.Position, error) {
	lat, lng, ok := strings.Cut(coords, ",")
	if !ok || strings.Contains(lng, ",") {
		return core.Position{}, ErrInvalidCoordinates
	}
	return ParsePosition(strings.TrimSpace(lat), strings.TrimSpace(lng))
}

// ParsePosition parses decimal degree strings into a position. NaN, infinite
// and out-of-range values are rejected.
func ParsePosition(lat, lng string) (core.Position, error) {
	y, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return core.Position{}, fmt.Errorf("latitude %q: %w", lat, ErrInvalidCoordinates)
	}
	x, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return core.Position{}, fmt.Errorf("longitude %q: %w", lng, ErrInvalidCoordinates)
	}
	point, err := ToPoint(core.Position{Lat: y, Lng: x})
	if err != nil {
		return core.Position{}, err
	}
	return FromPoint(point)
}

// Validate returns ErrInvalidCoordinates for a nil or out-of-range position.
func Validate(p *core.Position) error {
	if p == nil {
		return fmt.Errorf("missing position: %w", ErrInvalidCoordinates)
	}
	if !p.Valid() {
		return fmt.Errorf("position %s out of range: %w", p, ErrInvalidCoordinates)
	}
	return nil
}

// AngularDistance returns the great-circle central angle between a and b in degrees.
func AngularDistance(a, b core.Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h)) * 180 / math.Pi
}

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b core.Position) float64 {
	return AngularDistance(a, b) * math.Pi / 180 * earthRadiusMeters
}

// SameCamera reports whether two cameras match: centers within tolerance
// degrees of each other and identical zoom.
func SameCamera(a, b core.Camera, tolerance float64) bool {
	if a.Zoom != b.Zoom {
		return false
	}
	return AngularDistance(a.Center, b.Center) <= tolerance
}

// SortByDistance orders landmarks nearest to center first, ties broken by key.
// Landmarks without a position sort last.
func SortByDistance(center core.Position, ls []core.Landmark) {
	dist := func(l core.Landmark) float64 {
		if l.Position == nil {
			return math.Inf(1)
		}
		return DistanceMeters(center, *l.Position)
	}
	sort.SliceStable(ls, func(i, j int) bool {
		di, dj := dist(ls[i]), dist(ls[j])
		if di != dj {
			return di < dj
		}
		return ls[i].Key() < ls[j].Key()
	})
}

// Box is a lat/lng aligned bounding box, X=lng and Y=lat.
type Box struct {
	env geom.Envelope
}

// Min is the south-west corner.
func (b Box) Min() core.Position {
	lo, _, _ := b.env.MinMaxXYs()
	return core.Position{Lat: lo.Y, Lng: lo.X}
}

// Max is the north-east corner.
func (b Box) Max() core.Position {
	_, hi, _ := b.env.MinMaxXYs()
	return core.Position{Lat: hi.Y, Lng: hi.X}
}

// Contains reports whether p falls inside the box, bounds included.
func (b Box) Contains(p core.Position) bool {
	return b.env.Contains(geom.XY{X: p.Lng, Y: p.Lat})
}

// BoxAround returns the box enclosing a circle of radiusMeters around center,
// clamped to valid coordinates.
func BoxAround(center core.Position, radiusMeters float64) (Box, error) {
	if math.IsNaN(radiusMeters) || radiusMeters < 0 {
		return Box{}, fmt.Errorf("invalid radius %v", radiusMeters)
	}
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi
	cos := math.Cos(center.Lat * math.Pi / 180)
	dLng := 180.0
	if cos > 1e-9 {
		dLng = math.Min(180, dLat/cos)
	}
	env, err := geom.NewEnvelope([]geom.XY{
		{X: math.Max(-180, center.Lng-dLng), Y: math.Max(-90, center.Lat-dLat)},
		{X: math.Min(180, center.Lng+dLng), Y: math.Min(90, center.Lat+dLat)},
	})
	if err != nil {
		return Box{}, fmt.Errorf("box around %s: %w", center, err)
	}
	return Box{env: env}, nil
}

// ToPoint converts a position into a 2D simplefeatures point (X=lng, Y=lat).
func ToPoint(p core.Position) (geom.Point, error) {
	point, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.Lng, Y: p.Lat},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("%v: %w", err, ErrInvalidCoordinates)
	}
	return point, nil
}

// FromPoint converts a simplefeatures point back into a position.
func FromPoint(point geom.Point) (core.Position, error) {
	coords, ok := point.Coordinates()
	if !ok {
		return core.Position{}, ErrInvalidCoordinates
	}
	p := core.Position{Lat: coords.Y, Lng: coords.X}
	if !p.Valid() {
		return core.Position{}, ErrInvalidCoordinates
	}
	return p, nil
}

// ToWebMercator projects a position into EPSG:3857 meters.
func ToWebMercator(p core.Position) (x, y float64) {
	x, y, _ = to3857(p.Lng, p.Lat, 0)
	return x, y
}

// FromWebMercator unprojects EPSG:3857 meters into a position.
func FromWebMercator(x, y float64) core.Position {
	lng, lat, _ := from3857(x, y, 0)
	return core.Position{Lat: lat, Lng: lng}
}

// WorldSize is the pixel width of the whole world at the given zoom.
func WorldSize(zoom float64) float64 {
	return TileSize * math.Pow(2, zoom)
}

// ToPixel returns the global pixel coordinate of p at the given zoom.
func ToPixel(p core.Position, zoom float64) (px, py float64) {
	x, y := ToWebMercator(p)
	size := WorldSize(zoom)
	px = (x + mercatorHalfWorld) / (2 * mercatorHalfWorld) * size
	py = (mercatorHalfWorld - y) / (2 * mercatorHalfWorld) * size
	return px, py
}

// FromPixel is the inverse of ToPixel.
func FromPixel(px, py, zoom float64) core.Position {
	size := WorldSize(zoom)
	x := px/size*(2*mercatorHalfWorld) - mercatorHalfWorld
	y := mercatorHalfWorld - py/size*(2*mercatorHalfWorld)
	return FromWebMercator(x, y)
}
