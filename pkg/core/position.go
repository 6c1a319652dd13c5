// pkg/core/position.go
package core

import (
	"fmt"
	"math"
)

// Position is a WGS84 coordinate in degrees
type Position struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the position is finite and inside the lat/lng bounds.
func (p Position) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Position) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Camera is a map center plus integer zoom level.
// It describes both the caller's desired camera and the widget's live one.
type Camera struct {
	Center Position `json:"center"`
	Zoom   int      `json:"zoom"`
}

func (c Camera) String() string {
	return fmt.Sprintf("%s@%d", c.Center, c.Zoom)
}
