// Package icon resolves the marker glyph for each entity kind.
// Glyphs are rasterized once per process on first use and shared by every marker.
package icon

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"

	"github.com/geomark/mapview/pkg/core"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Pin dimensions match the common 25x41 map pin.
const (
	Width  = 25
	Height = 41
)

// Icon is an immutable marker glyph plus its anchor points.
// Anchor is the glyph pixel placed on the marker position; PopupAnchor is the
// popup offset relative to Anchor.
type Icon struct {
	Kind        core.Kind
	Glyph       *image.RGBA
	Anchor      image.Point
	PopupAnchor image.Point
}

type style struct {
	fill   color.RGBA
	letter string
}

var styles = map[core.Kind]style{
	core.KindUser:     {fill: color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}, letter: "U"},
	core.KindLandmark: {fill: color.RGBA{R: 0xdc, G: 0x26, B: 0x26, A: 0xff}, letter: "L"},
}

type slot struct {
	once sync.Once
	icon *Icon
}

var (
	slots = map[core.Kind]*slot{
		core.KindUser:     {},
		core.KindLandmark: {},
	}

	// builds counts rasterizations; exposed to tests only.
	builds atomic.Int32
)

// For returns the shared icon for kind, building it on first use.
// Unknown kinds return nil.
func For(kind core.Kind) *Icon {
	s, ok := slots[kind]
	if !ok {
		return nil
	}
	s.once.Do(func() {
		s.icon = build(kind, styles[kind])
	})
	return s.icon
}

func build(kind core.Kind, st style) *Icon {
	builds.Add(1)

	glyph := image.NewRGBA(image.Rect(0, 0, Width, Height))
	drawPin(glyph, st.fill)
	drawLetter(glyph, st.letter)

	return &Icon{
		Kind:        kind,
		Glyph:       glyph,
		Anchor:      image.Pt(Width/2, Height),
		PopupAnchor: image.Pt(1, -34),
	}
}

// drawPin rasterizes a teardrop: a circle on top tapering to a point at the bottom center.
func drawPin(dst draw.Image, fill color.RGBA) {
	const (
		cx = float32(Width) / 2
		cy = float32(12.5)
		r  = float32(11.5)
		k  = float32(0.5523) // cubic bezier circle constant
	)

	z := vector.NewRasterizer(Width, Height)
	z.MoveTo(cx, cy-r)
	z.CubeTo(cx+k*r, cy-r, cx+r, cy-k*r, cx+r, cy)
	z.CubeTo(cx+r, cy+r*0.9, cx+2, Height-8, cx, Height)
	z.CubeTo(cx-2, Height-8, cx-r, cy+r*0.9, cx-r, cy)
	z.CubeTo(cx-r, cy-k*r, cx-k*r, cy-r, cx, cy-r)
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(fill), image.Point{})
}

func drawLetter(dst draw.Image, letter string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	w := d.MeasureString(letter).Ceil()
	d.Dot = fixed.P(Width/2-w/2, 17)
	d.DrawString(letter)
}
