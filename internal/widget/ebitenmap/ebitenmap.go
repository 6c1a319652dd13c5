// Package ebitenmap displays a canvas map surface in a desktop window.
package ebitenmap

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/geomark/mapview/internal/widget/canvas"
	"github.com/geomark/mapview/pkg/core"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// dragThreshold is how far the pointer moves before a press becomes a pan.
const dragThreshold = 3

var (
	backgroundColor = color.RGBA{R: 0xe8, G: 0xe4, B: 0xd8, A: 0xff}
	gridColor       = color.RGBA{R: 0xc8, G: 0xc2, B: 0xb0, A: 0xff}
	labelBgColor    = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xc0}
	popupBgColor    = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xf0}
	popupBorder     = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}
	linkColor       = color.RGBA{R: 0x1a, G: 0x5f, B: 0xb4, A: 0xff}
)

// Game is an ebiten.Game showing whatever widget is mounted on its surface.
type Game struct {
	surface     *canvas.Surface
	attribution string

	glyphs map[image.Image]*ebiten.Image

	pressed    bool
	dragging   bool
	pressX     int
	pressY     int
	lastX      int
	lastY      int
	wheelAccum float64
}

func New(surface *canvas.Surface, attribution string) *Game {
	return &Game{
		surface:     surface,
		attribution: attribution,
		glyphs:      make(map[image.Image]*ebiten.Image),
	}
}

// Run opens the window and blocks until it is closed.
func Run(g *Game, title string) error {
	w, h := g.surface.Size()
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(g); err != nil {
		return fmt.Errorf("running map window: %w", err)
	}
	return nil
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.surface.Resize(outsideWidth, outsideHeight)
	return outsideWidth, outsideHeight
}

func (g *Game) Update() error {
	w := g.surface.Current()
	if w == nil {
		g.pressed, g.dragging = false, false
		return nil
	}

	mx, my := ebiten.CursorPosition()
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		g.pressed, g.dragging = true, false
		g.pressX, g.pressY = mx, my
		g.lastX, g.lastY = mx, my
	case g.pressed && inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		if g.dragging {
			w.EndDrag()
		} else {
			w.ClickAt(float64(mx), float64(my))
		}
		g.pressed, g.dragging = false, false
	case g.pressed && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
		if !g.dragging && (abs(mx-g.pressX) > dragThreshold || abs(my-g.pressY) > dragThreshold) {
			g.dragging = true
		}
		if g.dragging && (mx != g.lastX || my != g.lastY) {
			w.Drag(float64(mx-g.lastX), float64(my-g.lastY))
		}
		g.lastX, g.lastY = mx, my
	}

	// trackpads report fractional wheel deltas
	_, dy := ebiten.Wheel()
	g.wheelAccum += dy
	if steps := int(g.wheelAccum); steps != 0 {
		g.wheelAccum -= float64(steps)
		w.ZoomAt(steps, float64(mx), float64(my))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyNumpadAdd) {
		sw, sh := g.surface.Size()
		w.ZoomAt(1, float64(sw)/2, float64(sh)/2)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyNumpadSubtract) {
		sw, sh := g.surface.Size()
		w.ZoomAt(-1, float64(sw)/2, float64(sh)/2)
	}

	w.Step(1 / float64(ebiten.TPS()))
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)
	w := g.surface.Current()
	if w == nil {
		ebitenutil.DebugPrintAt(screen, "map not mounted", 8, 8)
		return
	}
	f := w.Frame()

	g.drawGraticule(screen, w, f)

	mx, my := ebiten.CursorPosition()
	cursor := image.Pt(mx, my)
	var hover *canvas.Placed
	for i := range f.Markers {
		p := &f.Markers[i]
		g.drawGlyph(screen, p)
		if cursor.In(p.Rect) {
			hover = p
		}
	}
	if hover != nil && hover.Marker.Label != "" && (f.Popup == nil || f.Popup.MarkerID != hover.Marker.ID) {
		drawLabel(screen, hover.Marker.Label, hover.Rect.Min.X, hover.Rect.Max.Y+2)
	}
	if f.Popup != nil {
		drawPopup(screen, f.Popup)
	}

	status := fmt.Sprintf("%.5f, %.5f  z%d", f.Camera.Center.Lat, f.Camera.Center.Lng, f.Camera.Zoom)
	ebitenutil.DebugPrintAt(screen, status, 8, 4)
	if g.attribution != "" {
		ebitenutil.DebugPrintAt(screen, g.attribution, 8, f.Height-canvas.LineHeight-2)
	}
}

// drawGraticule draws meridians and parallels at a spacing that suits the zoom.
func (g *Game) drawGraticule(screen *ebiten.Image, w *canvas.Widget, f canvas.Frame) {
	step := 360 / math.Pow(2, math.Floor(f.Zoom))
	step = max(step, 0.001)
	nw := w.FromScreen(0, 0)
	se := w.FromScreen(float64(f.Width), float64(f.Height))

	for lng := math.Floor(nw.Lng/step) * step; lng <= se.Lng; lng += step {
		x, _ := w.ToScreen(core.Position{Lat: f.Camera.Center.Lat, Lng: lng})
		vector.StrokeLine(screen, float32(x), 0, float32(x), float32(f.Height), 1, gridColor, false)
	}
	for lat := math.Floor(se.Lat/step) * step; lat <= nw.Lat; lat += step {
		_, y := w.ToScreen(core.Position{Lat: lat, Lng: f.Camera.Center.Lng})
		vector.StrokeLine(screen, 0, float32(y), float32(f.Width), float32(y), 1, gridColor, false)
	}
}

func (g *Game) drawGlyph(screen *ebiten.Image, p *canvas.Placed) {
	if p.Marker.Glyph == nil {
		vector.DrawFilledCircle(screen, float32(p.Rect.Min.X+p.Marker.Anchor.X), float32(p.Rect.Min.Y+p.Marker.Anchor.Y), 6, linkColor, true)
		return
	}
	img, ok := g.glyphs[p.Marker.Glyph]
	if !ok {
		img = ebiten.NewImageFromImage(p.Marker.Glyph)
		g.glyphs[p.Marker.Glyph] = img
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(p.Rect.Min.X), float64(p.Rect.Min.Y))
	screen.DrawImage(img, op)
}

func drawLabel(screen *ebiten.Image, text string, x, y int) {
	w := len([]rune(text))*canvas.CharWidth + 8
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), canvas.LineHeight+4, labelBgColor, false)
	ebitenutil.DebugPrintAt(screen, text, x+4, y+2)
}

func drawPopup(screen *ebiten.Image, p *canvas.PopupLayout) {
	b := p.Box
	vector.DrawFilledRect(screen, float32(b.Min.X), float32(b.Min.Y), float32(b.Dx()), float32(b.Dy()), popupBgColor, false)
	vector.StrokeRect(screen, float32(b.Min.X), float32(b.Min.Y), float32(b.Dx()), float32(b.Dy()), 1, popupBorder, false)

	// DebugPrint renders white text, so the popup text sits on a dark band per row
	x := b.Min.X + 6
	y := b.Min.Y + 6
	rows := append([]string{p.Title}, p.Lines...)
	for _, row := range rows {
		drawLabel(screen, row, x-4, y-2)
		y += canvas.LineHeight
	}
	if p.Link != nil {
		l := p.LinkRect
		vector.DrawFilledRect(screen, float32(l.Min.X-4), float32(l.Min.Y-2), float32(l.Dx()+8), float32(l.Dy()+4), linkColor, false)
		ebitenutil.DebugPrintAt(screen, p.Link.Text, l.Min.X, l.Min.Y)
		vector.StrokeLine(screen, float32(l.Min.X), float32(l.Max.Y), float32(l.Max.X), float32(l.Max.Y), 1, popupBgColor, false)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
