package canvas

import (
	"image"
	"math"
	"strings"

	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// Text metrics of the fixed-width debug font the window prints with.
const (
	CharWidth  = 6
	LineHeight = 16

	popupChars   = 40
	popupPadding = 6
)

// Placed is a marker with its on-screen glyph rectangle.
type Placed struct {
	Marker widget.Marker
	Rect   image.Rectangle
}

// PopupLayout is the open popup laid out on screen.
type PopupLayout struct {
	MarkerID string
	Title    string
	Lines    []string
	Link     *widget.Link
	Box      image.Rectangle
	LinkRect image.Rectangle
}

// Frame is everything the window needs to draw one frame.
type Frame struct {
	Camera  core.Camera
	Zoom    float64
	Width   int
	Height  int
	Markers []Placed
	Popup   *PopupLayout
}

// Frame snapshots the widget for drawing. Markers are in draw order.
func (w *Widget) Frame() Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	sw, sh := w.surface.Size()
	f := Frame{
		Camera: w.cameraLocked(),
		Zoom:   w.zoom,
		Width:  sw,
		Height: sh,
	}
	view := image.Rect(0, 0, sw, sh)
	for _, id := range w.order {
		m := w.markers[id]
		r := w.glyphRect(m)
		if !r.Overlaps(view) {
			continue
		}
		f.Markers = append(f.Markers, Placed{Marker: m, Rect: r})
	}
	if pl, ok := w.popupLocked(); ok {
		f.Popup = &pl
	}
	return f
}

// Open returns the id of the marker whose popup is open.
func (w *Widget) Open() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

func (w *Widget) popupLocked() (PopupLayout, bool) {
	if w.open == "" {
		return PopupLayout{}, false
	}
	m, ok := w.markers[w.open]
	if !ok || m.Popup == nil {
		return PopupLayout{}, false
	}
	x, y := w.toScreen(m.Position)
	anchor := image.Pt(int(math.Round(x))+m.PopupAnchor.X, int(math.Round(y))+m.PopupAnchor.Y)
	return layoutPopup(m.ID, m.Popup, anchor), true
}

// layoutPopup places the popup box so its bottom center sits on anchor.
func layoutPopup(id string, p *widget.Popup, anchor image.Point) PopupLayout {
	pl := PopupLayout{
		MarkerID: id,
		Title:    p.Title,
		Lines:    wrap(p.Body, popupChars),
		Link:     p.Link,
	}

	rows := 1 + len(pl.Lines)
	widest := len([]rune(p.Title))
	for _, l := range pl.Lines {
		widest = max(widest, len([]rune(l)))
	}
	if p.Link != nil {
		rows++
		widest = max(widest, len([]rune(p.Link.Text)))
	}
	widest = min(widest, popupChars)

	wpx := widest*CharWidth + 2*popupPadding
	hpx := rows*LineHeight + 2*popupPadding
	tl := image.Pt(anchor.X-wpx/2, anchor.Y-hpx)
	pl.Box = image.Rectangle{Min: tl, Max: tl.Add(image.Pt(wpx, hpx))}

	if p.Link != nil {
		ly := pl.Box.Max.Y - popupPadding - LineHeight
		lx := pl.Box.Min.X + popupPadding
		lw := min(len([]rune(p.Link.Text)), popupChars) * CharWidth
		pl.LinkRect = image.Rect(lx, ly, lx+lw, ly+LineHeight)
	}
	return pl
}

// wrap breaks s into lines of at most width runes, on spaces where possible.
func wrap(s string, width int) []string {
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		r := []rune(word)
		for len(r) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(r[:width]))
			r = r[width:]
		}
		switch {
		case len(cur) == 0:
			cur = r
		case len(cur)+1+len(r) <= width:
			cur = append(append(cur, ' '), r...)
		default:
			lines = append(lines, string(cur))
			cur = r
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
