// Package canvas is a software map widget: camera math, animation, marker
// hit testing and popup layout for a pixel surface. It has no display of its
// own; the ebiten window draws its frames and feeds it input.
package canvas

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

const (
	MinZoom = 1
	MaxZoom = 19

	// FlyDuration is how long an animated move takes, in seconds.
	FlyDuration = 0.6

	maxMercatorLat = 85.05112878
)

// Surface is the container a canvas widget draws into. It is resized by the
// window that displays it.
type Surface struct {
	mu      sync.Mutex
	w, h    int
	current *Widget
}

func NewSurface(w, h int) *Surface {
	return &Surface{w: w, h: h}
}

func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

// Resize changes the surface size.
func (s *Surface) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w, s.h = w, h
}

// Current returns the widget mounted on the surface, or nil.
func (s *Surface) Current() *Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Surface) mount(w *Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = w
}

func (s *Surface) unmount(w *Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == w {
		s.current = nil
	}
}

// Factory builds canvas widgets on a *Surface. Input events are delivered
// through schedule.
func Factory(schedule widget.Scheduler) widget.Factory {
	return func(c widget.Container, cam core.Camera) (widget.Widget, error) {
		s, ok := c.(*Surface)
		if !ok {
			return nil, fmt.Errorf("container %T is not a canvas surface", c)
		}
		if !cam.Center.Valid() {
			return nil, fmt.Errorf("initial camera %s: %w", cam, geo.ErrInvalidCoordinates)
		}
		w := &Widget{
			surface:  s,
			schedule: schedule,
			center:   cam.Center,
			zoom:     float64(clampZoom(cam.Zoom)),
			markers:  make(map[string]widget.Marker),
			handlers: make(map[widget.EventType][]widget.Handler),
		}
		s.mount(w)
		return w, nil
	}
}

type flight struct {
	from, to core.Camera
	progress float64
}

// Widget is a map widget rendered on a Surface. All methods are safe for
// concurrent use; the window goroutine drives input while the view's loop
// issues commands.
type Widget struct {
	surface  *Surface
	schedule widget.Scheduler

	mu       sync.Mutex
	center   core.Position
	zoom     float64
	anim     *flight
	markers  map[string]widget.Marker
	order    []string
	open     string
	handlers map[widget.EventType][]widget.Handler
	removed  bool
}

func clampZoom(z int) int {
	return max(MinZoom, min(MaxZoom, z))
}

func (w *Widget) Camera() core.Camera {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cameraLocked()
}

func (w *Widget) cameraLocked() core.Camera {
	return core.Camera{Center: w.center, Zoom: int(math.Round(w.zoom))}
}

func (w *Widget) SetView(cam core.Camera) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return widget.ErrClosed
	}
	if !cam.Center.Valid() {
		return fmt.Errorf("set view %s: %w", cam, geo.ErrInvalidCoordinates)
	}
	w.anim = nil
	w.center = cam.Center
	w.zoom = float64(clampZoom(cam.Zoom))
	return nil
}

// FlyTo starts an eased flight from the live camera. A running flight is
// replaced.
func (w *Widget) FlyTo(cam core.Camera) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return widget.ErrClosed
	}
	if !cam.Center.Valid() {
		return fmt.Errorf("fly to %s: %w", cam, geo.ErrInvalidCoordinates)
	}
	cam.Zoom = clampZoom(cam.Zoom)
	from := core.Camera{Center: w.center, Zoom: int(math.Round(w.zoom))}
	w.anim = &flight{from: from, to: cam}
	return nil
}

// Animating reports whether a flight is in progress.
func (w *Widget) Animating() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.anim != nil
}

// Step advances a running flight by dt seconds.
func (w *Widget) Step(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.anim
	if a == nil {
		return
	}
	a.progress += dt / FlyDuration
	if a.progress >= 1 {
		w.center = a.to.Center
		w.zoom = float64(a.to.Zoom)
		w.anim = nil
		return
	}
	t := easeOutCubic(a.progress)
	w.center = core.Position{
		Lat: a.from.Center.Lat + (a.to.Center.Lat-a.from.Center.Lat)*t,
		Lng: a.from.Center.Lng + (a.to.Center.Lng-a.from.Center.Lng)*t,
	}
	w.zoom = float64(a.from.Zoom) + float64(a.to.Zoom-a.from.Zoom)*t
}

func easeOutCubic(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return 1 - math.Pow(1-t, 3)
}

func (w *Widget) On(t widget.EventType, h widget.Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[t] = append(w.handlers[t], h)
}

func (w *Widget) UpsertMarker(m widget.Marker) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return widget.ErrClosed
	}
	if _, ok := w.markers[m.ID]; !ok {
		w.order = append(w.order, m.ID)
	}
	w.markers[m.ID] = m
	return nil
}

func (w *Widget) RemoveMarker(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return widget.ErrClosed
	}
	if _, ok := w.markers[id]; !ok {
		return nil
	}
	delete(w.markers, id)
	for i, o := range w.order {
		if o == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	if w.open == id {
		w.open = ""
	}
	return nil
}

func (w *Widget) Remove() error {
	w.mu.Lock()
	if w.removed {
		w.mu.Unlock()
		return widget.ErrClosed
	}
	w.removed = true
	w.anim = nil
	w.markers = make(map[string]widget.Marker)
	w.order = nil
	w.open = ""
	w.handlers = make(map[widget.EventType][]widget.Handler)
	w.mu.Unlock()

	w.surface.unmount(w)
	return nil
}

// centerPixel is the global pixel of the camera center at the current zoom.
func (w *Widget) centerPixel() (float64, float64) {
	return geo.ToPixel(w.center, w.zoom)
}

func (w *Widget) toScreen(p core.Position) (float64, float64) {
	sw, sh := w.surface.Size()
	cx, cy := w.centerPixel()
	px, py := geo.ToPixel(p, w.zoom)
	return px - cx + float64(sw)/2, py - cy + float64(sh)/2
}

func (w *Widget) fromScreen(x, y float64) core.Position {
	sw, sh := w.surface.Size()
	cx, cy := w.centerPixel()
	return geo.FromPixel(cx+x-float64(sw)/2, cy+y-float64(sh)/2, w.zoom)
}

// ToScreen returns the surface pixel of p under the live camera.
func (w *Widget) ToScreen(p core.Position) (float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.toScreen(p)
}

// FromScreen returns the position under a surface pixel.
func (w *Widget) FromScreen(x, y float64) core.Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fromScreen(x, y)
}

func normalize(p core.Position) core.Position {
	p.Lat = max(-maxMercatorLat, min(maxMercatorLat, p.Lat))
	p.Lng = math.Mod(p.Lng+180, 360)
	if p.Lng < 0 {
		p.Lng += 360
	}
	p.Lng -= 180
	return p
}

// Drag pans the map by a pointer movement of (dx, dy) pixels. It cancels any
// flight and emits nothing until EndDrag.
func (w *Widget) Drag(dx, dy float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return
	}
	w.anim = nil
	cx, cy := w.centerPixel()
	w.center = normalize(geo.FromPixel(cx-dx, cy-dy, w.zoom))
}

// EndDrag finishes a pan gesture.
func (w *Widget) EndDrag() {
	w.gesture(widget.EventMoveEnd)
}

// ZoomAt zooms by steps levels keeping the position under (x, y) fixed, then
// ends the zoom gesture. Zooming past the limits does nothing.
func (w *Widget) ZoomAt(steps int, x, y float64) {
	w.mu.Lock()
	if w.removed || steps == 0 {
		w.mu.Unlock()
		return
	}
	w.anim = nil
	old := int(math.Round(w.zoom))
	next := clampZoom(old + steps)
	if next == old {
		w.mu.Unlock()
		return
	}

	anchor := w.fromScreen(x, y)
	sw, sh := w.surface.Size()
	ax, ay := geo.ToPixel(anchor, float64(next))
	w.zoom = float64(next)
	w.center = normalize(geo.FromPixel(ax-(x-float64(sw)/2), ay-(y-float64(sh)/2), w.zoom))
	w.mu.Unlock()

	w.gesture(widget.EventZoomEnd)
}

func (w *Widget) gesture(t widget.EventType) {
	w.mu.Lock()
	removed := w.removed
	w.mu.Unlock()
	if removed {
		return
	}
	w.schedule(func() { w.emit(widget.Event{Type: t}) })
}

// ClickAt handles a pointer click. A click on the open popup's link reports
// the link only. A click on a marker opens its popup and reports the marker.
// A click on empty map closes the popup.
func (w *Widget) ClickAt(x, y float64) {
	w.mu.Lock()
	if w.removed {
		w.mu.Unlock()
		return
	}
	pt := image.Pt(int(x), int(y))

	if pl, ok := w.popupLocked(); ok {
		if pl.Link != nil && pt.In(pl.LinkRect) {
			ev := widget.Event{Type: widget.EventClick, MarkerID: pl.MarkerID, Target: widget.TargetPopupLink, URL: pl.Link.URL}
			w.mu.Unlock()
			w.schedule(func() { w.emit(ev) })
			return
		}
		if pt.In(pl.Box) {
			w.mu.Unlock()
			return
		}
	}

	id, hit := w.hitLocked(pt)
	if !hit {
		w.open = ""
		w.mu.Unlock()
		return
	}
	if w.markers[id].Popup != nil {
		w.open = id
	}
	w.mu.Unlock()

	ev := widget.Event{Type: widget.EventClick, MarkerID: id, Target: widget.TargetMarker}
	w.schedule(func() { w.emit(ev) })
}

// hitLocked returns the topmost marker whose glyph covers pt.
func (w *Widget) hitLocked(pt image.Point) (string, bool) {
	for i := len(w.order) - 1; i >= 0; i-- {
		m := w.markers[w.order[i]]
		if pt.In(w.glyphRect(m)) {
			return m.ID, true
		}
	}
	return "", false
}

func (w *Widget) glyphRect(m widget.Marker) image.Rectangle {
	x, y := w.toScreen(m.Position)
	size := image.Pt(24, 24)
	if m.Glyph != nil {
		size = m.Glyph.Bounds().Size()
	}
	tl := image.Pt(int(math.Round(x))-m.Anchor.X, int(math.Round(y))-m.Anchor.Y)
	return image.Rectangle{Min: tl, Max: tl.Add(size)}
}

func (w *Widget) emit(ev widget.Event) {
	w.mu.Lock()
	hs := append([]widget.Handler(nil), w.handlers[ev.Type]...)
	w.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

var _ widget.Widget = (*Widget)(nil)
