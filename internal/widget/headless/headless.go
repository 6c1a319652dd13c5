// Package headless implements widget.Widget without any display. Commands are
// recorded in order, gestures and clicks are simulated by the caller. It backs
// the demo command and the view engine tests.
package headless

import (
	"fmt"
	"sync"

	"github.com/geomark/mapview/internal/queue"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// Op names a recorded widget command
type Op string

const (
	OpSetView Op = "setView"
	OpFlyTo   Op = "flyTo"
	OpUpsert  Op = "upsertMarker"
	OpRemove  Op = "removeMarker"
	OpDestroy Op = "remove"
)

// Command is one recorded call into the widget.
type Command struct {
	Op       Op
	Camera   core.Camera
	Marker   widget.Marker
	MarkerID string
}

func (c Command) String() string {
	switch c.Op {
	case OpSetView, OpFlyTo:
		return fmt.Sprintf("%s %s", c.Op, c.Camera)
	case OpUpsert:
		return fmt.Sprintf("%s %s", c.Op, c.Marker.ID)
	case OpRemove:
		return fmt.Sprintf("%s %s", c.Op, c.MarkerID)
	default:
		return string(c.Op)
	}
}

// Screen is a fixed-size container.
type Screen struct {
	W, H int
}

func (s Screen) Size() (int, int) { return s.W, s.H }

// Widget is an in-memory map widget
type Widget struct {
	mu       sync.Mutex
	live     core.Camera
	target   *core.Camera
	markers  map[string]widget.Marker
	handlers map[widget.EventType][]widget.Handler
	log      *queue.Queue[Command]
	removed  bool

	// HoldAnimations keeps FlyTo in flight until FinishAnimation is called.
	HoldAnimations bool
	// RemoveErr is returned by Remove; RemovePanic makes Remove panic.
	RemoveErr   error
	RemovePanic bool

	failNext map[Op]error
}

// New creates a widget showing cam.
func New(cam core.Camera) *Widget {
	return &Widget{
		live:     cam,
		markers:  make(map[string]widget.Marker),
		handlers: make(map[widget.EventType][]widget.Handler),
		log:      queue.New[Command](),
		failNext: make(map[Op]error),
	}
}

// Camera returns the live camera.
func (w *Widget) Camera() core.Camera {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.live
}

// SetView snaps the camera and cancels any animation.
func (w *Widget) SetView(cam core.Camera) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(OpSetView); err != nil {
		return err
	}
	w.target = nil
	w.live = cam
	w.log.Push(Command{Op: OpSetView, Camera: cam})
	return nil
}

// FlyTo animates to cam. Without HoldAnimations the animation completes at once.
func (w *Widget) FlyTo(cam core.Camera) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(OpFlyTo); err != nil {
		return err
	}
	w.log.Push(Command{Op: OpFlyTo, Camera: cam})
	if w.HoldAnimations {
		w.target = &cam
		return nil
	}
	w.live = cam
	return nil
}

// Animating reports whether a FlyTo is in flight.
func (w *Widget) Animating() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target != nil
}

// FinishAnimation lands an in-flight FlyTo.
func (w *Widget) FinishAnimation() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.target != nil {
		w.live = *w.target
		w.target = nil
	}
}

func (w *Widget) On(t widget.EventType, h widget.Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[t] = append(w.handlers[t], h)
}

func (w *Widget) UpsertMarker(m widget.Marker) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(OpUpsert); err != nil {
		return err
	}
	w.markers[m.ID] = m
	w.log.Push(Command{Op: OpUpsert, Marker: m})
	return nil
}

func (w *Widget) RemoveMarker(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(OpRemove); err != nil {
		return err
	}
	delete(w.markers, id)
	w.log.Push(Command{Op: OpRemove, MarkerID: id})
	return nil
}

// Remove destroys the widget. Further calls fail with widget.ErrClosed.
func (w *Widget) Remove() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return widget.ErrClosed
	}
	w.removed = true
	w.markers = make(map[string]widget.Marker)
	w.handlers = make(map[widget.EventType][]widget.Handler)
	w.log.Push(Command{Op: OpDestroy})
	if w.RemovePanic {
		panic("headless: remove failed")
	}
	return w.RemoveErr
}

// Removed reports whether Remove has been called.
func (w *Widget) Removed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removed
}

// FailNext makes the next call of op return err.
func (w *Widget) FailNext(op Op, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failNext[op] = err
}

func (w *Widget) check(op Op) error {
	if w.removed {
		return widget.ErrClosed
	}
	if err, ok := w.failNext[op]; ok {
		delete(w.failNext, op)
		return err
	}
	return nil
}

// Markers returns a copy of the placed markers keyed by ID.
func (w *Widget) Markers() map[string]widget.Marker {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]widget.Marker, len(w.markers))
	for k, v := range w.markers {
		out[k] = v
	}
	return out
}

// Commands drains and returns the recorded commands.
func (w *Widget) Commands() []Command {
	return w.log.GetAndEmpty()
}

// Moves drains the recorded commands and returns only camera moves.
func (w *Widget) Moves() []Command {
	var moves []Command
	for _, c := range w.log.GetAndEmpty() {
		if c.Op == OpSetView || c.Op == OpFlyTo {
			moves = append(moves, c)
		}
	}
	return moves
}

// Pan simulates the user dragging the map to center and releasing.
func (w *Widget) Pan(center core.Position) {
	w.mu.Lock()
	w.target = nil
	w.live.Center = center
	w.mu.Unlock()
	w.emit(widget.Event{Type: widget.EventMoveEnd})
}

// Zoom simulates the user finishing a zoom gesture.
func (w *Widget) Zoom(zoom int) {
	w.mu.Lock()
	w.target = nil
	w.live.Zoom = zoom
	w.mu.Unlock()
	w.emit(widget.Event{Type: widget.EventZoomEnd})
}

// Click simulates a click on a marker element.
func (w *Widget) Click(markerID string, target widget.Target) {
	w.mu.Lock()
	m, ok := w.markers[markerID]
	w.mu.Unlock()
	if !ok {
		return
	}
	ev := widget.Event{Type: widget.EventClick, MarkerID: markerID, Target: target}
	if target == widget.TargetPopupLink && m.Popup != nil && m.Popup.Link != nil {
		ev.URL = m.Popup.Link.URL
	}
	w.emit(ev)
}

func (w *Widget) emit(ev widget.Event) {
	w.mu.Lock()
	hs := append([]widget.Handler(nil), w.handlers[ev.Type]...)
	w.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Host builds headless widgets and keeps every instance it built.
type Host struct {
	mu        sync.Mutex
	instances []*Widget

	// BuildErr, when set, makes the next build fail.
	BuildErr error
	// Configure runs on each new widget before it is returned.
	Configure func(*Widget)
}

// Factory implements widget.Factory.
func (h *Host) Factory(c widget.Container, cam core.Camera) (widget.Widget, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.BuildErr != nil {
		err := h.BuildErr
		h.BuildErr = nil
		return nil, err
	}
	w := New(cam)
	if h.Configure != nil {
		h.Configure(w)
	}
	h.instances = append(h.instances, w)
	return w, nil
}

// Instances returns the widgets built so far.
func (h *Host) Instances() []*Widget {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Widget(nil), h.instances...)
}

// Last returns the most recently built widget, or nil.
func (h *Host) Last() *Widget {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.instances) == 0 {
		return nil
	}
	return h.instances[len(h.instances)-1]
}

var _ widget.Widget = (*Widget)(nil)
