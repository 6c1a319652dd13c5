package wsbridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
	"github.com/geomark/mapview/pkg/streaming"
)

// IconURL maps a marker kind to the URL the browser loads its icon from.
type IconURL func(core.Kind) string

// Widget is a browser-side map driven over a Conn.
type Widget struct {
	conn     *Conn
	schedule widget.Scheduler
	iconURL  IconURL

	mu       sync.Mutex
	live     core.Camera
	handlers map[widget.EventType][]widget.Handler
	removed  bool
}

// Factory builds bridge widgets. The container must be a *Conn; browser
// events are delivered through schedule.
func Factory(schedule widget.Scheduler, iconURL IconURL) widget.Factory {
	return func(c widget.Container, cam core.Camera) (widget.Widget, error) {
		conn, ok := c.(*Conn)
		if !ok {
			return nil, fmt.Errorf("container %T is not a bridge connection", c)
		}
		w := &Widget{
			conn:     conn,
			schedule: schedule,
			iconURL:  iconURL,
			live:     cam,
			handlers: make(map[widget.EventType][]widget.Handler),
		}
		if err := conn.Send(streaming.TypeSetView, streaming.FromCamera(cam)); err != nil {
			return nil, fmt.Errorf("sending initial view: %w", err)
		}
		conn.attach(w)
		return w, nil
	}
}

func (w *Widget) Camera() core.Camera {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.live
}

func (w *Widget) SetView(cam core.Camera) error {
	return w.move(streaming.TypeSetView, cam)
}

// FlyTo asks the browser to animate. The live camera is taken to be the
// target until the browser reports a gesture.
func (w *Widget) FlyTo(cam core.Camera) error {
	return w.move(streaming.TypeFlyTo, cam)
}

func (w *Widget) move(msgType string, cam core.Camera) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return widget.ErrClosed
	}
	if err := w.conn.Send(msgType, streaming.FromCamera(cam)); err != nil {
		return err
	}
	w.live = cam
	return nil
}

func (w *Widget) On(t widget.EventType, h widget.Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[t] = append(w.handlers[t], h)
}

func (w *Widget) UpsertMarker(m widget.Marker) error {
	if w.isRemoved() {
		return widget.ErrClosed
	}
	return w.conn.Send(streaming.TypeUpsertMarker, w.markerPayload(m))
}

func (w *Widget) RemoveMarker(id string) error {
	if w.isRemoved() {
		return widget.ErrClosed
	}
	return w.conn.Send(streaming.TypeRemoveMarker, streaming.RemoveMarkerPayload{ID: id})
}

// Remove tears down the browser map. The connection stays open so the
// session can mount a new widget on it.
func (w *Widget) Remove() error {
	w.mu.Lock()
	if w.removed {
		w.mu.Unlock()
		return widget.ErrClosed
	}
	w.removed = true
	w.handlers = make(map[widget.EventType][]widget.Handler)
	w.mu.Unlock()

	w.conn.detach(w)
	err := w.conn.Send(streaming.TypeRemove, nil)
	if errors.Is(err, widget.ErrClosed) {
		// browser already gone
		return nil
	}
	return err
}

func (w *Widget) isRemoved() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removed
}

func (w *Widget) markerPayload(m widget.Marker) streaming.MarkerPayload {
	p := streaming.MarkerPayload{
		ID:          m.ID,
		Kind:        m.Kind.String(),
		Lat:         m.Position.Lat,
		Lng:         m.Position.Lng,
		Label:       m.Label,
		Anchor:      [2]int{m.Anchor.X, m.Anchor.Y},
		PopupAnchor: [2]int{m.PopupAnchor.X, m.PopupAnchor.Y},
	}
	if w.iconURL != nil {
		p.IconURL = w.iconURL(m.Kind)
	}
	if m.Popup != nil {
		p.Popup = &streaming.PopupPayload{Title: m.Popup.Title, Body: m.Popup.Body}
		if l := m.Popup.Link; l != nil {
			p.Popup.Link = &streaming.LinkPayload{URL: l.URL, Text: l.Text, StopPropagation: l.StopPropagation}
		}
	}
	return p
}

// deliver turns a browser event into a widget event on the view's loop.
func (w *Widget) deliver(env streaming.Envelope) {
	switch env.Type {
	case streaming.TypeMoveEnd, streaming.TypeZoomEnd:
		var p streaming.CameraPayload
		if err := env.Decode(&p); err != nil {
			w.conn.logger.Debug("Dropping gesture event", "error", err)
			return
		}
		cam := p.Camera()
		if !cam.Center.Valid() {
			w.conn.logger.Debug("Dropping gesture event with invalid camera", "camera", cam.String())
			return
		}
		ev := widget.Event{Type: widget.EventMoveEnd}
		if env.Type == streaming.TypeZoomEnd {
			ev.Type = widget.EventZoomEnd
		}
		w.schedule(func() {
			w.mu.Lock()
			if w.removed {
				w.mu.Unlock()
				return
			}
			w.live = cam
			w.mu.Unlock()
			w.emit(ev)
		})

	case streaming.TypeClick:
		var p streaming.ClickPayload
		if err := env.Decode(&p); err != nil {
			w.conn.logger.Debug("Dropping click event", "error", err)
			return
		}
		ev := widget.Event{
			Type:     widget.EventClick,
			MarkerID: p.MarkerID,
			Target:   widget.Target(p.Target),
			URL:      p.URL,
		}
		if ev.Target != widget.TargetPopupLink {
			ev.Target = widget.TargetMarker
			ev.URL = ""
		}
		w.schedule(func() { w.emit(ev) })
	}
}

func (w *Widget) emit(ev widget.Event) {
	w.mu.Lock()
	hs := append([]widget.Handler(nil), w.handlers[ev.Type]...)
	w.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}
