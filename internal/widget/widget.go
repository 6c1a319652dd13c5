// Package widget defines the contract between the map view engine and a
// concrete map widget (desktop window, browser bridge, headless).
//
// Gesture events (EventMoveEnd, EventZoomEnd) fire only when the user ends a
// drag or a zoom. Programmatic SetView and FlyTo calls never emit them; the
// camera reconciler depends on that separation to avoid feedback loops.
package widget

import (
	"errors"
	"image"

	"github.com/geomark/mapview/pkg/core"
)

// ErrClosed is returned by widget methods called after Remove.
var ErrClosed = errors.New("widget removed")

// EventType names a widget notification
type EventType string

const (
	EventMoveEnd EventType = "moveend"
	EventZoomEnd EventType = "zoomend"
	EventClick   EventType = "click"
)

// Target identifies which element of a marker received a click.
type Target string

const (
	TargetMarker Target = "marker"
	// TargetPopupLink is a click on the popup's external link. Widgets stop
	// its propagation so it never reaches the marker's click handler.
	TargetPopupLink Target = "popup-link"
)

// Event is a notification raised by the widget
type Event struct {
	Type     EventType `json:"type"`
	MarkerID string    `json:"markerId,omitempty"`
	Target   Target    `json:"target,omitempty"`
	URL      string    `json:"url,omitempty"`
}

// Handler receives widget events.
type Handler func(Event)

// Link is an external reference shown inside a popup.
type Link struct {
	URL             string `json:"url"`
	Text            string `json:"text"`
	StopPropagation bool   `json:"stopPropagation"`
}

// Popup is the detail panel opened from a marker.
type Popup struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  *Link  `json:"link,omitempty"`
}

// Marker describes one marker placement.
type Marker struct {
	ID          string        `json:"id"`
	Kind        core.Kind     `json:"kind"`
	Position    core.Position `json:"position"`
	Label       string        `json:"label"`
	Glyph       image.Image   `json:"-"`
	Anchor      image.Point   `json:"anchor"`
	PopupAnchor image.Point   `json:"popupAnchor"`
	Popup       *Popup        `json:"popup,omitempty"`
}

// Widget is a live map widget instance.
type Widget interface {
	// Camera returns the live center and zoom.
	Camera() core.Camera
	// SetView moves the camera immediately, without animation.
	SetView(cam core.Camera) error
	// FlyTo moves the camera with an animated transition. A later move
	// re-targets the camera.
	FlyTo(cam core.Camera) error
	// On subscribes h to events of type t.
	On(t EventType, h Handler)
	// UpsertMarker places or replaces the marker with m.ID.
	UpsertMarker(m Marker) error
	// RemoveMarker removes the marker with the given ID, if present.
	RemoveMarker(id string) error
	// Remove destroys the widget and releases its resources.
	Remove() error
}

// Container is the on-screen host a widget is built into.
type Container interface {
	// Size returns the container's pixel size.
	Size() (width, height int)
}

// Factory constructs a widget inside c, starting at cam.
type Factory func(c Container, cam core.Camera) (Widget, error)

// Scheduler runs fn on the view's event loop. Widgets receiving input on
// other goroutines use it to deliver events.
type Scheduler func(fn func())

// Immediate runs fn on the calling goroutine.
func Immediate(fn func()) { fn() }
