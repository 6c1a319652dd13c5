// Package mapview keeps a single map widget in sync with caller-supplied
// camera and entity state.
//
// A View is not safe for concurrent use. Every method, and every widget event
// delivered to it, must run on the same event loop (see internal/dispatcher).
package mapview

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/internal/popup"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// ErrNoFactory is returned when a view is activated without a widget factory.
var ErrNoFactory = errors.New("no widget factory configured")

// ErrNilWidget is returned when the factory reports success without a widget.
var ErrNilWidget = errors.New("factory returned nil widget")

const (
	DefaultZoom         = 13
	DefaultMinFocusZoom = 15
)

// Config holds the view's static settings
type Config struct {
	Factory widget.Factory
	// Ready runs once after the widget is built and subscribed. An error
	// tears the fresh widget down again.
	Ready func(widget.Widget) error

	// OnMove observes every programmatic camera move the view issues.
	// kind is "snap" for reconciler moves and "fly" for focus moves.
	OnMove func(kind string, target core.Camera)

	DefaultZoom  int
	MinFocusZoom int
	Tolerance    float64
	Logger       *slog.Logger
}

// Props is the caller-owned state the view renders.
type Props struct {
	DesiredCenter core.Position
	// DesiredZoom of 0 means "use the default zoom".
	DesiredZoom int
	Users       []core.User
	Landmarks   []core.Landmark
	Selected    core.Selection
	Summaries   popup.Summaries
}

// Notifications are the view's outbound calls. Nil fields are skipped.
type Notifications struct {
	// OnCameraChanged reports a camera the user moved to with a gesture.
	OnCameraChanged func(center core.Position, zoom int)
	// OnEntityActivated reports a marker click.
	OnEntityActivated func(sel core.Selection)
	// OnLinkOpened reports a click on a popup's external link.
	OnLinkOpened func(url string)
}

type state int

const (
	stateIdle state = iota
	statePending
	stateReady
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateReady:
		return "ready"
	default:
		return "idle"
	}
}

// View owns the widget handle and drives the reconciler, gesture listener,
// focus follower and marker renderer against it.
type View struct {
	cfg    Config
	log    *slog.Logger
	notify Notifications
	meters *meters

	container widget.Container
	state     state
	w         widget.Widget
	// gen increments on every teardown so events from a destroyed widget are ignored.
	gen uint64

	props    Props
	hasProps bool

	reconciler reconciler
	focus      focusFollower
	renderer   renderer
}

// New creates an inactive view.
func New(cfg Config, notify Notifications) (*View, error) {
	if cfg.DefaultZoom == 0 {
		cfg.DefaultZoom = DefaultZoom
	}
	if cfg.MinFocusZoom == 0 {
		cfg.MinFocusZoom = DefaultMinFocusZoom
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = geo.DefaultTolerance
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m, err := newMeters()
	if err != nil {
		return nil, err
	}

	v := &View{
		cfg:    cfg,
		log:    cfg.Logger.With("component", "mapview"),
		notify: notify,
		meters: m,
	}
	v.resetComponents()
	return v, nil
}

func (v *View) resetComponents() {
	v.reconciler = reconciler{tolerance: v.cfg.Tolerance}
	v.focus = focusFollower{minZoom: v.cfg.MinFocusZoom}
	v.renderer = newRenderer()
}

// Placeholder reports whether the view has no live widget and renders only a placeholder.
func (v *View) Placeholder() bool {
	return v.state != stateReady
}

// Active reports whether Activate has been called without a matching Deactivate.
func (v *View) Active() bool {
	return v.state != stateIdle
}

// Camera returns the live camera, or false when no widget exists.
func (v *View) Camera() (core.Camera, bool) {
	if v.w == nil {
		return core.Camera{}, false
	}
	return v.w.Camera(), true
}

// LogAttrs describes the view for log context handlers.
func (v *View) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("view", v.state.String()),
		slog.String("selected", v.props.Selected.Key()),
	}
}

// Activate mounts the view. The widget is built as soon as a container is
// attached. Calling Activate on an active view is a no-op; a pending view
// with a container retries the failed build.
func (v *View) Activate() error {
	if v.state == stateReady {
		return nil
	}
	v.state = statePending
	if v.container == nil {
		v.log.Debug("Activation pending until a container is attached")
		return nil
	}
	return v.build()
}

// Attach supplies the on-screen container. A pending activation builds the widget.
func (v *View) Attach(c widget.Container) error {
	if c == nil {
		return v.Detach()
	}
	if v.state == stateReady {
		v.teardown()
		v.state = statePending
	}
	v.container = c
	if v.state == statePending {
		return v.build()
	}
	return nil
}

// Detach removes the container. A live widget is destroyed and the view goes
// back to pending until a new container is attached.
func (v *View) Detach() error {
	v.container = nil
	if v.state == stateReady {
		v.teardown()
		v.state = statePending
	}
	return nil
}

// Deactivate unmounts the view, destroying the widget exactly once.
// Teardown failures are logged, never returned.
func (v *View) Deactivate() {
	if v.state == stateReady {
		v.teardown()
	}
	v.state = stateIdle
}

// Update applies new props. Without a widget the props are only stored.
func (v *View) Update(p Props) {
	v.props = p
	v.hasProps = true
	if v.state != stateReady {
		return
	}
	v.sync()
}

func (v *View) desired() core.Camera {
	zoom := v.props.DesiredZoom
	if zoom == 0 {
		zoom = v.cfg.DefaultZoom
	}
	return core.Camera{Center: v.props.DesiredCenter, Zoom: zoom}
}

func (v *View) build() error {
	if v.cfg.Factory == nil {
		return ErrNoFactory
	}

	var w widget.Widget
	err := guard(func() error {
		var err error
		w, err = v.cfg.Factory(v.container, v.desired())
		return err
	})
	if err != nil {
		v.log.Error("Failed to create map widget", "error", err)
		return fmt.Errorf("creating widget: %w", err)
	}
	if w == nil {
		return fmt.Errorf("creating widget: %w", ErrNilWidget)
	}

	v.w = w
	v.state = stateReady
	gen := v.gen

	if err := guard(func() error {
		v.subscribe(w, gen)
		if v.cfg.Ready != nil {
			return v.cfg.Ready(w)
		}
		return nil
	}); err != nil {
		v.log.Error("Map widget setup failed, destroying it", "error", err)
		v.teardown()
		v.state = statePending
		return fmt.Errorf("setting up widget: %w", err)
	}

	v.log.Info("Map widget ready", "camera", w.Camera().String())
	if v.hasProps {
		v.sync()
	}
	return nil
}

func (v *View) teardown() {
	w := v.w
	v.w = nil
	v.gen++
	v.resetComponents()
	if w == nil {
		return
	}
	if err := guard(w.Remove); err != nil {
		v.log.Warn("Map widget teardown failed", "error", err)
		return
	}
	v.log.Debug("Map widget removed")
}

// current returns the widget if gen still names the live instance.
func (v *View) current(gen uint64) (widget.Widget, bool) {
	if v.w == nil || gen != v.gen {
		return nil, false
	}
	return v.w, true
}

func (v *View) sync() {
	w := v.w
	if target, ok := v.reconciler.reconcile(w, v.desired(), v.log); ok {
		v.moved("snap", target)
	}
	if target, ok := v.focus.follow(w, v.props.Selected, v.log); ok {
		v.moved("fly", target)
	}
	v.renderer.render(w, v.props, v.log)
}

func (v *View) moved(kind string, target core.Camera) {
	v.meters.move(kind)
	if v.cfg.OnMove != nil {
		v.cfg.OnMove(kind, target)
	}
}

func (v *View) subscribe(w widget.Widget, gen uint64) {
	listenGestures(w, func() (widget.Widget, bool) { return v.current(gen) }, v.notify.OnCameraChanged)

	w.On(widget.EventClick, func(ev widget.Event) {
		if _, ok := v.current(gen); !ok {
			return
		}
		v.handleClick(ev)
	})
}

func (v *View) handleClick(ev widget.Event) {
	// The popup link opens its URL; it never selects the marker's entity.
	if ev.Target == widget.TargetPopupLink {
		if v.notify.OnLinkOpened != nil && ev.URL != "" {
			v.notify.OnLinkOpened(ev.URL)
		}
		return
	}
	sel, ok := v.renderer.entity(ev.MarkerID)
	if !ok {
		v.log.Debug("Click on unknown marker", "marker", ev.MarkerID)
		return
	}
	if v.notify.OnEntityActivated != nil {
		v.notify.OnEntityActivated(sel)
	}
}

// guard runs fn, converting a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("widget panic: %v", r)
		}
	}()
	return fn()
}
