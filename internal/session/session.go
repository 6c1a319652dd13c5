// Package session holds the caller-side state a map view renders: the user
// and landmark lists, the current selection and the desired camera. It
// answers the view's notifications and feeds background results (nearby
// landmarks, summaries) back onto the event loop.
//
// Like mapview.View, a Session is confined to one event loop. LogAttrs is the
// only method safe to call from other goroutines.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geomark/mapview/internal/influx"
	"github.com/geomark/mapview/internal/landmarks"
	"github.com/geomark/mapview/internal/mapview"
	"github.com/geomark/mapview/internal/metrics"
	"github.com/geomark/mapview/internal/summary"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// DefaultRadiusMeters is the discovery radius used when none is configured.
const DefaultRadiusMeters = 1500

// CameraRecorder receives camera telemetry.
type CameraRecorder interface {
	WriteCamera(ev influx.CameraEvent) error
}

// Deps are the session's collaborators. Only Post is required.
type Deps struct {
	// Post runs a function on the session's event loop.
	Post widget.Scheduler

	Landmarks    landmarks.Source
	RadiusMeters float64

	Summaries *summary.Fetcher
	Cache     *summary.Cache

	Recorder CameraRecorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// OpenLink handles a popup link click.
	OpenLink func(url string)
}

// Session is the state owner behind one map view.
type Session struct {
	deps Deps
	log  *slog.Logger
	view *mapview.View

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	desired   core.Camera
	users     []core.User
	landmarks []core.Landmark
	selected  core.Selection
	filter    string

	attrs atomic.Pointer[[]slog.Attr]
}

// New creates a session and its view. start is the initial desired camera.
func New(cfg mapview.Config, start core.Camera, deps Deps) (*Session, error) {
	if deps.Post == nil {
		return nil, errors.New("session requires a loop scheduler")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RadiusMeters <= 0 {
		deps.RadiusMeters = DefaultRadiusMeters
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		deps:    deps,
		log:     deps.Logger.With("component", "session"),
		ctx:     ctx,
		cancel:  cancel,
		desired: start,
	}

	onMove := cfg.OnMove
	cfg.OnMove = func(kind string, target core.Camera) {
		s.record(kind, target)
		if onMove != nil {
			onMove(kind, target)
		}
	}

	view, err := mapview.New(cfg, s.Notifications())
	if err != nil {
		cancel()
		return nil, err
	}
	s.view = view

	if deps.Summaries != nil {
		deps.Summaries.OnStored = func(key string) {
			s.log.Debug("Summary arrived", "landmark", key)
			s.render()
		}
	}
	s.storeAttrs()
	return s, nil
}

// View returns the map view the session drives.
func (s *Session) View() *mapview.View { return s.view }

// Notifications returns the callbacks the view reports through.
func (s *Session) Notifications() mapview.Notifications {
	return mapview.Notifications{
		OnCameraChanged:   s.cameraChanged,
		OnEntityActivated: s.Select,
		OnLinkOpened:      s.linkOpened,
	}
}

// Props returns what the view should currently render.
func (s *Session) Props() mapview.Props {
	p := mapview.Props{
		DesiredCenter: s.desired.Center,
		DesiredZoom:   s.desired.Zoom,
		Users:         s.users,
		Landmarks:     s.landmarks,
		Selected:      s.selected,
	}
	if s.deps.Cache != nil {
		p.Summaries = s.deps.Cache
	}
	if s.filter != "" {
		p.Users = filterUsers(s.users, s.filter)
		p.Landmarks = filterLandmarks(s.landmarks, s.filter)
	}
	return p
}

func (s *Session) render() {
	if s.closed {
		return
	}
	s.view.Update(s.Props())
	s.storeAttrs()
}

// Desired returns the desired camera.
func (s *Session) Desired() core.Camera { return s.desired }

// Selected returns the current selection.
func (s *Session) Selected() core.Selection { return s.selected }

// Users returns the full user list.
func (s *Session) Users() []core.User { return s.users }

// Landmarks returns the full landmark list.
func (s *Session) Landmarks() []core.Landmark { return s.landmarks }

// SetDesired moves the desired camera.
func (s *Session) SetDesired(cam core.Camera) {
	s.desired = cam
	s.render()
}

// SetUsers replaces the user list.
func (s *Session) SetUsers(users []core.User) {
	s.users = append([]core.User(nil), users...)
	s.render()
}

// SetLandmarks replaces the landmark list.
func (s *Session) SetLandmarks(ls []core.Landmark) {
	s.landmarks = append([]core.Landmark(nil), ls...)
	s.render()
}

// MergeLandmarks adds landmarks, replacing existing ones with the same key.
// It returns the number of landmarks that were new.
func (s *Session) MergeLandmarks(ls []core.Landmark) int {
	index := make(map[string]int, len(s.landmarks))
	for i, l := range s.landmarks {
		index[l.Key()] = i
	}
	added := 0
	for _, l := range ls {
		if i, ok := index[l.Key()]; ok {
			s.landmarks[i] = l
			continue
		}
		index[l.Key()] = len(s.landmarks)
		s.landmarks = append(s.landmarks, l)
		added++
	}
	s.render()
	return added
}

// Select changes the selection. A landmark selection requests its summary;
// any selection with a position starts nearby discovery around it.
func (s *Session) Select(sel core.Selection) {
	s.selected = sel
	if l, ok := sel.Landmark(); ok && s.deps.Summaries != nil {
		s.deps.Summaries.Request(s.ctx, l)
	}
	if p := sel.Position(); p != nil && p.Valid() {
		s.Discover(*p)
	}
	s.render()
}

// ClearSelection drops the selection.
func (s *Session) ClearSelection() {
	s.Select(core.NoSelection())
}

// ToggleFollow flips the followed flag on a user and reports the new value.
// Unknown ids report false.
func (s *Session) ToggleFollow(userID string) bool {
	for i := range s.users {
		if s.users[i].ID != userID {
			continue
		}
		s.users[i].Followed = !s.users[i].Followed
		s.render()
		return s.users[i].Followed
	}
	return false
}

// Filter narrows the rendered entities to those whose name, title or tags
// contain q, case-insensitively. An empty q shows everything.
func (s *Session) Filter(q string) {
	s.filter = strings.ToLower(strings.TrimSpace(q))
	s.render()
}

// Discover looks up landmarks around center in the background and merges the
// results once they arrive.
func (s *Session) Discover(center core.Position) {
	src := s.deps.Landmarks
	if src == nil || s.closed {
		return
	}
	ctx := s.ctx
	radius := s.deps.RadiusMeters
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		found, err := src.Nearby(ctx, center, radius)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("Nearby landmark lookup failed", "center", center.String(), "error", err)
			}
			return
		}
		s.deps.Post(func() {
			if s.closed {
				return
			}
			added := s.MergeLandmarks(found)
			s.log.Debug("Nearby landmarks merged", "center", center.String(), "found", len(found), "new", added)
		})
	}()
}

// Wait blocks until background lookups have finished. Their results may still
// be queued on the loop.
func (s *Session) Wait() {
	s.wg.Wait()
	if s.deps.Summaries != nil {
		s.deps.Summaries.Wait()
	}
}

// Close cancels background work and deactivates the view.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.cancel()
	s.view.Deactivate()
	s.closed = true
	s.storeAttrs()
}

// LogAttrs describes the session for log context handlers.
func (s *Session) LogAttrs() []slog.Attr {
	if p := s.attrs.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Session) storeAttrs() {
	attrs := s.view.LogAttrs()
	attrs = append(attrs, slog.String("camera", s.desired.String()))
	s.attrs.Store(&attrs)
}

func (s *Session) cameraChanged(center core.Position, zoom int) {
	s.desired = core.Camera{Center: center, Zoom: zoom}
	s.record("gesture", s.desired)
	s.render()
}

func (s *Session) linkOpened(url string) {
	s.log.Info("Popup link opened", "url", url)
	if s.deps.OpenLink != nil {
		s.deps.OpenLink(url)
	}
}

func (s *Session) record(kind string, cam core.Camera) {
	s.deps.Metrics.CameraMove(kind)
	if s.deps.Recorder == nil {
		return
	}
	err := s.deps.Recorder.WriteCamera(influx.CameraEvent{
		Kind:     kind,
		Camera:   cam,
		Selected: s.selected.Key(),
		At:       time.Now(),
	})
	if err != nil {
		s.log.Debug("Camera telemetry not recorded", "error", err)
	}
}

func filterUsers(users []core.User, q string) []core.User {
	out := make([]core.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, u)
		}
	}
	return out
}

func filterLandmarks(ls []core.Landmark, q string) []core.Landmark {
	out := make([]core.Landmark, 0, len(ls))
	for _, l := range ls {
		if matchLandmark(l, q) {
			out = append(out, l)
		}
	}
	return out
}

func matchLandmark(l core.Landmark, q string) bool {
	if strings.Contains(strings.ToLower(l.Title), q) {
		return true
	}
	for _, tag := range l.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
