package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/internal/dispatcher"
	"github.com/geomark/mapview/internal/mapview"
	"github.com/geomark/mapview/internal/summary"
	"github.com/geomark/mapview/internal/widget/wsbridge"
	"github.com/geomark/mapview/pkg/core"
	"github.com/geomark/mapview/pkg/streaming"
)

const loopCallTimeout = 5 * time.Second

// Loop events a hub handles. Their payload is the *wsbridge.Conn.
const (
	EventBridgeReady  = "bridge.ready"
	EventBridgeClosed = "bridge.closed"
)

// Loop is the event loop every session of a hub runs on.
type Loop interface {
	Schedule(fn func())
	Call(ctx context.Context, fn func()) error
	Post(e dispatcher.Event) error
	Register(name string, h dispatcher.HandlerFunc, opts ...dispatcher.HandlerOption)
}

// HubOptions configures the sessions a Hub creates for bridge connections.
type HubOptions struct {
	Map     config.MapConfig
	IconURL wsbridge.IconURL
	// Deps is the template for each session; Post and Summaries are filled in per session.
	Deps Deps
	// SummarySource enables per-session summary fetchers sharing Deps.Cache.
	SummarySource  summary.Source
	SummaryTimeout time.Duration

	Users     []core.User
	Landmarks []core.Landmark
	// Start overrides the configured default camera.
	Start *core.Camera
}

// Hub gives every browser bridge connection its own Session, all running on one loop.
type Hub struct {
	loop Loop
	opts HubOptions
	log  *slog.Logger

	// sessions is confined to the loop
	sessions map[string]*Session
	count    atomic.Int64
}

// NewHub creates a hub and registers its bridge events on loop.
func NewHub(loop Loop, opts HubOptions) *Hub {
	if opts.Deps.Logger == nil {
		opts.Deps.Logger = slog.Default()
	}
	h := &Hub{
		loop:     loop,
		opts:     opts,
		log:      opts.Deps.Logger.With("component", "hub"),
		sessions: make(map[string]*Session),
	}
	loop.Register(EventBridgeReady, h.onConn(h.mount), dispatcher.Logged())
	loop.Register(EventBridgeClosed, h.onConn(h.end), dispatcher.Logged())
	return h
}

func (h *Hub) onConn(fn func(*wsbridge.Conn) error) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		c, ok := e.Payload.(*wsbridge.Conn)
		if !ok {
			return fmt.Errorf("%s carries %T", e.Name, e.Payload)
		}
		return fn(c)
	}
}

func (h *Hub) post(name string, c *wsbridge.Conn) {
	if err := h.loop.Post(dispatcher.Event{Name: name, Payload: c}); err != nil {
		h.log.Warn("Bridge event not queued", "event", name, "session", c.ID, "error", err)
	}
}

func (h *Hub) start() core.Camera {
	if h.opts.Start != nil {
		return *h.opts.Start
	}
	return core.Camera{Center: h.opts.Map.DefaultCenter, Zoom: h.opts.Map.DefaultZoom}
}

func (h *Hub) call(fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), loopCallTimeout)
	defer cancel()
	return h.loop.Call(ctx, fn)
}

// Opened greets the browser and creates the connection's session.
func (h *Hub) Opened(c *wsbridge.Conn) error {
	start := h.start()
	if err := c.Send(streaming.TypeHello, streaming.HelloPayload{
		SessionID:   c.ID,
		Camera:      streaming.FromCamera(start),
		TileURL:     h.opts.Map.TileURL,
		Attribution: h.opts.Map.Attribution,
	}); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}

	var createErr error
	err := h.call(func() {
		deps := h.opts.Deps
		deps.Post = h.loop.Schedule
		deps.Logger = h.opts.Deps.Logger.With("session", c.ID)
		if h.opts.SummarySource != nil && deps.Cache != nil {
			deps.Summaries = summary.NewFetcher(h.opts.SummarySource, deps.Cache, h.loop.Schedule,
				h.opts.SummaryTimeout, deps.Logger, deps.Metrics)
		}

		s, err := New(mapview.Config{
			Factory:      wsbridge.Factory(h.loop.Schedule, h.opts.IconURL),
			DefaultZoom:  h.opts.Map.DefaultZoom,
			MinFocusZoom: h.opts.Map.MinFocusZoom,
			Tolerance:    h.opts.Map.Tolerance,
			Logger:       deps.Logger,
		}, start, deps)
		if err != nil {
			createErr = err
			return
		}
		s.SetUsers(h.opts.Users)
		s.SetLandmarks(h.opts.Landmarks)
		if err := s.View().Activate(); err != nil {
			s.Close()
			createErr = err
			return
		}
		h.sessions[c.ID] = s
		h.count.Add(1)
	})
	if err != nil {
		return err
	}
	return createErr
}

// Ready mounts the map once the browser reports its container. Later ready
// messages only remount when the widget is gone.
func (h *Hub) Ready(c *wsbridge.Conn) {
	h.post(EventBridgeReady, c)
}

// Closed ends the connection's session.
func (h *Hub) Closed(c *wsbridge.Conn) {
	h.post(EventBridgeClosed, c)
}

func (h *Hub) mount(c *wsbridge.Conn) error {
	s, ok := h.sessions[c.ID]
	if !ok || !s.View().Placeholder() {
		return nil
	}
	if err := s.View().Attach(c); err != nil {
		return fmt.Errorf("mounting bridge map for %s: %w", c.ID, err)
	}
	return nil
}

func (h *Hub) end(c *wsbridge.Conn) error {
	s, ok := h.sessions[c.ID]
	if !ok {
		return nil
	}
	delete(h.sessions, c.ID)
	h.count.Add(-1)
	s.Close()
	return nil
}

// Session returns the session of a connection. Loop only.
func (h *Hub) Session(id string) (*Session, bool) {
	s, ok := h.sessions[id]
	return s, ok
}

// Len returns the number of open sessions. Safe from any goroutine.
func (h *Hub) Len() int {
	return int(h.count.Load())
}

// LogAttrs describes the hub for log context handlers.
func (h *Hub) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.Int("sessions", h.Len())}
}

// CloseAll ends every session. Loop only.
func (h *Hub) CloseAll() {
	for id, s := range h.sessions {
		s.Close()
		delete(h.sessions, id)
		h.count.Add(-1)
	}
}

var _ wsbridge.Sessions = (*Hub)(nil)
