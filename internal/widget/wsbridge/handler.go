package wsbridge

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/geomark/mapview/internal/metrics"
	"github.com/geomark/mapview/pkg/streaming"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

// Sessions receives connection lifecycle callbacks. They run on the
// connection's read goroutine.
type Sessions interface {
	// Opened is called once per connection. An error closes it.
	Opened(c *Conn) error
	// Ready is called when the browser reports its container size.
	Ready(c *Conn)
	// Closed is called after the connection shut down.
	Closed(c *Conn)
}

type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	// CheckOrigin defaults to accepting any origin.
	CheckOrigin func(*http.Request) bool
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Handler upgrades HTTP requests to bridge connections.
type Handler struct {
	upgrader ws.Upgrader
	opts     Options
	sessions Sessions
}

func NewHandler(sessions Sessions, opts Options) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteWait
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Handler{
		upgrader: ws.Upgrader{CheckOrigin: check},
		opts:     opts,
		sessions: sessions,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(raw, uuid.NewString(), h.opts)
	go c.writeLoop()

	if err := h.sessions.Opened(c); err != nil {
		c.logger.Error("Rejecting bridge session", "error", err)
		c.Close()
		return
	}
	h.opts.Metrics.SessionOpened()
	c.logger.Info("Bridge session opened", "remote", r.RemoteAddr)

	c.readLoop(h.route)

	h.sessions.Closed(c)
	h.opts.Metrics.SessionClosed()
	c.logger.Info("Bridge session closed", "dropped", c.Dropped())
}

func (h *Handler) route(c *Conn, env streaming.Envelope) {
	switch env.Type {
	case streaming.TypeReady:
		var p streaming.ReadyPayload
		if err := env.Decode(&p); err != nil {
			c.logger.Debug("Bad ready message", "error", err)
			return
		}
		c.setSize(p.Width, p.Height)
		h.sessions.Ready(c)

	case streaming.TypeMoveEnd, streaming.TypeZoomEnd, streaming.TypeClick:
		if w := c.current(); w != nil {
			w.deliver(env)
		}

	default:
		c.logger.Debug("Unknown bridge message", "type", env.Type)
	}
}
