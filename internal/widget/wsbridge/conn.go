// Package wsbridge drives a map rendered in a browser over a WebSocket.
// Each connection is a widget.Container; the Factory builds a widget.Widget
// that turns view commands into bridge messages and browser events back into
// widget events on the view's loop.
package wsbridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geomark/mapview/internal/metrics"
	"github.com/geomark/mapview/internal/queue"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	defaultSendBuffer = 64
	defaultWriteWait  = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 << 10
)

// ErrSendBufferFull is returned when the browser is not keeping up.
var ErrSendBufferFull = errors.New("bridge send buffer full")

// Conn is one browser connection with a single write goroutine.
type Conn struct {
	ID string

	conn      *ws.Conn
	out       *queue.Queue[[]byte]
	kick      chan struct{}
	done      chan struct{}
	writeWait time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	closed bool
	width  int
	height int
	widget *Widget
}

func newConn(c *ws.Conn, id string, opts Options) *Conn {
	return &Conn{
		ID:        id,
		conn:      c,
		out:       queue.NewBounded[[]byte](opts.SendBuffer),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		writeWait: opts.WriteTimeout,
		logger:    opts.Logger.With("session", id),
		metrics:   opts.Metrics,
	}
}

// Size implements widget.Container with the size the browser last reported.
func (c *Conn) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Done is closed when the connection shuts down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send queues a message for the write loop. It never blocks.
func (c *Conn) Send(msgType string, payload any) error {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return widget.ErrClosed
	}

	if !c.out.Push(data) {
		c.metrics.BridgeDropped()
		c.logger.Warn("Bridge send buffer full, dropping message", "type", msgType)
		return ErrSendBufferFull
	}
	c.metrics.BridgeMessage("out", msgType)
	select {
	case c.kick <- struct{}{}:
	default:
	}
	return nil
}

// Dropped returns how many messages were refused because the buffer was full.
func (c *Conn) Dropped() int {
	return c.out.Dropped()
}

func (c *Conn) attach(w *Widget) {
	c.mu.Lock()
	c.widget = w
	c.mu.Unlock()
}

func (c *Conn) detach(w *Widget) {
	c.mu.Lock()
	if c.widget == w {
		c.widget = nil
	}
	c.mu.Unlock()
}

func (c *Conn) current() *Widget {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.widget
}

func (c *Conn) setSize(w, h int) {
	c.mu.Lock()
	c.width, c.height = w, h
	c.mu.Unlock()
}

// writeLoop drains the outbound buffer and writes messages to the WebSocket.
// It returns on write error or shutdown.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.kick:
			for {
				data, ok := c.out.Pop()
				if !ok {
					break
				}
				if err := c.write(data); err != nil {
					c.logger.Warn("WebSocket write error", "error", err)
					c.Close()
					return
				}
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				c.logger.Debug("WebSocket ping failed", "error", err)
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(ws.TextMessage, data)
}

// readLoop decodes envelopes and hands them to route until the socket fails.
func (c *Conn) readLoop(route func(*Conn, streaming.Envelope)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					c.logger.Warn("WebSocket read error", "error", err)
				}
			}
			c.Close()
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed bridge message", "raw", string(message))
			continue
		}
		c.metrics.BridgeMessage("in", env.Type)
		route(c, env)
	}
}

// Close sends a close frame and shuts down the loops. Safe to call twice.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(c.writeWait),
	)
	return c.conn.Close()
}
