// Package dispatcher runs the application's single event loop. The map view
// and everything that touches it run on the loop goroutine; other goroutines
// hand work over with Post or Schedule.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrQueueFull is returned by Post when the loop queue has no room.
	ErrQueueFull = errors.New("event queue full")
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("event loop stopped")
)

// DefaultQueueSize is the loop queue capacity when none is configured.
const DefaultQueueSize = 256

const funcEvent = "func"

// Event is a unit of work for the loop.
type Event struct {
	Name      string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event on the loop goroutine.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures the dispatcher.
type Option func(*config)

type config struct {
	queueSize int
}

// QueueSize sets the loop queue capacity.
func QueueSize(size int) Option {
	return func(c *config) {
		c.queueSize = size
	}
}

// HandlerOption configures handler registration.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() HandlerOption {
	return func(c *handlerConfig) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers on one goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   Logger

	queue    chan Event
	done     chan struct{}
	stopOnce sync.Once

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// New creates a Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, opts ...Option) (*Dispatcher, error) {
	cfg := &config{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.queueSize <= 0 {
		return nil, fmt.Errorf("invalid queue size %d", cfg.queueSize)
	}

	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
		queue:    make(chan Event, cfg.queueSize),
		done:     make(chan struct{}),
	}
	d.handlers[funcEvent] = runFunc

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events waiting for the loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(d.queueSize, int64(len(d.queue)))
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Total events whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given event name.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...HandlerOption) {
	cfg := &handlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(name, handler)
	}

	d.mu.Lock()
	d.handlers[name] = handler
	d.mu.Unlock()
}

// Dispatch runs the event's handler on the calling goroutine.
// Callers outside the loop should use Post.
func (d *Dispatcher) Dispatch(e Event) error {
	d.mu.RLock()
	h, ok := d.handlers[e.Name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown event: %s", e.Name)
	}
	return h(e)
}

// Post queues an event for the loop. It never blocks; a full queue drops the event.
func (d *Dispatcher) Post(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	select {
	case <-d.done:
		return ErrStopped
	default:
	}

	select {
	case d.queue <- e:
		return nil
	default:
		d.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", e.Name)))
		return fmt.Errorf("%w: %s", ErrQueueFull, e.Name)
	}
}

// Schedule queues fn to run on the loop. It matches widget.Scheduler.
func (d *Dispatcher) Schedule(fn func()) {
	if err := d.Post(Event{Name: funcEvent, Payload: fn}); err != nil {
		d.logger.Error("failed to schedule work", "error", err)
	}
}

// Call runs fn on the loop and waits for it to finish.
func (d *Dispatcher) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := d.Post(Event{Name: funcEvent, Payload: func() {
		defer close(finished)
		fn()
	}}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled. Handler errors are logged
// and counted; they never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stopOnce.Do(func() { close(d.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-d.queue:
			attrs := metric.WithAttributes(attribute.String("event", e.Name))
			if err := d.Dispatch(e); err != nil {
				d.failed.Add(ctx, 1, attrs)
				d.logger.Error("event failed", "event", e.Name, "error", err)
			}
			d.processed.Add(ctx, 1, attrs)
		}
	}
}

func runFunc(e Event) error {
	fn, ok := e.Payload.(func())
	if !ok {
		return fmt.Errorf("func event carries %T", e.Payload)
	}
	fn()
	return nil
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "event", name, "queued", start.Sub(e.Timestamp))

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "event", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "event", name, "duration", time.Since(start))
		}

		return err
	}
}
