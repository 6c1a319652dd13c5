package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) hasPrefix(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, msg := range l.messages {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger, opts...)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

// runLoop starts the loop and stops it when the test ends.
func runLoop(t *testing.T, d *Dispatcher) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got any
	d.Register("camera", func(e Event) error {
		got = e.Payload
		return nil
	})

	if err := d.Dispatch(Event{Name: "camera", Payload: 13}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got != 13 {
		t.Errorf("expected payload 13, got %v", got)
	}
}

func TestDispatcher_UnknownEvent(t *testing.T) {
	d, _ := newTestDispatcher(t)

	if err := d.Dispatch(Event{Name: "unknown"}); err == nil {
		t.Error("expected error for unknown event")
	}
}

func TestDispatcher_InvalidQueueSize(t *testing.T) {
	if _, err := New(&testLogger{}, QueueSize(0)); err == nil {
		t.Error("expected error for zero queue size")
	}
}

func TestDispatcher_PostRunsInOrderOnOneGoroutine(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var (
		mu     sync.Mutex
		order  []int
		active atomic.Int32
		wg     sync.WaitGroup
	)
	wg.Add(50)
	d.Register("step", func(e Event) error {
		if active.Add(1) != 1 {
			t.Error("handlers overlapped")
		}
		mu.Lock()
		order = append(order, e.Payload.(int))
		mu.Unlock()
		active.Add(-1)
		wg.Done()
		return nil
	})
	runLoop(t, d)

	for i := 0; i < 50; i++ {
		if err := d.Post(Event{Name: "step", Payload: i}); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected event %d at position %d, got %d", i, i, v)
		}
	}
}

func TestDispatcher_PostDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t, QueueSize(2))

	// no loop running: the queue fills up
	d.Post(Event{Name: "x"})
	d.Post(Event{Name: "x"})

	err := d.Post(Event{Name: "x"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcher_ScheduleAndCall(t *testing.T) {
	d, _ := newTestDispatcher(t)
	runLoop(t, d)

	var n int
	d.Schedule(func() { n++ })
	if err := d.Call(context.Background(), func() { n++ }); err != nil {
		t.Fatalf("call: %v", err)
	}

	// Call returns after the scheduled func because the loop is FIFO.
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

func TestDispatcher_PostAfterStop(t *testing.T) {
	d, _ := newTestDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if err := d.Post(Event{Name: "x"}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if err := d.Call(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped from Call, got %v", err)
	}
}

func TestDispatcher_HandlerErrorKeepsLoopRunning(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("bad", func(Event) error { return fmt.Errorf("test error") })
	runLoop(t, d)

	d.Post(Event{Name: "bad"})
	if err := d.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("loop stopped after handler error: %v", err)
	}

	if !logger.hasPrefix("ERROR") {
		t.Error("expected error log message")
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("logged", func(e Event) error {
		return nil
	}, Logged())

	d.Dispatch(Event{Name: "logged", Timestamp: time.Now()})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected at least 2 log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("error", func(e Event) error {
		return fmt.Errorf("test error")
	}, Logged())

	d.Dispatch(Event{Name: "error"})

	if !logger.hasPrefix("ERROR") {
		t.Error("expected error log message")
	}
}
