package summary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	calls   atomic.Int32
	release chan struct{}
	text    string
	err     error
}

func (s *fakeSource) Summarize(ctx context.Context, title, description, url string) (string, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.text, s.err
}

func TestCache(t *testing.T) {
	c := NewCache()
	c.Set("pp", "Parliament.")
	c.Set("", "ignored")
	c.Set("empty", "")

	s, ok := c.Get("pp")
	assert.True(t, ok)
	assert.Equal(t, "Parliament.", s)
	_, ok = c.Get("empty")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestFetcher_StoresAndNotifies(t *testing.T) {
	src := &fakeSource{text: "Seat of the UK Parliament."}
	cache := NewCache()
	f := NewFetcher(src, cache, widget.Immediate, 0, nil, nil)

	var mu sync.Mutex
	var stored []string
	f.OnStored = func(key string) {
		mu.Lock()
		stored = append(stored, key)
		mu.Unlock()
	}

	assert.True(t, f.Request(context.Background(), core.Landmark{ID: "pp", Title: "Parliament"}))
	f.Wait()

	s, ok := cache.Get("pp")
	assert.True(t, ok)
	assert.Equal(t, "Seat of the UK Parliament.", s)
	assert.Equal(t, []string{"pp"}, stored)

	// cached now: no second call
	assert.False(t, f.Request(context.Background(), core.Landmark{ID: "pp"}))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetcher_DeduplicatesInFlight(t *testing.T) {
	src := &fakeSource{text: "ok", release: make(chan struct{})}
	f := NewFetcher(src, NewCache(), widget.Immediate, 0, nil, nil)

	lm := core.Landmark{Title: "Tower Bridge"}
	assert.True(t, f.Request(context.Background(), lm))
	assert.False(t, f.Request(context.Background(), lm))
	assert.True(t, f.InFlight("Tower Bridge"))

	close(src.release)
	f.Wait()
	assert.False(t, f.InFlight("Tower Bridge"))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetcher_FailureLeavesCacheEmpty(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	cache := NewCache()
	f := NewFetcher(src, cache, widget.Immediate, 0, nil, nil)
	called := false
	f.OnStored = func(string) { called = true }

	f.Request(context.Background(), core.Landmark{ID: "pp"})
	f.Wait()

	_, ok := cache.Get("pp")
	assert.False(t, ok)
	assert.False(t, called)

	// a later request may retry
	assert.True(t, f.Request(context.Background(), core.Landmark{ID: "pp"}))
	f.Wait()
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestFetcher_IgnoresKeylessLandmark(t *testing.T) {
	src := &fakeSource{text: "x"}
	f := NewFetcher(src, NewCache(), widget.Immediate, 0, nil, nil)
	assert.False(t, f.Request(context.Background(), core.Landmark{}))
}
