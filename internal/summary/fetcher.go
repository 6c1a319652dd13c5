package summary

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geomark/mapview/internal/metrics"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// Fetcher fills the cache in the background, one request per landmark key
// at a time. Failures leave the cache untouched so the popup keeps its
// fallback text.
type Fetcher struct {
	source  Source
	cache   *Cache
	post    widget.Scheduler
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	// OnStored runs on the loop after a summary lands in the cache.
	OnStored func(key string)

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewFetcher(source Source, cache *Cache, post widget.Scheduler, timeout time.Duration, log *slog.Logger, m *metrics.Metrics) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		source:   source,
		cache:    cache,
		post:     post,
		timeout:  timeout,
		log:      log.With("component", "summary"),
		metrics:  m,
		inflight: make(map[string]struct{}),
	}
}

// Request starts a fetch for l unless it is cached or already in flight.
// It reports whether a fetch was started.
func (f *Fetcher) Request(ctx context.Context, l core.Landmark) bool {
	key := l.Key()
	if key == "" {
		return false
	}
	if _, ok := f.cache.Get(key); ok {
		f.metrics.SummaryFetch("cached")
		return false
	}

	f.mu.Lock()
	if _, busy := f.inflight[key]; busy {
		f.mu.Unlock()
		return false
	}
	f.inflight[key] = struct{}{}
	f.mu.Unlock()

	f.wg.Add(1)
	go f.fetch(ctx, key, l)
	return true
}

// InFlight reports whether a fetch for key is running.
func (f *Fetcher) InFlight(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inflight[key]
	return ok
}

// Wait blocks until all started fetches have finished.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

func (f *Fetcher) fetch(ctx context.Context, key string, l core.Landmark) {
	defer f.wg.Done()
	defer func() {
		f.mu.Lock()
		delete(f.inflight, key)
		f.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	text, err := f.source.Summarize(ctx, l.Title, l.Description, l.URL)
	if err != nil {
		f.metrics.SummaryFetch("error")
		f.log.Warn("Summary fetch failed, keeping fallback text", "landmark", key, "error", err)
		return
	}

	f.metrics.SummaryFetch("ok")
	f.cache.Set(key, text)
	f.log.Debug("Summary stored", "landmark", key, "took", time.Since(start))

	if f.OnStored != nil {
		f.post(func() { f.OnStored(key) })
	}
}
