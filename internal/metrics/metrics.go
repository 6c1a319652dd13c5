// Package metrics exposes the bridge server's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	bridgeSessions      prometheus.Gauge
	bridgeMessages      *prometheus.CounterVec
	bridgeDropped       prometheus.Counter
	cameraMoves         *prometheus.CounterVec
	summaryFetches      *prometheus.CounterVec
}

// New creates a fresh registry with the HTTP, bridge and map metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapview",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests served by the bridge",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapview",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the bridge",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	bridgeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapview",
		Name:      "bridge_sessions",
		Help:      "Browser map sessions currently connected",
	})

	bridgeMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapview",
		Name:      "bridge_messages_total",
		Help:      "Bridge WebSocket messages by direction and type",
	}, []string{"direction", "type"})

	bridgeDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapview",
		Name:      "bridge_messages_dropped_total",
		Help:      "Outbound bridge messages dropped because the send buffer was full",
	})

	cameraMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapview",
		Name:      "camera_moves_total",
		Help:      "Camera moves by kind (snap, fly, gesture)",
	}, []string{"kind"})

	summaryFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapview",
		Name:      "summary_fetches_total",
		Help:      "Landmark summary fetches by outcome",
	}, []string{"outcome"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		bridgeSessions,
		bridgeMessages,
		bridgeDropped,
		cameraMoves,
		summaryFetches,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		bridgeSessions:      bridgeSessions,
		bridgeMessages:      bridgeMessages,
		bridgeDropped:       bridgeDropped,
		cameraMoves:         cameraMoves,
		summaryFetches:      summaryFetches,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.bridgeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.bridgeSessions.Dec()
}

// BridgeMessage counts one message; direction is "in" or "out".
func (m *Metrics) BridgeMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.bridgeMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) BridgeDropped() {
	if m == nil {
		return
	}
	m.bridgeDropped.Inc()
}

func (m *Metrics) CameraMove(kind string) {
	if m == nil {
		return
	}
	m.cameraMoves.WithLabelValues(kind).Inc()
}

// SummaryFetch counts a fetch outcome: ok, error or cached.
func (m *Metrics) SummaryFetch(outcome string) {
	if m == nil {
		return
	}
	m.summaryFetches.WithLabelValues(outcome).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
