// Package server exposes the browser bridge, icons, health and metrics over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/internal/icon"
	"github.com/geomark/mapview/internal/landmarks"
	"github.com/geomark/mapview/internal/metrics"
	"github.com/geomark/mapview/pkg/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const shutdownGrace = 5 * time.Second

// Options wires the server's handlers. Nil fields disable the matching route.
type Options struct {
	Config    config.BridgeConfig
	Bridge    http.Handler
	Metrics   *metrics.Metrics
	Landmarks landmarks.Source
	// RadiusMeters is the default radius of nearby queries.
	RadiusMeters float64
	Logger       zerolog.Logger
}

// Server serves the bridge endpoints.
type Server struct {
	opts Options
	log  zerolog.Logger

	iconMu sync.Mutex
	icons  map[core.Kind][]byte
}

func New(opts Options) *Server {
	if opts.Config.Path == "" {
		opts.Config.Path = "/ws"
	}
	if opts.Config.MetricsPath == "" {
		opts.Config.MetricsPath = "/metrics"
	}
	return &Server{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "server").Logger(),
		icons: make(map[core.Kind][]byte),
	}
}

// IconURL is the path the browser fetches the icon for kind from.
func IconURL(kind core.Kind) string {
	return "/icons/" + kind.String() + ".png"
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/icons/{file}", s.handleIcon)
	r.Method(http.MethodGet, s.opts.Config.MetricsPath, s.opts.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/landmarks/nearby", s.handleNearby)
	})

	if s.opts.Bridge != nil {
		r.Get("/", s.handleIndex)
		r.Handle(s.opts.Config.Path, s.opts.Bridge)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Config.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("Bridge server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("Bridge server stopped")
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			// hijacked or nothing written
			status = http.StatusOK
		}
		s.opts.Metrics.ObserveHTTPRequest(r.Method, route, status, time.Since(start))

		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func parseKind(name string) (core.Kind, bool) {
	switch name {
	case core.KindUser.String():
		return core.KindUser, true
	case core.KindLandmark.String():
		return core.KindLandmark, true
	default:
		return 0, false
	}
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".png")
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "unknown icon")
		return
	}
	kind, ok := parseKind(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "unknown icon")
		return
	}

	b, err := s.iconPNG(kind)
	if err != nil {
		s.log.Error().Err(err).Str("kind", name).Msg("Icon encoding failed")
		s.writeError(w, http.StatusInternalServerError, "icon_failed", "icon unavailable")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(b)
}

// iconPNG encodes the shared glyph for kind once.
func (s *Server) iconPNG(kind core.Kind) ([]byte, error) {
	s.iconMu.Lock()
	defer s.iconMu.Unlock()
	if b, ok := s.icons[kind]; ok {
		return b, nil
	}
	ic := icon.For(kind)
	if ic == nil {
		return nil, errors.New("no icon for kind " + kind.String())
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, ic.Glyph); err != nil {
		return nil, err
	}
	s.icons[kind] = buf.Bytes()
	return buf.Bytes(), nil
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.opts.Landmarks == nil {
		s.writeError(w, http.StatusServiceUnavailable, "landmarks_unavailable", "landmark source not configured")
		return
	}

	q := r.URL.Query()
	center, err := geo.ParsePosition(q.Get("lat"), q.Get("lng"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_position", "lat and lng must be degrees in range")
		return
	}

	radius := s.opts.RadiusMeters
	if raw := q.Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			s.writeError(w, http.StatusBadRequest, "invalid_radius", "radius must be a non-negative number")
			return
		}
		radius = v
	}

	found, err := s.opts.Landmarks.Nearby(r.Context(), center, radius)
	if err != nil {
		s.log.Error().Err(err).Str("center", center.String()).Msg("Nearby query failed")
		s.writeError(w, http.StatusBadGateway, "landmarks_failed", "landmark lookup failed")
		return
	}
	if found == nil {
		found = []core.Landmark{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"center":    center,
		"radius":    radius,
		"landmarks": found,
	})
}
