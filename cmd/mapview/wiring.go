package main

import (
	"context"
	"errors"
	"time"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/internal/dispatcher"
	"github.com/geomark/mapview/internal/influx"
	"github.com/geomark/mapview/internal/landmarks"
	"github.com/geomark/mapview/internal/metrics"
	"github.com/geomark/mapview/internal/seed"
	"github.com/geomark/mapview/internal/session"
	"github.com/geomark/mapview/internal/summary"
	"github.com/geomark/mapview/pkg/core"
)

const (
	loopTimeout   = 5 * time.Second
	loopQueueSize = 1024
)

// world is everything a hub or desktop session is built from.
type world struct {
	mapCfg    config.MapConfig
	radius    float64
	catalog   landmarks.Catalog
	users     []core.User
	landmarks []core.Landmark
	start     *core.Camera

	cache          *summary.Cache
	source         summary.Source
	summaryTimeout time.Duration

	influx   *influx.Manager
	recorder session.CameraRecorder
	metrics  *metrics.Metrics
}

// openWorld opens the landmark catalog, reads the seed users and camera, and
// connects the optional summary and telemetry backends.
func openWorld(ctx context.Context) (*world, error) {
	w := &world{
		mapCfg:  config.GetMapConfig(),
		cache:   summary.NewCache(),
		metrics: metrics.New(),
	}

	lmCfg := config.GetLandmarkConfig()
	w.radius = lmCfg.RadiusMeters
	catalog, err := landmarks.Open(ctx, lmCfg, zlog("landmarks"))
	if err != nil {
		return nil, err
	}
	w.catalog = catalog

	if lmCfg.SeedFile != "" {
		f, err := seed.Load(lmCfg.SeedFile)
		if err != nil {
			_ = catalog.Close()
			return nil, err
		}
		w.users = f.Users
		if cam, ok := f.Start(); ok {
			w.start = &cam
		}
	}

	center := w.mapCfg.DefaultCenter
	if w.start != nil {
		center = w.start.Center
	}
	found, err := catalog.Nearby(ctx, center, w.radius)
	if err != nil {
		Logger.Warn("Initial landmark lookup failed", "center", center.String(), "error", err)
	}
	w.landmarks = found

	sumCfg := config.GetSummaryConfig()
	w.summaryTimeout = sumCfg.Timeout
	if sumCfg.Enabled {
		w.source = summary.NewClient(sumCfg)
		Logger.Info("Landmark summaries enabled", "model", sumCfg.Model)
	}

	w.influx = influx.NewManager(zlog("influx"), config.GetInfluxConfig())
	switch err := w.influx.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		Logger.Error("Camera telemetry unavailable", "error", err)
	default:
		w.recorder = w.influx
	}

	Logger.Info("World ready",
		"users", len(w.users),
		"landmarks", len(w.landmarks),
		"summaries", w.source != nil,
		"telemetry", w.recorder != nil,
	)
	return w, nil
}

func (w *world) startCamera() core.Camera {
	if w.start != nil {
		return *w.start
	}
	return core.Camera{Center: w.mapCfg.DefaultCenter, Zoom: w.mapCfg.DefaultZoom}
}

// deps is the session template shared by every session of the process.
func (w *world) deps() session.Deps {
	return session.Deps{
		Landmarks:    w.catalog,
		RadiusMeters: w.radius,
		Cache:        w.cache,
		Recorder:     w.recorder,
		Metrics:      w.metrics,
		Logger:       Logger,
	}
}

func (w *world) Close() error {
	return errors.Join(w.influx.Close(), w.catalog.Close())
}

// startLoop runs the event loop every view of the process lives on. Stop it
// with the returned cancel func after the sessions are closed.
func startLoop() (*dispatcher.Dispatcher, context.CancelFunc, error) {
	d, err := dispatcher.New(Logger, dispatcher.QueueSize(loopQueueSize))
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			Logger.Error("Event loop stopped", "error", err)
		}
	}()
	return d, cancel, nil
}

func callLoop(d *dispatcher.Dispatcher, fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), loopTimeout)
	defer cancel()
	return d.Call(ctx, fn)
}
