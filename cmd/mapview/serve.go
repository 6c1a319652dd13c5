package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/internal/server"
	"github.com/geomark/mapview/internal/session"
	"github.com/geomark/mapview/internal/widget/wsbridge"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve browser map sessions over the WebSocket bridge",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := openWorld(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			Logger.Warn("Closing backends failed", "error", err)
		}
	}()

	d, stopLoop, err := startLoop()
	if err != nil {
		return err
	}
	defer stopLoop()

	hub := session.NewHub(d, session.HubOptions{
		Map:            w.mapCfg,
		IconURL:        server.IconURL,
		Deps:           w.deps(),
		SummarySource:  w.source,
		SummaryTimeout: w.summaryTimeout,
		Users:          w.users,
		Landmarks:      w.landmarks,
		Start:          w.start,
	})
	setLogContext(hub.LogAttrs)

	bridgeCfg := config.GetBridgeConfig()
	bridge := wsbridge.NewHandler(hub, wsbridge.Options{
		SendBuffer:   bridgeCfg.SendBuffer,
		WriteTimeout: bridgeCfg.WriteTimeout,
		Logger:       Logger,
		Metrics:      w.metrics,
	})
	srv := server.New(server.Options{
		Config:       bridgeCfg,
		Bridge:       bridge,
		Metrics:      w.metrics,
		Landmarks:    w.catalog,
		RadiusMeters: w.radius,
		Logger:       zlog("server"),
	})

	Logger.Info("Serving map sessions", "listen", bridgeCfg.Listen, "path", bridgeCfg.Path)
	serveErr := srv.ListenAndServe(ctx)

	if err := callLoop(d, hub.CloseAll); err != nil {
		Logger.Warn("Closing sessions failed", "error", err)
	}
	return serveErr
}
