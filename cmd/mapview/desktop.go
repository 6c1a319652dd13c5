package main

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/geomark/mapview/internal/mapview"
	"github.com/geomark/mapview/internal/session"
	"github.com/geomark/mapview/internal/summary"
	"github.com/geomark/mapview/internal/widget/canvas"
	"github.com/geomark/mapview/internal/widget/ebitenmap"
	"github.com/spf13/cobra"
)

var (
	windowWidth  int
	windowHeight int
)

var desktopCmd = &cobra.Command{
	Use:   "desktop",
	Short: "Open the map in a desktop window",
	RunE:  runDesktop,
}

func init() {
	desktopCmd.Flags().IntVar(&windowWidth, "width", 1280, "Window width")
	desktopCmd.Flags().IntVar(&windowHeight, "height", 800, "Window height")
}

// copyLink puts a popup link on the clipboard; the window has no browser.
func copyLink(url string) {
	if err := clipboard.WriteAll(url); err != nil {
		Logger.Warn("Copying link failed", "url", url, "error", err)
		return
	}
	Logger.Info("Link copied to clipboard", "url", url)
}

func runDesktop(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

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

	surface := canvas.NewSurface(windowWidth, windowHeight)

	var (
		s        *session.Session
		buildErr error
	)
	err = callLoop(d, func() {
		deps := w.deps()
		deps.Post = d.Schedule
		deps.OpenLink = copyLink
		if w.source != nil {
			deps.Summaries = summary.NewFetcher(w.source, w.cache, d.Schedule, w.summaryTimeout, Logger, w.metrics)
		}
		s, buildErr = session.New(mapview.Config{
			Factory:      canvas.Factory(d.Schedule),
			DefaultZoom:  w.mapCfg.DefaultZoom,
			MinFocusZoom: w.mapCfg.MinFocusZoom,
			Tolerance:    w.mapCfg.Tolerance,
			Logger:       Logger,
		}, w.startCamera(), deps)
		if buildErr != nil {
			return
		}
		s.SetUsers(w.users)
		s.SetLandmarks(w.landmarks)
		if buildErr = s.View().Activate(); buildErr == nil {
			buildErr = s.View().Attach(surface)
		}
		if buildErr != nil {
			s.Close()
		}
	})
	if err != nil {
		return err
	}
	if buildErr != nil {
		return fmt.Errorf("building desktop map: %w", buildErr)
	}
	setLogContext(s.LogAttrs)

	runErr := ebitenmap.Run(ebitenmap.New(surface, w.mapCfg.Attribution), AppName)

	if err := callLoop(d, s.Close); err != nil {
		Logger.Warn("Closing session failed", "error", err)
	}
	s.Wait()
	return runErr
}
