package main

import (
	"fmt"
	"io"

	"github.com/geomark/mapview/internal/mapview"
	"github.com/geomark/mapview/internal/session"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/internal/widget/headless"
	"github.com/geomark/mapview/pkg/core"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted session against a headless map and print its widget commands",
	RunE:  runDemo,
}

type demoStep struct {
	name string
	fn   func()
}

var demoUsers = []core.User{
	{ID: "ada", Name: "Ada", Position: &core.Position{Lat: 51.5007, Lng: -0.1246}},
	{ID: "grace", Name: "Grace", Position: &core.Position{Lat: 51.5033, Lng: -0.1195}},
	{ID: "linus", Name: "Linus"},
}

func runDemo(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
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
	users := w.users
	if len(users) == 0 {
		users = demoUsers
	}

	d, stopLoop, err := startLoop()
	if err != nil {
		return err
	}
	defer stopLoop()

	host := &headless.Host{}
	var s *session.Session

	// step runs fn on the loop, lets background lookups land and prints what
	// the widget was asked to do.
	step := func(name string, fn func()) error {
		if err := callLoop(d, fn); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if s != nil {
			s.Wait()
		}
		var cmds []headless.Command
		if err := callLoop(d, func() {
			if hw := host.Last(); hw != nil {
				cmds = hw.Commands()
			}
		}); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		printStep(out, name, cmds)
		return nil
	}

	var buildErr error
	err = step("mount", func() {
		deps := w.deps()
		deps.Post = d.Schedule
		deps.OpenLink = func(url string) { fmt.Fprintln(out, "  open link", url) }
		s, buildErr = session.New(mapview.Config{
			Factory:      host.Factory,
			DefaultZoom:  w.mapCfg.DefaultZoom,
			MinFocusZoom: w.mapCfg.MinFocusZoom,
			Tolerance:    w.mapCfg.Tolerance,
			Logger:       Logger,
		}, w.startCamera(), deps)
		if buildErr != nil {
			return
		}
		setLogContext(s.LogAttrs)
		s.SetUsers(users)
		s.SetLandmarks(w.landmarks)
		if buildErr = s.View().Activate(); buildErr == nil {
			buildErr = s.View().Attach(headless.Screen{W: 800, H: 600})
		}
	})
	if err != nil {
		return err
	}
	if buildErr != nil {
		return fmt.Errorf("building demo map: %w", buildErr)
	}
	defer func() { _ = callLoop(d, s.Close) }()

	hw := host.Last()
	// marker ids match selection keys
	userID := core.SelectUserEntity(users[0]).Key()
	script := []demoStep{
		{"pan", func() { hw.Pan(core.Position{Lat: 51.5055, Lng: -0.0754}) }},
		{"zoom", func() { hw.Zoom(14) }},
		{"rerender", func() { s.SetUsers(users) }},
		{"select", func() { hw.Click(userID, widget.TargetMarker) }},
		{"reselect", func() { hw.Click(userID, widget.TargetMarker) }},
		{"desired", func() { s.SetDesired(w.startCamera()) }},
		{"filter", func() { s.Filter(users[0].Name) }},
		{"unfilter", func() { s.Filter("") }},
	}
	if len(w.landmarks) > 0 {
		id := core.SelectLandmarkEntity(w.landmarks[0]).Key()
		script = append(script,
			demoStep{"landmark", func() { hw.Click(id, widget.TargetMarker) }},
			demoStep{"link", func() { hw.Click(id, widget.TargetPopupLink) }},
		)
	}
	for _, st := range script {
		if err := step(st.name, st.fn); err != nil {
			return err
		}
	}

	var (
		final    core.Camera
		selected string
	)
	_ = callLoop(d, func() {
		final, _ = s.View().Camera()
		selected = s.Selected().Key()
	})
	fmt.Fprintf(out, "final camera %s, selected %q\n", final, selected)
	return nil
}

func printStep(out io.Writer, name string, cmds []headless.Command) {
	fmt.Fprintf(out, "%s:\n", name)
	if len(cmds) == 0 {
		fmt.Fprintln(out, "  (no widget commands)")
		return
	}
	for _, c := range cmds {
		fmt.Fprintf(out, "  %s\n", c)
	}
}
