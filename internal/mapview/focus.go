package mapview

import (
	"log/slog"

	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// focusFollower flies the camera to a newly selected entity, once per selection.
type focusFollower struct {
	minZoom int
	focused string
}

// follow returns the target and true when it issued an animated move.
func (f *focusFollower) follow(w widget.Widget, sel core.Selection, log *slog.Logger) (core.Camera, bool) {
	key := sel.Key()
	if key == "" {
		f.focused = ""
		return core.Camera{}, false
	}
	if key == f.focused {
		return core.Camera{}, false
	}

	pos := sel.Position()
	if pos == nil || !pos.Valid() {
		// nothing to focus on; retried if coordinates show up later
		f.focused = ""
		return core.Camera{}, false
	}

	zoom := max(w.Camera().Zoom, f.minZoom)
	target := core.Camera{Center: *pos, Zoom: zoom}
	if err := guard(func() error { return w.FlyTo(target) }); err != nil {
		log.Warn("Focus move failed", "selected", key, "error", err)
		return core.Camera{}, false
	}
	f.focused = key
	log.Debug("Focusing selection", "selected", key, "target", target.String())
	return target, true
}
