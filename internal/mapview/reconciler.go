package mapview

import (
	"log/slog"

	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// reconciler snaps the widget to the desired camera when they diverge.
// It runs on every change of the desired camera and compares against the
// live camera at that moment, so a correction arriving mid-animation still lands.
type reconciler struct {
	tolerance float64
	last      core.Camera
	seen      bool
	// pending is set when the last move failed; the next pass retries even
	// if the desired camera did not change.
	pending bool
}

// reconcile returns the target and true when it issued a move.
func (r *reconciler) reconcile(w widget.Widget, desired core.Camera, log *slog.Logger) (core.Camera, bool) {
	if r.seen && r.last == desired && !r.pending {
		return core.Camera{}, false
	}
	r.last = desired
	r.seen = true

	if !desired.Center.Valid() {
		log.Warn("Ignoring out-of-range desired camera", "camera", desired.String())
		r.pending = false
		return core.Camera{}, false
	}

	live := w.Camera()
	if geo.SameCamera(desired, live, r.tolerance) {
		r.pending = false
		return core.Camera{}, false
	}

	if err := guard(func() error { return w.SetView(desired) }); err != nil {
		log.Warn("Camera move failed", "target", desired.String(), "error", err)
		r.pending = true
		return core.Camera{}, false
	}
	r.pending = false
	log.Debug("Camera reconciled", "from", live.String(), "to", desired.String())
	return desired, true
}
