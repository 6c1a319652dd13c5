package mapview

import (
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// listenGestures reports user-driven camera changes upward. It only reads the
// widget; any correction is the caller's decision.
func listenGestures(w widget.Widget, current func() (widget.Widget, bool), report func(core.Position, int)) {
	h := func(widget.Event) {
		live, ok := current()
		if !ok || report == nil {
			return
		}
		cam := live.Camera()
		report(cam.Center, cam.Zoom)
	}
	w.On(widget.EventMoveEnd, h)
	w.On(widget.EventZoomEnd, h)
}
