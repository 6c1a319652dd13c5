package mapview

import (
	"log/slog"

	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/internal/icon"
	"github.com/geomark/mapview/internal/popup"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
)

// Marker IDs are namespaced by kind so user and landmark identities never collide.
func userMarkerID(u core.User) string         { return core.KindUser.String() + ":" + u.ID }
func landmarkMarkerID(l core.Landmark) string { return core.KindLandmark.String() + ":" + l.Key() }

// fingerprint is the comparable part of a placed marker.
type fingerprint struct {
	position core.Position
	label    string
	popup    widget.Popup
	link     widget.Link
}

func fingerprintOf(m widget.Marker) fingerprint {
	fp := fingerprint{position: m.Position, label: m.Label}
	if m.Popup != nil {
		fp.popup = *m.Popup
		fp.popup.Link = nil
		if m.Popup.Link != nil {
			fp.link = *m.Popup.Link
		}
	}
	return fp
}

type placed struct {
	fp     fingerprint
	entity core.Selection
}

// renderer reconciles the widget's markers with the current entities.
type renderer struct {
	placed map[string]placed
}

func newRenderer() renderer {
	return renderer{placed: make(map[string]placed)}
}

func (r *renderer) entity(markerID string) (core.Selection, bool) {
	p, ok := r.placed[markerID]
	return p.entity, ok
}

func (r *renderer) render(w widget.Widget, p Props, log *slog.Logger) {
	type wanted struct {
		marker widget.Marker
		entity core.Selection
	}
	want := make(map[string]wanted, len(p.Users)+len(p.Landmarks))

	userIcon := icon.For(core.KindUser)
	for _, u := range p.Users {
		if err := geo.Validate(u.Position); err != nil {
			log.Debug("Skipping user marker", "user", u.ID, "error", err)
			continue
		}
		id := userMarkerID(u)
		want[id] = wanted{
			marker: widget.Marker{
				ID:          id,
				Kind:        core.KindUser,
				Position:    *u.Position,
				Label:       u.Name,
				Glyph:       userIcon.Glyph,
				Anchor:      userIcon.Anchor,
				PopupAnchor: userIcon.PopupAnchor,
			},
			entity: core.SelectUserEntity(u),
		}
	}

	landmarkIcon := icon.For(core.KindLandmark)
	for _, l := range p.Landmarks {
		if err := geo.Validate(l.Position); err != nil {
			log.Debug("Skipping landmark marker", "landmark", l.Key(), "error", err)
			continue
		}
		id := landmarkMarkerID(l)
		want[id] = wanted{
			marker: widget.Marker{
				ID:          id,
				Kind:        core.KindLandmark,
				Position:    *l.Position,
				Label:       l.Title,
				Glyph:       landmarkIcon.Glyph,
				Anchor:      landmarkIcon.Anchor,
				PopupAnchor: landmarkIcon.PopupAnchor,
				Popup:       popup.ForLandmark(l, p.Summaries),
			},
			entity: core.SelectLandmarkEntity(l),
		}
	}

	for id := range r.placed {
		if _, ok := want[id]; ok {
			continue
		}
		if err := guard(func() error { return w.RemoveMarker(id) }); err != nil {
			log.Warn("Failed to remove marker", "marker", id, "error", err)
			continue
		}
		delete(r.placed, id)
	}

	for id, wm := range want {
		fp := fingerprintOf(wm.marker)
		if prev, ok := r.placed[id]; ok && prev.fp == fp {
			// entity data outside the marker may still have changed
			r.placed[id] = placed{fp: fp, entity: wm.entity}
			continue
		}
		if err := guard(func() error { return w.UpsertMarker(wm.marker) }); err != nil {
			log.Warn("Failed to place marker", "marker", id, "error", err)
			continue
		}
		r.placed[id] = placed{fp: fp, entity: wm.entity}
	}
}
