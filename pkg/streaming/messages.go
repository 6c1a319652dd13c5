// Package streaming defines the JSON messages exchanged with a browser map
// over the bridge WebSocket.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/geomark/mapview/pkg/core"
)

// Server to browser commands.
const (
	TypeHello        = "hello"
	TypeSetView      = "set_view"
	TypeFlyTo        = "fly_to"
	TypeUpsertMarker = "upsert_marker"
	TypeRemoveMarker = "remove_marker"
	TypeRemove       = "remove"
)

// Browser to server events.
const (
	TypeReady   = "ready"
	TypeMoveEnd = "moveend"
	TypeZoomEnd = "zoomend"
	TypeClick   = "click"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals payload into an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals an envelope's payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}

// CameraPayload carries a camera for set_view, fly_to and gesture events.
type CameraPayload struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom int     `json:"zoom"`
}

func FromCamera(c core.Camera) CameraPayload {
	return CameraPayload{Lat: c.Center.Lat, Lng: c.Center.Lng, Zoom: c.Zoom}
}

func (p CameraPayload) Camera() core.Camera {
	return core.Camera{Center: core.Position{Lat: p.Lat, Lng: p.Lng}, Zoom: p.Zoom}
}

// HelloPayload is the first message on a new connection.
type HelloPayload struct {
	SessionID   string        `json:"sessionId"`
	Camera      CameraPayload `json:"camera"`
	TileURL     string        `json:"tileUrl"`
	Attribution string        `json:"attribution"`
}

// ReadyPayload reports the browser container's size.
type ReadyPayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type LinkPayload struct {
	URL  string `json:"url"`
	Text string `json:"text"`
	// StopPropagation tells the browser not to bubble link clicks to the marker.
	StopPropagation bool `json:"stopPropagation"`
}

type PopupPayload struct {
	Title string       `json:"title"`
	Body  string       `json:"body"`
	Link  *LinkPayload `json:"link,omitempty"`
}

// MarkerPayload places or replaces a marker.
type MarkerPayload struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Lat         float64       `json:"lat"`
	Lng         float64       `json:"lng"`
	Label       string        `json:"label"`
	IconURL     string        `json:"iconUrl"`
	Anchor      [2]int        `json:"anchor"`
	PopupAnchor [2]int        `json:"popupAnchor"`
	Popup       *PopupPayload `json:"popup,omitempty"`
}

type RemoveMarkerPayload struct {
	ID string `json:"id"`
}

// ClickPayload reports a click on a marker or on its popup link.
type ClickPayload struct {
	MarkerID string `json:"markerId"`
	// Target is "marker" or "popup-link".
	Target string `json:"target"`
	URL    string `json:"url,omitempty"`
}
