package wsbridge

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
	"github.com/geomark/mapview/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	ready  chan *Conn
	closed chan string
	mu     sync.Mutex
	opened []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{ready: make(chan *Conn, 1), closed: make(chan string, 1)}
}

func (s *fakeSessions) Opened(c *Conn) error {
	s.mu.Lock()
	s.opened = append(s.opened, c.ID)
	s.mu.Unlock()
	return c.Send(streaming.TypeHello, streaming.HelloPayload{SessionID: c.ID, TileURL: "tiles"})
}

func (s *fakeSessions) Ready(c *Conn)  { s.ready <- c }
func (s *fakeSessions) Closed(c *Conn) { s.closed <- c.ID }

func dial(t *testing.T) (*ws.Conn, *fakeSessions) {
	t.Helper()
	sessions := newFakeSessions()
	srv := httptest.NewServer(NewHandler(sessions, Options{}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, sessions
}

func read(t *testing.T, c *ws.Conn) streaming.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func send(t *testing.T, c *ws.Conn, msgType string, payload any) {
	t.Helper()
	data, err := streaming.Encode(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(ws.TextMessage, data))
}

// mount completes the handshake and builds a widget on the connection.
func mount(t *testing.T) (*ws.Conn, *fakeSessions, *Widget) {
	t.Helper()
	client, sessions := dial(t)

	hello := read(t, client)
	require.Equal(t, streaming.TypeHello, hello.Type)

	send(t, client, streaming.TypeReady, streaming.ReadyPayload{Width: 800, Height: 600})
	var conn *Conn
	select {
	case conn = <-sessions.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ready not delivered")
	}
	w, h := conn.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	cam := core.Camera{Center: core.Position{Lat: 51.5074, Lng: -0.1278}, Zoom: 13}
	built, err := Factory(widget.Immediate, func(k core.Kind) string { return "/icons/" + k.String() + ".png" })(conn, cam)
	require.NoError(t, err)

	env := read(t, client)
	require.Equal(t, streaming.TypeSetView, env.Type)
	var p streaming.CameraPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, cam, p.Camera())

	return client, sessions, built.(*Widget)
}

func TestFactory_RejectsForeignContainer(t *testing.T) {
	_, err := Factory(widget.Immediate, nil)(fakeContainer{}, core.Camera{})
	assert.Error(t, err)
}

type fakeContainer struct{}

func (fakeContainer) Size() (int, int) { return 1, 1 }

func TestWidget_CameraCommands(t *testing.T) {
	client, _, w := mount(t)

	target := core.Camera{Center: core.Position{Lat: 48.8566, Lng: 2.3522}, Zoom: 12}
	require.NoError(t, w.SetView(target))
	env := read(t, client)
	assert.Equal(t, streaming.TypeSetView, env.Type)
	assert.Equal(t, target, w.Camera())

	fly := core.Camera{Center: core.Position{Lat: 51.5007, Lng: -0.1246}, Zoom: 15}
	require.NoError(t, w.FlyTo(fly))
	env = read(t, client)
	assert.Equal(t, streaming.TypeFlyTo, env.Type)
	var p streaming.CameraPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, fly, p.Camera())
}

func TestWidget_UpsertMarkerPayload(t *testing.T) {
	client, _, w := mount(t)

	require.NoError(t, w.UpsertMarker(widget.Marker{
		ID:          "landmark:pp",
		Kind:        core.KindLandmark,
		Position:    core.Position{Lat: 51.5007, Lng: -0.1246},
		Label:       "Parliament",
		Anchor:      image.Pt(12, 41),
		PopupAnchor: image.Pt(1, -34),
		Popup: &widget.Popup{
			Title: "Parliament",
			Body:  "Seat of government.",
			Link:  &widget.Link{URL: "https://example.org", Text: "Read more", StopPropagation: true},
		},
	}))

	env := read(t, client)
	require.Equal(t, streaming.TypeUpsertMarker, env.Type)
	var m streaming.MarkerPayload
	require.NoError(t, env.Decode(&m))
	assert.Equal(t, "landmark:pp", m.ID)
	assert.Equal(t, "landmark", m.Kind)
	assert.Equal(t, "/icons/landmark.png", m.IconURL)
	assert.Equal(t, [2]int{12, 41}, m.Anchor)
	require.NotNil(t, m.Popup)
	require.NotNil(t, m.Popup.Link)
	assert.True(t, m.Popup.Link.StopPropagation)

	require.NoError(t, w.RemoveMarker("landmark:pp"))
	env = read(t, client)
	assert.Equal(t, streaming.TypeRemoveMarker, env.Type)
}

func TestWidget_GestureUpdatesLiveAndEmits(t *testing.T) {
	client, _, w := mount(t)

	got := make(chan widget.Event, 1)
	w.On(widget.EventZoomEnd, func(ev widget.Event) { got <- ev })

	send(t, client, streaming.TypeZoomEnd, streaming.CameraPayload{Lat: 51.5, Lng: -0.12, Zoom: 9})

	select {
	case ev := <-got:
		assert.Equal(t, widget.EventZoomEnd, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("zoomend not delivered")
	}
	assert.Equal(t, core.Camera{Center: core.Position{Lat: 51.5, Lng: -0.12}, Zoom: 9}, w.Camera())
}

func TestWidget_InvalidGestureDropped(t *testing.T) {
	client, _, w := mount(t)

	got := make(chan widget.Event, 2)
	w.On(widget.EventMoveEnd, func(ev widget.Event) { got <- ev })

	send(t, client, streaming.TypeMoveEnd, streaming.CameraPayload{Lat: 123, Lng: 0, Zoom: 9})
	send(t, client, streaming.TypeMoveEnd, streaming.CameraPayload{Lat: 50, Lng: 0, Zoom: 9})

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("valid moveend not delivered")
	}
	assert.Equal(t, 50.0, w.Camera().Center.Lat)
	assert.Len(t, got, 0)
}

func TestWidget_ClickTargets(t *testing.T) {
	client, _, w := mount(t)

	got := make(chan widget.Event, 2)
	w.On(widget.EventClick, func(ev widget.Event) { got <- ev })

	send(t, client, streaming.TypeClick, streaming.ClickPayload{MarkerID: "landmark:pp", Target: "popup-link", URL: "https://example.org"})
	send(t, client, streaming.TypeClick, streaming.ClickPayload{MarkerID: "user:u1", Target: "bogus", URL: "https://ignored"})

	var events []widget.Event
	for len(events) < 2 {
		select {
		case ev := <-got:
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("click not delivered")
		}
	}
	assert.Equal(t, widget.TargetPopupLink, events[0].Target)
	assert.Equal(t, "https://example.org", events[0].URL)
	assert.Equal(t, widget.TargetMarker, events[1].Target)
	assert.Empty(t, events[1].URL)
}

func TestWidget_Remove(t *testing.T) {
	client, _, w := mount(t)

	require.NoError(t, w.Remove())
	env := read(t, client)
	assert.Equal(t, streaming.TypeRemove, env.Type)

	assert.ErrorIs(t, w.Remove(), widget.ErrClosed)
	assert.ErrorIs(t, w.SetView(core.Camera{}), widget.ErrClosed)
	assert.ErrorIs(t, w.UpsertMarker(widget.Marker{}), widget.ErrClosed)
}

func TestHandler_ClosedCallback(t *testing.T) {
	client, sessions := dial(t)
	read(t, client) // hello

	require.NoError(t, client.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")))

	select {
	case id := <-sessions.closed:
		sessions.mu.Lock()
		defer sessions.mu.Unlock()
		assert.Equal(t, []string{id}, sessions.opened)
	case <-time.After(2 * time.Second):
		t.Fatal("closed callback not called")
	}
}

func TestConn_SendBufferFull(t *testing.T) {
	// no write loop runs, so nothing drains the buffer
	c := newConn(nil, "s1", Options{SendBuffer: 2, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	require.NoError(t, c.Send(streaming.TypeSetView, streaming.CameraPayload{Zoom: 1}))
	require.NoError(t, c.Send(streaming.TypeSetView, streaming.CameraPayload{Zoom: 2}))
	assert.ErrorIs(t, c.Send(streaming.TypeSetView, streaming.CameraPayload{Zoom: 3}), ErrSendBufferFull)
	assert.Equal(t, 1, c.Dropped())

	first, ok := c.out.Pop()
	require.True(t, ok)
	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(first, &env))
	var p streaming.CameraPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, 1, p.Zoom)

	require.NoError(t, c.Send(streaming.TypeSetView, streaming.CameraPayload{Zoom: 4}))
}

func TestConn_BurstIsDeliveredInOrder(t *testing.T) {
	client, _, w := mount(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, w.RemoveMarker(fmt.Sprintf("user:%d", i)))
	}
	for i := 0; i < 20; i++ {
		env := read(t, client)
		require.Equal(t, streaming.TypeRemoveMarker, env.Type)
		var p streaming.RemoveMarkerPayload
		require.NoError(t, env.Decode(&p))
		assert.Equal(t, fmt.Sprintf("user:%d", i), p.ID)
	}
}
