package canvas

import (
	"image"
	"math"
	"testing"

	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/internal/mapview"
	"github.com/geomark/mapview/internal/widget"
	"github.com/geomark/mapview/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	london      = core.Position{Lat: 51.5074, Lng: -0.1278}
	westminster = core.Position{Lat: 51.5007, Lng: -0.1246}
)

type events struct {
	got []widget.Event
}

func (e *events) subscribe(w *Widget) {
	for _, t := range []widget.EventType{widget.EventMoveEnd, widget.EventZoomEnd, widget.EventClick} {
		w.On(t, func(ev widget.Event) { e.got = append(e.got, ev) })
	}
}

func newWidget(t *testing.T) (*Widget, *Surface, *events) {
	t.Helper()
	s := NewSurface(800, 600)
	built, err := Factory(widget.Immediate)(s, core.Camera{Center: london, Zoom: 13})
	require.NoError(t, err)
	w := built.(*Widget)
	ev := &events{}
	ev.subscribe(w)
	return w, s, ev
}

func glyph() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 24, 32))
}

func TestFactory(t *testing.T) {
	_, err := Factory(widget.Immediate)(fakeContainer{}, core.Camera{Center: london, Zoom: 13})
	assert.Error(t, err)

	_, err = Factory(widget.Immediate)(NewSurface(1, 1), core.Camera{Center: core.Position{Lat: 95}})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)

	w, s, _ := newWidget(t)
	assert.Same(t, w, s.Current())
	assert.Equal(t, core.Camera{Center: london, Zoom: 13}, w.Camera())
}

type fakeContainer struct{}

func (fakeContainer) Size() (int, int) { return 1, 1 }

func TestSetView_NoEvents(t *testing.T) {
	w, _, ev := newWidget(t)
	target := core.Camera{Center: westminster, Zoom: 15}
	require.NoError(t, w.SetView(target))
	assert.Equal(t, target, w.Camera())
	assert.Empty(t, ev.got, "programmatic moves are not gestures")

	require.NoError(t, w.SetView(core.Camera{Center: westminster, Zoom: 40}))
	assert.Equal(t, MaxZoom, w.Camera().Zoom)
}

func TestFlyTo_EasesToTarget(t *testing.T) {
	w, _, ev := newWidget(t)
	target := core.Camera{Center: westminster, Zoom: 15}
	require.NoError(t, w.FlyTo(target))
	assert.True(t, w.Animating())

	w.Step(FlyDuration / 2)
	mid := w.Camera()
	assert.NotEqual(t, target, mid)
	// eased: past the halfway point at half time
	assert.Greater(t, geo.AngularDistance(london, mid.Center), geo.AngularDistance(london, westminster)/2)

	w.Step(FlyDuration)
	assert.False(t, w.Animating())
	assert.Equal(t, target, w.Camera())
	assert.Empty(t, ev.got)
}

func TestFlyTo_SupersededBySetView(t *testing.T) {
	w, _, _ := newWidget(t)
	require.NoError(t, w.FlyTo(core.Camera{Center: westminster, Zoom: 15}))
	w.Step(0.1)
	require.NoError(t, w.SetView(core.Camera{Center: london, Zoom: 10}))
	assert.False(t, w.Animating())
	w.Step(FlyDuration)
	assert.Equal(t, core.Camera{Center: london, Zoom: 10}, w.Camera())
}

func TestDrag_EmitsOnlyAtEnd(t *testing.T) {
	w, _, ev := newWidget(t)
	before := w.Camera()

	w.Drag(100, 0)
	w.Drag(50, 0)
	assert.Empty(t, ev.got)
	after := w.Camera()
	assert.Less(t, after.Center.Lng, before.Center.Lng, "dragging right moves the map west")
	assert.InDelta(t, before.Center.Lat, after.Center.Lat, 1e-9)

	w.EndDrag()
	require.Len(t, ev.got, 1)
	assert.Equal(t, widget.EventMoveEnd, ev.got[0].Type)
}

func TestDrag_CancelsFlight(t *testing.T) {
	w, _, _ := newWidget(t)
	require.NoError(t, w.FlyTo(core.Camera{Center: westminster, Zoom: 15}))
	w.Drag(1, 1)
	assert.False(t, w.Animating())
}

func TestZoomAt_KeepsCursorPosition(t *testing.T) {
	w, _, ev := newWidget(t)
	under := w.FromScreen(200, 150)

	w.ZoomAt(2, 200, 150)
	assert.Equal(t, 15, w.Camera().Zoom)
	after := w.FromScreen(200, 150)
	assert.Less(t, geo.AngularDistance(under, after), 1e-6)

	require.Len(t, ev.got, 1)
	assert.Equal(t, widget.EventZoomEnd, ev.got[0].Type)
}

func TestZoomAt_AtLimitDoesNothing(t *testing.T) {
	w, _, ev := newWidget(t)
	require.NoError(t, w.SetView(core.Camera{Center: london, Zoom: MaxZoom}))
	w.ZoomAt(1, 400, 300)
	assert.Equal(t, MaxZoom, w.Camera().Zoom)
	assert.Empty(t, ev.got)
}

func TestScreenProjection_CenterIsMiddle(t *testing.T) {
	w, _, _ := newWidget(t)
	x, y := w.ToScreen(london)
	assert.InDelta(t, 400, x, 1e-6)
	assert.InDelta(t, 300, y, 1e-6)
}

func landmarkMarker() widget.Marker {
	return widget.Marker{
		ID:          "landmark:big-ben",
		Kind:        core.KindLandmark,
		Position:    london,
		Label:       "Big Ben",
		Glyph:       glyph(),
		Anchor:      image.Pt(12, 32),
		PopupAnchor: image.Pt(0, -32),
		Popup: &widget.Popup{
			Title: "Big Ben",
			Body:  "Clock tower",
			Link:  &widget.Link{URL: "https://example.com/big-ben", Text: "Read more", StopPropagation: true},
		},
	}
}

func TestClickAt_MarkerOpensPopup(t *testing.T) {
	w, _, ev := newWidget(t)
	require.NoError(t, w.UpsertMarker(landmarkMarker()))

	// the glyph spans (388,268)-(412,300) with the tip on the center
	w.ClickAt(400, 290)
	require.Len(t, ev.got, 1)
	assert.Equal(t, widget.Event{Type: widget.EventClick, MarkerID: "landmark:big-ben", Target: widget.TargetMarker}, ev.got[0])
	assert.Equal(t, "landmark:big-ben", w.Open())

	f := w.Frame()
	require.NotNil(t, f.Popup)
	assert.Equal(t, []string{"Clock tower"}, f.Popup.Lines)
	assert.True(t, f.Popup.LinkRect.In(f.Popup.Box))
}

func TestClickAt_PopupLinkDoesNotReachMarker(t *testing.T) {
	w, _, ev := newWidget(t)
	require.NoError(t, w.UpsertMarker(landmarkMarker()))
	w.ClickAt(400, 290)
	ev.got = nil

	link := w.Frame().Popup.LinkRect
	w.ClickAt(float64(link.Min.X+1), float64(link.Min.Y+1))
	require.Len(t, ev.got, 1)
	assert.Equal(t, widget.TargetPopupLink, ev.got[0].Target)
	assert.Equal(t, "https://example.com/big-ben", ev.got[0].URL)

	// popup body is inert
	box := w.Frame().Popup.Box
	w.ClickAt(float64(box.Min.X+1), float64(box.Min.Y+1))
	assert.Len(t, ev.got, 1)
}

func TestClickAt_EmptyMapClosesPopup(t *testing.T) {
	w, _, ev := newWidget(t)
	require.NoError(t, w.UpsertMarker(landmarkMarker()))
	w.ClickAt(400, 290)
	ev.got = nil

	w.ClickAt(10, 590)
	assert.Empty(t, ev.got)
	assert.Equal(t, "", w.Open())
	assert.Nil(t, w.Frame().Popup)
}

func TestClickAt_TopmostMarkerWins(t *testing.T) {
	w, _, ev := newWidget(t)
	first := landmarkMarker()
	second := landmarkMarker()
	second.ID = "user:u1"
	second.Popup = nil
	require.NoError(t, w.UpsertMarker(first))
	require.NoError(t, w.UpsertMarker(second))

	w.ClickAt(400, 290)
	require.Len(t, ev.got, 1)
	assert.Equal(t, "user:u1", ev.got[0].MarkerID)
	assert.Equal(t, "", w.Open(), "markers without popups open nothing")
}

func TestRemoveMarker(t *testing.T) {
	w, _, _ := newWidget(t)
	require.NoError(t, w.UpsertMarker(landmarkMarker()))
	w.ClickAt(400, 290)
	require.NoError(t, w.RemoveMarker("landmark:big-ben"))
	require.NoError(t, w.RemoveMarker("landmark:big-ben"))

	f := w.Frame()
	assert.Empty(t, f.Markers)
	assert.Nil(t, f.Popup)
}

func TestFrame_CullsOffscreen(t *testing.T) {
	w, _, _ := newWidget(t)
	far := landmarkMarker()
	far.ID = "landmark:eiffel"
	far.Position = core.Position{Lat: 48.8584, Lng: 2.2945}
	require.NoError(t, w.UpsertMarker(landmarkMarker()))
	require.NoError(t, w.UpsertMarker(far))

	f := w.Frame()
	require.Len(t, f.Markers, 1)
	assert.Equal(t, "landmark:big-ben", f.Markers[0].Marker.ID)
	assert.Equal(t, image.Rect(388, 268, 412, 300), f.Markers[0].Rect)
}

func TestRemove(t *testing.T) {
	w, s, ev := newWidget(t)
	require.NoError(t, w.Remove())
	assert.Nil(t, s.Current())
	assert.ErrorIs(t, w.Remove(), widget.ErrClosed)
	assert.ErrorIs(t, w.SetView(core.Camera{Center: london, Zoom: 3}), widget.ErrClosed)
	assert.ErrorIs(t, w.UpsertMarker(landmarkMarker()), widget.ErrClosed)

	w.Drag(10, 10)
	w.EndDrag()
	w.ClickAt(400, 300)
	assert.Empty(t, ev.got)
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"one two", "three"}, wrap("one two three", 7))
	assert.Equal(t, []string{"abcde", "fgh"}, wrap("abcdefgh", 5))
	assert.Nil(t, wrap("   ", 10))
}

func TestEaseOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, easeOutCubic(-1))
	assert.Equal(t, 1.0, easeOutCubic(2))
	assert.InDelta(t, 0.875, easeOutCubic(0.5), 1e-12)
	assert.False(t, math.IsNaN(easeOutCubic(0.3)))
}

func TestView_DrivesCanvas(t *testing.T) {
	var (
		moved     []core.Camera
		activated []core.Selection
	)
	v, err := mapview.New(mapview.Config{Factory: Factory(widget.Immediate)}, mapview.Notifications{
		OnCameraChanged: func(c core.Position, z int) {
			moved = append(moved, core.Camera{Center: c, Zoom: z})
		},
		OnEntityActivated: func(sel core.Selection) { activated = append(activated, sel) },
	})
	require.NoError(t, err)

	s := NewSurface(800, 600)
	require.NoError(t, v.Activate())
	require.NoError(t, v.Attach(s))
	pos := london
	v.Update(mapview.Props{
		DesiredCenter: london,
		DesiredZoom:   13,
		Users:         []core.User{{ID: "u1", Name: "Ada", Position: &pos}},
	})

	w := s.Current()
	require.NotNil(t, w)
	assert.Equal(t, core.Camera{Center: london, Zoom: 13}, w.Camera())

	f := w.Frame()
	require.Len(t, f.Markers, 1)
	r := f.Markers[0].Rect
	w.ClickAt(float64(r.Min.X+r.Dx()/2), float64(r.Min.Y+r.Dy()/2))
	require.Len(t, activated, 1)
	assert.Equal(t, "user:u1", activated[0].Key())

	w.Drag(50, 0)
	w.EndDrag()
	require.Len(t, moved, 1)
	assert.Equal(t, w.Camera(), moved[0])

	v.Deactivate()
	assert.Nil(t, s.Current())
}
