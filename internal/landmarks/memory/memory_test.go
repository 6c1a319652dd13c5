package memory

import (
	"context"
	"testing"

	"github.com/geomark/mapview/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(lat, lng float64) *core.Position {
	return &core.Position{Lat: lat, Lng: lng}
}

var westminster = core.Position{Lat: 51.5007, Lng: -0.1246}

func catalog() []core.Landmark {
	return []core.Landmark{
		{ID: "big-ben", Title: "Big Ben", Position: pos(51.5007, -0.1246)},
		{ID: "abbey", Title: "Westminster Abbey", Position: pos(51.4994, -0.1273)},
		{ID: "eye", Title: "London Eye", Position: pos(51.5033, -0.1196)},
		{ID: "museum", Title: "British Museum", Position: pos(51.5194, -0.1270)},
		{ID: "eiffel", Title: "Eiffel Tower", Position: pos(48.8584, 2.2945)},
		{ID: "lost", Title: "Nowhere"},
	}
}

func keys(ls []core.Landmark) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Key()
	}
	return out
}

func TestNew_SkipsInvalid(t *testing.T) {
	idx, skipped := New(catalog())
	assert.Equal(t, 5, idx.Len())
	assert.Equal(t, 1, skipped)
}

func TestNearby_WithinRadiusNearestFirst(t *testing.T) {
	idx, _ := New(catalog())

	got, err := idx.Nearby(context.Background(), westminster, 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"big-ben", "abbey", "eye"}, keys(got))

	got, err = idx.Nearby(context.Background(), westminster, 3000)
	require.NoError(t, err)
	assert.Equal(t, []string{"big-ben", "abbey", "eye", "museum"}, keys(got))
}

func TestNearby_ZeroRadiusMatchesExactPoint(t *testing.T) {
	idx, _ := New(catalog())
	got, err := idx.Nearby(context.Background(), westminster, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"big-ben"}, keys(got))
}

func TestNearby_ResultsAreCopies(t *testing.T) {
	idx, _ := New(catalog())
	got, err := idx.Nearby(context.Background(), westminster, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].Position.Lat = 0

	again, err := idx.Nearby(context.Background(), westminster, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 51.5007, again[0].Position.Lat)
}

func TestNearby_InvalidArguments(t *testing.T) {
	idx, _ := New(catalog())

	_, err := idx.Nearby(context.Background(), core.Position{Lat: 91}, 100)
	assert.Error(t, err)

	_, err = idx.Nearby(context.Background(), westminster, -1)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.Nearby(ctx, westminster, 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdd_ReplacesSameKey(t *testing.T) {
	idx, _ := New(catalog())
	require.NoError(t, idx.Add(core.Landmark{ID: "eiffel", Title: "Moved", Position: pos(51.5008, -0.1247)}))
	assert.Equal(t, 5, idx.Len())

	got, err := idx.Nearby(context.Background(), westminster, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"big-ben", "eiffel"}, keys(got))
	assert.Equal(t, "Moved", got[1].Title)
}

func TestRemove(t *testing.T) {
	idx, _ := New(catalog())
	assert.True(t, idx.Remove("big-ben"))
	assert.False(t, idx.Remove("big-ben"))

	got, err := idx.Nearby(context.Background(), westminster, 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"abbey", "eye"}, keys(got))
}
