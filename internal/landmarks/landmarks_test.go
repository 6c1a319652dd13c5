package landmarks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedDoc = `
landmarks:
  - id: big-ben
    title: Big Ben
    position: {lat: 51.5007, lng: -0.1246}
  - id: eye
    title: London Eye
    position: {lat: 51.5033, lng: -0.1196}
  - id: eiffel
    title: Eiffel Tower
    position: {lat: 48.8584, lng: 2.2945}
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedDoc), 0o644))
	return path
}

func TestOpen_Sources(t *testing.T) {
	westminster := core.Position{Lat: 51.5007, Lng: -0.1246}

	for _, typ := range []string{"memory", "sqlite"} {
		t.Run(typ, func(t *testing.T) {
			cat, err := Open(context.Background(), config.LandmarkConfig{
				Type:       typ,
				SeedFile:   writeSeed(t),
				SQLitePath: filepath.Join(t.TempDir(), "landmarks.db"),
			}, zerolog.Nop())
			require.NoError(t, err)
			defer cat.Close()

			got, err := cat.Nearby(context.Background(), westminster, 1500)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "big-ben", got[0].Key())
			assert.Equal(t, "eye", got[1].Key())
		})
	}
}

func TestOpen_NoSeed(t *testing.T) {
	cat, err := Open(context.Background(), config.LandmarkConfig{Type: "memory"}, zerolog.Nop())
	require.NoError(t, err)
	got, err := cat.Nearby(context.Background(), core.Position{}, 1000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), config.LandmarkConfig{Type: "carrier-pigeon"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = Open(context.Background(), config.LandmarkConfig{
		Type:     "memory",
		SeedFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}, zerolog.Nop())
	assert.Error(t, err)
}
