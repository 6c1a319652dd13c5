package influx

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraPoint(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	p := CameraPoint(CameraEvent{
		Kind:     "fly",
		Camera:   core.Camera{Center: core.Position{Lat: 51.5007, Lng: -0.1246}, Zoom: 15},
		Selected: "landmark:pp",
		At:       at,
	})

	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, "camera_move,kind=fly,selected=landmark:pp "), line)
	assert.Contains(t, line, "lat=51.5007")
	assert.Contains(t, line, "lng=-0.1246")
	assert.Contains(t, line, "zoom=15i")
}

func TestCameraPoint_NoSelectionTag(t *testing.T) {
	p := CameraPoint(CameraEvent{Kind: "gesture"})
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.NotContains(t, line, "selected=")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: false})
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWriteCamera_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: true})
	assert.Error(t, m.WriteCamera(CameraEvent{Kind: "snap"}))
}

func TestConnect_FallsBackToBackupFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backup := filepath.Join(t.TempDir(), "camera.lp.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:    true,
		URL:        srv.URL,
		Org:        "mapview",
		Bucket:     "camera",
		BackupPath: backup,
	})

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.Valid())

	require.NoError(t, m.WriteCamera(CameraEvent{
		Kind:   "gesture",
		Camera: core.Camera{Center: core.Position{Lat: 48.8566, Lng: 2.3522}, Zoom: 12},
	}))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Contains(t, string(data), "camera_move,kind=gesture")
	assert.Contains(t, string(data), "zoom=12i")
}
