package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		appName string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "logs",
			appName: "mapview",
			want:    filepath.Join("logs", "mapview.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./logs",
			appName: "mapview",
			want:    filepath.Join(".", "logs", "mapview.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "mapview"),
			appName: "mapview",
			want:    filepath.Join("/var", "log", "mapview", "mapview.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.appName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogFilePath_UsesUTC(t *testing.T) {
	zone := time.FixedZone("CET", 3600)
	got := LogFilePath("logs", "mapview", time.Date(2026, 2, 12, 22, 38, 36, 0, zone))
	assert.Equal(t, filepath.Join("logs", "mapview.20260212_213836.log"), got)
}

func TestOpenLogFile_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	f, err := OpenLogFile(dir, "mapview", start)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("hello\n")
	require.NoError(t, err)

	data, err := os.ReadFile(LogFilePath(dir, "mapview", start))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
