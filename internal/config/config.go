// Package config loads mapview.cfg.json through viper and exposes typed views
// of each section.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geomark/mapview/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "mapview.cfg.json"

// ErrNoConfigFile means the directory has no config file; defaults still apply.
var ErrNoConfigFile = errors.New("config file not found")

// MapConfig holds the view's camera settings.
type MapConfig struct {
	DefaultCenter core.Position
	DefaultZoom   int
	MinFocusZoom  int
	Tolerance     float64
	TileURL       string
	Attribution   string
}

// SummaryConfig configures the chat-completion summary client.
type SummaryConfig struct {
	Enabled   bool
	Endpoint  string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// LandmarkConfig selects and configures the landmark source.
type LandmarkConfig struct {
	// Type is memory, sqlite or postgres.
	Type         string
	SeedFile     string
	SQLitePath   string
	DSN          string
	RadiusMeters float64
}

// BridgeConfig configures the browser bridge server.
type BridgeConfig struct {
	Listen       string
	Path         string
	MetricsPath  string
	WriteTimeout time.Duration
	SendBuffer   int
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig configures camera telemetry.
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// GraylogConfig configures the GELF log sink.
type GraylogConfig struct {
	Enabled bool
	Address string
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("map.defaultLat", 51.5074)
	viper.SetDefault("map.defaultLng", -0.1278)
	viper.SetDefault("map.defaultZoom", 13)
	viper.SetDefault("map.minFocusZoom", 15)
	viper.SetDefault("map.tolerance", 1e-5)
	viper.SetDefault("map.tileURL", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	viper.SetDefault("map.attribution", "© OpenStreetMap contributors")

	viper.SetDefault("summary.enabled", false)
	viper.SetDefault("summary.endpoint", "https://api.openai.com/v1/chat/completions")
	viper.SetDefault("summary.apiKey", "")
	viper.SetDefault("summary.model", "gpt-4o-mini")
	viper.SetDefault("summary.maxTokens", 120)
	viper.SetDefault("summary.timeout", "15s")

	viper.SetDefault("landmarks.type", "memory")
	viper.SetDefault("landmarks.seedFile", "")
	viper.SetDefault("landmarks.sqlitePath", "./landmarks.db")
	viper.SetDefault("landmarks.dsn", "host=localhost port=5432 user=postgres password=postgres dbname=mapview sslmode=disable")
	viper.SetDefault("landmarks.radiusMeters", 1500.0)

	viper.SetDefault("bridge.listen", "127.0.0.1:8080")
	viper.SetDefault("bridge.path", "/ws")
	viper.SetDefault("bridge.metricsPath", "/metrics")
	viper.SetDefault("bridge.writeTimeout", "10s")
	viper.SetDefault("bridge.sendBuffer", 64)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mapview")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "mapview")
	viper.SetDefault("influx.bucket", "camera")
	viper.SetDefault("influx.backupPath", "./logs/camera.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// Load reads configuration from the JSON file in configDir and sets default
// values. Environment variables prefixed MAPVIEW_ override file values
// (MAPVIEW_SUMMARY_APIKEY for summary.apiKey). A missing file returns an
// error wrapping ErrNoConfigFile; the defaults are usable regardless.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("mapview")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", ErrNoConfigFile)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetMapConfig() MapConfig {
	return MapConfig{
		DefaultCenter: core.Position{
			Lat: viper.GetFloat64("map.defaultLat"),
			Lng: viper.GetFloat64("map.defaultLng"),
		},
		DefaultZoom:  viper.GetInt("map.defaultZoom"),
		MinFocusZoom: viper.GetInt("map.minFocusZoom"),
		Tolerance:    viper.GetFloat64("map.tolerance"),
		TileURL:      viper.GetString("map.tileURL"),
		Attribution:  viper.GetString("map.attribution"),
	}
}

func GetSummaryConfig() SummaryConfig {
	return SummaryConfig{
		Enabled:   viper.GetBool("summary.enabled"),
		Endpoint:  viper.GetString("summary.endpoint"),
		APIKey:    viper.GetString("summary.apiKey"),
		Model:     viper.GetString("summary.model"),
		MaxTokens: viper.GetInt("summary.maxTokens"),
		Timeout:   viper.GetDuration("summary.timeout"),
	}
}

func GetLandmarkConfig() LandmarkConfig {
	return LandmarkConfig{
		Type:         viper.GetString("landmarks.type"),
		SeedFile:     viper.GetString("landmarks.seedFile"),
		SQLitePath:   viper.GetString("landmarks.sqlitePath"),
		DSN:          viper.GetString("landmarks.dsn"),
		RadiusMeters: viper.GetFloat64("landmarks.radiusMeters"),
	}
}

func GetBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Listen:       viper.GetString("bridge.listen"),
		Path:         viper.GetString("bridge.path"),
		MetricsPath:  viper.GetString("bridge.metricsPath"),
		WriteTimeout: viper.GetDuration("bridge.writeTimeout"),
		SendBuffer:   viper.GetInt("bridge.sendBuffer"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		URL:        viper.GetString("influx.url"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
