package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/internal/logging"
	intOtel "github.com/geomark/mapview/internal/otel"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const AppName = "mapview"

var (
	SessionStartTime = time.Now()

	SlogManager  *logging.SlogManager
	Logger       *slog.Logger
	OTelProvider *intOtel.Provider
	LogFile      *os.File

	// logContext is swapped in once the command has built its hub or session.
	logContext atomic.Pointer[logging.ContextProvider]
)

var (
	configDir string
	logLevel  string
	toStdout  bool
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Map view sync engine with user and landmark markers",
	Long: `mapview keeps a map widget's camera in sync with a desired camera,
follows selected users and landmarks, and renders their markers and popups.
It serves browser sessions over a WebSocket bridge or runs a desktop window.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", ".", "Directory holding "+config.FileName)
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().BoolVar(&toStdout, "stdout", false, "Log to stdout instead of the session log file")

	rootCmd.AddCommand(serveCmd, desktopCmd, nearbyCmd, demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setLogContext(p logging.ContextProvider) {
	logContext.Store(&p)
}

func viewAttrs() []slog.Attr {
	if p := logContext.Load(); p != nil {
		return (*p)()
	}
	return nil
}

func level() string {
	if logLevel != "" {
		return logLevel
	}
	return config.GetString("logLevel")
}

// setup loads the config and builds the logging pipeline: a session log
// file, optional OTel export next to it, and an optional Graylog sink.
func setup(cmd *cobra.Command, _ []string) error {
	SlogManager = logging.NewSlogManager()
	_ = SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		if !errors.Is(err, config.ErrNoConfigFile) {
			return err
		}
		Logger.Warn("No config file, using defaults", "dir", configDir)
	}

	var out io.Writer
	if !toStdout {
		f, err := logging.OpenLogFile(config.GetString("logsDir"), AppName, SessionStartTime)
		if err != nil {
			Logger.Error("Failed to open log file, logging to stdout", "error", err)
		} else {
			LogFile = f
			out = f
		}
	}

	otelCfg := config.GetOTelConfig()
	var provider *sdklog.LoggerProvider
	if otelCfg.Enabled {
		p, err := intOtel.New(cmd.Context(), intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    out,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			OTelProvider = p
			provider = p.LoggerProvider()
		}
	}

	opts := logging.Options{
		Level:    level(),
		File:     out,
		Provider: provider,
		Context:  viewAttrs,
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		opts.GraylogAddr = gl.Address
	}
	// a failed Graylog sink is logged by Setup and otherwise ignored
	_ = SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)

	if LogFile != nil {
		fmt.Fprintln(os.Stderr, "Logging to", LogFile.Name())
	}
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if SlogManager != nil {
		err = errors.Join(err, SlogManager.Close(ctx))
	}
	if OTelProvider != nil {
		err = errors.Join(err, OTelProvider.Shutdown(ctx))
	}
	if LogFile != nil {
		err = errors.Join(err, LogFile.Close())
	}
	return err
}

// zlog builds the zerolog.Logger for a storage or transport component. It
// writes to the same place as the slog pipeline.
func zlog(component string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if LogFile != nil {
		w = LogFile
	}
	return logging.NewZerolog(w, level(), component)
}
