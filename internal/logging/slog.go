// Package logging sets up the application's slog pipeline: console or file,
// plus optional OpenTelemetry and Graylog sinks.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// swapped out by tests
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

const otelScope = "mapview"

// Options selects the sinks for Setup.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// File receives text logs. When nil, logs go to stdout instead.
	File io.Writer
	// Provider enables the OTel bridge when set.
	Provider *sdklog.LoggerProvider
	// GraylogAddr is a host:port for GELF over UDP. Empty disables it.
	GraylogAddr string
	// Context adds dynamic attributes to every record, grouped under "view".
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger
	level  slog.Level

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
	gelf        *gelf.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}
}

// Setup (re)builds the logger. A failing Graylog connection is reported but
// the remaining sinks are still installed.
func (m *SlogManager) Setup(opts Options) error {
	m.level = parseLevel(opts.Level)
	m.logProvider = opts.Provider
	if m.gelf != nil {
		m.gelf.Close()
		m.gelf = nil
	}

	hopts := handlerOptions(m.level)
	var handlers []slog.Handler

	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, hopts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, hopts))
	}

	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(otelScope, otelslog.WithLoggerProvider(opts.Provider)))
	}

	var gelfErr error
	if opts.GraylogAddr != "" {
		w, err := gelf.NewWriter(opts.GraylogAddr)
		if err != nil {
			gelfErr = err
		} else {
			w.Facility = otelScope
			m.gelf = w
			handlers = append(handlers, slog.NewJSONHandler(w, hopts))
		}
	}

	var root slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		root = NewContextHandler(root, "view", opts.Context)
	}

	m.logger = slog.New(root)
	m.logger.Info("Logging initialized", "level", m.level.String(), "sinks", len(handlers))
	if gelfErr != nil {
		m.logger.Warn("Graylog sink disabled", "addr", opts.GraylogAddr, "error", gelfErr)
	}
	return gelfErr
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Level returns the configured level.
func (m *SlogManager) Level() slog.Level {
	return m.level
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// Close flushes and releases the sinks.
func (m *SlogManager) Close(ctx context.Context) error {
	err := m.Flush(ctx)
	if m.gelf != nil {
		err = errors.Join(err, m.gelf.Close())
		m.gelf = nil
	}
	return err
}
