// Package logging builds the operational slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/victron-virtual/dbus-virtual-go/internal/config"
)

// New creates a logger writing to cfg.Output ("stdout" or "stderr") in
// cfg.Format ("json" or "text"). Every record carries the service name.
func New(cfg config.LoggingConfig, service string) *slog.Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}
	return NewWriter(output, cfg, service)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, cfg config.LoggingConfig, service string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	if service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", service)})
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default is the logger used before configuration is loaded.
func Default() *slog.Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "")
}
