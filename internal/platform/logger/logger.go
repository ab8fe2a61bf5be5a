// Package logger provides structured logging functionality for the application.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/aromatch/aromatch-api/internal/config"
)

// Setup initializes the application's logging system from the server
// configuration and sets the result as the process-wide default logger.
//
// The "json" format produces structured JSON on stdout for production; the
// "pretty" format produces colorized, human-readable output for local
// development.
func Setup(cfg config.ServerConfig) *slog.Logger {
	logger := New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w with the given level and format.
// Unknown levels fall back to info with a warning on stderr rather than
// failing startup.
func New(w io.Writer, logLevel, logFormat string) *slog.Logger {
	level := parseLevel(logLevel)

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "pretty":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("invalid log level configured, using default level",
			"configured_level", logLevel,
			"default_level", "info")
		return slog.LevelInfo
	}
}
