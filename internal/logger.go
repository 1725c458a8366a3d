package internal

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel maps LOG_LEVEL values to slog levels. Empty means info.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got: %s", level)
}

// NewLogger returns a text logger in development and a JSON logger elsewhere.
// Every record carries the service name.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", "kinship")
}
