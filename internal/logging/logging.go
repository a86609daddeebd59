// Package logging provides the structured JSON logger used across the
// service, built on log/slog.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a JSON logger at the given level.
// Supported levels: debug, info, warn, error.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// WithComponent returns a logger with a component attribute.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithAccountID returns a logger with an account_id attribute.
func WithAccountID(logger *slog.Logger, accountID string) *slog.Logger {
	return logger.With("account_id", accountID)
}
