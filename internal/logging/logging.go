// Package logging builds the slog loggers shared by the CLI and the
// preview server. The engine itself takes a plain *slog.Logger, so this
// package only concerns itself with handler selection.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options select the handler a logger writes through.
type Options struct {
	Level     string // debug, info, warn, error
	Format    string // text or json
	Output    io.Writer
	AddSource bool
}

// New builds a logger from opts. Unknown levels fall back to info and
// unknown formats to text; a nil output writes to stderr.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to its slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
