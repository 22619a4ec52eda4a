package utils

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

type LogOptions struct {
	Level     slog.Leveler
	JSON      bool
	Color     bool
	AddSource bool
}

// SetupLogger builds the process logger and installs it as the slog
// default. Output goes to w (stderr when nil) so stdout stays reserved for
// the run summary.
func SetupLogger(w io.Writer, opts LogOptions) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	switch {
	case opts.JSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource})
	case opts.Color:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			AddSource:  opts.AddSource,
			TimeFormat: "15:04:05",
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
