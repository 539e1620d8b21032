package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// LevelFromCount maps a repeated -v / -d flag to a level, 0 only shows errors
// and 3 or more shows everything.
func LevelFromCount(count int) slog.Level {
	switch {
	case count >= 3:
		return slog.LevelDebug
	case count == 2:
		return slog.LevelInfo
	case count == 1:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

type LogOptions struct {
	Console      io.Writer
	ConsoleLevel slog.Level
	// if empty, no file sink is created
	File      string
	FileLevel slog.Level
	// disables colors on the console sink
	NoColor bool
}

// NewLogger creates a logger that writes to the console and optionally to a
// file, each sink filtering with its own level. The returned close func
// must be called once logging is done.
func NewLogger(opts LogOptions) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      opts.ConsoleLevel,
			TimeFormat: time.Kitchen,
			NoColor:    opts.NoColor,
		}),
	}
	closer := func() error { return nil }

	if opts.File != "" {
		f, err := os.Create(opts.File)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{
			Level: opts.FileLevel,
		}))
		closer = f.Close
	}

	return slog.New(fanoutHandler{handlers: handlers}), closer, nil
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
}

type fanoutHandler struct {
	handlers []slog.Handler
}

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, inner := range h.handlers {
		if inner.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, inner := range h.handlers {
		if !inner.Enabled(ctx, r.Level) {
			continue
		}
		err := inner.Handle(ctx, r.Clone())
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		out[i] = inner.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: out}
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		out[i] = inner.WithGroup(name)
	}
	return fanoutHandler{handlers: out}
}
