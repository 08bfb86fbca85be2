// Package logging configures the process-wide slog logger.
//
// Console output is colorized by tint. When a log file is configured, a
// second tint handler writes to it through lumberjack, which rotates and
// compresses old files.
package logging

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Setup.
type Options struct {
	// Level is the minimum level for both console and file.
	Level slog.Level
	// Console receives human-readable output. Nil disables it.
	Console io.Writer
	// NoColor disables ANSI colors on the console.
	NoColor bool
	// File is the log file path. Empty disables file logging.
	File string
	// MaxSizeMB is the size at which the file rotates. Zero uses
	// lumberjack's default of 100 MB.
	MaxSizeMB int
}

// Setup builds a logger from opts, installs it as the slog default and
// routes the standard library logger through it. The returned closer
// flushes and closes the log file.
func Setup(opts Options) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}

	handler := &multiHandler{}
	if opts.Console != nil {
		handler.handlers = append(handler.handlers, tint.NewHandler(opts.Console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}))
	}
	if opts.File != "" {
		lumber := &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  opts.MaxSizeMB,
			Compress: true,
		}
		closer = lumber
		handler.handlers = append(handler.handlers, tint.NewHandler(lumber, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Some dependencies still use the log package.
	log.SetFlags(0)
	log.SetOutput(&slogWriter{})

	return logger, closer
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(&multiHandler{})
}

// multiHandler fans records out to every handler that accepts the level.
// With no handlers it discards.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &multiHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.WithAttrs(attrs)
	}
	return out
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	out := &multiHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		out.handlers[i] = handler.WithGroup(name)
	}
	return out
}

// slogWriter forwards standard library log lines to slog, keeping an
// ERROR/WARN/INFO prefix as the level.
type slogWriter struct{}

func (w *slogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	switch {
	case len(msg) > 6 && msg[:6] == "ERROR ":
		slog.Error(msg[6:])
	case len(msg) > 5 && msg[:5] == "WARN ":
		slog.Warn(msg[5:])
	case len(msg) > 5 && msg[:5] == "INFO ":
		slog.Info(msg[5:])
	default:
		slog.Debug(msg)
	}
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
