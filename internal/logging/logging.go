// Package logging is the scanner's structured logger. Packages depend on the
// Logger interface; the only backend is log/slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field is one structured attribute.
type Field = slog.Attr

// Field constructors.
func String(key, value string) Field                 { return slog.String(key, value) }
func Int(key string, value int) Field                { return slog.Int(key, value) }
func Float64(key string, value float64) Field        { return slog.Float64(key, value) }
func Duration(key string, value time.Duration) Field { return slog.Duration(key, value) }
func Time(key string, value time.Time) Field         { return slog.Time(key, value) }

// Err records err under the "error" key.
func Err(err error) Field {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}

// Logger is what the scanner's packages log through.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Options selects the level and encoding of a logger.
type Options struct {
	Level slog.Level
	JSON  bool
}

// ParseLevel accepts debug, info, warn or error in any case. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// ParseFormat reports whether s selects JSON output. Empty means text.
func ParseFormat(s string) (json bool, err error) {
	switch strings.ToLower(s) {
	case "", "text":
		return false, nil
	case "json":
		return true, nil
	}
	return false, fmt.Errorf("log format %q: want text or json", s)
}

// New returns a Logger writing to w.
func New(w io.Writer, opts Options) Logger {
	ho := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return &slogger{l: slog.New(slog.NewJSONHandler(w, ho))}
	}
	return &slogger{l: slog.New(slog.NewTextHandler(w, ho))}
}

// Noop returns a logger that drops everything.
func Noop() Logger { return &slogger{l: slog.New(slog.DiscardHandler)} }

type slogger struct {
	l *slog.Logger
}

func (s *slogger) With(fields ...Field) Logger {
	return &slogger{l: slog.New(s.l.Handler().WithAttrs(fields))}
}

func (s *slogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelDebug, msg, fields...)
}

func (s *slogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelInfo, msg, fields...)
}

func (s *slogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelWarn, msg, fields...)
}

func (s *slogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelError, msg, fields...)
}

type passIDKey struct{}

// WithPassLogger starts a new scan pass: it stores a fresh pass id on ctx and
// returns base annotated with it.
func WithPassLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	if base == nil {
		base = Noop()
	}
	id := uuid.NewString()
	return context.WithValue(ctx, passIDKey{}, id), base.With(String("pass_id", id))
}

// PassIDFromContext returns the pass id stored by WithPassLogger, or "".
func PassIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(passIDKey{}).(string)
	return id
}
