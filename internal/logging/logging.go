// Package logging provides structured logging for the RTMS ingestion
// service. It wraps zerolog so every package logs through one configured
// sink, with request/stream identifiers threaded via context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the logging levels named in the service configuration
// (spec.md §6): off, error, warn, info, debug.
type Level string

const (
	LevelOff   Level = "off"
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Config controls how the process-wide logger is constructed.
type Config struct {
	Level       Level
	ServiceName string
	JSONFormat  bool
	Output      io.Writer
}

// DefaultConfig returns a Config with the spec's default level (off).
func DefaultConfig() Config {
	return Config{
		Level:      LevelOff,
		JSONFormat: true,
		Output:     os.Stdout,
	}
}

// Init builds a zerolog.Logger from cfg and installs it as the package
// default so helpers that don't carry an explicit logger still work.
func Init(cfg Config) zerolog.Logger {
	logger := New(cfg)
	zerolog.DefaultContextLogger = &logger
	return logger
}

// New builds a zerolog.Logger from cfg without touching global state.
func New(cfg Config) zerolog.Logger {
	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}
	if !cfg.JSONFormat {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(writer).With().Timestamp().Logger()
	if cfg.ServiceName != "" {
		logger = logger.With().Str("service", cfg.ServiceName).Logger()
	}
	return logger.Level(parseLevel(cfg.Level))
}

func parseLevel(level Level) zerolog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(string(level)))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelOff, "":
		return zerolog.Disabled
	default:
		return zerolog.Disabled
	}
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	streamIDKey  contextKey = "stream_id"
)

// ContextWithRequestID attaches a request id to ctx when non-empty.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves a request id previously attached to ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}

// ContextWithStreamID attaches a streamId to ctx when non-empty.
func ContextWithStreamID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, streamIDKey, id)
}

// StreamIDFromContext retrieves a streamId previously attached to ctx.
func StreamIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(streamIDKey).(string)
	return v, ok && v != ""
}

// WithContext returns a logger annotated with any request/stream ids found
// on ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	sub := logger.With()
	if id, ok := RequestIDFromContext(ctx); ok {
		sub = sub.Str("request_id", id)
	}
	if id, ok := StreamIDFromContext(ctx); ok {
		sub = sub.Str("stream_id", id)
	}
	return sub.Logger()
}

// Component returns a logger tagged with the owning component name, the way
// every subsystem (session, registry, transcript buffer, filler) identifies
// itself in log output.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
