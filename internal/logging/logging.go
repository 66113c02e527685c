// Package logging provides structured logging for airq.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("ingestion")
//	log.Info("stream complete", "rows", 9357)
//
//	// Log with context
//	log.Warn("batch rejected", "error", err, "batch", n)
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("query")
//	log.Info("started") // Output: time=... level=INFO component=query msg=started
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// WithContext returns a logger that includes context values.
// Ingestion attaches the stream id and source name so every line of one
// import can be correlated.
func WithContext(ctx context.Context) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}

	return FromContext(ctx, Logger)
}

// FromContext decorates base with the values stored in ctx.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	logger := base

	if ingestID, ok := ctx.Value(contextKeyIngestID).(uint64); ok {
		logger = logger.With("ingest_id", ingestID)
	}
	if source, ok := ctx.Value(contextKeySource).(string); ok {
		logger = logger.With("source", source)
	}
	if kind, ok := ctx.Value(contextKeyQueryKind).(string); ok {
		logger = logger.With("query", kind)
	}

	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyIngestID contextKey = iota
	contextKeySource
	contextKeyQueryKind
)

// ContextWithIngestID adds an ingestion stream ID to the context for logging.
func ContextWithIngestID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, contextKeyIngestID, id)
}

// ContextWithSource adds the source name (file path or object URI) to the context.
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, contextKeySource, source)
}

// ContextWithQueryKind adds the query kind to the context for logging.
func ContextWithQueryKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, contextKeyQueryKind, kind)
}

// ParseLevel converts a config level name to a slog.Level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Error(msg, args...)
}
