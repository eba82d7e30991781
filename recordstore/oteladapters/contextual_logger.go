// Package oteladapters provides OpenTelemetry adapters for the recordstore observability interfaces.
// These adapters enable plug-and-play observability for users who do not want to
// implement the interfaces themselves.
package oteladapters

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

// SlogBridgeLogger implements recordstore.ContextualLogger using the OpenTelemetry slog bridge.
// This is the recommended implementation as it provides automatic trace correlation
// and works seamlessly with Go's standard log/slog package.
type SlogBridgeLogger struct {
	logger *slog.Logger
}

// NewSlogBridgeLogger creates a new contextual logger using the OpenTelemetry slog bridge.
// The logger uses the global OpenTelemetry LoggerProvider and correlates log records
// with the active trace automatically.
func NewSlogBridgeLogger(name string) *SlogBridgeLogger {
	logger := otelslog.NewLogger(name)
	return &SlogBridgeLogger{logger: logger}
}

// NewSlogBridgeLoggerWithHandler creates a new contextual logger using the provided slog.Handler.
// Note: This does NOT add OpenTelemetry trace correlation - it uses the handler as-is.
// For trace correlation, use NewSlogBridgeLogger() instead.
func NewSlogBridgeLoggerWithHandler(name string, handler slog.Handler) *SlogBridgeLogger {
	logger := slog.New(handler)
	return &SlogBridgeLogger{logger: logger}
}

// DebugContext logs a debug message with context.
func (l *SlogBridgeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

// InfoContext logs an info message with context.
func (l *SlogBridgeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context.
func (l *SlogBridgeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context.
func (l *SlogBridgeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// Ensure SlogBridgeLogger implements recordstore.ContextualLogger.
var _ recordstore.ContextualLogger = (*SlogBridgeLogger)(nil)

// OTelLogger implements recordstore.ContextualLogger using the OpenTelemetry logging API directly.
// This provides more control over log record creation but requires more setup.
type OTelLogger struct {
	logger log.Logger
}

// NewOTelLogger creates a new contextual logger using the OpenTelemetry logging API directly.
func NewOTelLogger(logger log.Logger) *OTelLogger {
	return &OTelLogger{logger: logger}
}

// DebugContext logs a debug message with context using the OpenTelemetry log API.
func (l *OTelLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityDebug, msg, args...)
}

// InfoContext logs an info message with context using the OpenTelemetry log API.
func (l *OTelLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityInfo, msg, args...)
}

// WarnContext logs a warning message with context using the OpenTelemetry log API.
func (l *OTelLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityWarn, msg, args...)
}

// ErrorContext logs an error message with context using the OpenTelemetry log API.
func (l *OTelLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityError, msg, args...)
}

// emit creates and emits an OpenTelemetry log record with the specified severity.
// Args come in key-value pairs like slog.
func (l *OTelLogger) emit(ctx context.Context, severity log.Severity, msg string, args ...any) {
	record := log.Record{}
	record.SetSeverity(severity)
	record.SetBody(log.StringValue(msg))

	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if key, ok := args[i].(string); ok {
				value := args[i+1]
				record.AddAttributes(log.String(key, stringValue(value)))
			}
		}
	}

	l.logger.Emit(ctx, record)
}

// stringValue converts any value to string for OpenTelemetry attributes.
func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return slog.AnyValue(v).String()
}

// Ensure OTelLogger implements recordstore.ContextualLogger.
var _ recordstore.ContextualLogger = (*OTelLogger)(nil)
