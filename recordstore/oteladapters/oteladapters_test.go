package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	lognoop "go.opentelemetry.io/otel/log/noop"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/recordkit/fluent-recordstore-go/recordstore/oteladapters"
)

func Test_NewSlogBridgeLogger_Construction(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("test")

	assert.NotNil(t, logger)
}

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := oteladapters.NewSlogBridgeLoggerWithHandler("test", handler)
	ctx := context.Background()

	logger.DebugContext(ctx, "debug message")
	logger.InfoContext(ctx, "info message")
	logger.WarnContext(ctx, "warn message")
	logger.ErrorContext(ctx, "error message")

	output := buf.String()
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func Test_SlogBridgeLogger_WithAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)

	logger := oteladapters.NewSlogBridgeLoggerWithHandler("test", handler)

	logger.InfoContext(context.Background(), "test message",
		"table", "users",
		"record_count", 42,
	)

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, `"table":"users"`)
	assert.Contains(t, output, `"record_count":42`)
}

func Test_OTelLogger_EmitsWithoutPanic(t *testing.T) {
	provider := lognoop.NewLoggerProvider()
	logger := oteladapters.NewOTelLogger(provider.Logger("test"))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "debug message", "key", "value")
		logger.InfoContext(ctx, "info message", "count", 7)
		logger.WarnContext(ctx, "warn message")
		logger.ErrorContext(ctx, "error message", "odd", "args", "dangling")
	})
}

func Test_MetricsCollector_RecordsWithoutPanic(t *testing.T) {
	meter := metricnoop.NewMeterProvider().Meter("test")
	collector := oteladapters.NewMetricsCollector(meter)
	ctx := context.Background()
	labels := map[string]string{"operation": "find", "status": "success"}

	assert.NotPanics(t, func() {
		collector.RecordDuration("recordstore_operation_duration_seconds", 150*time.Millisecond, labels)
		collector.RecordDurationContext(ctx, "recordstore_operation_duration_seconds", 150*time.Millisecond, labels)
		collector.IncrementCounter("recordstore_database_errors_total", labels)
		collector.IncrementCounterContext(ctx, "recordstore_database_errors_total", labels)
		collector.RecordValue("recordstore_records_processed", 12, labels)
		collector.RecordValueContext(ctx, "recordstore_records_processed", 12, labels)
	})
}

func Test_MetricsCollector_ReusesInstrumentsPerName(t *testing.T) {
	meter := metricnoop.NewMeterProvider().Meter("test")
	collector := oteladapters.NewMetricsCollector(meter)

	// Repeated use of the same metric name must not panic or leak; the
	// instrument is created once and reused.
	for range 10 {
		collector.IncrementCounter("recordstore_database_errors_total", nil)
	}
}

func Test_TracingCollector_StartAndFinishSpan(t *testing.T) {
	tracer := tracenoop.NewTracerProvider().Tracer("test")
	collector := oteladapters.NewTracingCollector(tracer)

	ctx, span := collector.StartSpan(context.Background(), "recordstore.find", map[string]string{
		"table": "users",
	})

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)

	span.AddAttribute("count", "3")
	span.SetStatus("success")

	assert.NotPanics(t, func() {
		collector.FinishSpan(span, "success", map[string]string{"count": "3"})
	})
}

func Test_TracingCollector_FinishSpanHandlesEveryStatus(t *testing.T) {
	tracer := tracenoop.NewTracerProvider().Tracer("test")
	collector := oteladapters.NewTracingCollector(tracer)

	for _, status := range []string{"ok", "success", "completed", "error", "failed", "cancelled", "timeout", "unknown"} {
		_, span := collector.StartSpan(context.Background(), "recordstore.update", nil)

		assert.NotPanics(t, func() {
			collector.FinishSpan(span, status, nil)
		})
	}
}
