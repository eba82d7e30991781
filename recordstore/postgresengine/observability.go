package postgresengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

const (
	metricOperationDuration  = "recordstore_operation_duration_seconds"
	metricRecordsProcessed   = "recordstore_records_processed"
	metricDatabaseErrors     = "recordstore_database_errors_total"
	metricValidationFailures = "recordstore_validation_failures_total"

	spanNamePrefix    = "recordstore."
	spanAttrOperation = "operation"
	spanAttrTable     = "table"
	spanAttrErrorType = "error_type"
	spanAttrCount     = "count"
	spanAttrDuration  = "duration_ms"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeBuildStatement = "build_statement"
	errorTypeDatabase       = "database"
	errorTypeScan           = "scan"
	errorTypeHook           = "hook"
	errorTypeValidation     = "validation"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (e *Engine) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if e.logger != nil {
		e.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, e.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logQueryWithDurationContext logs SQL statements with execution time and context correlation,
// falling back to the plain logger when no contextual logger is configured.
func (e *Engine) logQueryWithDurationContext(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, e.toMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	e.logQueryWithDuration(sqlQuery, action, duration)
}

// logOperationContext logs operational information at info level with context correlation when available.
func (e *Engine) logOperationContext(ctx context.Context, action string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if e.logger != nil {
		e.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarnContext logs non-critical issues at warn level with context correlation when available.
func (e *Engine) logWarnContext(ctx context.Context, message string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, message, args...)
		return
	}

	if e.logger != nil {
		e.logger.Warn(message, args...)
	}
}

// logErrorContext logs error information at error level with context correlation when available.
func (e *Engine) logErrorContext(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}

	if e.logger != nil {
		e.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (e *Engine) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordDurationMetricsContext records duration metrics with context if the collector supports it.
func (e *Engine) recordDurationMetricsContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation, status string,
) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		spanAttrTable:     e.Table(),
		"status":          status,
	}

	if contextualCollector, ok := e.metricsCollector.(recordstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		e.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// recordValueMetricsContext records value metrics with context if the collector supports it.
func (e *Engine) recordValueMetricsContext(
	ctx context.Context,
	metricName string,
	value float64,
	operation, status string,
) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		spanAttrTable:     e.Table(),
		"status":          status,
	}

	if contextualCollector, ok := e.metricsCollector.(recordstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
	} else {
		e.metricsCollector.RecordValue(metricName, value, labels)
	}
}

// recordErrorMetricsContext records error metrics with context if the collector supports it.
func (e *Engine) recordErrorMetricsContext(ctx context.Context, operation, errorType string) {
	if e.metricsCollector == nil {
		return
	}

	metricName := metricDatabaseErrors
	if errorType == errorTypeValidation {
		metricName = metricValidationFailures
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		spanAttrTable:     e.Table(),
		"status":          statusError,
		spanAttrErrorType: errorType,
	}

	if contextualCollector, ok := e.metricsCollector.(recordstore.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
	} else {
		e.metricsCollector.IncrementCounter(metricName, labels)
	}
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (e *Engine) startTraceSpan(
	ctx context.Context,
	operation string,
	attrs map[string]string,
) (context.Context, SpanContext) {
	if e.tracingCollector != nil {
		return e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (e *Engine) finishTraceSpan(spanCtx SpanContext, status string, attrs map[string]string) {
	if e.tracingCollector != nil && spanCtx != nil {
		e.tracingCollector.FinishSpan(spanCtx, status, attrs)
	}
}

// === Tracing Observer Pattern ===
// The observer encapsulates tracing span lifecycle management for one CRUD operation.

type operationTracingObserver struct {
	e    *Engine
	span SpanContext
}

// startOperationTracing creates a new tracing observer for a CRUD operation.
func (e *Engine) startOperationTracing(ctx context.Context, operation string) (*operationTracingObserver, context.Context) {
	newCtx, span := e.startTraceSpan(ctx, operation, map[string]string{
		spanAttrOperation: operation,
		spanAttrTable:     e.Table(),
	})

	return &operationTracingObserver{e: e, span: span}, newCtx
}

// finishSuccess completes the operation's tracing span with the processed count.
func (oto *operationTracingObserver) finishSuccess(count int64, duration time.Duration) {
	if oto.span == nil {
		return
	}

	oto.span.SetStatus(statusSuccess)
	oto.span.AddAttribute(spanAttrCount, fmt.Sprintf("%d", count))
	oto.span.AddAttribute(spanAttrDuration, fmt.Sprintf("%.2f", oto.e.toMilliseconds(duration)))

	oto.e.finishTraceSpan(oto.span, statusSuccess, map[string]string{
		spanAttrCount: fmt.Sprintf("%d", count),
	})
}

// finishError completes the operation's tracing span with error details.
func (oto *operationTracingObserver) finishError(errorType string, duration time.Duration) {
	if oto.span == nil {
		return
	}

	oto.span.SetStatus(statusError)
	oto.span.AddAttribute(spanAttrErrorType, errorType)
	if duration > 0 {
		oto.span.AddAttribute(spanAttrDuration, fmt.Sprintf("%.2f", oto.e.toMilliseconds(duration)))
	}

	oto.e.finishTraceSpan(oto.span, statusError, map[string]string{spanAttrErrorType: errorType})
}

// === Metrics Observer Pattern ===
// The observer encapsulates the metrics collection for one CRUD operation.

type operationMetricsObserver struct {
	e         *Engine
	ctx       context.Context
	operation string
}

// startOperationMetrics creates a new metrics observer for a CRUD operation.
func (e *Engine) startOperationMetrics(ctx context.Context, operation string) *operationMetricsObserver {
	return &operationMetricsObserver{e: e, ctx: ctx, operation: operation}
}

// recordSuccess records all metrics for a successful operation.
func (omo *operationMetricsObserver) recordSuccess(count float64, duration time.Duration) {
	omo.e.recordDurationMetricsContext(omo.ctx, metricOperationDuration, duration, omo.operation, statusSuccess)
	omo.e.recordValueMetricsContext(omo.ctx, metricRecordsProcessed, count, omo.operation, statusSuccess)
}

// recordError records all metrics for a failed operation.
func (omo *operationMetricsObserver) recordError(errorType string, duration time.Duration) {
	omo.e.recordDurationMetricsContext(omo.ctx, metricOperationDuration, duration, omo.operation, statusError)
	omo.e.recordErrorMetricsContext(omo.ctx, omo.operation, errorType)
}
