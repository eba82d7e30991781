package postgresengine

import (
	"time"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

// Option defines a functional option for configuring an Engine.
type Option func(*Engine) error

// WithTablePrefix sets the static table-name prefix; Table() and every
// generated statement use the prefixed name.
func WithTablePrefix(prefix string) Option {
	return func(e *Engine) error {
		e.tablePrefix = prefix
		return nil
	}
}

// WithPrimaryKey sets the primary-key column name. The default is "id".
func WithPrimaryKey(name string) Option {
	return func(e *Engine) error {
		if name == "" {
			return recordstore.ErrEmptyPrimaryKeyName
		}

		e.primaryKey = name

		return nil
	}
}

// WithTimestampFormat selects the shape of auto-stamped creation/modification
// timestamps. The default is the integer epoch format.
func WithTimestampFormat(format recordstore.TimestampFormat) Option {
	return func(e *Engine) error {
		e.timestampFormat = format
		return nil
	}
}

// WithTimestampFields renames the auto-stamped creation and modification
// fields. The defaults are "created_on" and "updated_on".
func WithTimestampFields(createdField string, modifiedField string) Option {
	return func(e *Engine) error {
		if createdField != "" {
			e.createdField = createdField
		}
		if modifiedField != "" {
			e.modifiedField = modifiedField
		}

		return nil
	}
}

// WithClock sets the time source used for timestamp stamping; useful for
// deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}

		return nil
	}
}

// WithRules declares the per-field validation rules evaluated by the
// configured validator collaborator on every non-skipped write.
func WithRules(rules recordstore.RuleSet) Option {
	return func(e *Engine) error {
		e.rules = rules
		return nil
	}
}

// WithInsertRules declares additional per-field rules merged into the rule
// set for insert operations only.
func WithInsertRules(rules recordstore.RuleSet) Option {
	return func(e *Engine) error {
		e.insertRules = rules
		return nil
	}
}

// WithValidator sets the validator collaborator driven by the validation gate.
func WithValidator(validator recordstore.Validator) Option {
	return func(e *Engine) error {
		e.validator = validator
		return nil
	}
}

// WithSkipValidationByDefault makes writes skip the validation gate unless a
// call opts back in via ForceValidation.
func WithSkipValidationByDefault() Option {
	return func(e *Engine) error {
		e.skipValidationDefault = true
		return nil
	}
}

// WithProtectedFields registers field names that must never be written from
// caller-supplied data. The set can be extended later via Protect.
func WithProtectedFields(fields ...string) Option {
	return func(e *Engine) error {
		for _, field := range fields {
			if field == "" {
				continue
			}
			e.protected[field] = struct{}{}
		}

		return nil
	}
}

// WithHook registers a named lifecycle hook with optional literal arguments
// on the given stage's chain. Built-in hooks keep their front position.
func WithHook(stage recordstore.Stage, name string, fn recordstore.Hook, params ...string) Option {
	return func(e *Engine) error {
		e.hooks.Register(stage, name, fn, params...)
		return nil
	}
}

// WithLogger sets the logger for the Engine.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Record counts, durations, validation failures (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine.
// The contextual logger will receive log messages with context information including
// automatic trace/span correlation when tracing is enabled, enabling unified observability.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
// The metrics collector will receive performance and operational metrics including
// operation durations, record counts, validation failures, and database errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
// The tracing collector will receive distributed tracing information including
// span creation for CRUD operations, context propagation, and error tracking.
func WithTracing(collector TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}

/***** Per-call write options *****/

// validationOverride is the per-call validation choice; an explicit choice
// wins over the engine's configured default.
type validationOverride int

const (
	validationPerEngine validationOverride = iota
	validationSkip
	validationForce
)

type writeConfig struct {
	validation validationOverride
}

// WriteOption defines a per-call option for write operations.
type WriteOption func(*writeConfig)

// SkipValidation makes one write bypass the validation gate; the record still
// passes through timestamp stamping and the field authorizer.
func SkipValidation() WriteOption {
	return func(cfg *writeConfig) {
		cfg.validation = validationSkip
	}
}

// ForceValidation makes one write run the validation gate even when the engine
// was configured with WithSkipValidationByDefault. The later of SkipValidation
// and ForceValidation wins when both are given.
func ForceValidation() WriteOption {
	return func(cfg *writeConfig) {
		cfg.validation = validationForce
	}
}

func applyWriteOptions(opts []WriteOption) writeConfig {
	var cfg writeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
