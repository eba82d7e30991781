package postgresengine

import (
	"context"
	"errors"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

// validate sanitizes a candidate record through the configured validator
// collaborator before it reaches the hook chains and storage.
//
// When validation is skipped (per-call override or instance default) or no
// rules are declared, the record passes through unchanged. Insert-only rules
// are merged into the rule set for insert operations. On failure the
// field-keyed error map is retained for LastValidationErrors and the returned
// error matches recordstore.ErrValidationFailed; no storage interaction takes
// place. On success the validator's filtered output values are authoritative.
func (e *Engine) validate(
	ctx context.Context,
	rec recordstore.Record,
	operation string,
	cfg writeConfig,
) (recordstore.Record, error) {

	skip := e.skipValidationDefault
	switch cfg.validation {
	case validationSkip:
		skip = true
	case validationForce:
		skip = false
	}
	if skip {
		return rec, nil
	}

	rules := e.rules
	if operation == operationInsert && len(e.insertRules) > 0 {
		rules = e.rules.Merge(e.insertRules)
	}

	if len(rules) == 0 {
		return rec, nil
	}

	if e.validator == nil {
		e.logWarnContext(ctx, logMsgRulesWithoutGate, logAttrTable, e.Table())
		return rec, nil
	}

	e.validator.SetRules(rules)
	e.validator.Populate(rec)

	if !e.validator.IsValid() {
		fieldErrs := e.validator.Errors()
		e.storeValidationErrors(fieldErrs)
		e.logOperationContext(ctx, logMsgValidationFailed,
			logAttrTable, e.Table(),
			logAttrFields, fieldErrs.Fields())

		return nil, errors.Join(recordstore.ErrValidationFailed, &recordstore.ValidationError{FieldErrors: fieldErrs})
	}

	e.storeValidationErrors(nil)

	return e.validator.Values(), nil
}

// LastValidationErrors returns the field-keyed error map of the most recent
// failed validation run, or nil when the last validated write passed.
func (e *Engine) LastValidationErrors() recordstore.FieldErrors {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastValidationErrs
}

func (e *Engine) storeValidationErrors(fieldErrs recordstore.FieldErrors) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastValidationErrs = fieldErrs
}
