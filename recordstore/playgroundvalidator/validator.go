// Package playgroundvalidator implements the recordstore.Validator
// collaborator contract on top of go-playground/validator, evaluating
// per-field rule expressions such as "required,email" or "min=3" against
// raw candidate records.
package playgroundvalidator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

// MapValidator validates raw records field by field using
// go-playground/validator rule expressions. It is stateful in the way the
// validation gate drives it: SetRules and Populate configure one run,
// IsValid executes it, Errors and Values expose the outcome.
//
// Values are passed through unmodified; this implementation performs no
// coercion or trimming.
type MapValidator struct {
	validate *validator.Validate
	rules    recordstore.RuleSet
	record   recordstore.Record
	errs     recordstore.FieldErrors
}

// New creates a MapValidator with a fresh validator instance.
func New() *MapValidator {
	return &MapValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SetRules declares the field→rule-expression mapping for the next run.
func (m *MapValidator) SetRules(rules recordstore.RuleSet) {
	m.rules = rules
}

// Populate sets the candidate record for the next run.
func (m *MapValidator) Populate(rec recordstore.Record) {
	m.record = rec
}

// IsValid evaluates every declared rule against the populated record.
// A field that is absent from the record is validated as a nil value, so a
// "required" rule fails for it.
func (m *MapValidator) IsValid() bool {
	m.errs = nil

	if len(m.rules) == 0 {
		return true
	}

	rules := make(map[string]any, len(m.rules))
	for field, expression := range m.rules {
		rules[field] = expression
	}

	record := m.record
	if record == nil {
		record = recordstore.Record{}
	}

	results := m.validate.ValidateMap(record, rules)
	if len(results) == 0 {
		return true
	}

	fieldErrs := make(recordstore.FieldErrors, len(results))

	for field, result := range results {
		switch typed := result.(type) {
		case validator.ValidationErrors:
			for _, failure := range typed {
				fieldErrs[field] = append(fieldErrs[field], describeFailure(field, failure))
			}
		case error:
			fieldErrs[field] = append(fieldErrs[field], typed.Error())
		default:
			fieldErrs[field] = append(fieldErrs[field], fmt.Sprintf("%v", typed))
		}
	}

	m.errs = fieldErrs

	return false
}

// Errors returns the field-keyed error messages of the last run, or nil when
// it passed.
func (m *MapValidator) Errors() recordstore.FieldErrors {
	return m.errs
}

// Values returns the validated record. The populated values are authoritative
// and returned as-is.
func (m *MapValidator) Values() recordstore.Record {
	return m.record
}

func describeFailure(field string, failure validator.FieldError) string {
	if failure.Param() != "" {
		return fmt.Sprintf("%s must satisfy rule %q with parameter %q", field, failure.Tag(), failure.Param())
	}

	return fmt.Sprintf("%s must satisfy rule %q", field, failure.Tag())
}

// Ensure MapValidator implements recordstore.Validator.
var _ recordstore.Validator = (*MapValidator)(nil)
