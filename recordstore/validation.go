package recordstore

import (
	"fmt"
	"sort"
	"strings"
)

// RuleSet maps a field name to a rule expression understood by the configured
// Validator, e.g. "required,email".
type RuleSet map[string]string

// Merge returns a copy of the rule set with the other set merged in; entries
// of the other set win on conflicting field names.
func (rs RuleSet) Merge(other RuleSet) RuleSet {
	merged := make(RuleSet, len(rs)+len(other))

	for field, expression := range rs {
		merged[field] = expression
	}
	for field, expression := range other {
		merged[field] = expression
	}

	return merged
}

// FieldErrors maps a field name to one or more human-readable messages
// describing why the field failed validation.
type FieldErrors map[string][]string

// Fields returns the failed field names in sorted order.
func (fe FieldErrors) Fields() []string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	return fields
}

// Validator is the collaborator contract for the rule-based field validator
// driven by the validation gate. Implementations are stateful: SetRules and
// Populate configure one validation run, IsValid executes it, and Errors and
// Values expose its outcome.
type Validator interface {
	SetRules(rules RuleSet)
	Populate(rec Record)
	IsValid() bool
	Errors() FieldErrors
	Values() Record
}

// ValidationError carries the field-keyed error map of a failed validation
// run. It matches ErrValidationFailed via errors.Is when joined by the engine.
type ValidationError struct {
	FieldErrors FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(
		"record validation failed for field(s): %s",
		strings.Join(e.FieldErrors.Fields(), ", "),
	)
}
