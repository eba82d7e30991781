package recordstore

import (
	"fmt"
	"sort"
	"strings"
)

type FilterKeyString = string
type OrderDirectionString = string

const (
	OrderAscending  OrderDirectionString = "ASC"
	OrderDescending OrderDirectionString = "DESC"
)

const defaultFilterOperator = "="

/***** QuerySpec *****/

// QuerySpec is an immutable, per-call description of single-table query state:
// field filters, raw condition fragments, one order clause, and one limit clause.
//
// A QuerySpec is built with BuildQuerySpec and passed into a terminal engine
// operation; it is never stored on the engine, so no query state can leak
// across unrelated calls and specs can be shared between goroutines.
type QuerySpec struct {
	filters        map[FilterKeyString]any
	rawConditions  map[string]struct{}
	orderField     string
	orderDirection OrderDirectionString
	limitCount     int
	limitOffset    int
	hasLimit       bool
}

// EmptyQuerySpec returns a QuerySpec with no filters, order, or limit.
func EmptyQuerySpec() QuerySpec {
	return QuerySpec{}
}

// Filters returns a copy of the parameterized filter entries.
func (qs QuerySpec) Filters() map[FilterKeyString]any {
	filters := make(map[FilterKeyString]any, len(qs.filters))
	for key, val := range qs.filters {
		filters[key] = val
	}

	return filters
}

// RawConditions returns the raw condition fragments in sorted order.
func (qs QuerySpec) RawConditions() []string {
	raws := make([]string, 0, len(qs.rawConditions))
	for fragment := range qs.rawConditions {
		raws = append(raws, fragment)
	}
	sort.Strings(raws)

	return raws
}

// HasFilters reports whether any filter or raw condition is set.
func (qs QuerySpec) HasFilters() bool {
	return len(qs.filters) > 0 || len(qs.rawConditions) > 0
}

// HasOrder reports whether an order clause is set.
func (qs QuerySpec) HasOrder() bool {
	return qs.orderField != ""
}

// OrderField returns the order-by field, or "" if unset.
func (qs QuerySpec) OrderField() string {
	return qs.orderField
}

// OrderDirection returns the normalized order direction (ASC or DESC), or "" if unset.
func (qs QuerySpec) OrderDirection() OrderDirectionString {
	return qs.orderDirection
}

// HasLimit reports whether a limit clause is set.
func (qs QuerySpec) HasLimit() bool {
	return qs.hasLimit
}

// LimitCount returns the row count of the limit clause.
func (qs QuerySpec) LimitCount() int {
	return qs.limitCount
}

// LimitOffset returns the row offset of the limit clause.
func (qs QuerySpec) LimitOffset() int {
	return qs.limitOffset
}

// WithLimit returns a copy of the spec with the given limit clause. Negative
// values leave the spec unchanged. The receiver is not modified.
func (qs QuerySpec) WithLimit(count int, offset int) QuerySpec {
	if count < 0 || offset < 0 {
		return qs
	}

	qs.limitCount = count
	qs.limitOffset = offset
	qs.hasLimit = true

	return qs
}

// CompileFilters compiles the filter state into a parameterized clause and its
// named binding map.
//
// Entries are compiled in ascending key order rather than registration order,
// so identical filter sets always produce identical clause text and bindings
// regardless of call order. Raw condition fragments are concatenated verbatim
// in their sorted position without a bound parameter. Binding names are derived
// from the column name and suffixed with a counter on collision, which together
// with the sorted iteration makes the binding scheme deterministic.
//
// An empty filter set compiles to an empty clause (no WHERE keyword is emitted).
func (qs QuerySpec) CompileFilters() (string, map[string]any) {
	keySet := make(map[string]struct{}, len(qs.filters)+len(qs.rawConditions))
	for key := range qs.filters {
		keySet[key] = struct{}{}
	}
	for fragment := range qs.rawConditions {
		keySet[fragment] = struct{}{}
	}

	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys))
	bindings := make(map[string]any, len(qs.filters))

	for _, key := range keys {
		if _, isRaw := qs.rawConditions[key]; isRaw {
			if _, alsoFilter := qs.filters[key]; !alsoFilter {
				conditions = append(conditions, key)
				continue
			}
		}

		column, operator := splitFilterKey(key)
		bindName := uniqueBindName(bindings, column)
		bindings[bindName] = qs.filters[key]

		if isListOperator(operator) {
			conditions = append(conditions, fmt.Sprintf("%s %s (:%s)", column, operator, bindName))
		} else {
			conditions = append(conditions, fmt.Sprintf("%s %s :%s", column, operator, bindName))
		}
	}

	return strings.Join(conditions, " AND "), bindings
}

// CompileOrder compiles the order state into an "ORDER BY <field> <direction>"
// clause, or empty text if no order is set.
func (qs QuerySpec) CompileOrder() string {
	if !qs.HasOrder() {
		return ""
	}

	return fmt.Sprintf("ORDER BY %s %s", qs.orderField, qs.orderDirection)
}

// CompileLimit compiles the limit state into a "LIMIT <offset>, <count>"
// clause, or empty text if no limit is set.
func (qs QuerySpec) CompileLimit() string {
	if !qs.HasLimit() {
		return ""
	}

	return fmt.Sprintf("LIMIT %d, %d", qs.limitOffset, qs.limitCount)
}

// splitFilterKey splits a normalized filter key into column and operator;
// the operator defaults to "=" when the key carries none.
func splitFilterKey(key string) (string, string) {
	parts := strings.Fields(key)
	if len(parts) == 1 {
		return parts[0], defaultFilterOperator
	}

	return parts[0], strings.Join(parts[1:], " ")
}

// isListOperator reports whether the operator expects a parenthesized value list.
func isListOperator(operator string) bool {
	upper := strings.ToUpper(operator)

	return upper == "IN" || upper == "NOT IN"
}

// uniqueBindName derives a binding name from a column name, replacing
// characters that are not valid in a named parameter and suffixing a counter
// when the name is already taken.
func uniqueBindName(bindings map[string]any, column string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, column)

	if _, taken := bindings[name]; !taken {
		return name
	}

	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, taken := bindings[candidate]; !taken {
			return candidate
		}
	}
}

/***** QuerySpecBuilder *****/

// QuerySpecBuilder accumulates query state across fluent calls and compiles it
// into an immutable QuerySpec with Finalize.
//
// Argument errors (empty order field, invalid direction, negative limit) are
// accumulated and surfaced by Finalize; after the first error all further
// builder calls are no-ops.
type QuerySpecBuilder struct {
	spec QuerySpec
	err  error
}

// BuildQuerySpec creates a QuerySpecBuilder which must eventually be finalized
// with Finalize().
func BuildQuerySpec() QuerySpecBuilder {
	return QuerySpecBuilder{
		spec: QuerySpec{
			filters:       make(map[FilterKeyString]any),
			rawConditions: make(map[string]struct{}),
		},
	}
}

// Where merges a single filter entry.
//
// A key containing a space is parsed as "<column> <operator>"; the operator
// defaults to "=" when absent. Surplus whitespace in the key is normalized.
func (b QuerySpecBuilder) Where(key FilterKeyString, value any) QuerySpecBuilder {
	if b.err != nil {
		return b
	}

	normalized := strings.Join(strings.Fields(key), " ")
	if normalized == "" {
		b.err = ErrEmptyFilterKey
		return b
	}

	b.spec.filters[normalized] = value

	return b
}

// WhereAll merges every entry of the given mapping, as if each had been passed
// to Where individually.
func (b QuerySpecBuilder) WhereAll(filters map[FilterKeyString]any) QuerySpecBuilder {
	for key, value := range filters {
		b = b.Where(key, value)
	}

	return b
}

// WhereRaw adds a raw condition fragment that is inserted verbatim
// (whitespace-normalized) into the compiled clause, without a bound parameter,
// e.g. "deleted_on IS NULL".
func (b QuerySpecBuilder) WhereRaw(condition string) QuerySpecBuilder {
	if b.err != nil {
		return b
	}

	normalized := strings.Join(strings.Fields(condition), " ")
	if normalized == "" {
		b.err = ErrEmptyFilterKey
		return b
	}

	b.spec.rawConditions[normalized] = struct{}{}

	return b
}

// OrderBy sets the order clause. The direction must be ASC or DESC,
// case-insensitive, and is normalized to upper case.
func (b QuerySpecBuilder) OrderBy(field string, direction OrderDirectionString) QuerySpecBuilder {
	if b.err != nil {
		return b
	}

	if strings.TrimSpace(field) == "" {
		b.err = ErrEmptyOrderField
		return b
	}

	normalized := strings.ToUpper(strings.TrimSpace(direction))
	if normalized != OrderAscending && normalized != OrderDescending {
		b.err = ErrInvalidOrderDirection
		return b
	}

	b.spec.orderField = strings.TrimSpace(field)
	b.spec.orderDirection = normalized

	return b
}

// Limit sets the limit clause. Both count and offset must be non-negative.
func (b QuerySpecBuilder) Limit(count int, offset int) QuerySpecBuilder {
	if b.err != nil {
		return b
	}

	if count < 0 || offset < 0 {
		b.err = ErrNegativeLimitOrOffset
		return b
	}

	b.spec.limitCount = count
	b.spec.limitOffset = offset
	b.spec.hasLimit = true

	return b
}

// Finalize returns the accumulated QuerySpec, or the first argument error
// encountered while building. The returned spec owns copies of the builder's
// state and is safe to retain and share.
func (b QuerySpecBuilder) Finalize() (QuerySpec, error) {
	if b.err != nil {
		return EmptyQuerySpec(), b.err
	}

	spec := b.spec

	spec.filters = make(map[FilterKeyString]any, len(b.spec.filters))
	for key, val := range b.spec.filters {
		spec.filters[key] = val
	}

	spec.rawConditions = make(map[string]struct{}, len(b.spec.rawConditions))
	for fragment := range b.spec.rawConditions {
		spec.rawConditions[fragment] = struct{}{}
	}

	return spec, nil
}
