// Package recordstore provides the core abstractions and types for a fluent,
// table-oriented record-access engine.
//
// This package defines the vocabulary shared by all engine implementations:
// query specifications, lifecycle hook chains, validation types, and common
// error definitions.
//
// A query specification describes single-table reads and scoped writes by:
//   - Field filters (equality or explicit operators, raw condition fragments)
//   - An order clause (one field, ASC or DESC)
//   - A limit clause (count plus offset)
//
// Key types:
//   - QuerySpec: Immutable, compiled per-call query state
//   - HookChains: Ordered lifecycle observers for the eight CRUD stages
//   - Record: The raw field→value shape yielded by reads
//
// Common usage pattern:
//
//	spec, err := recordstore.BuildQuerySpec().
//		Where("status", 2).
//		Where("age >", 18).
//		OrderBy("created_on", "DESC").
//		Limit(10, 20).
//		Finalize()
//	if err != nil {
//		// handle error
//	}
//
//	rows, err := engine.FindAll(ctx, spec)
package recordstore
