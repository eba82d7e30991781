package recordstore

import (
	"context"
	"time"
)

/***** Stages *****/

// Stage names one of the eight lifecycle hook chains.
type Stage string

const (
	BeforeFind   Stage = "beforeFind"
	AfterFind    Stage = "afterFind"
	BeforeInsert Stage = "beforeInsert"
	AfterInsert  Stage = "afterInsert"
	BeforeUpdate Stage = "beforeUpdate"
	AfterUpdate  Stage = "afterUpdate"
	BeforeDelete Stage = "beforeDelete"
	AfterDelete  Stage = "afterDelete"
)

// Names of the built-in hooks registered at the front of the relevant chains
// by engine implementations.
const (
	HookNameStampCreated    = "stampCreated"
	HookNameStampModified   = "stampModified"
	HookNameAuthorizeFields = "authorizeFields"
)

/***** HookContext *****/

// HookContext is the mutable context bag passed through a hook chain. Every
// hook receives the entire bag, not just the candidate record, and may mutate
// or replace the Record for the hooks (and the storage call) that follow.
//
// A hook that must reject the operation for an ordinary business condition
// calls Abort instead of returning an error; the chain stops and the engine
// does not proceed to storage.
type HookContext struct {
	Table     string
	Operation string

	// Record holds the candidate fields for write operations and the row
	// under inspection for afterFind; nil when the stage carries no record.
	Record Record

	// ID is the primary-key target for single-row operations; after an
	// insert it carries the generated identifier.
	ID int64

	// IDs holds the primary-key targets for bulk operations.
	IDs []int64

	// RowsAffected carries the storage result into after-write hooks.
	RowsAffected int64

	// Failed is set when the storage call reported a failure; afterUpdate
	// hooks run regardless so they can observe failed writes.
	Failed bool

	// Params holds the literal arguments the currently running hook was
	// registered with; it is only valid for the duration of that hook call.
	Params []string

	aborted bool
}

// Abort marks the operation as rejected; the remaining hooks in the chain are
// skipped and the engine does not proceed to the storage call.
func (hc *HookContext) Abort() {
	hc.aborted = true
}

// Aborted reports whether a hook rejected the operation.
func (hc *HookContext) Aborted() bool {
	return hc.aborted
}

/***** HookChains *****/

// Hook is a lifecycle observer bound to one stage of a CRUD operation.
type Hook func(ctx context.Context, hc *HookContext) error

type registeredHook struct {
	name   string
	params []string
	fn     Hook
}

// HookChains holds the eight named ordered hook chains of one engine instance.
//
// Hooks run in registration order; built-in hooks are inserted at the front at
// construction time and keep their position unless re-inserted with
// RegisterFront.
type HookChains struct {
	chains map[Stage][]registeredHook
}

// NewHookChains creates an empty set of hook chains.
func NewHookChains() *HookChains {
	return &HookChains{
		chains: make(map[Stage][]registeredHook),
	}
}

// Register appends a named hook with optional literal arguments to the given
// stage's chain. The arguments are exposed to the hook body via
// HookContext.Params during each invocation.
func (c *HookChains) Register(stage Stage, name string, fn Hook, params ...string) {
	c.chains[stage] = append(c.chains[stage], registeredHook{name: name, params: params, fn: fn})
}

// RegisterFront inserts a named hook at the front of the given stage's chain,
// ahead of previously registered hooks.
func (c *HookChains) RegisterFront(stage Stage, name string, fn Hook, params ...string) {
	c.chains[stage] = append(
		[]registeredHook{{name: name, params: params, fn: fn}},
		c.chains[stage]...,
	)
}

// Names returns the registered hook names for a stage in chain order.
func (c *HookChains) Names(stage Stage) []string {
	hooks := c.chains[stage]

	names := make([]string, 0, len(hooks))
	for _, hook := range hooks {
		names = append(names, hook.name)
	}

	return names
}

// Trigger runs the named chain in order, passing the same context bag to every
// hook. An absent chain is a no-op. The chain stops early when a hook returns
// an error or calls Abort on the bag; callers must check HookContext.Aborted
// before proceeding to the storage call.
func (c *HookChains) Trigger(ctx context.Context, stage Stage, hc *HookContext) error {
	hooks, found := c.chains[stage]
	if !found {
		return nil
	}

	for _, hook := range hooks {
		hc.Params = hook.params

		err := hook.fn(ctx, hc)
		hc.Params = nil

		if err != nil {
			return err
		}

		if hc.Aborted() {
			return nil
		}
	}

	return nil
}

/***** Built-in stamping *****/

// TimestampFormat controls the shape of auto-stamped creation/modification
// timestamps.
type TimestampFormat int

const (
	// TimestampUnix stamps an integer epoch value.
	TimestampUnix TimestampFormat = iota
	// TimestampDateTime stamps a "YYYY-MM-DD hh:mm:ss" string.
	TimestampDateTime
	// TimestampDateOnly stamps a "YYYY-MM-DD" string.
	TimestampDateOnly
)

const (
	timestampDateTimeLayout = "2006-01-02 15:04:05"
	timestampDateOnlyLayout = "2006-01-02"
)

// FormatTimestamp renders a time in the given TimestampFormat.
func FormatTimestamp(t time.Time, format TimestampFormat) any {
	switch format {
	case TimestampDateTime:
		return t.Format(timestampDateTimeLayout)
	case TimestampDateOnly:
		return t.Format(timestampDateOnlyLayout)
	default:
		return t.Unix()
	}
}

// StampFieldHook returns a hook that sets the given field on the candidate
// record, formatted per the TimestampFormat, only when the field is absent
// from the incoming record. A caller-supplied value is never overwritten.
func StampFieldHook(field string, format TimestampFormat, now func() time.Time) Hook {
	return func(_ context.Context, hc *HookContext) error {
		if hc.Record == nil {
			return nil
		}

		if _, present := hc.Record[field]; present {
			return nil
		}

		hc.Record[field] = FormatTimestamp(now(), format)

		return nil
	}
}
