// Package domain holds the types and sentinel errors shared by every
// component of the reconciliation core: the interval/timeline algebra, the
// unit tree, the tree differ, and the timeline reconciler.
package domain

import "errors"

// Sentinel errors classify failures per the error-handling taxonomy: a
// caller uses errors.Is/errors.As to decide whether a failure is transient
// (upstream unavailable: log and skip the entity), soft (skip and log), or
// fatal (abort the run and leave the gate locked).
var (
	// ErrUpstreamUnavailable marks a transient failure talking to SRC or
	// DST (network error, 5xx, timeout). The affected entity is skipped;
	// the run continues.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersonNotFound marks a person absent in SRC. Surfaced as HTTP 404
	// on the person-sync endpoint.
	ErrPersonNotFound = errors.New("person not found in source system")

	// ErrCleansingFailed marks an address cleansing miss. Soft: the unit's
	// address reconciliation is skipped, the run continues.
	ErrCleansingFailed = errors.New("address cleansing failed")

	// ErrOrphanUnresolvable marks an orphan department whose parent chain
	// could not be resolved during build_extra splicing. Soft.
	ErrOrphanUnresolvable = errors.New("orphan department parent chain unresolvable")

	// ErrInvariantViolation marks a breach of I1-I5 or a mutation-ordering
	// violation (O1-O2). Fatal: the run aborts and the gate is left
	// RUNNING so an operator can inspect the half-applied tree.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrGateLocked is returned when a trigger is rejected because a
	// previous run did not complete.
	ErrGateLocked = errors.New("previous run did not complete successfully")

	// ErrGateStateUnknown is returned when the gate's persistent state
	// could not be read.
	ErrGateStateUnknown = errors.New("run gate state unknown")

	// ErrApplyBusinessLogicFailed marks a non-2xx response from the
	// apply-business-logic side channel for a given unit.
	ErrApplyBusinessLogicFailed = errors.New("apply-business-logic call failed")

	// ErrCycleDetected marks a cycle found while splicing orphan parent
	// chains into a tree (build_extra mode). Always fatal: it can never
	// be produced by a well-formed SRC response.
	ErrCycleDetected = errors.New("cycle detected while building unit tree")
)

// FatalError wraps an error to signal that the run controller must leave
// the gate in RUNNING rather than advancing it to COMPLETED. It is used
// for invariant breaches and for a cycle found while splicing orphan
// parent chains (§5, §7).
type FatalError struct {
	Err error
}

func (e FatalError) Error() string { return e.Err.Error() }
func (e FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return FatalError{Err: err}
}

// IsFatal reports whether err (or a wrapped cause) is a FatalError.
func IsFatal(err error) bool {
	var fatal FatalError
	return errors.As(err, &fatal)
}

// UnitError attaches the unit a failure occurred on to its cause, so a
// notifier can match it against a configured suppression list (spec §9
// open question 3) without parsing error text.
type UnitError struct {
	Unit UnitID
	Err  error
}

func (e UnitError) Error() string { return e.Err.Error() }
func (e UnitError) Unwrap() error { return e.Err }

// ForUnit wraps err with the unit it failed on. Returns nil if err is nil.
func ForUnit(unit UnitID, err error) error {
	if err == nil {
		return nil
	}
	return UnitError{Unit: unit, Err: err}
}

// UnitOf extracts the unit a failure was attributed to, if any.
func UnitOf(err error) (UnitID, bool) {
	var ue UnitError
	if errors.As(err, &ue) {
		return ue.Unit, true
	}
	return UnitID{}, false
}
