// Package runctl implements the run-gating state machine and the
// per-institution executor loop (C7, spec §4.7).
package runctl

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
)

// RunRecord is the latest row of the single-slot run gate.
type RunRecord struct {
	Status      domain.RunStatus
	HolderID    string
	StartedAt   time.Time
	CompletedAt time.Time
	ExpiresAt   time.Time
}

// Store is the persistence the gate is built on: a single row (or one
// row per gate name) read-modify-written serially, adapted from the
// exclusive-run lease the teacher's coordinator uses for its generation
// jobs. The lease expiry is this package's own addition over the bare
// IDLE/RUNNING machine spec §4.7 describes: it lets a crashed run's gate
// be reclaimed instead of wedging forever.
type Store interface {
	TryAcquire(ctx context.Context, gateName, holderID string, leaseDuration time.Duration, now time.Time) (acquired bool, err error)
	Complete(ctx context.Context, gateName, holderID string, now time.Time) error
	Read(ctx context.Context, gateName string) (RunRecord, error)
}

// InstitutionRun is one institution's last recorded reconciliation run,
// as persisted to rundb. Both storage backends (sql, postgres) share
// this shape so callers like the httpapi /rundb/status handler can work
// against either without caring which is wired in.
type InstitutionRun struct {
	Institution   string
	LastRunID     string
	LastStatus    domain.RunStatus
	LastStartedAt time.Time
	LastError     string
}

// RunHistory is the per-institution run-outcome repository, implemented
// by both storage/sql and storage/postgres.
type RunHistory interface {
	RecordRun(ctx context.Context, run InstitutionRun, completedAt time.Time) error
	LastRuns(ctx context.Context) ([]InstitutionRun, error)
}

// Gate is the C7 state machine. IDLE is the absence of a RUNNING record,
// or a RUNNING record whose lease has expired.
type Gate struct {
	Store         Store
	GateName      string
	LeaseDuration time.Duration
}

// Release ends a held run, either completing it or leaving it RUNNING
// for the caller to retry acquiring (on a fatal failure the lease simply
// expires and another trigger reclaims it).
type Release func(ctx context.Context, now time.Time) error

// Acquire attempts the IDLE -> RUNNING transition (spec §4.7). It
// returns domain.ErrGateLocked if a previous run has not completed, and
// domain.ErrGateStateUnknown if the persisted state could not be read.
func (g Gate) Acquire(ctx context.Context, holderID string, now time.Time) (Release, error) {
	acquired, err := g.Store.TryAcquire(ctx, g.GateName, holderID, g.LeaseDuration, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateStateUnknown, err)
	}
	if !acquired {
		return nil, domain.ErrGateLocked
	}
	release := func(ctx context.Context, now time.Time) error {
		return g.Store.Complete(ctx, g.GateName, holderID, now)
	}
	return release, nil
}

// Status reports the gate's current RunRecord, wrapping a read failure
// in domain.ErrGateStateUnknown so the trigger endpoint can surface a
// distinct "unknown" status to observers (spec §4.7).
func (g Gate) Status(ctx context.Context) (RunRecord, error) {
	rec, err := g.Store.Read(ctx, g.GateName)
	if err != nil {
		return RunRecord{}, fmt.Errorf("%w: %v", domain.ErrGateStateUnknown, err)
	}
	return rec, nil
}
