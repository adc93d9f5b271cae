package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/runctl"
)

// Store implements runctl.Store and the run-history repository over a
// pgxpool connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ runctl.Store      = (*Store)(nil)
	_ runctl.RunHistory = (*Store)(nil)
)

// NewStore creates a Store over an already-connected pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// finalizeTx rolls back on error, commits on success.
func finalizeTx(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.ErrorContext(ctx, "rollback failed", "original_error", *err, "rollback_error", rbErr)
			*err = fmt.Errorf("transaction failed: %w (rollback error: %v)", *err, rbErr)
		}
		return
	}
	*err = tx.Commit(ctx)
}

// executeInTransaction runs fn within a transaction, logging and
// recovering from panics the way the teacher's Store does.
func (s *Store) executeInTransaction(ctx context.Context, operationName string, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "transaction panic, rolling back", "operation", operationName, "panic", p)
			_ = tx.Rollback(ctx)
			panic(p)
		}
		finalizeTx(ctx, tx, &err)
	}()

	err = fn(tx)
	return
}

// TryAcquire performs the same WHERE-gated upsert as the sqlite-backed
// store, in Postgres's own ON CONFLICT dialect.
func (s *Store) TryAcquire(ctx context.Context, gateName, holderID string, lease time.Duration, now time.Time) (bool, error) {
	expiresAt := now.Add(lease)

	var acquired bool
	err := s.executeInTransaction(ctx, "try_acquire_lease", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO reconcile_leases (gate_name, status, holder_id, started_at, expires_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, NULL)
			ON CONFLICT (gate_name) DO UPDATE SET
				status = excluded.status,
				holder_id = excluded.holder_id,
				started_at = excluded.started_at,
				expires_at = excluded.expires_at,
				completed_at = NULL
			WHERE reconcile_leases.status != $2 OR reconcile_leases.expires_at <= $6
		`, gateName, string(domain.RunStatusRunning), holderID, now, expiresAt, now)
		if err != nil {
			return fmt.Errorf("failed to acquire lease: %w", err)
		}
		acquired = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	rec, err := s.Read(ctx, gateName)
	if err != nil {
		return false, err
	}
	return rec.HolderID == holderID && rec.Status == domain.RunStatusRunning, nil
}

// Complete marks the gate COMPLETED for the given holder.
func (s *Store) Complete(ctx context.Context, gateName, holderID string, now time.Time) error {
	return s.executeInTransaction(ctx, "complete_lease", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE reconcile_leases SET status = $1, completed_at = $2
			WHERE gate_name = $3 AND holder_id = $4
		`, string(domain.RunStatusCompleted), now, gateName, holderID)
		if err != nil {
			return fmt.Errorf("failed to complete lease: %w", err)
		}
		return nil
	})
}

// Read returns the current gate record.
func (s *Store) Read(ctx context.Context, gateName string) (runctl.RunRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT status, holder_id, started_at, completed_at, expires_at
		FROM reconcile_leases WHERE gate_name = $1
	`, gateName)

	var (
		status                            string
		holderID                          string
		startedAt, completedAt, expiresAt *time.Time
	)
	if err := row.Scan(&status, &holderID, &startedAt, &completedAt, &expiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return runctl.RunRecord{}, nil
		}
		return runctl.RunRecord{}, fmt.Errorf("failed to read lease: %w", err)
	}

	rec := runctl.RunRecord{Status: domain.RunStatus(status), HolderID: holderID}
	if startedAt != nil {
		rec.StartedAt = *startedAt
	}
	if completedAt != nil {
		rec.CompletedAt = *completedAt
	}
	if expiresAt != nil {
		rec.ExpiresAt = *expiresAt
	}
	return rec, nil
}

// RecordRun upserts an institution's latest run outcome, backing the
// /rundb/status HTTP endpoint.
func (s *Store) RecordRun(ctx context.Context, run runctl.InstitutionRun, completedAt time.Time) error {
	return s.executeInTransaction(ctx, "record_run", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rundb (institution, last_run_id, last_status, last_started_at, last_completed_at, last_error)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (institution) DO UPDATE SET
				last_run_id = excluded.last_run_id,
				last_status = excluded.last_status,
				last_started_at = excluded.last_started_at,
				last_completed_at = excluded.last_completed_at,
				last_error = excluded.last_error
		`, run.Institution, run.LastRunID, string(run.LastStatus), run.LastStartedAt, completedAt, run.LastError)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		return nil
	})
}

// LastRuns returns the recorded run history for every institution.
func (s *Store) LastRuns(ctx context.Context) ([]runctl.InstitutionRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT institution, last_run_id, last_status, last_started_at, last_error FROM rundb
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var out []runctl.InstitutionRun
	for rows.Next() {
		var r runctl.InstitutionRun
		var status string
		var startedAt *time.Time
		if err := rows.Scan(&r.Institution, &r.LastRunID, &status, &startedAt, &r.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan run history row: %w", err)
		}
		r.LastStatus = domain.RunStatus(status)
		if startedAt != nil {
			r.LastStartedAt = *startedAt
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
