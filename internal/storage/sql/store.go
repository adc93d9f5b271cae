package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/runctl"
)

// Store implements runctl.Store over a plain database/sql connection,
// portable across the pgx/stdlib and modernc.org/sqlite drivers this
// package selects between.
type Store struct {
	db     *sql.DB
	driver string
}

func newStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

var (
	_ runctl.Store      = (*Store)(nil)
	_ runctl.RunHistory = (*Store)(nil)
)

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// placeholder returns the driver's positional parameter marker for
// argument n (1-indexed): "$n" for pgx, "?" for sqlite.
func (s *Store) placeholder(n int) string {
	if s.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// TryAcquire performs a conditional upsert: it claims the gate row if no
// row exists yet, or the existing row is not RUNNING, or its lease has
// expired. The WHERE clause on DO UPDATE makes this a single atomic
// statement under concurrent callers.
func (s *Store) TryAcquire(ctx context.Context, gateName, holderID string, lease time.Duration, now time.Time) (bool, error) {
	expiresAt := now.Add(lease)
	query := fmt.Sprintf(`
		INSERT INTO reconcile_leases (gate_name, status, holder_id, started_at, expires_at, completed_at)
		VALUES (%s, %s, %s, %s, %s, NULL)
		ON CONFLICT (gate_name) DO UPDATE SET
			status = excluded.status,
			holder_id = excluded.holder_id,
			started_at = excluded.started_at,
			expires_at = excluded.expires_at,
			completed_at = NULL
		WHERE reconcile_leases.status != %s OR reconcile_leases.expires_at <= %s
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6), s.placeholder(7))

	res, err := s.db.ExecContext(ctx, query,
		gateName, string(domain.RunStatusRunning), holderID, now, expiresAt,
		string(domain.RunStatusRunning), now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	// RowsAffected alone can't distinguish "inserted" from "conditional
	// update skipped" on some drivers, so confirm we actually hold it.
	rec, err := s.Read(ctx, gateName)
	if err != nil {
		return false, err
	}
	return rec.HolderID == holderID && rec.Status == domain.RunStatusRunning, nil
}

// Complete marks the gate COMPLETED for the given holder.
func (s *Store) Complete(ctx context.Context, gateName, holderID string, now time.Time) error {
	query := fmt.Sprintf(`
		UPDATE reconcile_leases
		SET status = %s, completed_at = %s
		WHERE gate_name = %s AND holder_id = %s
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4))

	_, err := s.db.ExecContext(ctx, query, string(domain.RunStatusCompleted), now, gateName, holderID)
	if err != nil {
		return fmt.Errorf("failed to complete lease: %w", err)
	}
	return nil
}

// Read returns the current gate record.
func (s *Store) Read(ctx context.Context, gateName string) (runctl.RunRecord, error) {
	query := fmt.Sprintf(`
		SELECT status, holder_id, started_at, completed_at, expires_at
		FROM reconcile_leases WHERE gate_name = %s
	`, s.placeholder(1))

	var (
		status      string
		holderID    string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		expiresAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, gateName).Scan(&status, &holderID, &startedAt, &completedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return runctl.RunRecord{}, nil
	}
	if err != nil {
		return runctl.RunRecord{}, fmt.Errorf("failed to read lease: %w", err)
	}

	return runctl.RunRecord{
		Status:      domain.RunStatus(status),
		HolderID:    holderID,
		StartedAt:   startedAt.Time,
		CompletedAt: completedAt.Time,
		ExpiresAt:   expiresAt.Time,
	}, nil
}

// RecordRun upserts an institution's latest run outcome.
func (s *Store) RecordRun(ctx context.Context, run runctl.InstitutionRun, completedAt time.Time) error {
	var query string
	if s.driver == "pgx" {
		query = `
			INSERT INTO rundb (institution, last_run_id, last_status, last_started_at, last_completed_at, last_error)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (institution) DO UPDATE SET
				last_run_id = excluded.last_run_id,
				last_status = excluded.last_status,
				last_started_at = excluded.last_started_at,
				last_completed_at = excluded.last_completed_at,
				last_error = excluded.last_error
		`
	} else {
		query = `
			INSERT INTO rundb (institution, last_run_id, last_status, last_started_at, last_completed_at, last_error)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (institution) DO UPDATE SET
				last_run_id = excluded.last_run_id,
				last_status = excluded.last_status,
				last_started_at = excluded.last_started_at,
				last_completed_at = excluded.last_completed_at,
				last_error = excluded.last_error
		`
	}

	_, err := s.db.ExecContext(ctx, query, run.Institution, run.LastRunID, string(run.LastStatus), run.LastStartedAt, completedAt, run.LastError)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LastRuns returns the recorded run history for every institution.
func (s *Store) LastRuns(ctx context.Context) ([]runctl.InstitutionRun, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var startedAt sql.NullTime
		if err := rows.Scan(&r.Institution, &r.LastRunID, &status, &startedAt, &r.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan run history row: %w", err)
		}
		r.LastStatus = domain.RunStatus(status)
		r.LastStartedAt = startedAt.Time
		out = append(out, r)
	}
	return out, rows.Err()
}
