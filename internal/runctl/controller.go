package runctl

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/notify"
)

// Executor runs one institution's reconciliation batch.
type Executor func(ctx context.Context, institution string) error

// Controller sequences Executor over a configured list of institutions
// under a single Gate (spec §4.7: "the controller iterates the
// configured institution identifiers in order ... under a single
// gate; one institution's failure does not abort subsequent ones unless
// its failure classification is fatal").
type Controller struct {
	Gate     Gate
	HolderID string
	Log      *slog.Logger

	// Notify is told about every fatal per-institution failure once the
	// loop stops. It defaults to a no-op if left nil.
	Notify notify.Notifier
}

// Run acquires the gate, executes every institution in order, and
// completes the gate on success. A fatal error (domain.IsFatal) stops
// the loop immediately and leaves the gate RUNNING for operator
// inspection (spec §5, §7); non-fatal per-institution errors are
// accumulated and the loop continues.
func (c Controller) Run(ctx context.Context, institutions []string, exec Executor) error {
	release, err := c.Gate.Acquire(ctx, c.HolderID, now())
	if err != nil {
		return err
	}

	var errs error
	for _, institution := range institutions {
		if err := exec(ctx, institution); err != nil {
			c.Log.ErrorContext(ctx, "institution run failed", "institution", institution, "error", err)
			errs = multierr.Append(errs, err)
			if domain.IsFatal(err) {
				c.notify(ctx, institution, err)
				return errs
			}
			continue
		}
	}

	if completeErr := release(ctx, now()); completeErr != nil {
		return multierr.Append(errs, completeErr)
	}
	return errs
}

func (c Controller) notify(ctx context.Context, institution string, cause error) {
	if c.Notify == nil {
		return
	}
	if err := c.Notify.Notify(ctx, institution, c.HolderID, cause); err != nil {
		c.Log.ErrorContext(ctx, "failed to send failure notification", "institution", institution, "error", err)
	}
}

func now() time.Time { return time.Now().UTC() }
