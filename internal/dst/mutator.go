package dst

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/timeline"
)

// RewriteEnd implements M1 (spec §4.6): PosInf becomes NULL (the zero
// Time), a finite end E becomes E minus one calendar day in zone. This
// is the inverse of the +1 adjustment C3's reader applies on the way in.
func RewriteEnd(end time.Time, zone *time.Location) time.Time {
	if end.Equal(timeline.PosInf) {
		return time.Time{}
	}
	y, m, d := end.In(zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, zone).AddDate(0, 0, -1)
}

// BuildTermination shapes a TerminateE(E, [start,end)) decision into the
// payload DST expects per M2: a finite end spans [start, end-1day]; an
// open (PosInf) end uses DST's "terminate at" form with (start - 1 day)
// as the cutoff.
func BuildTermination(start, end time.Time, zone *time.Location) Termination {
	if end.Equal(timeline.PosInf) {
		y, m, d := start.In(zone).Date()
		cutoff := time.Date(y, m, d, 0, 0, 0, 0, zone).AddDate(0, 0, -1)
		return Termination{OpenEnded: true, Start: start, Cutoff: cutoff}
	}
	return Termination{OpenEnded: false, Start: start, End: RewriteEnd(end, zone)}
}

// Applier wraps a Mutator with the M3/M4 obligations (spec §4.6): it
// carries forward auxiliary unit attributes across an overlapping DST
// validity, and invokes the apply-business-logic side channel after a
// successful unit Add or Update unless the unit lies in the obsolete
// subtree.
type Applier struct {
	Mutator  Mutator
	Business BusinessLogicInvoker

	// IsObsolete reports whether id lies within the configured "obsolete
	// units" subtree, exempting it from M4.
	IsObsolete func(id domain.UnitID) bool

	// OverlappingAux looks up the auxiliary attributes (hierarchy-class,
	// time-planning) carried by the existing DST validity overlapping
	// op's effective interval, so M3 can forward them unchanged.
	OverlappingAux func(id domain.UnitID, from, to time.Time) (hierarchyClass *domain.UnitID, timePlanning *string, ok bool)
}

// CreateUnit issues a unit Add and then runs M4.
func (a Applier) CreateUnit(ctx context.Context, op UnitMutation) error {
	if err := a.Mutator.CreateUnit(ctx, op); err != nil {
		return err
	}
	return a.applyBusinessLogic(ctx, op.ID)
}

// UpdateUnit carries forward auxiliary attributes per M3, issues the
// Update, then runs M4.
func (a Applier) UpdateUnit(ctx context.Context, op UnitMutation) error {
	if a.OverlappingAux != nil {
		if hc, tp, ok := a.OverlappingAux(op.ID, op.From, op.To); ok {
			if op.HierarchyClass == nil {
				op.HierarchyClass = hc
			}
			if op.TimePlanning == nil {
				op.TimePlanning = tp
			}
		}
	}
	if err := a.Mutator.UpdateUnit(ctx, op); err != nil {
		return err
	}
	return a.applyBusinessLogic(ctx, op.ID)
}

// TerminateUnit issues the termination built by BuildTermination. M4
// does not run for terminations.
func (a Applier) TerminateUnit(ctx context.Context, id domain.UnitID, start, end time.Time, zone *time.Location) error {
	return a.Mutator.TerminateUnit(ctx, id, BuildTermination(start, end, zone))
}

// CreateEngagement issues an engagement Add. Engagements are exempt from
// M3/M4 (spec §4.6 scopes both to unit Add/Update); only M1's end-date
// rewriting applies, and op.To is expected to already be in timeline
// form (PosInf or a finite exclusive end) for RewriteEnd to shape.
func (a Applier) CreateEngagement(ctx context.Context, op EngagementMutation) error {
	op.To = RewriteEnd(op.To, DstZone)
	return a.Mutator.CreateEngagement(ctx, op)
}

// UpdateEngagement issues an engagement Update, shaped per M1.
func (a Applier) UpdateEngagement(ctx context.Context, op EngagementMutation) error {
	op.To = RewriteEnd(op.To, DstZone)
	return a.Mutator.UpdateEngagement(ctx, op)
}

// TerminateEngagement issues the termination built by BuildTermination
// for the engagement identified by key.
func (a Applier) TerminateEngagement(ctx context.Context, key domain.EmploymentKey, start, end time.Time, zone *time.Location) error {
	return a.Mutator.TerminateEngagement(ctx, key, BuildTermination(start, end, zone))
}

func (a Applier) applyBusinessLogic(ctx context.Context, id domain.UnitID) error {
	if a.IsObsolete != nil && a.IsObsolete(id) {
		return nil
	}
	if a.Business == nil {
		return nil
	}
	if err := a.Business.ApplyBusinessLogic(ctx, id); err != nil {
		return fmt.Errorf("unit %s: %w: %v", id, domain.ErrApplyBusinessLogicFailed, err)
	}
	return nil
}
