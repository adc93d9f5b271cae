// Package sync wires C2, C3, C4, C6 and C8 into the single
// per-institution batch the run controller invokes (spec §5): read
// SRC's and DST's unit trees, filter both down to the configured scope,
// diff them structurally, apply the resulting ops through the M3/M4
// business-logic wrapper, then reconcile each surviving unit's
// addresses. Person/engagement reconciliation is driven separately, per
// person, through reconcile.SyncPerson -- SRC exposes no "list every
// person for an institution" operation, only get_person/
// get_employment_changed keyed by a known CPR, so there is nothing for
// a batch run to iterate over on that side.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/filter"
	"github.com/rezkam/reconcile/internal/reconcile"
	"github.com/rezkam/reconcile/internal/runctl"
	"github.com/rezkam/reconcile/internal/src"
	"github.com/rezkam/reconcile/internal/treediff"
	"github.com/rezkam/reconcile/internal/unit"
)

// AuditSink mirrors a dry run's planned operation stream somewhere an
// operator can inspect it without reading application logs (spec §4.6).
// internal/storage/gcs.Store is the concrete implementation.
type AuditSink interface {
	PutOperationLog(ctx context.Context, institution, runID string, entries any) error
}

// auditEntry is one planned mutation recorded during a dry run.
type auditEntry struct {
	Kind string `json:"kind"`
	Unit string `json:"unit"`
}

// FilterSpec configures C8's three unit filters (spec §4.8).
type FilterSpec struct {
	UnitUUID              domain.UnitID
	NameDenyRegex         []*regexp.Regexp
	HierarchyClassEnabled bool
	HierarchyFacet        string
	HierarchyClassName    string
}

// Pipeline is the institution-scoped reconciliation batch: structural
// unit-tree sync plus per-unit address reconciliation.
//
// Units are reconciled structurally through treediff (C4: Add/Update/
// Move over the current-state trees) rather than through the generic
// per-entity timeline reconciler (C5, reconcile.Unit): SRC's department
// endpoint models a unit's present structure, not the kind of full
// activation/deactivation history it exposes for engagements, so there
// is no historical unit timeline to feed reconcile.Unit here. C5's unit
// path is still real and tested directly (internal/reconcile) -- it is
// the shape a future historical-department feed would plug into.
type Pipeline struct {
	Log  *slog.Logger
	Zone *time.Location
	Root domain.UnitID

	SrcClient src.Client
	DstReader dst.Reader

	Applier  dst.Applier
	Cleanser dst.AddressCleanser

	Filter   FilterSpec
	Resolver dst.ClassResolver

	// ObsoleteRoots marks unit subtrees excluded from the M4
	// apply-business-logic side channel (spec §4.6). ApplyBusinessLogic
	// disabled entirely is equivalent to every unit being obsolete.
	ObsoleteRoots      []domain.UnitID
	ApplyBusinessLogic bool

	BuildExtra bool
	DryRun     bool

	// Audit, when set, receives this run's planned operation stream
	// whenever DryRun is true. Nil disables audit mirroring entirely.
	Audit AuditSink
}

// Run implements runctl.Executor for one institution: it does not touch
// the run-gate or per-institution history bookkeeping -- those are the
// caller's concern (see Executor below).
func (p *Pipeline) Run(ctx context.Context, institution string) error {
	now := time.Now().In(p.Zone)

	srcTree, err := p.buildSourceTree(ctx, institution, now)
	if err != nil {
		return fmt.Errorf("failed to build source tree: %w", err)
	}

	dstValidities, err := p.DstReader.GetUnits(ctx, p.Root)
	if err != nil {
		return fmt.Errorf("failed to read destination units: %w", err)
	}
	dstTree, err := dst.BuildCurrentTree(p.Zone, p.Root, dstValidities, now)
	if err != nil {
		return fmt.Errorf("failed to build destination tree: %w", err)
	}

	scoped, err := p.filterUnits(ctx, srcTree.Units())
	if err != nil {
		return fmt.Errorf("failed to filter source units: %w", err)
	}
	scopedTree, err := unit.NewTree(p.Root, scoped)
	if err != nil {
		return fmt.Errorf("failed to build filtered source tree: %w", err)
	}

	applier := p.runApplier(dstTree, dstValidities)

	var errs error
	var audit []auditEntry
	ops := treediff.Diff(scopedTree, dstTree, p.Root)
	for _, op := range ops {
		if err := p.applyOp(ctx, applier, op, now); err != nil {
			wrapped := domain.ForUnit(op.Unit.ID, fmt.Errorf("failed to apply %s for unit %s: %w", op.Kind, op.Unit.ID, err))
			if domain.IsFatal(err) {
				return wrapped
			}
			// M4 (and any other per-unit apply failure) is a hard error for
			// this unit but must not abort the rest of the run (spec §4.6).
			p.Log.ErrorContext(ctx, "unit operation failed, continuing with remaining units", "kind", op.Kind, "unit", op.Unit.ID, "error", err)
			errs = multierr.Append(errs, wrapped)
			continue
		}
		if p.DryRun {
			audit = append(audit, auditEntry{Kind: op.Kind.String(), Unit: op.Unit.ID.String()})
		}
	}

	// A caching cleanser gets a fresh cache for every run.
	rp := *p
	if c, ok := p.Cleanser.(*dst.CachingCleanser); ok {
		rp.Cleanser = dst.NewCachingCleanser(c.Inner)
	}
	for _, u := range scopedTree.Units() {
		if err := rp.reconcileAddresses(ctx, applier, u); err != nil {
			wrapped := domain.ForUnit(u.ID, fmt.Errorf("failed to reconcile addresses for unit %s: %w", u.ID, err))
			if domain.IsFatal(err) {
				return wrapped
			}
			p.Log.ErrorContext(ctx, "address reconciliation failed, continuing with remaining units", "unit", u.ID, "error", err)
			errs = multierr.Append(errs, wrapped)
			continue
		}
	}

	if p.DryRun && p.Audit != nil && len(audit) > 0 {
		if err := p.Audit.PutOperationLog(ctx, institution, uuid.NewString(), audit); err != nil {
			p.Log.ErrorContext(ctx, "failed to write dry-run audit log", "institution", institution, "error", err)
		}
	}

	return errs
}

// runApplier builds this run's Applier, wiring M3's overlapping-aux
// carry-forward and M4's obsolete-subtree gate against the DST tree and
// validities just read.
func (p *Pipeline) runApplier(dstTree *unit.Tree, dstValidities []dst.UnitValidity) dst.Applier {
	applier := p.Applier

	current := make(map[domain.UnitID]dst.UnitValidity, len(dstValidities))
	for _, v := range dstValidities {
		if v.To.IsZero() { // open-ended: this is the validity presently in force
			current[v.ID] = v
		}
	}
	applier.OverlappingAux = func(id domain.UnitID, from, to time.Time) (*domain.UnitID, *string, bool) {
		v, ok := current[id]
		if !ok {
			return nil, nil, false
		}
		return v.HierarchyClass, v.TimePlanning, true
	}

	applier.IsObsolete = func(id domain.UnitID) bool {
		if !p.ApplyBusinessLogic {
			return true
		}
		for _, root := range p.ObsoleteRoots {
			if dstTree.IsDescendant(id, root) {
				return true
			}
		}
		return false
	}

	return applier
}

func (p *Pipeline) buildSourceTree(ctx context.Context, institution string, now time.Time) (*unit.Tree, error) {
	org, err := p.SrcClient.GetOrganization(ctx, institution)
	if err != nil {
		return nil, fmt.Errorf("failed to read organization: %w", err)
	}
	departments, err := p.SrcClient.GetDepartments(ctx, institution, time.Time{}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read departments: %w", err)
	}

	tree, err := src.BuildUnitTree(p.Zone, p.Root, org, departments)
	if err != nil {
		return nil, err
	}

	if !p.BuildExtra {
		return tree, nil
	}

	refByID := make(map[string]src.DepartmentReference, len(org.Units))
	for _, ref := range org.Units {
		refByID[ref.DepartmentUUID] = ref
	}
	var orphans []src.DepartmentReference
	for _, ref := range org.Units {
		id, err := domain.ParseUnitID(ref.DepartmentUUID)
		if err != nil {
			continue
		}
		if _, ok := tree.Get(id); !ok {
			orphans = append(orphans, ref)
		}
	}

	resolveChain := func(departmentUUID string) ([]src.DepartmentReference, error) {
		ref, ok := refByID[departmentUUID]
		if !ok {
			return nil, fmt.Errorf("department %s absent from organization response", departmentUUID)
		}
		return []src.DepartmentReference{ref}, nil
	}
	if err := src.SpliceOrphans(tree, p.Root, orphans, true, resolveChain); err != nil {
		return nil, err
	}
	return tree, nil
}

func (p *Pipeline) filterUnits(ctx context.Context, units []*unit.Unit) ([]*unit.Unit, error) {
	units = filter.ByUUID(units, p.Filter.UnitUUID)
	units = filter.ByNameRegex(units, p.Filter.NameDenyRegex)
	return filter.ByHierarchyClass(ctx, units, p.Filter.HierarchyClassEnabled, p.Resolver, p.Filter.HierarchyFacet, p.Filter.HierarchyClassName)
}

func (p *Pipeline) applyOp(ctx context.Context, applier dst.Applier, op treediff.Op, now time.Time) error {
	if p.DryRun {
		p.Log.InfoContext(ctx, "dry run: skipping unit mutation", "kind", op.Kind, "unit", op.Unit.ID)
		return nil
	}
	mutation := dst.UnitMutation{
		ID:             op.Unit.ID,
		ParentID:       op.Unit.ParentID,
		HasParent:      op.Unit.HasParent,
		Name:           op.Unit.Name,
		UserKey:        op.Unit.UserKey,
		Level:          op.Unit.Level,
		HierarchyClass: op.Unit.HierarchyClass,
		From:           now,
	}
	switch op.Kind {
	case treediff.OpAdd:
		return applier.CreateUnit(ctx, mutation)
	case treediff.OpUpdate, treediff.OpMove:
		// classify() always sets NewParent to op.Unit.ParentID for a
		// Move, so mutation already carries the new parent.
		return applier.UpdateUnit(ctx, mutation)
	default:
		return fmt.Errorf("unknown op kind %v", op.Kind)
	}
}

// Executor adapts Pipeline.Run into a runctl.Executor that also records
// the outcome to history -- bookkeeping the gate itself does not do,
// since RunRecord only tracks the single shared RUNNING/COMPLETED slot,
// not a per-institution result.
func (p *Pipeline) Executor(history runctl.RunHistory) runctl.Executor {
	return func(ctx context.Context, institution string) error {
		startedAt := time.Now().UTC()
		runErr := p.Run(ctx, institution)

		run := runctl.InstitutionRun{
			Institution:   institution,
			LastStatus:    domain.RunStatusCompleted,
			LastStartedAt: startedAt,
		}
		if runErr != nil {
			run.LastStatus = domain.RunStatusFailed
			run.LastError = runErr.Error()
		}
		if histErr := history.RecordRun(ctx, run, time.Now().UTC()); histErr != nil {
			p.Log.ErrorContext(ctx, "failed to record run history", "institution", institution, "error", histErr)
		}
		return runErr
	}
}

func (p *Pipeline) reconcileAddresses(ctx context.Context, applier dst.Applier, u *unit.Unit) error {
	dstAddrs, err := p.DstReader.GetAddresses(ctx, u.ID)
	if err != nil {
		return err
	}
	decisions := reconcile.Addresses(ctx, p.Log, p.Cleanser, u.Addresses, dstAddrs)
	for _, d := range decisions {
		if p.DryRun {
			p.Log.InfoContext(ctx, "dry run: skipping address mutation", "kind", d.Kind, "unit", u.ID, "type", d.Type)
			continue
		}
		mutation := dst.AddressMutation{Type: d.Type, Value: d.Value, ID: d.DSTID, HasID: d.HasDSTID}
		switch d.Kind {
		case reconcile.Create:
			if err := applier.Mutator.CreateAddress(ctx, u.ID, mutation); err != nil {
				return err
			}
		case reconcile.Update:
			if err := applier.Mutator.UpdateAddress(ctx, mutation); err != nil {
				return err
			}
		}
	}
	return nil
}
