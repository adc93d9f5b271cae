package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/src"
)

// SyncPerson runs the single-person variant of the engagement
// reconciler (the /timeline/sync/person endpoint): it resolves the
// person via get_person before pulling get_employment_changed for each
// of their employments, mirroring the two-step lookup
// original_source/tests/integration/test_person.py exercises. A miss on
// the first step is domain.ErrPersonNotFound, which the HTTP layer maps
// to 404.
//
// Each employment's decisions are applied through applier as soon as
// they are computed (spec §4.6: a Create/Update/Terminate decision is
// only useful once it has actually changed DST's validities), then
// returned to the caller for the HTTP response body.
func SyncPerson(
	ctx context.Context,
	zone *time.Location,
	classification src.StatusClassification,
	srcClient src.Client,
	dstReader dst.Reader,
	applier dst.Applier,
	institution, cpr string,
	effective, windowFrom, windowTo time.Time,
) (map[domain.EmploymentKey][]EngagementDecision, error) {
	person, err := srcClient.GetPerson(ctx, institution, cpr, effective)
	if err != nil {
		return nil, err
	}

	decisions := make(map[domain.EmploymentKey][]EngagementDecision, len(person.EmploymentIDs))
	for _, employmentID := range person.EmploymentIDs {
		key := domain.EmploymentKey(employmentID)

		records, err := srcClient.GetEmploymentChanged(ctx, cpr, employmentID, windowFrom, windowTo)
		if err != nil {
			return nil, fmt.Errorf("failed to read employment changes for %s/%s: %w", cpr, employmentID, err)
		}
		srcTl, _, err := src.BuildEngagementTimeline(zone, domain.UnitID{}, records, classification)
		if err != nil {
			return nil, fmt.Errorf("failed to build source timeline for %s/%s: %w", cpr, employmentID, err)
		}

		validities, err := dstReader.GetEngagementByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read destination engagement %s: %w", key, err)
		}
		dstTimelines, err := dst.BuildEngagementTimelines(zone, validities)
		if err != nil {
			return nil, fmt.Errorf("failed to build destination timeline for %s: %w", key, err)
		}

		keyDecisions := Engagement(srcTl, dstTimelines[key])
		if err := ApplyEngagementDecisions(ctx, applier, zone, key, keyDecisions); err != nil {
			return nil, fmt.Errorf("failed to apply engagement decisions for %s: %w", key, err)
		}
		decisions[key] = keyDecisions
	}
	return decisions, nil
}

// ApplyEngagementDecisions persists each decision for key through
// applier, in the order Engagement produced them -- the total order
// required per entity (spec §5).
func ApplyEngagementDecisions(ctx context.Context, applier dst.Applier, zone *time.Location, key domain.EmploymentKey, decisions []EngagementDecision) error {
	for _, d := range decisions {
		switch d.Kind {
		case Create:
			if err := applier.CreateEngagement(ctx, engagementMutation(key, d)); err != nil {
				return fmt.Errorf("failed to create engagement %s: %w", key, err)
			}
		case Update:
			if err := applier.UpdateEngagement(ctx, engagementMutation(key, d)); err != nil {
				return fmt.Errorf("failed to update engagement %s: %w", key, err)
			}
		case Terminate:
			if err := applier.TerminateEngagement(ctx, key, d.Start, d.End, zone); err != nil {
				return fmt.Errorf("failed to terminate engagement %s: %w", key, err)
			}
		}
	}
	return nil
}

func engagementMutation(key domain.EmploymentKey, d EngagementDecision) dst.EngagementMutation {
	var engType *domain.EngagementType
	if d.Sample.HasType {
		t := d.Sample.Type
		engType = &t
	}
	return dst.EngagementMutation{
		Key:     key,
		UnitID:  d.Sample.Unit,
		JobKey:  d.Sample.Key,
		Name:    d.Sample.Name,
		EngType: engType,
		From:    d.Start,
		To:      d.End,
	}
}
