// Package reconcile implements the per-entity timeline reconciler (C5,
// spec §4.5): given an entity's SRC and DST timelines, it produces the
// ordered sequence of Create/Update/Terminate decisions that brings DST
// in line with SRC. It also holds the address reducer, a degenerate
// case of the same idea without a full timeline, and the person-sync
// use case built on top of the engagement reconciler.
package reconcile

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/unit"
)

// Kind distinguishes the three decisions the reconciler can emit.
type Kind int

const (
	Create Kind = iota
	Update
	Terminate
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "Create"
	case Update:
		return "Update"
	case Terminate:
		return "Terminate"
	default:
		return "unknown"
	}
}

// UnitDecision is one Create/Update/Terminate emitted for a unit's
// timeline.
type UnitDecision struct {
	Kind   Kind
	Start  time.Time
	End    time.Time
	Sample unit.UnitSample // meaningful for Create/Update
}

// EngagementDecision is one Create/Update/Terminate emitted for an
// engagement's timeline.
type EngagementDecision struct {
	Kind   Kind
	Start  time.Time
	End    time.Time
	Sample unit.EngagementSample // meaningful for Create/Update
}

// Unit runs the algorithm of spec §4.5 over a unit's SRC and DST
// timelines.
func Unit(src, dstTl unit.UnitTimeline) []UnitDecision {
	endpoints := mergeEndpoints(src.Endpoints(), dstTl.Endpoints())
	var decisions []UnitDecision
	for i := 0; i+1 < len(endpoints); i++ {
		a, b := endpoints[i], endpoints[i+1]
		if src.EqualAt(a, dstTl) {
			continue
		}
		if sample, ok := src.SampleAt(a); ok {
			kind := Create
			if dstTl.HasValue(a) {
				kind = Update
			}
			decisions = append(decisions, UnitDecision{Kind: kind, Start: a, End: b, Sample: sample})
			continue
		}
		decisions = append(decisions, UnitDecision{Kind: Terminate, Start: a, End: b})
	}
	return decisions
}

// Engagement runs the same algorithm over an engagement's SRC and DST
// timelines (spec §4.5: "the same algorithm runs independently per
// person/user-key pair").
func Engagement(src, dstTl unit.EngagementTimeline) []EngagementDecision {
	endpoints := mergeEndpoints(src.Endpoints(), dstTl.Endpoints())
	var decisions []EngagementDecision
	for i := 0; i+1 < len(endpoints); i++ {
		a, b := endpoints[i], endpoints[i+1]
		if src.EqualAt(a, dstTl) {
			continue
		}
		if sample, ok := src.SampleAt(a); ok {
			kind := Create
			if dstTl.HasValue(a) {
				kind = Update
			}
			decisions = append(decisions, EngagementDecision{Kind: kind, Start: a, End: b, Sample: sample})
			continue
		}
		decisions = append(decisions, EngagementDecision{Kind: Terminate, Start: a, End: b})
	}
	return decisions
}

func mergeEndpoints(a, b []time.Time) []time.Time {
	out := make([]time.Time, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.SortFunc(out, func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		default:
			return 0
		}
	})
	return slices.CompactFunc(out, func(x, y time.Time) bool { return x.Equal(y) })
}

// AddressDecision is one Create/Update emitted by Addresses. Addresses
// are a degenerate case without a timeline (spec §4.5): there is no
// Terminate.
type AddressDecision struct {
	Kind     Kind
	Type     domain.AddressType
	Value    string
	DSTID    domain.AddressID
	HasDSTID bool
}

// Addresses compares SRC's current address values against DST's by
// type. Postal values are passed through cleanser first; a cleansing
// failure is logged and that address type is skipped -- it never
// aborts the run (spec §4.5).
func Addresses(ctx context.Context, log *slog.Logger, cleanser dst.AddressCleanser, src []unit.Address, dstAddrs []dst.AddressValidity) []AddressDecision {
	byType := make(map[domain.AddressType]dst.AddressValidity, len(dstAddrs))
	for _, d := range dstAddrs {
		byType[d.Type] = d
	}

	var decisions []AddressDecision
	for _, a := range src {
		value := a.Value
		if a.Type == domain.AddressTypePostal && cleanser != nil {
			canonical, err := cleanser.Cleanse(ctx, a.Value)
			if err != nil {
				log.Warn("address cleansing failed, skipping", "type", a.Type, "error", err)
				continue
			}
			value = canonical
		}

		existing, ok := byType[a.Type]
		switch {
		case !ok:
			decisions = append(decisions, AddressDecision{Kind: Create, Type: a.Type, Value: value})
		case existing.Value != value:
			decisions = append(decisions, AddressDecision{
				Kind: Update, Type: a.Type, Value: value,
				DSTID: existing.ID, HasDSTID: true,
			})
		}
	}
	return decisions
}
