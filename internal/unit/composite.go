// Package unit holds the organisational-unit tree and the composite
// timelines (UnitTimeline, EngagementTimeline) bundled over it (spec §3).
package unit

import (
	"slices"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/timeline"
)

// UnitTimeline bundles the five per-attribute timelines spec §3 names for
// one unit: whether it is active, its name, its user-facing unit ID, its
// level, and its parent.
type UnitTimeline struct {
	Active timeline.Timeline[bool]
	Name   timeline.Timeline[string]
	UnitID timeline.Timeline[string]
	Level  timeline.Timeline[timeline.Option[string]]
	Parent timeline.Timeline[timeline.Option[domain.UnitID]]
}

// HasValue reports whether every member timeline has an interval at t
// (spec §3, invariant I4).
func (u UnitTimeline) HasValue(t time.Time) bool {
	_, ok := u.Active.EntityAt(t)
	if !ok {
		return false
	}
	if _, ok := u.Name.EntityAt(t); !ok {
		return false
	}
	if _, ok := u.UnitID.EntityAt(t); !ok {
		return false
	}
	if _, ok := u.Level.EntityAt(t); !ok {
		return false
	}
	if _, ok := u.Parent.EntityAt(t); !ok {
		return false
	}
	return true
}

// EqualAt reports whether self and other both have (or both lack) a value
// at t, and when both have one, that every member value is equal.
func (u UnitTimeline) EqualAt(t time.Time, other UnitTimeline) bool {
	if u.HasValue(t) != other.HasValue(t) {
		return false
	}
	if !u.HasValue(t) {
		return true
	}

	a1, _ := u.Active.EntityAt(t)
	a2, _ := other.Active.EntityAt(t)
	if a1.Value != a2.Value {
		return false
	}

	n1, _ := u.Name.EntityAt(t)
	n2, _ := other.Name.EntityAt(t)
	if n1.Value != n2.Value {
		return false
	}

	id1, _ := u.UnitID.EntityAt(t)
	id2, _ := other.UnitID.EntityAt(t)
	if id1.Value != id2.Value {
		return false
	}

	l1, _ := u.Level.EntityAt(t)
	l2, _ := other.Level.EntityAt(t)
	if l1.Value != l2.Value {
		return false
	}

	p1, _ := u.Parent.EntityAt(t)
	p2, _ := other.Parent.EntityAt(t)
	return p1.Value == p2.Value
}

// UnitSample is the set of attribute values a UnitTimeline carries at a
// single instant, the "S@a" the reconciler needs to build a mutation.
type UnitSample struct {
	Active    bool
	Name      string
	UnitID    string
	HasLevel  bool
	Level     string
	HasParent bool
	Parent    domain.UnitID
}

// SampleAt returns the values every member timeline carries at t, and
// false if any member lacks a value there (see HasValue).
func (u UnitTimeline) SampleAt(t time.Time) (UnitSample, bool) {
	if !u.HasValue(t) {
		return UnitSample{}, false
	}
	active, _ := u.Active.EntityAt(t)
	name, _ := u.Name.EntityAt(t)
	uid, _ := u.UnitID.EntityAt(t)
	level, _ := u.Level.EntityAt(t)
	parent, _ := u.Parent.EntityAt(t)

	s := UnitSample{Active: active.Value, Name: name.Value, UnitID: uid.Value}
	if lv, ok := level.Value.Value(); ok {
		s.HasLevel = true
		s.Level = lv
	}
	if p, ok := parent.Value.Value(); ok {
		s.HasParent = true
		s.Parent = p
	}
	return s, true
}

// Endpoints returns the union of every member timeline's endpoints.
func (u UnitTimeline) Endpoints() []time.Time {
	seen := make(map[int64]time.Time)
	addAll := func(ts []time.Time) {
		for _, t := range ts {
			seen[t.UnixNano()] = t
		}
	}
	addAll(u.Active.Endpoints())
	addAll(u.Name.Endpoints())
	addAll(u.UnitID.Endpoints())
	addAll(u.Level.Endpoints())
	addAll(u.Parent.Endpoints())

	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sortTimes(out)
	return out
}

// EngagementTimeline bundles the per-attribute timelines for one
// engagement (spec §3): whether it is active, its job-function key, its
// free-text name, its unit, and optionally its working-time type and
// human-readable unit ID.
type EngagementTimeline struct {
	Active timeline.Timeline[bool]
	Key    timeline.Timeline[string]
	Name   timeline.Timeline[string]
	Unit   timeline.Timeline[domain.UnitID]
	Type   timeline.Timeline[timeline.Option[domain.EngagementType]]
	UnitID timeline.Timeline[timeline.Option[string]]
}

// HasValue reports whether every required member timeline (active, key,
// name, unit) has an interval at t. Type and UnitID are optional members
// and do not participate in presence.
func (e EngagementTimeline) HasValue(t time.Time) bool {
	if _, ok := e.Active.EntityAt(t); !ok {
		return false
	}
	if _, ok := e.Key.EntityAt(t); !ok {
		return false
	}
	if _, ok := e.Name.EntityAt(t); !ok {
		return false
	}
	if _, ok := e.Unit.EntityAt(t); !ok {
		return false
	}
	return true
}

// EqualAt reports whether self and other both have (or both lack) a value
// at t, and when both have one, that every required member value is equal.
func (e EngagementTimeline) EqualAt(t time.Time, other EngagementTimeline) bool {
	if e.HasValue(t) != other.HasValue(t) {
		return false
	}
	if !e.HasValue(t) {
		return true
	}

	a1, _ := e.Active.EntityAt(t)
	a2, _ := other.Active.EntityAt(t)
	if a1.Value != a2.Value {
		return false
	}

	k1, _ := e.Key.EntityAt(t)
	k2, _ := other.Key.EntityAt(t)
	if k1.Value != k2.Value {
		return false
	}

	n1, _ := e.Name.EntityAt(t)
	n2, _ := other.Name.EntityAt(t)
	if n1.Value != n2.Value {
		return false
	}

	u1, _ := e.Unit.EntityAt(t)
	u2, _ := other.Unit.EntityAt(t)
	return u1.Value == u2.Value
}

// EngagementSample is the set of attribute values an EngagementTimeline
// carries at a single instant.
type EngagementSample struct {
	Active  bool
	Key     string
	Name    string
	Unit    domain.UnitID
	HasType bool
	Type    domain.EngagementType
}

// SampleAt returns the values every required member timeline carries at
// t, and false if any of them lacks a value there.
func (e EngagementTimeline) SampleAt(t time.Time) (EngagementSample, bool) {
	if !e.HasValue(t) {
		return EngagementSample{}, false
	}
	active, _ := e.Active.EntityAt(t)
	key, _ := e.Key.EntityAt(t)
	name, _ := e.Name.EntityAt(t)
	u, _ := e.Unit.EntityAt(t)

	s := EngagementSample{Active: active.Value, Key: key.Value, Name: name.Value, Unit: u.Value}
	if et, ok := e.Type.EntityAt(t); ok {
		if v, present := et.Value.Value(); present {
			s.HasType = true
			s.Type = v
		}
	}
	return s, true
}

// Endpoints returns the union of every required member timeline's endpoints.
func (e EngagementTimeline) Endpoints() []time.Time {
	seen := make(map[int64]time.Time)
	addAll := func(ts []time.Time) {
		for _, t := range ts {
			seen[t.UnixNano()] = t
		}
	}
	addAll(e.Active.Endpoints())
	addAll(e.Key.Endpoints())
	addAll(e.Name.Endpoints())
	addAll(e.Unit.Endpoints())

	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sortTimes(out)
	return out
}

func sortTimes(ts []time.Time) {
	slices.SortFunc(ts, func(a, b time.Time) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		default:
			return 0
		}
	})
}
