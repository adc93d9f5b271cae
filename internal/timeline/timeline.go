package timeline

import (
	"fmt"
	"slices"
	"time"
)

// Timeline is a validated, ordered sequence of Interval[V] obeying T1-T4
// (spec §3): intervals share a concrete V (enforced by the type system),
// are strictly sorted by start, never overlap, and never touch with equal
// value. A Timeline is constructed only through New or Combine; there is
// no mutable view that could violate the invariants.
type Timeline[V comparable] struct {
	intervals []Interval[V]
}

// New validates intervals against T2-T4 and returns the constructed
// Timeline. The empty Timeline (zero value) is always valid.
func New[V comparable](intervals []Interval[V]) (Timeline[V], error) {
	for i := 1; i < len(intervals); i++ {
		prev, cur := intervals[i-1], intervals[i]
		if cur.Start.Before(prev.Start) {
			return Timeline[V]{}, fmt.Errorf("%w: interval %d starts before interval %d", ErrUnsorted, i, i-1)
		}
		if cur.Start.Before(prev.End) {
			return Timeline[V]{}, fmt.Errorf("%w: interval %d overlaps interval %d", ErrOverlap, i, i-1)
		}
		if cur.Start.Equal(prev.End) && cur.Value == prev.Value {
			return Timeline[V]{}, fmt.Errorf("%w: interval %d and %d", ErrTouchingEqualValue, i-1, i)
		}
	}
	out := make([]Interval[V], len(intervals))
	copy(out, intervals)
	return Timeline[V]{intervals: out}, nil
}

// Intervals returns a defensive copy of the underlying interval sequence.
func (tl Timeline[V]) Intervals() []Interval[V] {
	out := make([]Interval[V], len(tl.intervals))
	copy(out, tl.intervals)
	return out
}

// Len returns the number of intervals in the timeline.
func (tl Timeline[V]) Len() int { return len(tl.intervals) }

// EntityAt returns the unique interval whose half-open span contains t, and
// true. If no interval covers t, it returns the zero Interval and false.
func (tl Timeline[V]) EntityAt(t time.Time) (Interval[V], bool) {
	// intervals are sorted and non-overlapping: binary search on Start.
	idx, found := slices.BinarySearchFunc(tl.intervals, t, func(iv Interval[V], t time.Time) int {
		if iv.Start.Before(t) {
			return -1
		}
		if iv.Start.After(t) {
			return 1
		}
		return 0
	})
	if found {
		return tl.intervals[idx], true
	}
	// idx is the insertion point: the candidate covering interval, if any,
	// is the one immediately before idx.
	if idx == 0 {
		return Interval[V]{}, false
	}
	candidate := tl.intervals[idx-1]
	if candidate.Contains(t) {
		return candidate, true
	}
	return Interval[V]{}, false
}

// Endpoints returns the sorted, de-duplicated set of every start and end
// timestamp in the timeline.
func (tl Timeline[V]) Endpoints() []time.Time {
	seen := make(map[int64]time.Time, len(tl.intervals)*2)
	for _, iv := range tl.intervals {
		seen[iv.Start.UnixNano()] = iv.Start
		seen[iv.End.UnixNano()] = iv.End
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b time.Time) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		default:
			return 0
		}
	})
	return out
}

// Combine merges adjacent intervals of raw that touch (i.End == j.Start)
// AND share the same value, yielding a Timeline obeying T1-T4. raw must
// already be sorted by start and non-overlapping; Combine's job is purely
// to close T4 gaps left by a naive per-status-change reader (spec §4.1).
func Combine[V comparable](raw []Interval[V]) (Timeline[V], error) {
	if len(raw) == 0 {
		return Timeline[V]{}, nil
	}
	merged := make([]Interval[V], 0, len(raw))
	groupStart := raw[0]
	groupEnd := raw[0].End
	for i := 1; i < len(raw); i++ {
		cur := raw[i]
		if cur.Start.Equal(groupEnd) && cur.Value == groupStart.Value {
			groupEnd = cur.End
			continue
		}
		merged = append(merged, Interval[V]{Start: groupStart.Start, End: groupEnd, Value: groupStart.Value})
		groupStart = cur
		groupEnd = cur.End
	}
	merged = append(merged, Interval[V]{Start: groupStart.Start, End: groupEnd, Value: groupStart.Value})
	return New(merged)
}

// union merges and de-duplicates two sorted timestamp slices.
func union(a, b []time.Time) []time.Time {
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
