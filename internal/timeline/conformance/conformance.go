// Package conformance runs the testable properties from spec §8 (P1-P5)
// against any two sample values of a comparable type, so every Timeline[V]
// instantiation used by the codebase can be checked the same way the
// teacher's storage compliance suite checks every Storage implementation.
package conformance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/timeline"
)

// RunTimelineProperties exercises P1-P5 for the type V using two distinct
// sample values a and b. t0 < t1 < t2 < t3 must be strictly increasing,
// zoned instants.
func RunTimelineProperties[V comparable](t *testing.T, a, b V, t0, t1, t2, t3 time.Time) {
	t.Helper()

	t.Run("P1_rejects_unsorted", func(t *testing.T) {
		i0 := must(t, timeline.NewInterval(t1, t2, a))
		i1 := must(t, timeline.NewInterval(t0, t1, b))
		_, err := timeline.New([]timeline.Interval[V]{i0, i1})
		assert.Error(t, err)
	})

	t.Run("P1_rejects_overlap", func(t *testing.T) {
		i0 := must(t, timeline.NewInterval(t0, t2, a))
		i1 := must(t, timeline.NewInterval(t1, t3, b))
		_, err := timeline.New([]timeline.Interval[V]{i0, i1})
		assert.Error(t, err)
	})

	t.Run("P1_rejects_touching_equal_value", func(t *testing.T) {
		i0 := must(t, timeline.NewInterval(t0, t1, a))
		i1 := must(t, timeline.NewInterval(t1, t2, a))
		_, err := timeline.New([]timeline.Interval[V]{i0, i1})
		assert.Error(t, err)
	})

	t.Run("P1_accepts_touching_different_value", func(t *testing.T) {
		i0 := must(t, timeline.NewInterval(t0, t1, a))
		i1 := must(t, timeline.NewInterval(t1, t2, b))
		_, err := timeline.New([]timeline.Interval[V]{i0, i1})
		assert.NoError(t, err)
	})

	t.Run("P2_combine_idempotent", func(t *testing.T) {
		raw := []timeline.Interval[V]{
			must(t, timeline.NewInterval(t0, t1, a)),
			must(t, timeline.NewInterval(t1, t2, a)),
			must(t, timeline.NewInterval(t2, t3, b)),
		}
		once, err := timeline.Combine(raw)
		require.NoError(t, err)
		twice, err := timeline.Combine(once.Intervals())
		require.NoError(t, err)
		assert.Equal(t, once.Intervals(), twice.Intervals())
	})

	t.Run("P3_diff_self_is_empty", func(t *testing.T) {
		tl, err := timeline.New([]timeline.Interval[V]{
			must(t, timeline.NewInterval(t0, t1, a)),
			must(t, timeline.NewInterval(t2, t3, b)),
		})
		require.NoError(t, err)
		d, err := timeline.Diff(tl, tl)
		require.NoError(t, err)
		assert.Equal(t, 0, d.Len())
	})

	t.Run("P4_diff_against_empty", func(t *testing.T) {
		tl, err := timeline.New([]timeline.Interval[V]{
			must(t, timeline.NewInterval(t0, t1, a)),
		})
		require.NoError(t, err)

		forward, err := timeline.Diff(tl, timeline.Timeline[V]{})
		require.NoError(t, err)
		require.Equal(t, 1, forward.Len())
		v, present := forward.Intervals()[0].Value.Value()
		assert.True(t, present)
		assert.Equal(t, a, v)

		backward, err := timeline.Diff(timeline.Timeline[V]{}, tl)
		require.NoError(t, err)
		require.Equal(t, 1, backward.Len())
		_, present = backward.Intervals()[0].Value.Value()
		assert.False(t, present)
	})

	t.Run("P5_entity_at", func(t *testing.T) {
		tl, err := timeline.New([]timeline.Interval[V]{
			must(t, timeline.NewInterval(t0, t1, a)),
			must(t, timeline.NewInterval(t2, t3, b)),
		})
		require.NoError(t, err)

		mid := t0.Add(t1.Sub(t0) / 2)
		iv, ok := tl.EntityAt(mid)
		require.True(t, ok)
		assert.Equal(t, a, iv.Value)

		_, ok = tl.EntityAt(t1)
		assert.False(t, ok, "end is exclusive")

		between := t1.Add(t2.Sub(t1) / 2)
		_, ok = tl.EntityAt(between)
		assert.False(t, ok, "gap between intervals has no entity")
	})
}

func must[V comparable](t *testing.T, iv timeline.Interval[V], err error) timeline.Interval[V] {
	t.Helper()
	require.NoError(t, err)
	return iv
}
