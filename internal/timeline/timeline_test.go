package timeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/timeline"
	"github.com/rezkam/reconcile/internal/timeline/conformance"
)

func mustInterval[V comparable](t *testing.T, start, end time.Time, v V) timeline.Interval[V] {
	t.Helper()
	iv, err := timeline.NewInterval(start, end, v)
	require.NoError(t, err)
	return iv
}

func TestTimelineConformance_Bool(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, 10)
	t2 := t0.AddDate(0, 0, 20)
	t3 := t0.AddDate(0, 0, 30)
	conformance.RunTimelineProperties[bool](t, true, false, t0, t1, t2, t3)
}

func TestTimelineConformance_String(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, 5)
	t2 := t0.AddDate(0, 0, 15)
	t3 := t0.AddDate(0, 0, 25)
	conformance.RunTimelineProperties[string](t, "Department A", "Department B", t0, t1, t2, t3)
}

func TestNewInterval_RejectsNaiveTimestamps(t *testing.T) {
	naive := time.Date(2024, 1, 1, 0, 0, 0, 0, nil) //nolint:staticcheck // intentional: constructing a naive time
	zoned := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err := timeline.NewInterval(naive, zoned, "x")
	assert.Error(t, err)
}

func TestNewInterval_RejectsNonPositiveSpan(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := timeline.NewInterval(t0, t0, "x")
	assert.Error(t, err)

	_, err = timeline.NewInterval(t0, t0.Add(-time.Hour), "x")
	assert.Error(t, err)
}

func TestCombine_MergesTouchingEqualValueOnly(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, 1)
	t2 := t0.AddDate(0, 0, 2)
	t3 := t0.AddDate(0, 0, 3)

	raw := []timeline.Interval[string]{
		mustInterval(t, t0, t1, "A"),
		mustInterval(t, t1, t2, "A"),
		mustInterval(t, t2, t3, "B"),
	}
	tl, err := timeline.Combine(raw)
	require.NoError(t, err)
	got := tl.Intervals()
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(t0))
	assert.True(t, got[0].End.Equal(t2))
	assert.Equal(t, "A", got[0].Value)
	assert.Equal(t, "B", got[1].Value)
}

func TestCombine_PreservesGapsWithRepeatedValues(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, 1)
	t2 := t0.AddDate(0, 0, 2) // gap between t1 and t2
	t3 := t0.AddDate(0, 0, 3)

	raw := []timeline.Interval[string]{
		mustInterval(t, t0, t1, "A"),
		mustInterval(t, t2, t3, "A"),
	}
	tl, err := timeline.Combine(raw)
	require.NoError(t, err)
	assert.Len(t, tl.Intervals(), 2, "a gap must not be merged even with repeated values")
}

// TestDiff_LiteralScenario is spec §8 scenario S7.
func TestDiff_LiteralScenario(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := base
	t2 := base.AddDate(0, 0, 1)
	t3 := base.AddDate(0, 0, 2)
	t4 := base.AddDate(0, 0, 3)
	t5 := base.AddDate(0, 0, 4)
	t6 := base.AddDate(0, 0, 5)
	posInf := timeline.PosInf

	us, err := timeline.New([]timeline.Interval[bool]{
		mustInterval(t, t1, t3, true),
		mustInterval(t, t5, t6, false),
	})
	require.NoError(t, err)

	them, err := timeline.New([]timeline.Interval[bool]{
		mustInterval(t, t2, t4, true),
		mustInterval(t, t4, posInf, false),
	})
	require.NoError(t, err)

	d, err := timeline.Diff(us, them)
	require.NoError(t, err)

	got := d.Intervals()
	require.Len(t, got, 3)

	v0, present0 := got[0].Value.Value()
	assert.True(t, got[0].Start.Equal(t1))
	assert.True(t, got[0].End.Equal(t2))
	assert.True(t, present0)
	assert.True(t, v0)

	_, present1 := got[1].Value.Value()
	assert.True(t, got[1].Start.Equal(t3))
	assert.True(t, got[1].End.Equal(t5))
	assert.False(t, present1)

	_, present2 := got[2].Value.Value()
	assert.True(t, got[2].Start.Equal(t6))
	assert.True(t, got[2].End.Equal(posInf))
	assert.False(t, present2)
}

func TestEndpoints_UnionOfStartsAndEnds(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, 1)
	t2 := t0.AddDate(0, 0, 2)

	tl, err := timeline.New([]timeline.Interval[bool]{
		mustInterval(t, t0, t1, true),
		mustInterval(t, t1, t2, false),
	})
	require.NoError(t, err)

	eps := tl.Endpoints()
	require.Len(t, eps, 3)
	assert.True(t, eps[0].Equal(t0))
	assert.True(t, eps[1].Equal(t1))
	assert.True(t, eps[2].Equal(t2))
}

func TestMidnightAfter(t *testing.T) {
	day := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)
	got := timeline.MidnightAfter(day, time.UTC)
	want := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	assert.True(t, got.Equal(want))
}
