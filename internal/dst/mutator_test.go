package dst_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/timeline"
)

func TestRewriteEnd_PosInfBecomesZero(t *testing.T) {
	got := dst.RewriteEnd(timeline.PosInf, time.UTC)
	assert.True(t, got.IsZero())
}

func TestRewriteEnd_FiniteSubtractsOneDay(t *testing.T) {
	end := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	got := dst.RewriteEnd(end, time.UTC)
	assert.True(t, got.Equal(time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)))
}

func TestBuildTermination_OpenEndedUsesCutoff(t *testing.T) {
	start := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	got := dst.BuildTermination(start, timeline.PosInf, time.UTC)
	require.True(t, got.OpenEnded)
	assert.True(t, got.Cutoff.Equal(time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)))
}

func TestBuildTermination_FiniteSpansStartToRewrittenEnd(t *testing.T) {
	start := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	got := dst.BuildTermination(start, end, time.UTC)
	require.False(t, got.OpenEnded)
	assert.True(t, got.Start.Equal(start))
	assert.True(t, got.End.Equal(time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)))
}
