package src_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/src"
)

var utc = time.UTC

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, utc)
}

func TestBuildUnitTree_DerivesParentFromChain(t *testing.T) {
	root := domain.UnitID{}
	childA := uuid.New().String()
	childB := uuid.New().String()

	org := src.Organization{
		Units: []src.DepartmentReference{
			{DepartmentUUID: childA, ParentChain: nil},
			{DepartmentUUID: childB, ParentChain: []string{childA}},
		},
	}
	departments := []src.DepartmentRecord{
		{DepartmentUUID: childA, DepartmentName: "A"},
		{DepartmentUUID: childB, DepartmentName: "B"},
	}

	tree, err := src.BuildUnitTree(utc, root, org, departments)
	require.NoError(t, err)

	aID, _ := domain.ParseUnitID(childA)
	bID, _ := domain.ParseUnitID(childB)

	a, ok := tree.Get(aID)
	require.True(t, ok)
	assert.True(t, a.HasParent)
	assert.Equal(t, root, a.ParentID)

	b, ok := tree.Get(bID)
	require.True(t, ok)
	assert.True(t, b.HasParent)
	assert.Equal(t, aID, b.ParentID)
}

func TestBuildEngagementTimeline_SentinelAndDayBoundary(t *testing.T) {
	unitA := uuid.New().String()
	classification := src.StatusClassification{
		ActiveCodes: map[string]bool{"1": true},
		LeaveCodes:  map[string]bool{"3": true},
	}

	records := []src.EmploymentStatusRecord{
		{
			StatusCode:            "1",
			ActivationDate:        date(2020, 1, 1),
			DeactivationDate:      date(2020, 1, 31),
			DepartmentUUID:        unitA,
			JobPositionIdentifier: "dev",
			EmploymentName:        "Developer",
			SalariedIndicator:     true,
			FullTimeIndicator:     true,
		},
		{
			StatusCode:            "3",
			ActivationDate:        date(2020, 2, 1),
			DeactivationDate:      date(2020, 2, 29),
			DepartmentUUID:        unitA,
			JobPositionIdentifier: "dev",
			EmploymentName:        "Developer",
			SalariedIndicator:     true,
			FullTimeIndicator:     true,
		},
		{
			StatusCode:            "1",
			ActivationDate:        date(2020, 3, 1),
			DeactivationDate:      date(9999, 12, 31),
			DepartmentUUID:        unitA,
			JobPositionIdentifier: "dev",
			EmploymentName:        "Developer",
			SalariedIndicator:     true,
			FullTimeIndicator:     false,
		},
	}

	eng, leave, err := src.BuildEngagementTimeline(utc, domain.UnitID{}, records, classification)
	require.NoError(t, err)

	jan, ok := eng.Active.EntityAt(date(2020, 1, 15))
	require.True(t, ok)
	assert.True(t, jan.Value)
	assert.True(t, jan.End.Equal(date(2020, 2, 1)))

	feb, ok := eng.Active.EntityAt(date(2020, 2, 15))
	require.True(t, ok)
	assert.False(t, feb.Value)

	leaveFeb, ok := leave.EntityAt(date(2020, 2, 15))
	require.True(t, ok)
	assert.True(t, leaveFeb.Value)

	open, ok := eng.Active.EntityAt(date(2030, 1, 1))
	require.True(t, ok)
	assert.True(t, open.End.Equal(time.Date(9999, time.December, 31, 23, 59, 59, 999999999, utc)))
}
