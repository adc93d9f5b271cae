package treediff_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/treediff"
	"github.com/rezkam/reconcile/internal/unit"
)

func id(t *testing.T) domain.UnitID {
	t.Helper()
	return domain.UnitID(uuid.New())
}

func TestDiff_AddsMissingUnit(t *testing.T) {
	root := domain.UnitID{}
	a := id(t)

	src, err := unit.NewTree(root, []*unit.Unit{{ID: a, HasParent: true, ParentID: root, Name: "A"}})
	require.NoError(t, err)
	dst, err := unit.NewTree(root, nil)
	require.NoError(t, err)

	ops := treediff.Diff(src, dst, root)
	require.Len(t, ops, 1)
	assert.Equal(t, treediff.OpAdd, ops[0].Kind)
	assert.Equal(t, a, ops[0].Unit.ID)
}

func TestDiff_EmitsMoveOnParentChange(t *testing.T) {
	root := domain.UnitID{}
	a := id(t)
	b := id(t)

	src, err := unit.NewTree(root, []*unit.Unit{
		{ID: a, HasParent: true, ParentID: root, Name: "A"},
		{ID: b, HasParent: true, ParentID: root, Name: "B"},
	})
	require.NoError(t, err)
	dst, err := unit.NewTree(root, []*unit.Unit{
		{ID: a, HasParent: true, ParentID: root, Name: "A"},
		{ID: b, HasParent: true, ParentID: a, Name: "B"},
	})
	require.NoError(t, err)

	ops := treediff.Diff(src, dst, root)
	require.Len(t, ops, 1)
	assert.Equal(t, treediff.OpMove, ops[0].Kind)
	assert.Equal(t, b, ops[0].Unit.ID)
	assert.Equal(t, root, ops[0].NewParent)
}

func TestDiff_NoOpWhenIdentical(t *testing.T) {
	root := domain.UnitID{}
	a := id(t)

	units := []*unit.Unit{{ID: a, HasParent: true, ParentID: root, Name: "A", UserKey: "a1", Level: "L1"}}
	src, err := unit.NewTree(root, units)
	require.NoError(t, err)
	dst, err := unit.NewTree(root, units)
	require.NoError(t, err)

	ops := treediff.Diff(src, dst, root)
	assert.Empty(t, ops)
}
