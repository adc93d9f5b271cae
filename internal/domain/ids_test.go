package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitID_ParseAndZero(t *testing.T) {
	var zero UnitID
	assert.True(t, zero.IsZero())

	id, err := ParseUnitID("4c2d6b5e-6f2b-4a3a-9e1e-9a6b9a8f0a10")
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	assert.Equal(t, "4c2d6b5e-6f2b-4a3a-9e1e-9a6b9a8f0a10", id.String())

	_, err = ParseUnitID("not-a-uuid")
	assert.Error(t, err)
}

func TestFatal_WrapsAndUnwraps(t *testing.T) {
	assert.Nil(t, Fatal(nil))

	cause := errors.New("boom")
	wrapped := Fatal(cause)
	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsFatal(cause))
	assert.ErrorIs(t, wrapped, cause)
}

func TestForUnit_WrapsAndUnitOf(t *testing.T) {
	assert.Nil(t, ForUnit(UnitID{}, nil))

	id, err := ParseUnitID("4c2d6b5e-6f2b-4a3a-9e1e-9a6b9a8f0a10")
	require.NoError(t, err)

	cause := errors.New("upstream exploded")
	wrapped := ForUnit(id, cause)

	got, ok := UnitOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.ErrorIs(t, wrapped, cause)

	_, ok = UnitOf(cause)
	assert.False(t, ok)
}

func TestForUnit_ComposesWithFatal(t *testing.T) {
	id, err := ParseUnitID("4c2d6b5e-6f2b-4a3a-9e1e-9a6b9a8f0a10")
	require.NoError(t, err)

	wrapped := Fatal(ForUnit(id, errors.New("invariant breach")))
	assert.True(t, IsFatal(wrapped))

	got, ok := UnitOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, id, got)
}
