package timeline

import "errors"

var (
	// ErrInvalidInterval is returned by NewInterval when the timestamps
	// are naive or End does not come strictly after Start.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrUnsorted is returned when constructing a Timeline from intervals
	// not strictly sorted by start (violates T2).
	ErrUnsorted = errors.New("intervals must be sorted by start")

	// ErrOverlap is returned when two adjacent intervals overlap (violates T3).
	ErrOverlap = errors.New("intervals must not overlap")

	// ErrTouchingEqualValue is returned when two adjacent intervals touch
	// and carry the same value (violates T4).
	ErrTouchingEqualValue = errors.New("adjacent intervals touch with equal value; they should have been combined")
)
