// Package timeline implements the half-open interval algebra the rest of
// the reconciliation core is built on: a validated, immutable Timeline[V]
// that combines and diffs sorted interval sequences (spec §3, §4.1).
package timeline

import "time"

// NegInf and PosInf are the sentinel instants representing the open ends
// of time. They compare as strictly less/greater than every finite,
// zoned instant and propagate through combine/diff unchanged (spec §3).
var (
	NegInf = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	PosInf = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// Before reports whether a is strictly before b, honouring the NegInf/PosInf
// sentinels. Both timestamps must be zoned (non-UTC zones are permitted;
// only the location must be non-nil, which time.Time guarantees).
func Before(a, b time.Time) bool {
	return a.Before(b)
}

// MidnightAfter returns the absolute instant midnight(day+1) in loc, the
// conversion SRC uses for an inclusive "valid through" end date (spec §4.2).
func MidnightAfter(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
