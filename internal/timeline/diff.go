package timeline

// Diff produces a Timeline whose value at each sub-interval is: Some(v)
// when self covers it with value v and either other does not cover it or
// covers it with a different value; None when other covers a sub-interval
// that self does not. Sub-intervals where both agree are absent from the
// result (spec §4.1). diff(x, x) is always empty (P3); diff(x, empty)
// reproduces x with every value wrapped in Some (P4); diff(empty, x) is
// None across x's entire support (P4).
func Diff[V comparable](self, other Timeline[V]) (Timeline[Option[V]], error) {
	endpoints := union(self.Endpoints(), other.Endpoints())
	if len(endpoints) < 2 {
		return Timeline[Option[V]]{}, nil
	}

	raw := make([]Interval[Option[V]], 0, len(endpoints)-1)
	for i := 0; i < len(endpoints)-1; i++ {
		a, b := endpoints[i], endpoints[i+1]

		selfIv, selfOK := self.EntityAt(a)
		otherIv, otherOK := other.EntityAt(a)

		switch {
		case selfOK && !otherOK:
			raw = append(raw, Interval[Option[V]]{Start: a, End: b, Value: Some(selfIv.Value)})
		case !selfOK && otherOK:
			raw = append(raw, Interval[Option[V]]{Start: a, End: b, Value: None[V]()})
		case selfOK && otherOK:
			if selfIv.Value != otherIv.Value {
				raw = append(raw, Interval[Option[V]]{Start: a, End: b, Value: Some(selfIv.Value)})
			}
			// both present and equal: no emission
		default:
			// both absent: no emission
		}
	}

	return Combine(raw)
}
