package dst

import (
	"sort"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/timeline"
	"github.com/rezkam/reconcile/internal/unit"
)

// adjustEnd implements the C3 half of the calendar-day asymmetry (spec
// §4.3): DST's stored end date is one day behind what was written, so
// the reader adds a day (in zone) before storing into an Interval. A
// NULL end (zero Time) becomes PosInf. This is the only place the read
// side of the asymmetry is handled.
func adjustEnd(to time.Time, zone *time.Location) time.Time {
	if to.IsZero() {
		return timeline.PosInf
	}
	return timeline.MidnightAfter(to, zone)
}

// adjustStart normalises a DST "from" date into a zoned midnight
// instant.
func adjustStart(from time.Time, zone *time.Location) time.Time {
	y, m, d := from.In(zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, zone)
}

// BuildUnitTimelines groups validities by unit and produces one
// UnitTimeline per unit (spec §4.3).
func BuildUnitTimelines(zone *time.Location, validities []UnitValidity) (map[domain.UnitID]unit.UnitTimeline, error) {
	byUnit := make(map[domain.UnitID][]UnitValidity)
	for _, v := range validities {
		byUnit[v.ID] = append(byUnit[v.ID], v)
	}

	out := make(map[domain.UnitID]unit.UnitTimeline, len(byUnit))
	for id, vs := range byUnit {
		sort.Slice(vs, func(i, j int) bool { return vs[i].From.Before(vs[j].From) })

		var (
			activeRaw []timeline.Interval[bool]
			nameRaw   []timeline.Interval[string]
			keyRaw    []timeline.Interval[string]
			levelRaw  []timeline.Interval[timeline.Option[string]]
			parentRaw []timeline.Interval[timeline.Option[domain.UnitID]]
		)
		for _, v := range vs {
			start := adjustStart(v.From, zone)
			end := adjustEnd(v.To, zone)

			iv, err := timeline.NewInterval(start, end, true)
			if err != nil {
				return nil, err
			}
			activeRaw = append(activeRaw, iv)

			nameIv, err := timeline.NewInterval(start, end, v.Name)
			if err != nil {
				return nil, err
			}
			nameRaw = append(nameRaw, nameIv)

			keyIv, err := timeline.NewInterval(start, end, v.UserKey)
			if err != nil {
				return nil, err
			}
			keyRaw = append(keyRaw, keyIv)

			level := timeline.None[string]()
			if v.Level != "" {
				level = timeline.Some(v.Level)
			}
			levelIv, err := timeline.NewInterval(start, end, level)
			if err != nil {
				return nil, err
			}
			levelRaw = append(levelRaw, levelIv)

			parent := timeline.None[domain.UnitID]()
			if v.HasParent {
				parent = timeline.Some(v.ParentID)
			}
			parentIv, err := timeline.NewInterval(start, end, parent)
			if err != nil {
				return nil, err
			}
			parentRaw = append(parentRaw, parentIv)
		}

		active, err := timeline.Combine(activeRaw)
		if err != nil {
			return nil, err
		}
		name, err := timeline.Combine(nameRaw)
		if err != nil {
			return nil, err
		}
		key, err := timeline.Combine(keyRaw)
		if err != nil {
			return nil, err
		}
		level, err := timeline.Combine(levelRaw)
		if err != nil {
			return nil, err
		}
		parent, err := timeline.Combine(parentRaw)
		if err != nil {
			return nil, err
		}

		out[id] = unit.UnitTimeline{
			Active: active,
			Name:   name,
			UnitID: key,
			Level:  level,
			Parent: parent,
		}
	}
	return out, nil
}

// BuildEngagementTimelines groups validities by employment key and
// produces one EngagementTimeline per engagement.
func BuildEngagementTimelines(zone *time.Location, validities []EngagementValidity) (map[domain.EmploymentKey]unit.EngagementTimeline, error) {
	byKey := make(map[domain.EmploymentKey][]EngagementValidity)
	for _, v := range validities {
		byKey[v.Key] = append(byKey[v.Key], v)
	}

	out := make(map[domain.EmploymentKey]unit.EngagementTimeline, len(byKey))
	for key, vs := range byKey {
		sort.Slice(vs, func(i, j int) bool { return vs[i].From.Before(vs[j].From) })

		var (
			activeRaw []timeline.Interval[bool]
			keyRaw    []timeline.Interval[string]
			nameRaw   []timeline.Interval[string]
			unitRaw   []timeline.Interval[domain.UnitID]
			typeRaw   []timeline.Interval[timeline.Option[domain.EngagementType]]
		)
		for _, v := range vs {
			start := adjustStart(v.From, zone)
			end := adjustEnd(v.To, zone)

			activeIv, err := timeline.NewInterval(start, end, true)
			if err != nil {
				return nil, err
			}
			activeRaw = append(activeRaw, activeIv)

			jobIv, err := timeline.NewInterval(start, end, v.JobKey)
			if err != nil {
				return nil, err
			}
			keyRaw = append(keyRaw, jobIv)

			nameIv, err := timeline.NewInterval(start, end, v.Name)
			if err != nil {
				return nil, err
			}
			nameRaw = append(nameRaw, nameIv)

			unitIv, err := timeline.NewInterval(start, end, v.UnitID)
			if err != nil {
				return nil, err
			}
			unitRaw = append(unitRaw, unitIv)

			engType := timeline.None[domain.EngagementType]()
			if v.EngType != nil {
				engType = timeline.Some(*v.EngType)
			}
			typeIv, err := timeline.NewInterval(start, end, engType)
			if err != nil {
				return nil, err
			}
			typeRaw = append(typeRaw, typeIv)
		}

		active, err := timeline.Combine(activeRaw)
		if err != nil {
			return nil, err
		}
		jobKey, err := timeline.Combine(keyRaw)
		if err != nil {
			return nil, err
		}
		name, err := timeline.Combine(nameRaw)
		if err != nil {
			return nil, err
		}
		unitTl, err := timeline.Combine(unitRaw)
		if err != nil {
			return nil, err
		}
		typeTl, err := timeline.Combine(typeRaw)
		if err != nil {
			return nil, err
		}

		out[key] = unit.EngagementTimeline{
			Active: active,
			Key:    jobKey,
			Name:   name,
			Unit:   unitTl,
			Type:   typeTl,
		}
	}
	return out, nil
}

// BuildCurrentTree reconstructs the DST unit tree as of asOf, the
// snapshot C4 diffs against. A unit is included when one of its
// validities covers asOf.
func BuildCurrentTree(zone *time.Location, root domain.UnitID, validities []UnitValidity, asOf time.Time) (*unit.Tree, error) {
	byUnit := make(map[domain.UnitID][]UnitValidity)
	for _, v := range validities {
		byUnit[v.ID] = append(byUnit[v.ID], v)
	}

	units := make([]*unit.Unit, 0, len(byUnit))
	for id, vs := range byUnit {
		for _, v := range vs {
			start := adjustStart(v.From, zone)
			end := adjustEnd(v.To, zone)
			if asOf.Before(start) || !asOf.Before(end) {
				continue
			}
			units = append(units, &unit.Unit{
				ID:             id,
				ParentID:       v.ParentID,
				HasParent:      v.HasParent,
				UserKey:        v.UserKey,
				Name:           v.Name,
				Level:          v.Level,
				HierarchyClass: v.HierarchyClass,
			})
			break
		}
	}
	return unit.NewTree(root, units)
}
