package src

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/timeline"
	"github.com/rezkam/reconcile/internal/unit"
)

// StatusClassification tells the reader which raw SRC status codes count
// as "active" and which count as "on leave" (spec §4.2). Both sets are
// configuration, not something the core can infer.
type StatusClassification struct {
	ActiveCodes map[string]bool
	LeaveCodes  map[string]bool
}

func (c StatusClassification) isActive(code string) bool { return c.ActiveCodes[code] }
func (c StatusClassification) isLeave(code string) bool   { return c.LeaveCodes[code] }

// dateStart converts a plain SRC calendar date into a zoned instant at
// midnight -- the start of the day it denotes.
func dateStart(d time.Time, zone *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, zone)
}

// dateEnd converts a plain SRC inclusive "valid through" date into the
// exclusive timeline end: midnight of the following day, or PosInf for
// the 9999-12-31 sentinel (spec §4.2).
func dateEnd(d time.Time, zone *time.Location) time.Time {
	if d.Year() == 9999 && d.Month() == time.December && d.Day() == 31 {
		return timeline.PosInf
	}
	return timeline.MidnightAfter(d, zone)
}

// BuildUnitTree converts an Organization response plus the matching
// DepartmentRecords into a *unit.Tree (spec §4.2, C2a). A unit's parent is
// the last entry of its ParentChain as given by org.Units, or root when
// the chain is empty.
//
// Orphan splicing (spec §4.2's "build_extra" mode) is not done here; the
// caller runs SpliceOrphans on the returned tree.
func BuildUnitTree(zone *time.Location, root domain.UnitID, org Organization, departments []DepartmentRecord) (*unit.Tree, error) {
	parentChain := make(map[string][]string, len(org.Units))
	for _, ref := range org.Units {
		parentChain[ref.DepartmentUUID] = ref.ParentChain
	}

	units := make([]*unit.Unit, 0, len(departments))
	for _, d := range departments {
		id, err := domain.ParseUnitID(d.DepartmentUUID)
		if err != nil {
			return nil, fmt.Errorf("department %s: %w", d.DepartmentUUID, err)
		}
		u := &unit.Unit{
			ID:      id,
			UserKey: d.DepartmentID,
			Name:    d.DepartmentName,
			Level:   d.DepartmentLevel,
		}

		if chain := parentChain[d.DepartmentUUID]; len(chain) > 0 {
			parentUUID := chain[len(chain)-1]
			if parentUUID == root.String() {
				u.ParentID = root
			} else {
				parentID, err := domain.ParseUnitID(parentUUID)
				if err != nil {
					return nil, fmt.Errorf("department %s: parent %w", d.DepartmentUUID, err)
				}
				u.ParentID = parentID
			}
			u.HasParent = true
		} else if id != root {
			u.ParentID = root
			u.HasParent = true
		}

		if d.PostalAddress != nil && d.PostalAddress.StandardAddressIdentifier != "" {
			u.Addresses = append(u.Addresses, unit.Address{
				Value: d.PostalAddress.StandardAddressIdentifier,
				Type:  domain.AddressTypePostal,
			})
		}
		if d.ProductionUnitCode != "" {
			u.Addresses = append(u.Addresses, unit.Address{
				Value: d.ProductionUnitCode,
				Type:  domain.AddressTypePNumber,
			})
		}
		units = append(units, u)
	}

	return unit.NewTree(root, units)
}

// SpliceOrphans resolves each orphan unit's ancestor chain (via
// resolveChain) and adds the missing ancestor units to tree, preserving
// I1/I2. buildExtra=false is a no-op. A cycle detected while splicing is
// a hard error (domain.ErrCycleDetected) and is returned; an orphan whose
// chain cannot be resolved is a soft error (domain.ErrOrphanUnresolvable)
// and is skipped, and the remaining orphans are still spliced.
func SpliceOrphans(tree *unit.Tree, root domain.UnitID, orphans []DepartmentReference, buildExtra bool, resolveChain func(departmentUUID string) ([]DepartmentReference, error)) error {
	if !buildExtra {
		return nil
	}
	visiting := make(map[string]bool)
	for _, orphan := range orphans {
		if err := spliceOne(tree, root, orphan.DepartmentUUID, resolveChain, visiting); err != nil {
			if errors.Is(err, domain.ErrOrphanUnresolvable) && !domain.IsFatal(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func spliceOne(tree *unit.Tree, root domain.UnitID, departmentUUID string, resolveChain func(string) ([]DepartmentReference, error), visiting map[string]bool) error {
	id, err := domain.ParseUnitID(departmentUUID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOrphanUnresolvable, err)
	}
	if _, ok := tree.Get(id); ok {
		return nil // already present
	}
	if visiting[departmentUUID] {
		return domain.Fatal(domain.ErrCycleDetected)
	}
	visiting[departmentUUID] = true
	defer delete(visiting, departmentUUID)

	chain, err := resolveChain(departmentUUID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOrphanUnresolvable, err)
	}

	placeholder := &unit.Unit{ID: id}
	for _, ref := range chain {
		if ref.DepartmentUUID != departmentUUID {
			continue
		}
		placeholder.Level = ref.DepartmentLevel
		if len(ref.ParentChain) == 0 {
			continue
		}
		parentUUID := ref.ParentChain[len(ref.ParentChain)-1]
		if parentUUID == root.String() {
			placeholder.HasParent = true
			placeholder.ParentID = root
			continue
		}
		if err := spliceOne(tree, root, parentUUID, resolveChain, visiting); err != nil {
			return err
		}
		parentID, err := domain.ParseUnitID(parentUUID)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrOrphanUnresolvable, err)
		}
		placeholder.HasParent = true
		placeholder.ParentID = parentID
	}
	if err := tree.Add(placeholder); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOrphanUnresolvable, err)
	}
	return nil
}

// BuildEngagementTimeline converts one person's employment-change records
// (already filtered to a single employment ID) into an EngagementTimeline
// plus a separate leave Timeline (spec §4.2).
func BuildEngagementTimeline(zone *time.Location, unitID domain.UnitID, records []EmploymentStatusRecord, classification StatusClassification) (unit.EngagementTimeline, timeline.Timeline[bool], error) {
	sorted := make([]EmploymentStatusRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ActivationDate.Before(sorted[j].ActivationDate) })

	var (
		activeRaw []timeline.Interval[bool]
		keyRaw    []timeline.Interval[string]
		nameRaw   []timeline.Interval[string]
		unitRaw   []timeline.Interval[domain.UnitID]
		typeRaw   []timeline.Interval[timeline.Option[domain.EngagementType]]
		leaveRaw  []timeline.Interval[bool]
	)

	for _, r := range sorted {
		start := dateStart(r.ActivationDate, zone)
		end := dateEnd(r.DeactivationDate, zone)

		active := classification.isActive(r.StatusCode)
		if iv, err := timeline.NewInterval(start, end, active); err == nil {
			activeRaw = append(activeRaw, iv)
		} else {
			return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
		}

		if iv, err := timeline.NewInterval(start, end, r.JobPositionIdentifier); err == nil {
			keyRaw = append(keyRaw, iv)
		} else {
			return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
		}

		if iv, err := timeline.NewInterval(start, end, r.EmploymentName); err == nil {
			nameRaw = append(nameRaw, iv)
		} else {
			return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
		}

		depID, err := domain.ParseUnitID(r.DepartmentUUID)
		if err != nil {
			return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
		}
		if iv, err := timeline.NewInterval(start, end, depID); err == nil {
			unitRaw = append(unitRaw, iv)
		} else {
			return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
		}

		engType := domain.ClassifyEngagementType(r.SalariedIndicator, r.FullTimeIndicator)
		if iv, err := timeline.NewInterval(start, end, timeline.Some(engType)); err == nil {
			typeRaw = append(typeRaw, iv)
		} else {
			return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
		}

		if classification.isLeave(r.StatusCode) {
			if iv, err := timeline.NewInterval(start, end, true); err == nil {
				leaveRaw = append(leaveRaw, iv)
			} else {
				return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
			}
		}
	}

	active, err := timeline.Combine(activeRaw)
	if err != nil {
		return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
	}
	key, err := timeline.Combine(keyRaw)
	if err != nil {
		return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
	}
	name, err := timeline.Combine(nameRaw)
	if err != nil {
		return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
	}
	unitTl, err := timeline.Combine(unitRaw)
	if err != nil {
		return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
	}
	typeTl, err := timeline.Combine(typeRaw)
	if err != nil {
		return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
	}
	leave, err := timeline.Combine(leaveRaw)
	if err != nil {
		return unit.EngagementTimeline{}, timeline.Timeline[bool]{}, err
	}

	return unit.EngagementTimeline{
		Active: active,
		Key:    key,
		Name:   name,
		Unit:   unitTl,
		Type:   typeTl,
		UnitID: timeline.Timeline[timeline.Option[string]]{},
	}, leave, nil
}
