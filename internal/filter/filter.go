// Package filter implements the three pure unit filters of spec §4.8
// (C8): by uuid, by name regex deny-list, and by hierarchy class.
package filter

import (
	"context"
	"regexp"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/unit"
)

// ByUUID retains only the unit whose ID matches id. A zero id is a
// pass-through (no uuid filter configured).
func ByUUID(units []*unit.Unit, id domain.UnitID) []*unit.Unit {
	if id.IsZero() {
		return units
	}
	out := make([]*unit.Unit, 0, 1)
	for _, u := range units {
		if u.ID == id {
			out = append(out, u)
		}
	}
	return out
}

// ByNameRegex drops a unit when its name matches any compiled regex
// from deny.
func ByNameRegex(units []*unit.Unit, deny []*regexp.Regexp) []*unit.Unit {
	if len(deny) == 0 {
		return units
	}
	out := make([]*unit.Unit, 0, len(units))
	for _, u := range units {
		if matchesAny(u.Name, deny) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func matchesAny(name string, deny []*regexp.Regexp) bool {
	for _, re := range deny {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// ByHierarchyClass, when enabled, retains only units whose
// HierarchyClass equals the UUID resolved for "line management" via
// resolver (looked up once per run, per spec §4.8).
func ByHierarchyClass(ctx context.Context, units []*unit.Unit, enabled bool, resolver dst.ClassResolver, facet, className string) ([]*unit.Unit, error) {
	if !enabled {
		return units, nil
	}
	lineManagement, err := resolver.ResolveClass(ctx, facet, className)
	if err != nil {
		return nil, err
	}
	out := make([]*unit.Unit, 0, len(units))
	for _, u := range units {
		if u.HierarchyClass != nil && *u.HierarchyClass == lineManagement {
			out = append(out, u)
		}
	}
	return out, nil
}
