package unit

import (
	"fmt"

	"github.com/rezkam/reconcile/internal/domain"
)

// Unit is a node in the organisational tree (spec §3). The tree relation is
// ParentID -> ID; ID is globally unique within a tree (invariant I1).
type Unit struct {
	ID             domain.UnitID
	ParentID       domain.UnitID // meaningful only when HasParent is true; may be the tree's Root
	HasParent      bool
	UserKey        string
	Name           string
	Level          string
	HierarchyClass *domain.UnitID // nil when unset
	Addresses      []Address
	Children       []*Unit
}

// Address is a postal or production-number address attached to a unit
// (spec §3). A zero ID means the address does not exist in DST yet.
type Address struct {
	ID    domain.AddressID
	HasID bool
	Value string
	Type  domain.AddressType
}

// Tree is an arena of units keyed by UUID plus a separate parent index,
// the representation spec §9 calls for instead of a node holding owning
// references in both directions.
type Tree struct {
	Root     domain.UnitID
	byID     map[domain.UnitID]*Unit
	byParent map[domain.UnitID][]domain.UnitID
}

// NewTree builds a Tree from a flat slice of units, validating I1 (unique
// UUIDs) and I2 (every child's parent exists in the same tree, or is the
// designated root).
func NewTree(root domain.UnitID, units []*Unit) (*Tree, error) {
	t := &Tree{
		Root:     root,
		byID:     make(map[domain.UnitID]*Unit, len(units)),
		byParent: make(map[domain.UnitID][]domain.UnitID, len(units)),
	}
	for _, u := range units {
		if _, dup := t.byID[u.ID]; dup {
			return nil, domain.Fatal(fmt.Errorf("%w: duplicate unit id %s", domain.ErrInvariantViolation, u.ID))
		}
		t.byID[u.ID] = u
	}
	for _, u := range units {
		if !u.HasParent {
			continue
		}
		if u.ParentID != root {
			if _, ok := t.byID[u.ParentID]; !ok {
				return nil, domain.Fatal(fmt.Errorf("%w: unit %s references unknown parent %s", domain.ErrInvariantViolation, u.ID, u.ParentID))
			}
		}
		t.byParent[u.ParentID] = append(t.byParent[u.ParentID], u.ID)
	}
	return t, nil
}

// Add inserts a unit discovered after NewTree built the arena -- the
// build_extra path splices ancestor placeholders in one at a time as it
// resolves each orphan's parent chain. It re-validates I1/I2 for the
// single insertion.
func (t *Tree) Add(u *Unit) error {
	if _, dup := t.byID[u.ID]; dup {
		return domain.Fatal(fmt.Errorf("%w: duplicate unit id %s", domain.ErrInvariantViolation, u.ID))
	}
	if u.HasParent && u.ParentID != t.Root {
		if _, ok := t.byID[u.ParentID]; !ok {
			return domain.Fatal(fmt.Errorf("%w: unit %s references unknown parent %s", domain.ErrInvariantViolation, u.ID, u.ParentID))
		}
	}
	t.byID[u.ID] = u
	if u.HasParent {
		t.byParent[u.ParentID] = append(t.byParent[u.ParentID], u.ID)
	}
	return nil
}

// Get looks up a unit by ID.
func (t *Tree) Get(id domain.UnitID) (*Unit, bool) {
	u, ok := t.byID[id]
	return u, ok
}

// Children returns the direct children of id, in no particular order.
func (t *Tree) Children(id domain.UnitID) []domain.UnitID {
	return t.byParent[id]
}

// Units returns every unit in the tree, in no particular order.
func (t *Tree) Units() []*Unit {
	out := make([]*Unit, 0, len(t.byID))
	for _, u := range t.byID {
		out = append(out, u)
	}
	return out
}

// IsDescendant reports whether id lies within the subtree rooted at
// ancestor (ancestor itself counts), walking the parent chain up to the
// tree's root. Used by the obsolete-units-subtree check (spec §4.6, M4).
func (t *Tree) IsDescendant(id, ancestor domain.UnitID) bool {
	for {
		if id == ancestor {
			return true
		}
		u, ok := t.byID[id]
		if !ok || !u.HasParent {
			return false
		}
		id = u.ParentID
	}
}

// Walk visits every unit reachable from root in pre-order (parent before
// children), the traversal order the tree differ relies on for O3.
func (t *Tree) Walk(root domain.UnitID, visit func(*Unit)) {
	u, ok := t.byID[root]
	if ok {
		visit(u)
	}
	for _, childID := range t.byParent[root] {
		t.Walk(childID, visit)
	}
}
