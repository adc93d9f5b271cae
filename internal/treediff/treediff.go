// Package treediff computes the ordered sequence of structural unit
// operations (Add/Update/Move) needed to bring a DST unit tree in line
// with its SRC counterpart (spec §4.4, C4). Termination of units is the
// timeline reconciler's job, not this package's.
package treediff

import (
	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/unit"
)

// OpKind distinguishes the three structural operations the differ can
// emit.
type OpKind int

const (
	OpAdd OpKind = iota
	OpUpdate
	OpMove
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "AddUnit"
	case OpUpdate:
		return "UpdateUnit"
	case OpMove:
		return "MoveUnit"
	default:
		return "unknown"
	}
}

// Op is one structural operation, carrying the SRC unit state to write
// and, for a Move, the new parent.
type Op struct {
	Kind      OpKind
	Unit      *unit.Unit
	NewParent domain.UnitID
}

// Diff walks src in pre-order from root and emits, for every unit:
//   - AddUnit when its UUID is absent from dst;
//   - UpdateUnit when present but name/user_key/parent/level differs,
//     reclassified as MoveUnit when specifically the parent changed;
//   - nothing when every compared field is equal.
//
// Pre-order walk over src satisfies O1 (a unit is visited, and its
// AddUnit/UpdateUnit emitted, before any of its children) and O2 (a
// child's MoveUnit therefore always follows its new parent's AddUnit,
// since the parent is an ancestor in the same walk). O3 is left to the
// walk's own deterministic but otherwise unspecified child order.
func Diff(src, dst *unit.Tree, root domain.UnitID) []Op {
	var ops []Op
	src.Walk(root, func(u *unit.Unit) {
		existing, ok := dst.Get(u.ID)
		if !ok {
			ops = append(ops, Op{Kind: OpAdd, Unit: u})
			return
		}
		if op, changed := classify(u, existing); changed {
			ops = append(ops, op)
		}
	})
	return ops
}

func classify(src, dst *unit.Unit) (Op, bool) {
	parentChanged := src.HasParent != dst.HasParent || (src.HasParent && src.ParentID != dst.ParentID)
	fieldsChanged := src.Name != dst.Name || src.UserKey != dst.UserKey || src.Level != dst.Level

	if !parentChanged && !fieldsChanged {
		return Op{}, false
	}
	if parentChanged {
		return Op{Kind: OpMove, Unit: src, NewParent: src.ParentID}, true
	}
	return Op{Kind: OpUpdate, Unit: src}, true
}
