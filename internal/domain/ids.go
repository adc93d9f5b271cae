package domain

import "github.com/google/uuid"

// UnitID identifies an organisational unit. It is globally unique within a
// tree (invariant I1) and is the join key between SRC and DST (spec §3).
type UnitID uuid.UUID

// String returns the canonical hyphenated form.
func (id UnitID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero UUID (the root sentinel uses this
// to mean "no parent").
func (id UnitID) IsZero() bool { return id == UnitID{} }

// ParseUnitID parses a canonical UUID string into a UnitID.
func ParseUnitID(s string) (UnitID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UnitID{}, err
	}
	return UnitID(u), nil
}

// AddressID identifies an address already written to DST. A zero AddressID
// means "not yet in DST -- this is a create" (spec §3).
type AddressID uuid.UUID

func (id AddressID) String() string { return uuid.UUID(id).String() }
func (id AddressID) IsZero() bool   { return id == AddressID{} }

// PersonKey identifies a person across SRC and DST by their civil
// registration number (CPR in the source system).
type PersonKey string

// EmploymentKey identifies one engagement (employment) for a person; SRC
// calls this the EmploymentIdentifier.
type EmploymentKey string
