// Package dst converts the destination org-identity-store's query
// results into the domain's composite timelines (C3), and translates
// the reconciler's decisions back into DST mutations (C6, spec §4.3,
// §4.6). GraphQLClient is the package's GraphQL-over-HTTP implementation
// of those interfaces, with its own retry policy; the readers and the
// applier depend only on the narrow interfaces below.
package dst

import (
	"context"
	"time"

	"github.com/rezkam/reconcile/internal/domain"
)

// DstZone is the fixed zone DST's validities are interpreted in.
var DstZone = time.Local

// Reader is the read-only facade C3 consumes (spec §6).
type Reader interface {
	GetUnits(ctx context.Context, root domain.UnitID) ([]UnitValidity, error)
	GetEngagements(ctx context.Context, unit domain.UnitID) ([]EngagementValidity, error)
	GetAddresses(ctx context.Context, unit domain.UnitID) ([]AddressValidity, error)

	// GetEngagementByKey returns one engagement's full validity history
	// directly, without a known unit to scope the lookup by. The
	// person-sync use case needs this: it only has an EmploymentKey
	// from SRC's get_person/get_employment_changed response, not a
	// unit ID.
	GetEngagementByKey(ctx context.Context, key domain.EmploymentKey) ([]EngagementValidity, error)
}

// Mutator is the write facade C6 consumes (spec §6).
type Mutator interface {
	CreateUnit(ctx context.Context, op UnitMutation) error
	UpdateUnit(ctx context.Context, op UnitMutation) error
	TerminateUnit(ctx context.Context, id domain.UnitID, op Termination) error

	CreateEngagement(ctx context.Context, op EngagementMutation) error
	UpdateEngagement(ctx context.Context, op EngagementMutation) error
	TerminateEngagement(ctx context.Context, key domain.EmploymentKey, op Termination) error

	CreateAddress(ctx context.Context, unit domain.UnitID, addr AddressMutation) error
	UpdateAddress(ctx context.Context, addr AddressMutation) error
}

// BusinessLogicInvoker is the "apply business logic" side channel M4
// calls after a successful unit Add or Update.
type BusinessLogicInvoker interface {
	ApplyBusinessLogic(ctx context.Context, unit domain.UnitID) error
}

// AddressCleanser canonicalises a raw postal address string into the
// identifier DST expects, per the reconciler's address reducer (spec
// §4.5, §6).
type AddressCleanser interface {
	Cleanse(ctx context.Context, raw string) (string, error)
}

// ClassResolver looks up the UUID of a named class within a facet, used
// by the by-hierarchy-class filter (spec §4.8) to resolve "line
// management" once per run.
type ClassResolver interface {
	ResolveClass(ctx context.Context, facet, className string) (domain.UnitID, error)
}

// UnitValidity is one DST validity period for a unit: name/user-key/
// level/parent plus the auxiliary attributes M3 requires the mutator to
// carry forward.
type UnitValidity struct {
	ID             domain.UnitID
	ParentID       domain.UnitID
	HasParent      bool
	Name           string
	UserKey        string
	Level          string
	HierarchyClass *domain.UnitID
	TimePlanning   *string
	From           time.Time
	To             time.Time // zero Time means NULL (open-ended)
}

// EngagementValidity is one DST validity period for an engagement.
type EngagementValidity struct {
	Key      domain.EmploymentKey
	UnitID   domain.UnitID
	JobKey   string
	Name     string
	EngType  *domain.EngagementType
	From     time.Time
	To       time.Time
}

// AddressValidity is DST's current value for one address type on a unit.
type AddressValidity struct {
	ID    domain.AddressID
	Type  domain.AddressType
	Value string
}

// UnitMutation is the payload C6 sends for a unit Add or Update.
type UnitMutation struct {
	ID             domain.UnitID
	ParentID       domain.UnitID
	HasParent      bool
	Name           string
	UserKey        string
	Level          string
	HierarchyClass *domain.UnitID
	TimePlanning   *string
	From           time.Time
	To             time.Time // zero Time means NULL
}

// EngagementMutation is the payload C6 sends for an engagement Add or
// Update.
type EngagementMutation struct {
	Key     domain.EmploymentKey
	UnitID  domain.UnitID
	JobKey  string
	Name    string
	EngType *domain.EngagementType
	From    time.Time
	To      time.Time
}

// AddressMutation is the payload C6 sends for an address Add or Update.
type AddressMutation struct {
	ID    domain.AddressID
	HasID bool
	Type  domain.AddressType
	Value string
}

// Termination is the payload C6 sends for a Terminate decision, shaped
// per M2 (spec §4.6): a finite-end termination spans [Start, End]; an
// open-ended one carries only Cutoff, DST's "terminate at" form.
type Termination struct {
	OpenEnded bool
	Start     time.Time
	End       time.Time // meaningful only when !OpenEnded
	Cutoff    time.Time // meaningful only when OpenEnded
}
