// Package src converts SRC's (the authoritative HR/payroll source) wire
// responses into the domain's Unit trees and EngagementTimelines (spec
// §4.2, C2). The readers depend only on the narrow Client interface
// below; HTTPClient is the package's JSON-over-HTTP implementation of it,
// with its own retry policy.
package src

import (
	"context"
	"time"
)

// SrcZone is the fixed zone SRC's calendar dates are interpreted in.
var SrcZone = time.Local

// Client is the read-only facade this package consumes (spec §6).
type Client interface {
	GetOrganization(ctx context.Context, institution string) (Organization, error)
	GetDepartments(ctx context.Context, institution string, activation, deactivation time.Time) ([]DepartmentRecord, error)
	GetEmploymentChanged(ctx context.Context, cpr, employmentID string, from, to time.Time) ([]EmploymentStatusRecord, error)
	GetPerson(ctx context.Context, institution, cpr string, effective time.Time) (PersonRecord, error)
}

// Organization is SRC's organisation-tree response: a chain of department
// references, each with its own activation window.
type Organization struct {
	InstitutionIdentifier string
	Units                 []DepartmentReference
}

// DepartmentReference is one entry in the SRC organisation-tree response:
// a department UUID plus the parent chain above it and its activation
// window.
type DepartmentReference struct {
	DepartmentUUID   string
	DepartmentLevel  string
	ParentChain      []string // ancestor UUIDs, root-first, ending just above DepartmentUUID
	ActivationDate   time.Time
	DeactivationDate time.Time // SentinelEndDate (9999-12-31) when open-ended
}

// SDPostalAddress mirrors SRC's optional postal-address payload on a
// department record.
type SDPostalAddress struct {
	StandardAddressIdentifier string
}

// DepartmentRecord is one SRC department as returned by get_departments.
type DepartmentRecord struct {
	DepartmentUUID     string
	DepartmentName     string
	DepartmentLevel    string
	DepartmentID       string // human-readable department identifier
	ActivationDate     time.Time
	DeactivationDate   time.Time
	PostalAddress      *SDPostalAddress
	ProductionUnitCode string // empty when absent
}

// EmploymentStatusRecord is one row of SRC's per-employment change
// timeline (get_employment_changed).
type EmploymentStatusRecord struct {
	CPR                   string
	EmploymentID          string
	StatusCode            string // maps to active/leave via classification tables
	ActivationDate        time.Time
	DeactivationDate      time.Time
	DepartmentUUID        string
	JobPositionIdentifier string
	EmploymentName        string
	SalariedIndicator     bool
	FullTimeIndicator     bool
}

// PersonRecord is SRC's get_person response.
type PersonRecord struct {
	CPR           string
	GivenName     string
	Surname       string
	EmploymentIDs []string
}

// SentinelEndDate is the raw SRC value meaning "valid indefinitely".
const SentinelEndDate = "9999-12-31"
