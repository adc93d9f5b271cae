package sync_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/runctl"
	"github.com/rezkam/reconcile/internal/src"
	"github.com/rezkam/reconcile/internal/sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSrcClient struct {
	org         src.Organization
	departments []src.DepartmentRecord
}

func (f fakeSrcClient) GetOrganization(ctx context.Context, institution string) (src.Organization, error) {
	return f.org, nil
}
func (f fakeSrcClient) GetDepartments(ctx context.Context, institution string, activation, deactivation time.Time) ([]src.DepartmentRecord, error) {
	return f.departments, nil
}
func (f fakeSrcClient) GetEmploymentChanged(ctx context.Context, cpr, employmentID string, from, to time.Time) ([]src.EmploymentStatusRecord, error) {
	return nil, nil
}
func (f fakeSrcClient) GetPerson(ctx context.Context, institution, cpr string, effective time.Time) (src.PersonRecord, error) {
	return src.PersonRecord{}, nil
}

type fakeDst struct {
	units     []dst.UnitValidity
	addresses map[domain.UnitID][]dst.AddressValidity
	created   []dst.UnitMutation
	addrs     []dst.AddressMutation
}

func (f *fakeDst) GetUnits(ctx context.Context, root domain.UnitID) ([]dst.UnitValidity, error) {
	return f.units, nil
}
func (f *fakeDst) GetEngagements(ctx context.Context, unit domain.UnitID) ([]dst.EngagementValidity, error) {
	return nil, nil
}
func (f *fakeDst) GetAddresses(ctx context.Context, unit domain.UnitID) ([]dst.AddressValidity, error) {
	return f.addresses[unit], nil
}
func (f *fakeDst) GetEngagementByKey(ctx context.Context, key domain.EmploymentKey) ([]dst.EngagementValidity, error) {
	return nil, nil
}
func (f *fakeDst) CreateUnit(ctx context.Context, op dst.UnitMutation) error {
	f.created = append(f.created, op)
	return nil
}
func (f *fakeDst) UpdateUnit(ctx context.Context, op dst.UnitMutation) error { return nil }
func (f *fakeDst) TerminateUnit(ctx context.Context, id domain.UnitID, op dst.Termination) error {
	return nil
}
func (f *fakeDst) CreateEngagement(ctx context.Context, op dst.EngagementMutation) error { return nil }
func (f *fakeDst) UpdateEngagement(ctx context.Context, op dst.EngagementMutation) error { return nil }
func (f *fakeDst) TerminateEngagement(ctx context.Context, key domain.EmploymentKey, op dst.Termination) error {
	return nil
}
func (f *fakeDst) CreateAddress(ctx context.Context, unit domain.UnitID, addr dst.AddressMutation) error {
	f.addrs = append(f.addrs, addr)
	return nil
}
func (f *fakeDst) UpdateAddress(ctx context.Context, addr dst.AddressMutation) error { return nil }

func TestPipeline_Run_CreatesMissingUnitAndAddress(t *testing.T) {
	unitID := domain.UnitID(uuid.New())
	root := domain.UnitID{}

	srcClient := fakeSrcClient{
		org: src.Organization{
			InstitutionIdentifier: "inst-a",
			Units:                 []src.DepartmentReference{{DepartmentUUID: unitID.String(), ParentChain: nil}},
		},
		departments: []src.DepartmentRecord{{
			DepartmentUUID: unitID.String(),
			DepartmentName: "Engineering",
			DepartmentID:   "ENG",
			PostalAddress:  &src.SDPostalAddress{StandardAddressIdentifier: "addr-1"},
		}},
	}
	dstFake := &fakeDst{addresses: map[domain.UnitID][]dst.AddressValidity{}}

	p := &sync.Pipeline{
		Log:       testLogger(),
		Zone:      time.UTC,
		Root:      root,
		SrcClient: srcClient,
		DstReader: dstFake,
		Applier:   dst.Applier{Mutator: dstFake},
	}

	err := p.Run(context.Background(), "inst-a")
	require.NoError(t, err)

	require.Len(t, dstFake.created, 1)
	assert.Equal(t, unitID, dstFake.created[0].ID)
	require.Len(t, dstFake.addrs, 1)
	assert.Equal(t, "addr-1", dstFake.addrs[0].Value)
}

func TestPipeline_Run_DryRunSkipsMutations(t *testing.T) {
	unitID := domain.UnitID(uuid.New())
	root := domain.UnitID{}

	srcClient := fakeSrcClient{
		org: src.Organization{InstitutionIdentifier: "inst-a"},
		departments: []src.DepartmentRecord{{
			DepartmentUUID: unitID.String(),
			DepartmentName: "Engineering",
		}},
	}
	dstFake := &fakeDst{addresses: map[domain.UnitID][]dst.AddressValidity{}}

	p := &sync.Pipeline{
		Log:       testLogger(),
		Zone:      time.UTC,
		Root:      root,
		SrcClient: srcClient,
		DstReader: dstFake,
		Applier:   dst.Applier{Mutator: dstFake},
		DryRun:    true,
	}

	require.NoError(t, p.Run(context.Background(), "inst-a"))
	assert.Empty(t, dstFake.created)
	assert.Empty(t, dstFake.addrs)
}

func TestPipeline_Executor_RecordsFailure(t *testing.T) {
	history := &fakeHistory{}
	p := &sync.Pipeline{
		Log:       testLogger(),
		Zone:      time.UTC,
		Root:      domain.UnitID{},
		SrcClient: fakeSrcClient{},
		DstReader: &fakeDst{addresses: map[domain.UnitID][]dst.AddressValidity{}},
		Applier:   dst.Applier{Mutator: &fakeDst{}},
	}
	// Force a failure: GetOrganization succeeds but departments reference
	// an unparseable UUID, which fails tree construction.
	p.SrcClient = fakeSrcClient{
		org: src.Organization{InstitutionIdentifier: "inst-a"},
		departments: []src.DepartmentRecord{{
			DepartmentUUID: "not-a-uuid",
		}},
	}

	exec := p.Executor(history)
	err := exec(context.Background(), "inst-a")
	require.Error(t, err)

	require.Len(t, history.runs, 1)
	assert.Equal(t, domain.RunStatusFailed, history.runs[0].LastStatus)
	assert.NotEmpty(t, history.runs[0].LastError)
}

type fakeAuditSink struct {
	institution string
	runID       string
	entries     any
	calls       int
}

func (f *fakeAuditSink) PutOperationLog(ctx context.Context, institution, runID string, entries any) error {
	f.institution = institution
	f.runID = runID
	f.entries = entries
	f.calls++
	return nil
}

func TestPipeline_Run_DryRunMirrorsPlannedOpsToAuditSink(t *testing.T) {
	unitID := domain.UnitID(uuid.New())
	root := domain.UnitID{}

	srcClient := fakeSrcClient{
		org: src.Organization{InstitutionIdentifier: "inst-a"},
		departments: []src.DepartmentRecord{{
			DepartmentUUID: unitID.String(),
			DepartmentName: "Engineering",
		}},
	}
	dstFake := &fakeDst{addresses: map[domain.UnitID][]dst.AddressValidity{}}
	audit := &fakeAuditSink{}

	p := &sync.Pipeline{
		Log:       testLogger(),
		Zone:      time.UTC,
		Root:      root,
		SrcClient: srcClient,
		DstReader: dstFake,
		Applier:   dst.Applier{Mutator: dstFake},
		DryRun:    true,
		Audit:     audit,
	}

	require.NoError(t, p.Run(context.Background(), "inst-a"))

	assert.Equal(t, 1, audit.calls)
	assert.Equal(t, "inst-a", audit.institution)
	assert.NotEmpty(t, audit.runID)
	assert.NotEmpty(t, audit.entries)
}

func TestPipeline_Run_LiveRunDoesNotCallAuditSink(t *testing.T) {
	unitID := domain.UnitID(uuid.New())
	root := domain.UnitID{}

	srcClient := fakeSrcClient{
		org: src.Organization{InstitutionIdentifier: "inst-a"},
		departments: []src.DepartmentRecord{{
			DepartmentUUID: unitID.String(),
			DepartmentName: "Engineering",
		}},
	}
	dstFake := &fakeDst{addresses: map[domain.UnitID][]dst.AddressValidity{}}
	audit := &fakeAuditSink{}

	p := &sync.Pipeline{
		Log:       testLogger(),
		Zone:      time.UTC,
		Root:      root,
		SrcClient: srcClient,
		DstReader: dstFake,
		Applier:   dst.Applier{Mutator: dstFake},
		Audit:     audit,
	}

	require.NoError(t, p.Run(context.Background(), "inst-a"))
	assert.Equal(t, 0, audit.calls)
}

type fakeHistory struct {
	runs []runctl.InstitutionRun
}

func (h *fakeHistory) RecordRun(ctx context.Context, run runctl.InstitutionRun, completedAt time.Time) error {
	h.runs = append(h.runs, run)
	return nil
}
func (h *fakeHistory) LastRuns(ctx context.Context) ([]runctl.InstitutionRun, error) {
	return h.runs, nil
}
