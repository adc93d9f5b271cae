package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/reconcile"
	"github.com/rezkam/reconcile/internal/src"
)

type fakeSrcClient struct {
	person  src.PersonRecord
	personErr error
	changed map[string][]src.EmploymentStatusRecord
}

func (f fakeSrcClient) GetOrganization(ctx context.Context, institution string) (src.Organization, error) {
	return src.Organization{}, nil
}

func (f fakeSrcClient) GetDepartments(ctx context.Context, institution string, activation, deactivation time.Time) ([]src.DepartmentRecord, error) {
	return nil, nil
}

func (f fakeSrcClient) GetEmploymentChanged(ctx context.Context, cpr, employmentID string, from, to time.Time) ([]src.EmploymentStatusRecord, error) {
	return f.changed[employmentID], nil
}

func (f fakeSrcClient) GetPerson(ctx context.Context, institution, cpr string, effective time.Time) (src.PersonRecord, error) {
	return f.person, f.personErr
}

type fakeDstReader struct{}

func (fakeDstReader) GetUnits(ctx context.Context, root domain.UnitID) ([]dst.UnitValidity, error) {
	return nil, nil
}

func (fakeDstReader) GetEngagements(ctx context.Context, unit domain.UnitID) ([]dst.EngagementValidity, error) {
	return nil, nil
}

func (fakeDstReader) GetAddresses(ctx context.Context, unit domain.UnitID) ([]dst.AddressValidity, error) {
	return nil, nil
}

func (fakeDstReader) GetEngagementByKey(ctx context.Context, key domain.EmploymentKey) ([]dst.EngagementValidity, error) {
	return nil, nil
}

type fakeEngagementMutator struct {
	dst.Mutator // embed nil: every method below is overridden; unit methods are unused by person-sync

	created    []dst.EngagementMutation
	updated    []dst.EngagementMutation
	terminated []domain.EmploymentKey
}

func (f *fakeEngagementMutator) CreateEngagement(ctx context.Context, op dst.EngagementMutation) error {
	f.created = append(f.created, op)
	return nil
}

func (f *fakeEngagementMutator) UpdateEngagement(ctx context.Context, op dst.EngagementMutation) error {
	f.updated = append(f.updated, op)
	return nil
}

func (f *fakeEngagementMutator) TerminateEngagement(ctx context.Context, key domain.EmploymentKey, op dst.Termination) error {
	f.terminated = append(f.terminated, key)
	return nil
}

func TestSyncPerson_NotFoundPropagatesErrPersonNotFound(t *testing.T) {
	srcClient := fakeSrcClient{personErr: domain.ErrPersonNotFound}

	_, err := reconcile.SyncPerson(
		context.Background(), time.UTC, src.StatusClassification{},
		srcClient, fakeDstReader{}, dst.Applier{Mutator: &fakeEngagementMutator{}}, "inst-a", "0101001234",
		time.Now(), time.Time{}, time.Time{},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersonNotFound))
}

func TestSyncPerson_BuildsDecisionsPerEmployment(t *testing.T) {
	classification := src.StatusClassification{ActiveCodes: map[string]bool{"1": true}}
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

	srcClient := fakeSrcClient{
		person: src.PersonRecord{CPR: "0101001234", EmploymentIDs: []string{"emp-1"}},
		changed: map[string][]src.EmploymentStatusRecord{
			"emp-1": {
				{
					StatusCode:       "1",
					ActivationDate:   from,
					DeactivationDate: to,
					DepartmentUUID:   "00000000-0000-0000-0000-000000000001",
					EmploymentName:   "Engineer",
				},
			},
		},
	}

	mutator := &fakeEngagementMutator{}
	decisions, err := reconcile.SyncPerson(
		context.Background(), time.UTC, classification,
		srcClient, fakeDstReader{}, dst.Applier{Mutator: mutator}, "inst-a", "0101001234",
		time.Now(), from, to,
	)
	require.NoError(t, err)
	require.Contains(t, decisions, domain.EmploymentKey("emp-1"))
	require.Len(t, decisions["emp-1"], 1)
	assert.Equal(t, reconcile.Create, decisions["emp-1"][0].Kind)

	require.Len(t, mutator.created, 1)
	assert.Equal(t, domain.EmploymentKey("emp-1"), mutator.created[0].Key)
	assert.Equal(t, "Engineer", mutator.created[0].Name)
}
