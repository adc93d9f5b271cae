package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/httpapi"
	"github.com/rezkam/reconcile/internal/runctl"
	"github.com/rezkam/reconcile/internal/src"
)

// memGateStore is a single-row in-memory runctl.Store, good enough to
// exercise the trigger endpoint's gate interaction without a database.
type memGateStore struct {
	rec runctl.RunRecord
}

func (m *memGateStore) TryAcquire(ctx context.Context, gateName, holderID string, lease time.Duration, now time.Time) (bool, error) {
	if m.rec.Status == domain.RunStatusRunning && now.Before(m.rec.ExpiresAt) {
		return false, nil
	}
	m.rec = runctl.RunRecord{Status: domain.RunStatusRunning, HolderID: holderID, StartedAt: now, ExpiresAt: now.Add(lease)}
	return true, nil
}

func (m *memGateStore) Complete(ctx context.Context, gateName, holderID string, now time.Time) error {
	m.rec.Status = domain.RunStatusCompleted
	m.rec.CompletedAt = now
	return nil
}

func (m *memGateStore) Read(ctx context.Context, gateName string) (runctl.RunRecord, error) {
	return m.rec, nil
}

// memRunHistory is an in-memory runctl.RunHistory.
type memRunHistory struct {
	runs []runctl.InstitutionRun
}

func (m *memRunHistory) RecordRun(ctx context.Context, run runctl.InstitutionRun, completedAt time.Time) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRunHistory) LastRuns(ctx context.Context) ([]runctl.InstitutionRun, error) {
	return m.runs, nil
}

type fakeSrcClient struct {
	person  src.PersonRecord
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
	if f.person.CPR == "" {
		return src.PersonRecord{}, domain.ErrPersonNotFound
	}
	return f.person, nil
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
	dst.Mutator
	created []dst.EngagementMutation
}

func (f *fakeEngagementMutator) CreateEngagement(ctx context.Context, op dst.EngagementMutation) error {
	f.created = append(f.created, op)
	return nil
}

func newTestServer(t *testing.T) (*httpapi.Server, *memGateStore, *memRunHistory) {
	t.Helper()
	gateStore := &memGateStore{}
	history := &memRunHistory{}

	s := &httpapi.Server{
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Institutions: []string{"inst-a"},
		Gate:         runctl.Gate{Store: gateStore, GateName: "sync", LeaseDuration: time.Hour},
		Exec: func(ctx context.Context, institution string) error {
			return history.RecordRun(ctx, runctl.InstitutionRun{
				Institution: institution,
				LastStatus:  domain.RunStatusCompleted,
			}, time.Now().UTC())
		},
		History: history,

		Zone:      time.UTC,
		SrcClient: fakeSrcClient{},
		DstReader: fakeDstReader{},
		Applier:   dst.Applier{Mutator: &fakeEngagementMutator{}},
	}
	return s, gateStore, history
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTrigger_ReturnsAccepted(t *testing.T) {
	s, _, history := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/trigger", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		runs, err := history.LastRuns(context.Background())
		return err == nil && len(runs) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandleTrigger_ConflictWhileRunning(t *testing.T) {
	s, gateStore, _ := newTestServer(t)
	now := time.Now().UTC()
	acquired, err := gateStore.TryAcquire(context.Background(), "sync", "someone-else", time.Hour, now)
	require.NoError(t, err)
	require.True(t, acquired)

	req := httptest.NewRequest(http.MethodPost, "/trigger", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRunDBStatus(t *testing.T) {
	s, _, history := newTestServer(t)
	require.NoError(t, history.RecordRun(context.Background(), runctl.InstitutionRun{
		Institution: "inst-a",
		LastStatus:  domain.RunStatusCompleted,
	}, time.Now().UTC()))

	req := httptest.NewRequest(http.MethodGet, "/rundb/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []runctl.InstitutionRun
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "inst-a", runs[0].Institution)
}

func TestHandleSyncPerson_MissingFieldsIsBadRequest(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/timeline/sync/person", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSyncPerson_UnknownPersonIsNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	body, err := json.Marshal(map[string]string{"institution_identifier": "inst-a", "cpr": "0101001234"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/timeline/sync/person", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSyncPerson_AppliesDecisionsThroughMutator(t *testing.T) {
	s, _, _ := newTestServer(t)
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

	mutator := &fakeEngagementMutator{}
	s.Applier = dst.Applier{Mutator: mutator}
	s.Classification = src.StatusClassification{ActiveCodes: map[string]bool{"1": true}}
	s.SrcClient = fakeSrcClient{
		person: src.PersonRecord{CPR: "0101001234", EmploymentIDs: []string{"emp-1"}},
		changed: map[string][]src.EmploymentStatusRecord{
			"emp-1": {{
				StatusCode:       "1",
				ActivationDate:   from,
				DeactivationDate: to,
				DepartmentUUID:   "00000000-0000-0000-0000-000000000001",
				EmploymentName:   "Engineer",
			}},
		},
	}

	body, err := json.Marshal(map[string]string{"institution_identifier": "inst-a", "cpr": "0101001234"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/timeline/sync/person", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, mutator.created, 1)
	assert.Equal(t, domain.EmploymentKey("emp-1"), mutator.created[0].Key)
}
