package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/ads-guardian/internal/alerts"
	"github.com/leozw/ads-guardian/internal/checks"
	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/googleads"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListActiveTenants(ctx context.Context) ([]*core.Tenant, error) {
	args := m.Called(ctx)
	tenants, _ := args.Get(0).([]*core.Tenant)
	return tenants, args.Error(1)
}

func (m *mockDirectory) UpdateLastChecked(ctx context.Context, tenantID string, at time.Time) error {
	return m.Called(ctx, tenantID, at).Error(0)
}

type mockAlerts struct {
	mock.Mock
}

func (m *mockAlerts) CreateAlertFromCheckResult(ctx context.Context, tenantID, tenantName, platform string, result *core.CheckResult) (*alerts.CreateOutcome, error) {
	args := m.Called(ctx, tenantID, tenantName, platform, result)
	outcome, _ := args.Get(0).(*alerts.CreateOutcome)
	return outcome, args.Error(1)
}

func (m *mockAlerts) AutoResolveIfFixed(ctx context.Context, tenantID, platform, checkID string) (int, error) {
	args := m.Called(ctx, tenantID, platform, checkID)
	return args.Int(0), args.Error(1)
}

type fakeClient struct {
	verifyErr   error
	verifyPanic bool
	timeZone    string
}

func (c *fakeClient) Query(_ context.Context, q string) (*googleads.QueryResult, error) {
	if c.timeZone != "" && strings.Contains(q, "customer.time_zone") {
		row := googleads.NewRow(`{"customer":{"timeZone":"` + c.timeZone + `"}}`)
		return &googleads.QueryResult{Rows: []googleads.Row{row}}, nil
	}
	return &googleads.QueryResult{}, nil
}

func (c *fakeClient) VerifyConnection(context.Context) error {
	if c.verifyPanic {
		panic("nil transport")
	}
	return c.verifyErr
}

// stubCheck returns a fixed result, error or panic and records which tenants
// it ran for.
type stubCheck struct {
	id     string
	result func(tenant *core.TenantConfig) *core.CheckResult
	err    error
	panics bool

	mu   sync.Mutex
	runs []string
}

func (s *stubCheck) ID() string          { return s.id }
func (s *stubCheck) Name() string        { return s.id }
func (s *stubCheck) Description() string { return s.id }

func (s *stubCheck) Run(_ context.Context, _ googleads.Querier, tenant *core.TenantConfig, _ *zap.Logger) (*core.CheckResult, error) {
	s.mu.Lock()
	s.runs = append(s.runs, tenant.TenantID)
	s.mu.Unlock()
	if s.panics {
		panic("index out of range")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result(tenant), nil
}

func (s *stubCheck) ranFor() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runs...)
}

func okCheck(id string) *stubCheck {
	return &stubCheck{id: id, result: func(*core.TenantConfig) *core.CheckResult {
		return &core.CheckResult{CheckID: id, Status: core.StatusOK, Details: core.Details{}}
	}}
}

func alertingCheck(id string) *stubCheck {
	return &stubCheck{id: id, result: func(*core.TenantConfig) *core.CheckResult {
		return &core.CheckResult{
			CheckID: id,
			Status:  core.StatusWarning,
			Count:   1,
			Details: core.Details{},
			AlertData: &core.AlertData{
				Title:    id + " found something",
				Severity: core.SeverityHigh,
			},
		}
	}}
}

func tenant(id string) *core.Tenant {
	return &core.Tenant{
		ID:                id,
		Name:              "Tenant " + id,
		AccountID:         "123-456-7890",
		RefreshToken:      "refresh-" + id,
		ConnectionStatus:  core.ConnectionConnected,
		MonitoringEnabled: true,
		IsActive:          true,
	}
}

var clock = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	dir     *mockDirectory
	alerts  *mockAlerts
	clients map[string]*fakeClient
	built   []*core.TenantConfig
	mu      sync.Mutex
}

func newHarness() *harness {
	return &harness{
		dir:     &mockDirectory{},
		alerts:  &mockAlerts{},
		clients: make(map[string]*fakeClient),
	}
}

func (h *harness) monitor(t *testing.T, concurrency int, list ...checks.Check) *Monitor {
	return New(Options{
		Directory: h.dir,
		Alerts:    h.alerts,
		Clients: func(cfg *core.TenantConfig) Client {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.built = append(h.built, cfg)
			if c, ok := h.clients[cfg.TenantID]; ok {
				return c
			}
			return &fakeClient{}
		},
		Registry:    checks.NewRegistry(list...),
		Credentials: core.Credentials{DeveloperToken: "dev", OAuthClientID: "id", OAuthClientSecret: "secret"},
		Logger:      zaptest.NewLogger(t),
		Concurrency: concurrency,
		Clock:       func() time.Time { return clock },
	})
}

func TestRun_TenantIsolation(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		h := newHarness()
		h.clients["b"] = &fakeClient{verifyErr: &googleads.APIError{Op: "token refresh", StatusCode: 401, Body: "invalid_grant"}}
		h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a"), tenant("b"), tenant("c")}, nil)
		h.dir.On("UpdateLastChecked", mock.Anything, mock.Anything, clock).Return(nil)
		h.alerts.On("AutoResolveIfFixed", mock.Anything, mock.Anything, DefaultPlatform, mock.Anything).Return(0, nil)

		c1, c2, c3 := okCheck("one"), okCheck("two"), okCheck("three")
		res, err := h.monitor(t, concurrency, c1, c2, c3).Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 2, res.TenantsProcessed)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "Tenant b")
		assert.False(t, res.Success())
		assert.Equal(t, 6, res.ChecksRun)

		require.Len(t, res.Tenants, 3)
		assert.Equal(t, 3, res.Tenants[0].ChecksRun)
		assert.False(t, res.Tenants[1].Processed)
		assert.Zero(t, res.Tenants[1].ChecksRun)
		assert.Equal(t, 3, res.Tenants[2].ChecksRun)
		assert.ElementsMatch(t, []string{"a", "c"}, c1.ranFor())

		h.dir.AssertCalled(t, "UpdateLastChecked", mock.Anything, "a", clock)
		h.dir.AssertCalled(t, "UpdateLastChecked", mock.Anything, "c", clock)
		h.dir.AssertNotCalled(t, "UpdateLastChecked", mock.Anything, "b", mock.Anything)
	}
}

func TestRun_OkResultsResolveAndNeverCreate(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a")}, nil)
	h.dir.On("UpdateLastChecked", mock.Anything, "a", clock).Return(nil)
	h.alerts.On("AutoResolveIfFixed", mock.Anything, "a", DefaultPlatform, "one").Return(1, nil)
	h.alerts.On("AutoResolveIfFixed", mock.Anything, "a", DefaultPlatform, "two").Return(0, nil)

	res, err := h.monitor(t, 1, okCheck("one"), okCheck("two")).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, 1, res.AlertsResolved)
	h.alerts.AssertNotCalled(t, "CreateAlertFromCheckResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.alerts.AssertExpectations(t)
}

func TestRun_ForwardsAlertsAndCountsDedup(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a")}, nil)
	h.dir.On("UpdateLastChecked", mock.Anything, "a", clock).Return(nil)
	h.alerts.On("CreateAlertFromCheckResult", mock.Anything, "a", "Tenant a", DefaultPlatform,
		mock.MatchedBy(func(r *core.CheckResult) bool { return r.CheckID == "fresh" })).
		Return(&alerts.CreateOutcome{Success: true, AlertID: "x"}, nil)
	h.alerts.On("CreateAlertFromCheckResult", mock.Anything, "a", "Tenant a", DefaultPlatform,
		mock.MatchedBy(func(r *core.CheckResult) bool { return r.CheckID == "known" })).
		Return(&alerts.CreateOutcome{Success: true, Skipped: true, AlertID: "y"}, nil)
	h.alerts.On("CreateAlertFromCheckResult", mock.Anything, "a", "Tenant a", DefaultPlatform,
		mock.MatchedBy(func(r *core.CheckResult) bool { return r.CheckID == "broken_store" })).
		Return(nil, errors.New("connection reset"))
	after := okCheck("after")
	h.alerts.On("AutoResolveIfFixed", mock.Anything, "a", DefaultPlatform, "after").Return(0, nil)

	res, err := h.monitor(t, 1, alertingCheck("fresh"), alertingCheck("known"), alertingCheck("broken_store"), after).
		Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.AlertsCreated)
	assert.Equal(t, 1, res.AlertsSkipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "broken_store")
	// a forwarding failure does not stop later checks
	assert.Equal(t, []string{"a"}, after.ranFor())
	assert.Equal(t, 1, res.TenantsProcessed)
	assert.Equal(t, 3, res.Tenants[0].Findings)
}

func TestRun_PanicOutsideChecksStaysWithTenant(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		h := newHarness()
		h.clients["b"] = &fakeClient{verifyPanic: true}
		h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a"), tenant("b"), tenant("c")}, nil)
		h.dir.On("UpdateLastChecked", mock.Anything, mock.Anything, clock).Return(nil)
		h.alerts.On("AutoResolveIfFixed", mock.Anything, mock.Anything, DefaultPlatform, "one").Return(0, nil)

		one := okCheck("one")
		res, err := h.monitor(t, concurrency, one).Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 2, res.TenantsProcessed)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "Tenant b")
		assert.Contains(t, res.Errors[0], "panic: nil transport")
		assert.False(t, res.Tenants[1].Processed)
		assert.ElementsMatch(t, []string{"a", "c"}, one.ranFor())
		h.dir.AssertNotCalled(t, "UpdateLastChecked", mock.Anything, "b", mock.Anything)
	}
}

func TestRun_MissingAlertOutcomeIsAnError(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a")}, nil)
	h.dir.On("UpdateLastChecked", mock.Anything, "a", clock).Return(nil)
	h.alerts.On("CreateAlertFromCheckResult", mock.Anything, "a", "Tenant a", DefaultPlatform, mock.Anything).Return(nil, nil)

	res, err := h.monitor(t, 1, alertingCheck("spike")).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "no outcome")
	assert.Zero(t, res.AlertsCreated)
	assert.Equal(t, 1, res.TenantsProcessed)
}

func TestRun_ResolvesAccountTimeZonePerTenant(t *testing.T) {
	h := newHarness()
	h.clients["a"] = &fakeClient{timeZone: "America/Los_Angeles"}
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a"), tenant("b")}, nil)
	h.dir.On("UpdateLastChecked", mock.Anything, mock.Anything, clock).Return(nil)
	h.alerts.On("AutoResolveIfFixed", mock.Anything, mock.Anything, DefaultPlatform, "fine").Return(0, nil)

	res, err := h.monitor(t, 1, okCheck("fine")).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TenantsProcessed)

	zones := map[string]string{}
	for _, cfg := range h.built {
		require.NotNil(t, cfg.Location)
		zones[cfg.TenantID] = cfg.Location.String()
	}
	assert.Equal(t, "America/Los_Angeles", zones["a"])
	assert.Equal(t, "UTC", zones["b"])
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a"), tenant("b")}, nil)

	res, err := h.monitor(t, 1, alertingCheck("spike"), okCheck("fine")).Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.AlertsCreated)
	assert.Equal(t, 2, res.TenantsProcessed)
	h.alerts.AssertNotCalled(t, "CreateAlertFromCheckResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.alerts.AssertNotCalled(t, "AutoResolveIfFixed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.dir.AssertNotCalled(t, "UpdateLastChecked", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CheckPanicsAndErrorsAreIsolated(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a")}, nil)
	h.dir.On("UpdateLastChecked", mock.Anything, "a", clock).Return(nil)
	h.alerts.On("AutoResolveIfFixed", mock.Anything, "a", DefaultPlatform, "last").Return(0, nil)

	panicky := &stubCheck{id: "panicky", panics: true}
	failing := &stubCheck{id: "failing", err: &googleads.APIError{Op: "search stream", StatusCode: 400, Body: "bad query"}}
	last := okCheck("last")

	res, err := h.monitor(t, 1, panicky, failing, last).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "panicky")
	assert.Contains(t, res.Errors[0], "panic")
	assert.Contains(t, res.Errors[1], "failing")
	assert.Equal(t, []string{"a"}, last.ranFor())
	assert.Equal(t, 3, res.ChecksRun)
	assert.Equal(t, 1, res.TenantsProcessed)
}

func TestRun_AuthErrorMidRunStopsTenant(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a")}, nil)

	expired := &stubCheck{id: "expired", err: &googleads.APIError{Op: "token refresh", StatusCode: 400, Body: "invalid_grant"}}
	never := okCheck("never")

	res, err := h.monitor(t, 1, expired, never).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, never.ranFor())
	assert.Zero(t, res.TenantsProcessed)
	assert.Len(t, res.Errors, 1)
	h.dir.AssertNotCalled(t, "UpdateLastChecked", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_FiltersTenantsAndChecks(t *testing.T) {
	h := newHarness()
	disconnected := tenant("d")
	disconnected.ConnectionStatus = core.ConnectionDisconnected
	disabled := tenant("e")
	disabled.MonitoringEnabled = false
	noAccount := tenant("f")
	noAccount.AccountID = " "

	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a"), tenant("b"), disconnected, disabled, noAccount}, nil)
	h.dir.On("UpdateLastChecked", mock.Anything, "b", clock).Return(nil)
	h.alerts.On("AutoResolveIfFixed", mock.Anything, "b", DefaultPlatform, "two").Return(0, nil)

	one, two := okCheck("one"), okCheck("two")
	res, err := h.monitor(t, 1, one, two).Run(context.Background(), RunOptions{CheckIDs: []string{"two"}, TenantIDs: []string{"b", "d"}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TenantsProcessed)
	assert.Empty(t, one.ranFor())
	assert.Equal(t, []string{"b"}, two.ranFor())

	require.Len(t, h.built, 1)
	cfg := h.built[0]
	assert.Equal(t, "1234567890", cfg.AccountID)
	assert.Equal(t, "refresh-b", cfg.Credentials.RefreshToken)
	assert.Equal(t, "dev", cfg.Credentials.DeveloperToken)
}

func TestRun_UnknownCheckFailsUpFront(t *testing.T) {
	h := newHarness()

	_, err := h.monitor(t, 1, okCheck("one")).Run(context.Background(), RunOptions{CheckIDs: []string{"nope"}})
	assert.ErrorIs(t, err, checks.ErrUnknownCheck)
	h.dir.AssertNotCalled(t, "ListActiveTenants", mock.Anything)
}

func TestRun_DirectoryFailure(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return(nil, errors.New("db down"))

	_, err := h.monitor(t, 1, okCheck("one")).Run(context.Background(), RunOptions{})
	assert.ErrorContains(t, err, "db down")
}

func TestRun_TimestampFailureIsRecorded(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{tenant("a")}, nil)
	h.dir.On("UpdateLastChecked", mock.Anything, "a", clock).Return(errors.New("deadlock"))
	h.alerts.On("AutoResolveIfFixed", mock.Anything, "a", DefaultPlatform, "one").Return(0, nil)

	res, err := h.monitor(t, 1, okCheck("one")).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TenantsProcessed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "update last checked")
}

func TestRun_NoTenants(t *testing.T) {
	h := newHarness()
	h.dir.On("ListActiveTenants", mock.Anything).Return([]*core.Tenant{}, nil)

	res, err := h.monitor(t, 4, okCheck("one")).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Empty(t, res.Tenants)
}
