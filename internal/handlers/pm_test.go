package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maintly/pm-engine/internal/auth"
	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/middleware"
	"github.com/maintly/pm-engine/internal/models"
	"github.com/maintly/pm-engine/internal/notify"
	"github.com/maintly/pm-engine/internal/pm"
	"github.com/maintly/pm-engine/internal/workorder"
)

type stubWorkOrderClient struct {
	mu    sync.Mutex
	calls int
}

func (s *stubWorkOrderClient) CreateWorkOrder(ctx context.Context, req workorder.CreateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return fmt.Sprintf("wo-%d", s.calls), nil
}

type testEnv struct {
	store          *db.MemoryStore
	router         http.Handler
	schedulerToken string
	adminToken     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := db.NewMemoryStore()
	generator := pm.NewGenerator(store, &stubWorkOrderClient{})
	driver := pm.NewDriver(store, generator, notify.LogNotifier{})
	lifecycle := pm.NewLifecycle(store)

	authService, err := auth.NewService()
	require.NoError(t, err)
	schedulerToken, err := authService.GenerateToken("nightly-batch", auth.RoleScheduler)
	require.NoError(t, err)
	adminToken, err := authService.GenerateToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	pmHandler := NewPMHandler(driver, lifecycle, store, 30)
	adminHandler := NewAdminHandler(store)
	router := NewRouter(pmHandler, adminHandler, middleware.NewAuthMiddleware(authService))

	return &testEnv{
		store:          store,
		router:         router,
		schedulerToken: schedulerToken,
		adminToken:     adminToken,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/pm/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Scheduler tokens cannot reach the administrative surface
	w = env.do(t, "POST", "/api/organizations", env.schedulerToken, map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRunFullPass_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.InsertOrganization(ctx, models.Organization{ID: "org1", Name: "Acme", Active: true}))
	require.NoError(t, env.store.InsertTemplate(ctx, models.MaintenanceTemplate{
		ID:              "tmpl1",
		Name:            "Monthly inspection",
		MaintenanceType: models.MaintenancePreventive,
		Criticality:     2,
		CanBeDeferred:   true,
	}))
	start := time.Now().AddDate(0, 0, -40)
	require.NoError(t, env.store.InsertRule(ctx, models.ScheduleRule{
		ID:             "rule1",
		OrganizationID: "org1",
		AssetID:        "asset1",
		TemplateID:     "tmpl1",
		ScheduleKind:   models.ScheduleTimeBased,
		IntervalValue:  30,
		IntervalUnit:   models.UnitDays,
		StartDate:      start,
		Active:         true,
	}))

	w := env.do(t, "POST", "/api/pm/run?lookahead_days=7", env.schedulerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.OrganizationsProcessed)
	assert.Equal(t, 1, result.TotalWorkOrdersCreated)
	assert.False(t, result.DryRun)

	records, err := env.store.FindRecordsByOrganization(ctx, "org1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusWorkOrderCreated, records[0].Status)
}

func TestRunFullPass_BadLookahead(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/pm/run?lookahead_days=zero", env.schedulerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.InsertTemplate(ctx, models.MaintenanceTemplate{
		ID:              "tmpl1",
		Name:            "Monthly inspection",
		MaintenanceType: models.MaintenancePreventive,
		Criticality:     2,
		CanBeDeferred:   true,
	}))
	woID := "wo-1"
	rec := models.GeneratedOrderRecord{
		ID:             "org1_rule1_20250101",
		OrganizationID: "org1",
		TemplateID:     "tmpl1",
		RuleID:         "rule1",
		AssetID:        "asset1",
		TriggerKind:    models.TriggerScheduled,
		GeneratedAt:    time.Now(),
		DueDate:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:         models.StatusPending,
	}
	require.NoError(t, env.store.ReserveRecord(ctx, rec))
	rec.Status = models.StatusWorkOrderCreated
	rec.WorkOrderID = &woID
	require.NoError(t, env.store.UpdateRecord(ctx, rec))

	// Defer
	w := env.do(t, "POST", "/api/pm/records/org1_rule1_20250101/defer", env.schedulerToken, map[string]interface{}{
		"deferred_until": time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		"deferred_by":    "tech@org1",
		"reason":         "parts on backorder",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var deferred models.GeneratedOrderRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deferred))
	assert.Equal(t, models.StatusDeferred, deferred.Status)
	assert.Equal(t, 1, deferred.DeferralCount)

	// Deferring again conflicts with the current state
	w = env.do(t, "POST", "/api/pm/records/org1_rule1_20250101/defer", env.schedulerToken, map[string]interface{}{
		"deferred_until": time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC),
		"deferred_by":    "tech@org1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Complete from deferred
	w = env.do(t, "POST", "/api/pm/records/org1_rule1_20250101/complete", env.schedulerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Cancel after completion conflicts
	w = env.do(t, "POST", "/api/pm/records/org1_rule1_20250101/cancel", env.schedulerToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown keys are 404
	w = env.do(t, "POST", "/api/pm/records/no-such-key/cancel", env.schedulerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeferRecord_Validation(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/pm/records/k/defer", env.schedulerToken, map[string]string{"deferred_by": "tech"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// Organization
	w := env.do(t, "POST", "/api/organizations", env.adminToken, map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, w.Code)
	var org models.Organization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &org))
	assert.NotEmpty(t, org.ID)
	assert.True(t, org.Active)

	// Template
	w = env.do(t, "POST", "/api/pm/templates", env.adminToken, map[string]interface{}{
		"name":             "Quarterly service",
		"maintenance_type": "preventive",
		"criticality":      3,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var tmpl models.MaintenanceTemplate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tmpl))

	// Rule referencing the template
	w = env.do(t, "POST", "/api/pm/rules", env.adminToken, map[string]interface{}{
		"organization_id": org.ID,
		"asset_id":        "asset1",
		"template_id":     tmpl.ID,
		"schedule_kind":   "time_based",
		"interval_value":  30,
		"interval_unit":   "days",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Rule referencing an unknown template is rejected
	w = env.do(t, "POST", "/api/pm/rules", env.adminToken, map[string]interface{}{
		"organization_id": org.ID,
		"asset_id":        "asset1",
		"template_id":     "missing",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Template validation
	w = env.do(t, "POST", "/api/pm/templates", env.adminToken, map[string]interface{}{
		"name":             "Bad",
		"maintenance_type": "not-a-type",
		"criticality":      3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitReading(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.InsertMeter(ctx, models.AssetMeter{
		ID:             "m1",
		OrganizationID: "org1",
		AssetID:        "asset1",
		MeterKind:      models.MeterRuntimeHours,
		CurrentValue:   100,
		Active:         true,
	}))

	w := env.do(t, "POST", "/api/meters/readings", env.schedulerToken, map[string]interface{}{
		"meter_id":        "m1",
		"organization_id": "org1",
		"value":           150,
		"source":          "automated",
	})
	require.Equal(t, http.StatusOK, w.Code)

	meter, err := env.store.FindMeterByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 150.0, meter.CurrentValue)
	// The HTTP surface always records manual sourcing
	assert.Equal(t, models.SourceManual, meter.ReadingSource)

	// Unknown meters are rejected
	w = env.do(t, "POST", "/api/meters/readings", env.schedulerToken, map[string]interface{}{
		"meter_id":        "missing",
		"organization_id": "org1",
		"value":           1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.ReserveRecord(ctx, models.GeneratedOrderRecord{
		ID: "org1_rule1_20250101", OrganizationID: "org1", RuleID: "rule1",
		GeneratedAt: time.Now(), Status: models.StatusPending,
	}))

	w := env.do(t, "GET", "/api/pm/records?organization_id=org1", env.schedulerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []models.GeneratedOrderRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)

	w = env.do(t, "GET", "/api/pm/records", env.schedulerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
