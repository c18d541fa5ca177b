package pm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/models"
)

type batchFixture struct {
	store     *db.MemoryStore
	workOrder *fakeWorkOrderClient
	notifier  *fakeNotifier
	driver    *Driver
}

func newBatchFixture(t *testing.T, now time.Time) *batchFixture {
	t.Helper()
	store := db.NewMemoryStore()
	wo := &fakeWorkOrderClient{}
	notifier := &fakeNotifier{}
	gen := NewGenerator(store, wo)
	gen.now = func() time.Time { return now }
	driver := NewDriver(store, gen, notifier)
	driver.now = func() time.Time { return now }
	return &batchFixture{store: store, workOrder: wo, notifier: notifier, driver: driver}
}

func (f *batchFixture) addOrganization(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, f.store.InsertOrganization(context.Background(), models.Organization{
		ID: id, Name: name, Active: true,
	}))
}

// addDueRule seeds a template and a monthly rule whose last generation was
// 2024-12-01, so it falls due 2024-12-31.
func (f *batchFixture) addDueRule(t *testing.T, orgID, ruleID string) {
	t.Helper()
	last := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.InsertTemplate(context.Background(), models.MaintenanceTemplate{
		ID:              "tmpl-" + orgID,
		Name:            "Monthly inspection",
		MaintenanceType: models.MaintenancePreventive,
		Criticality:     2,
		CanBeDeferred:   true,
	}))
	require.NoError(t, f.store.InsertRule(context.Background(), models.ScheduleRule{
		ID:             ruleID,
		OrganizationID: orgID,
		AssetID:        "asset-" + orgID,
		AssetName:      "Press 1",
		TemplateID:     "tmpl-" + orgID,
		ScheduleKind:   models.ScheduleTimeBased,
		IntervalValue:  30,
		IntervalUnit:   models.UnitDays,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:         true,
		LastGenerated:  &last,
	}))
}

func TestRunFull_TimeBasedRule(t *testing.T) {
	now := time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)
	f := newBatchFixture(t, now)
	f.addOrganization(t, "org1", "Acme")
	f.addDueRule(t, "org1", "rule1")

	result, err := f.driver.RunFull(context.Background(), 7, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.OrganizationsProcessed)
	assert.Equal(t, 1, result.TotalPMOrdersGenerated)
	assert.Equal(t, 1, result.TotalWorkOrdersCreated)
	assert.Empty(t, result.Errors)
	assert.False(t, result.DryRun)

	rec, err := f.store.FindRecordByKey(context.Background(), "org1_rule1_20241231")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWorkOrderCreated, rec.Status)

	// Rerunning on the same day re-derives the same key and skips; the open
	// record keeps the rule anchored at 2024-12-01.
	second, err := f.driver.RunFull(context.Background(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalPMOrdersGenerated)
	assert.Equal(t, 1, second.TotalDuplicatesSkipped)
	assert.Equal(t, 1, f.workOrder.callCount())

	rule, err := f.store.FindRuleByID(context.Background(), "rule1")
	require.NoError(t, err)
	require.NotNil(t, rule.LastGenerated)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), *rule.LastGenerated)

	// Closing the work order advances the schedule; the next occurrence on
	// 2025-01-30 sits outside the 7-day window, so a third run is quiet.
	lc := NewLifecycle(f.store)
	lc.now = f.driver.now
	_, err = lc.Complete(context.Background(), "org1_rule1_20241231")
	require.NoError(t, err)

	rule, err = f.store.FindRuleByID(context.Background(), "rule1")
	require.NoError(t, err)
	require.NotNil(t, rule.LastGenerated)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), *rule.LastGenerated)
	require.NotNil(t, rule.NextDue)
	assert.Equal(t, time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC), *rule.NextDue)

	third, err := f.driver.RunFull(context.Background(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, 0, third.TotalPMOrdersGenerated)
	assert.Equal(t, 0, third.TotalDuplicatesSkipped)
	assert.Equal(t, 1, f.workOrder.callCount())
}

func TestRunFull_TenantIsolation(t *testing.T) {
	now := time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)
	f := newBatchFixture(t, now)

	f.addOrganization(t, "org1", "First")
	f.addDueRule(t, "org1", "rule1")

	// org2's rule references a template that does not exist.
	f.addOrganization(t, "org2", "Broken")
	require.NoError(t, f.store.InsertRule(context.Background(), models.ScheduleRule{
		ID:             "rule2",
		OrganizationID: "org2",
		AssetID:        "asset-org2",
		TemplateID:     "missing-template",
		ScheduleKind:   models.ScheduleUsageBased,
		IntervalValue:  1,
		IntervalUnit:   models.UnitDays,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:         true,
	}))

	f.addOrganization(t, "org3", "Third")
	f.addDueRule(t, "org3", "rule3")

	result, err := f.driver.RunFull(context.Background(), 7, false)
	require.NoError(t, err)

	assert.Equal(t, 3, result.OrganizationsProcessed)
	assert.Equal(t, 2, result.TotalWorkOrdersCreated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "org2", result.Errors[0].OrganizationID)
	assert.Contains(t, result.Errors[0].Message, "missing-template")

	byOrg := map[string]models.OrganizationResult{}
	for _, org := range result.Organizations {
		byOrg[org.OrganizationID] = org
	}
	assert.Equal(t, 1, byOrg["org1"].WorkOrdersCreated)
	assert.Equal(t, 1, byOrg["org3"].WorkOrdersCreated)
	assert.Empty(t, byOrg["org1"].Errors)
	assert.Empty(t, byOrg["org3"].Errors)
}

func TestRunFull_DryRun(t *testing.T) {
	now := time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)
	f := newBatchFixture(t, now)
	f.addOrganization(t, "org1", "Acme")
	f.addDueRule(t, "org1", "rule1")

	result, err := f.driver.RunFull(context.Background(), 7, true)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.TotalPMOrdersGenerated)
	assert.Equal(t, 0, result.TotalWorkOrdersCreated)
	assert.Equal(t, 0, f.workOrder.callCount())

	records, err := f.store.FindRecordsByOrganization(context.Background(), "org1", 10)
	require.NoError(t, err)
	assert.Empty(t, records, "dry run must not reserve records")

	rule, err := f.store.FindRuleByID(context.Background(), "rule1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), *rule.LastGenerated, "dry run must not advance rules")
}

func TestRunFull_ReopensExpiredDeferrals(t *testing.T) {
	now := time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)
	f := newBatchFixture(t, now)
	f.addOrganization(t, "org1", "Acme")
	f.addDueRule(t, "org1", "rule1")

	// The due occurrence was already generated and then deferred; the
	// deferral window has passed.
	woID := "wo-existing"
	until := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	by := "tech@org1"
	rec := models.GeneratedOrderRecord{
		ID:             "org1_rule1_20241231",
		OrganizationID: "org1",
		TemplateID:     "tmpl-org1",
		RuleID:         "rule1",
		AssetID:        "asset-org1",
		TriggerKind:    models.TriggerScheduled,
		GeneratedAt:    now.AddDate(0, 0, -5),
		DueDate:        time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:         models.StatusPending,
	}
	require.NoError(t, f.store.ReserveRecord(context.Background(), rec))
	rec.Status = models.StatusDeferred
	rec.WorkOrderID = &woID
	rec.DeferralCount = 1
	rec.DeferredUntil = &until
	rec.DeferredBy = &by
	require.NoError(t, f.store.UpdateRecord(context.Background(), rec))

	result, err := f.driver.RunFull(context.Background(), 7, false)
	require.NoError(t, err)

	// The record re-enters the loop at work_order_created because its work
	// order survived the deferral; the evaluation lands on the duplicate path.
	reopened, err := f.store.FindRecordByKey(context.Background(), "org1_rule1_20241231")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWorkOrderCreated, reopened.Status)
	assert.Equal(t, 1, result.TotalDuplicatesSkipped)
	assert.Equal(t, 0, f.workOrder.callCount())
}

func seedMeter(t *testing.T, store *db.MemoryStore, orgID, id string, current float64, warning, critical *float64) {
	t.Helper()
	require.NoError(t, store.InsertMeter(context.Background(), models.AssetMeter{
		ID:                id,
		OrganizationID:    orgID,
		AssetID:           "asset-" + id,
		AssetName:         "Compressor " + id,
		MeterKind:         models.MeterVibration,
		Unit:              "mm/s",
		CurrentValue:      current,
		ThresholdWarning:  warning,
		ThresholdCritical: critical,
		Active:            true,
	}))
}

func TestRunMeterPass(t *testing.T) {
	now := time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)
	f := newBatchFixture(t, now)
	f.addOrganization(t, "org1", "Acme")
	seedMeter(t, f.store, "org1", "m-critical", 12.0, floatPtr(7), floatPtr(10))
	seedMeter(t, f.store, "org1", "m-warning", 8.0, floatPtr(7), floatPtr(10))
	seedMeter(t, f.store, "org1", "m-ok", 3.0, floatPtr(7), floatPtr(10))

	result, err := f.driver.RunMeterPass(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, result.Organizations, 1)
	org := result.Organizations[0]
	assert.Equal(t, 3, org.MetersEvaluated)
	assert.Equal(t, 1, org.AlertsEmitted)
	assert.Equal(t, 1, org.PMOrdersGenerated)
	assert.Equal(t, 1, org.WorkOrdersCreated)

	require.Equal(t, 1, f.notifier.alertCount())
	alert := f.notifier.alerts[0]
	assert.Equal(t, "m-warning", alert.MeterID)
	assert.Equal(t, "warning", alert.Severity)

	key := BuildIdempotencyKey("org1", ConditionIdentity("asset-m-critical", models.MeterVibration), now.AddDate(0, 0, 1))
	rec, err := f.store.FindRecordByKey(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWorkOrderCreated, rec.Status)
	assert.Empty(t, rec.TemplateID)

	// The meter is still critical four hours later: same key, same day, one
	// duplicate skip instead of a second work order. The warning alert is
	// emitted again; alerts are never deduplicated.
	second, err := f.driver.RunMeterPass(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, second.TotalDuplicatesSkipped)
	assert.Equal(t, 0, second.TotalWorkOrdersCreated)
	assert.Equal(t, 2, f.notifier.alertCount())
	assert.Equal(t, 1, f.workOrder.callCount())
}

func TestRunMeterPass_PanicIsolation(t *testing.T) {
	now := time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)
	f := newBatchFixture(t, now)
	f.notifier.panicForOrg = "org1"

	f.addOrganization(t, "org1", "Panics")
	seedMeter(t, f.store, "org1", "m-warn1", 8.0, floatPtr(7), floatPtr(10))

	f.addOrganization(t, "org2", "Healthy")
	seedMeter(t, f.store, "org2", "m-crit2", 12.0, floatPtr(7), floatPtr(10))

	result, err := f.driver.RunMeterPass(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.OrganizationsProcessed)

	byOrg := map[string]models.OrganizationResult{}
	for _, org := range result.Organizations {
		byOrg[org.OrganizationID] = org
	}
	require.Len(t, byOrg["org1"].Errors, 1)
	assert.Contains(t, byOrg["org1"].Errors[0], "panic")
	assert.Equal(t, 1, byOrg["org2"].WorkOrdersCreated)
	assert.Empty(t, byOrg["org2"].Errors)
}
