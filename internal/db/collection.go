package db

import (
	"context"
	"errors"
	"time"

	"github.com/maintly/pm-engine/internal/models"
)

// ErrDuplicateKey is returned by ReserveRecord when the idempotency key has
// already been reserved by a prior (or concurrent) invocation.
var ErrDuplicateKey = errors.New("idempotency key already reserved")

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// OrganizationCollection defines tenant enumeration for batch passes.
type OrganizationCollection interface {
	ListActiveOrganizations(ctx context.Context) ([]models.Organization, error)
	InsertOrganization(ctx context.Context, org models.Organization) error
}

// TemplateCollection defines maintenance template operations.
type TemplateCollection interface {
	InsertTemplate(ctx context.Context, tmpl models.MaintenanceTemplate) error
	FindTemplateByID(ctx context.Context, id string) (*models.MaintenanceTemplate, error)
}

// RuleCollection defines schedule rule operations.
type RuleCollection interface {
	InsertRule(ctx context.Context, rule models.ScheduleRule) error
	FindRuleByID(ctx context.Context, id string) (*models.ScheduleRule, error)
	FindActiveRules(ctx context.Context, organizationID string) ([]models.ScheduleRule, error)
	// MarkRuleGenerated advances last_generated/next_due after a successful
	// generation. Nothing else may advance them.
	MarkRuleGenerated(ctx context.Context, ruleID string, lastGenerated, nextDue time.Time) error
}

// MeterCollection defines asset meter operations. The engine itself only
// reads meters; writes come from the external readings surface.
type MeterCollection interface {
	InsertMeter(ctx context.Context, meter models.AssetMeter) error
	FindMeterByID(ctx context.Context, id string) (*models.AssetMeter, error)
	FindMeterByAsset(ctx context.Context, organizationID, assetID string, kind models.MeterKind) (*models.AssetMeter, error)
	// FindThresholdMeters returns active meters carrying at least one
	// threshold. Classification against the thresholds happens client-side:
	// the store cannot compare two fields of the same document in a filter.
	FindThresholdMeters(ctx context.Context, organizationID string) ([]models.AssetMeter, error)
	ApplyReading(ctx context.Context, reading models.MeterReading) error
}

// RecordCollection defines generated-order record operations.
type RecordCollection interface {
	// ReserveRecord atomically creates the record keyed by its idempotency
	// key, returning ErrDuplicateKey if the key already exists. This is the
	// sole mechanism preventing duplicate work-order generation; callers must
	// never substitute a query-then-insert.
	ReserveRecord(ctx context.Context, rec models.GeneratedOrderRecord) error
	FindRecordByKey(ctx context.Context, key string) (*models.GeneratedOrderRecord, error)
	LatestRecordForRule(ctx context.Context, organizationID, ruleID string) (*models.GeneratedOrderRecord, error)
	FindRecordsByOrganization(ctx context.Context, organizationID string, limit int64) ([]models.GeneratedOrderRecord, error)
	AttachWorkOrder(ctx context.Context, key, workOrderID string) error
	RecordFailure(ctx context.Context, key, message string) error
	// ClaimPendingRetry atomically claims a pending record with a recorded
	// failure for one retry by clearing last_error. Exactly one of any set of
	// concurrent claimants succeeds; a record whose first attempt is still in
	// flight (no failure recorded yet) cannot be claimed.
	ClaimPendingRetry(ctx context.Context, key string) (bool, error)
	UpdateRecord(ctx context.Context, rec models.GeneratedOrderRecord) error
	// ReopenExpiredDeferrals re-enters deferred records whose deferred_until
	// has passed into the lifecycle loop: work_order_created when a work
	// order is linked, pending when it is not.
	ReopenExpiredDeferrals(ctx context.Context, organizationID string, now time.Time) (int64, error)
}

// Store aggregates every collection the engine touches.
type Store interface {
	OrganizationCollection
	TemplateCollection
	RuleCollection
	MeterCollection
	RecordCollection
}
