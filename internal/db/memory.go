package db

import (
	"context"
	"sync"
	"time"

	"github.com/maintly/pm-engine/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development. Its
// semantics mirror MongoStore, including atomic key reservation: ReserveRecord
// checks and inserts under one lock, so concurrent reservations of one key
// serialize exactly as Mongo's unique _id index does.
type MemoryStore struct {
	mu            sync.RWMutex
	organizations map[string]models.Organization
	templates     map[string]models.MaintenanceTemplate
	rules         map[string]models.ScheduleRule
	meters        map[string]models.AssetMeter
	records       map[string]models.GeneratedOrderRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		organizations: make(map[string]models.Organization),
		templates:     make(map[string]models.MaintenanceTemplate),
		rules:         make(map[string]models.ScheduleRule),
		meters:        make(map[string]models.AssetMeter),
		records:       make(map[string]models.GeneratedOrderRecord),
	}
}

// ListActiveOrganizations returns every active tenant.
func (s *MemoryStore) ListActiveOrganizations(ctx context.Context) ([]models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orgs []models.Organization
	for _, org := range s.organizations {
		if org.Active {
			orgs = append(orgs, org)
		}
	}
	return orgs, nil
}

// InsertOrganization inserts a tenant record.
func (s *MemoryStore) InsertOrganization(ctx context.Context, org models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org.CreatedAt = time.Now()
	s.organizations[org.ID] = org
	return nil
}

// InsertTemplate inserts a maintenance template.
func (s *MemoryStore) InsertTemplate(ctx context.Context, tmpl models.MaintenanceTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = time.Now()
	s.templates[tmpl.ID] = tmpl
	return nil
}

// FindTemplateByID finds a template by its id.
func (s *MemoryStore) FindTemplateByID(ctx context.Context, id string) (*models.MaintenanceTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tmpl, nil
}

// InsertRule inserts a schedule rule.
func (s *MemoryStore) InsertRule(ctx context.Context, rule models.ScheduleRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

// FindRuleByID finds a schedule rule by its id.
func (s *MemoryStore) FindRuleByID(ctx context.Context, id string) (*models.ScheduleRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rule, nil
}

// FindActiveRules returns all active schedule rules for one tenant.
func (s *MemoryStore) FindActiveRules(ctx context.Context, organizationID string) ([]models.ScheduleRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rules []models.ScheduleRule
	for _, rule := range s.rules {
		if rule.OrganizationID == organizationID && rule.Active {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// MarkRuleGenerated advances a rule's last_generated and next_due.
func (s *MemoryStore) MarkRuleGenerated(ctx context.Context, ruleID string, lastGenerated, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return ErrNotFound
	}
	rule.LastGenerated = &lastGenerated
	rule.NextDue = &nextDue
	rule.UpdatedAt = time.Now()
	s.rules[ruleID] = rule
	return nil
}

// InsertMeter inserts an asset meter.
func (s *MemoryStore) InsertMeter(ctx context.Context, meter models.AssetMeter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meter.CreatedAt = time.Now()
	meter.UpdatedAt = time.Now()
	s.meters[meter.ID] = meter
	return nil
}

// FindMeterByID finds a meter by its id.
func (s *MemoryStore) FindMeterByID(ctx context.Context, id string) (*models.AssetMeter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meter, ok := s.meters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &meter, nil
}

// FindMeterByAsset finds one asset's meter of the given kind.
func (s *MemoryStore) FindMeterByAsset(ctx context.Context, organizationID, assetID string, kind models.MeterKind) (*models.AssetMeter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, meter := range s.meters {
		if meter.OrganizationID == organizationID && meter.AssetID == assetID && meter.MeterKind == kind {
			m := meter
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

// FindThresholdMeters returns active meters carrying at least one threshold.
func (s *MemoryStore) FindThresholdMeters(ctx context.Context, organizationID string) ([]models.AssetMeter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var meters []models.AssetMeter
	for _, meter := range s.meters {
		if meter.OrganizationID != organizationID || !meter.Active {
			continue
		}
		if meter.ThresholdCritical == nil && meter.ThresholdWarning == nil {
			continue
		}
		meters = append(meters, meter)
	}
	return meters, nil
}

// ApplyReading updates a meter with one external reading.
func (s *MemoryStore) ApplyReading(ctx context.Context, reading models.MeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meter, ok := s.meters[reading.MeterID]
	if !ok || meter.OrganizationID != reading.OrganizationID {
		return ErrNotFound
	}
	at := reading.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	meter.PreviousValue = meter.CurrentValue
	meter.CurrentValue = reading.Value
	meter.LastReading = at
	meter.ReadingSource = reading.Source
	meter.UpdatedAt = time.Now()
	s.meters[reading.MeterID] = meter
	return nil
}

// ReserveRecord atomically creates the record under its idempotency key.
func (s *MemoryStore) ReserveRecord(ctx context.Context, rec models.GeneratedOrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return ErrDuplicateKey
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = time.Now()
	s.records[rec.ID] = rec
	return nil
}

// FindRecordByKey finds a record by its idempotency key.
func (s *MemoryStore) FindRecordByKey(ctx context.Context, key string) (*models.GeneratedOrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// LatestRecordForRule returns the most recently generated record for a rule.
func (s *MemoryStore) LatestRecordForRule(ctx context.Context, organizationID, ruleID string) (*models.GeneratedOrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.GeneratedOrderRecord
	for _, rec := range s.records {
		if rec.OrganizationID != organizationID || rec.RuleID != ruleID {
			continue
		}
		if latest == nil || rec.GeneratedAt.After(latest.GeneratedAt) {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// FindRecordsByOrganization lists a tenant's records.
func (s *MemoryStore) FindRecordsByOrganization(ctx context.Context, organizationID string, limit int64) ([]models.GeneratedOrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []models.GeneratedOrderRecord
	for _, rec := range s.records {
		if rec.OrganizationID == organizationID {
			recs = append(recs, rec)
		}
	}
	if limit > 0 && int64(len(recs)) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// AttachWorkOrder links the created work order and promotes the record.
func (s *MemoryStore) AttachWorkOrder(ctx context.Context, key, workOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	rec.WorkOrderID = &workOrderID
	rec.Status = models.StatusWorkOrderCreated
	rec.LastError = nil
	rec.UpdatedAt = time.Now()
	s.records[key] = rec
	return nil
}

// RecordFailure stores a downstream failure on a still-pending record.
func (s *MemoryStore) RecordFailure(ctx context.Context, key, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	rec.LastError = &message
	rec.UpdatedAt = time.Now()
	s.records[key] = rec
	return nil
}

// ClaimPendingRetry atomically claims a failed pending record for one retry.
func (s *MemoryStore) ClaimPendingRetry(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return false, nil
	}
	if rec.Status != models.StatusPending || rec.WorkOrderID != nil || rec.LastError == nil {
		return false, nil
	}
	rec.LastError = nil
	rec.UpdatedAt = time.Now()
	s.records[key] = rec
	return true, nil
}

// UpdateRecord writes a record's mutable lifecycle fields by key.
func (s *MemoryStore) UpdateRecord(ctx context.Context, rec models.GeneratedOrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = rec.Status
	stored.WorkOrderID = rec.WorkOrderID
	stored.LastError = rec.LastError
	stored.DeferralCount = rec.DeferralCount
	stored.DeferredUntil = rec.DeferredUntil
	stored.DeferredBy = rec.DeferredBy
	stored.DeferralReason = rec.DeferralReason
	stored.UpdatedAt = time.Now()
	s.records[rec.ID] = stored
	return nil
}

// ReopenExpiredDeferrals reopens expired deferred records: back to
// work_order_created when a work order is already linked, back to pending
// when it is not.
func (s *MemoryStore) ReopenExpiredDeferrals(ctx context.Context, organizationID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reopened int64
	for key, rec := range s.records {
		if rec.OrganizationID != organizationID || rec.Status != models.StatusDeferred {
			continue
		}
		if rec.DeferredUntil == nil || rec.DeferredUntil.After(now) {
			continue
		}
		if rec.WorkOrderID != nil {
			rec.Status = models.StatusWorkOrderCreated
		} else {
			rec.Status = models.StatusPending
		}
		rec.UpdatedAt = time.Now()
		s.records[key] = rec
		reopened++
	}
	return reopened, nil
}
