package models

import (
	"time"
)

// TriggerKind identifies what made a maintenance obligation due.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerCondition TriggerKind = "condition"
	TriggerUsage     TriggerKind = "usage"
	TriggerManual    TriggerKind = "manual"
)

// RecordStatus is the lifecycle state of a generated order record.
type RecordStatus string

const (
	StatusPending          RecordStatus = "pending"
	StatusWorkOrderCreated RecordStatus = "work_order_created"
	StatusDeferred         RecordStatus = "deferred"
	StatusCancelled        RecordStatus = "cancelled"
	StatusCompleted        RecordStatus = "completed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RecordStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// GeneratedOrderRecord is the audit and idempotency anchor for one
// maintenance-generation decision. The document id is the idempotency key
// itself, so reserving the key and creating the record are one atomic insert.
// Records are never deleted.
type GeneratedOrderRecord struct {
	ID             string       `bson:"_id" json:"idempotency_key"`
	OrganizationID string       `bson:"organization_id" json:"organization_id"`
	WorkOrderID    *string      `bson:"work_order_id,omitempty" json:"work_order_id,omitempty"`
	TemplateID     string       `bson:"template_id,omitempty" json:"template_id,omitempty"`
	RuleID         string       `bson:"rule_id" json:"rule_id"` // rule id or synthetic condition identity
	AssetID        string       `bson:"asset_id" json:"asset_id"`
	AssetName      string       `bson:"asset_name" json:"asset_name"`
	TriggerKind    TriggerKind  `bson:"trigger_kind" json:"trigger_kind"`
	TriggerReason  string       `bson:"trigger_reason" json:"trigger_reason"`
	TriggerValue   *float64     `bson:"trigger_value,omitempty" json:"trigger_value,omitempty"`
	GeneratedAt    time.Time    `bson:"generated_at" json:"generated_at"`
	DueDate        time.Time    `bson:"due_date" json:"due_date"`
	Status         RecordStatus `bson:"status" json:"status"`
	LastError      *string      `bson:"last_error,omitempty" json:"last_error,omitempty"`
	DeferralCount  int          `bson:"deferral_count" json:"deferral_count"`
	DeferredUntil  *time.Time   `bson:"deferred_until,omitempty" json:"deferred_until,omitempty"`
	DeferredBy     *string      `bson:"deferred_by,omitempty" json:"deferred_by,omitempty"`
	DeferralReason *string      `bson:"deferral_reason,omitempty" json:"deferral_reason,omitempty"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updated_at"`
}

// DeferralActive reports whether the record suppresses re-triggering at now.
func (r *GeneratedOrderRecord) DeferralActive(now time.Time) bool {
	return r.Status == StatusDeferred && r.DeferredUntil != nil && r.DeferredUntil.After(now)
}
