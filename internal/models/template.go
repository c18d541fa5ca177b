package models

import (
	"time"
)

// MaintenanceType classifies why a template exists.
type MaintenanceType string

const (
	MaintenancePreventive     MaintenanceType = "preventive"
	MaintenancePredictive     MaintenanceType = "predictive"
	MaintenanceConditionBased MaintenanceType = "condition_based"
	MaintenanceUsageBased     MaintenanceType = "usage_based"
	MaintenanceTimeBased      MaintenanceType = "time_based"
	MaintenanceSeasonal       MaintenanceType = "seasonal"
	MaintenanceRegulatory     MaintenanceType = "regulatory"
)

// IsValidMaintenanceType reports whether t is a known maintenance type.
func IsValidMaintenanceType(t MaintenanceType) bool {
	switch t {
	case MaintenancePreventive, MaintenancePredictive, MaintenanceConditionBased,
		MaintenanceUsageBased, MaintenanceTimeBased, MaintenanceSeasonal, MaintenanceRegulatory:
		return true
	}
	return false
}

// TriggerSpec is one trigger definition inside a template. MeterKind names
// the asset meter a usage or condition trigger watches.
type TriggerSpec struct {
	Kind        TriggerKind `bson:"kind" json:"kind"`
	MeterKind   MeterKind   `bson:"meter_kind,omitempty" json:"meter_kind,omitempty"`
	Threshold   float64     `bson:"threshold" json:"threshold"`
	Warning     *float64    `bson:"warning,omitempty" json:"warning,omitempty"`
	Unit        string      `bson:"unit" json:"unit"` // "days", "hours", "cycles", "celsius", ...
	Description string      `bson:"description" json:"description"`
}

// MaintenanceTemplate is a reusable definition of work to perform.
// A nil OrganizationID marks a global template usable by any tenant.
type MaintenanceTemplate struct {
	ID               string          `bson:"_id,omitempty" json:"id"`
	OrganizationID   *string         `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	Name             string          `bson:"name" json:"name"`
	MaintenanceType  MaintenanceType `bson:"maintenance_type" json:"maintenance_type"`
	Triggers         []TriggerSpec   `bson:"triggers" json:"triggers"`
	RequiredSkills   []string        `bson:"required_skills,omitempty" json:"required_skills,omitempty"`
	RequiredParts    []string        `bson:"required_parts,omitempty" json:"required_parts,omitempty"`
	RequiredTools    []string        `bson:"required_tools,omitempty" json:"required_tools,omitempty"`
	EstimatedHours   float64         `bson:"estimated_hours" json:"estimated_hours"`
	Criticality      int             `bson:"criticality" json:"criticality"` // 1 (low) to 5 (critical)
	CanBeDeferred    bool            `bson:"can_be_deferred" json:"can_be_deferred"`
	MaxDeferralDays  *int            `bson:"max_deferral_days,omitempty" json:"max_deferral_days,omitempty"`
	CreatedAt        time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `bson:"updated_at" json:"updated_at"`
}

// TriggerOfKind returns the first trigger spec of the given kind, or nil.
func (t *MaintenanceTemplate) TriggerOfKind(kind TriggerKind) *TriggerSpec {
	for i := range t.Triggers {
		if t.Triggers[i].Kind == kind {
			return &t.Triggers[i]
		}
	}
	return nil
}
