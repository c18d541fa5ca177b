package models

import (
	"time"
)

// ScheduleKind determines how a rule is evaluated.
type ScheduleKind string

const (
	ScheduleTimeBased      ScheduleKind = "time_based"
	ScheduleConditionBased ScheduleKind = "condition_based"
	ScheduleUsageBased     ScheduleKind = "usage_based"
	ScheduleSeasonal       ScheduleKind = "seasonal"
)

// IntervalUnit is the unit of a rule's recurrence interval.
type IntervalUnit string

const (
	UnitDays   IntervalUnit = "days"
	UnitWeeks  IntervalUnit = "weeks"
	UnitMonths IntervalUnit = "months"
)

// Hours converts one interval unit to hours. Months are normalized to 30 days.
func (u IntervalUnit) Hours() float64 {
	switch u {
	case UnitWeeks:
		return 7 * 24
	case UnitMonths:
		return 30 * 24
	default:
		return 24
	}
}

// ScheduleRule binds a maintenance template to one asset for one tenant.
// NextDue is derived from LastGenerated plus the seasonally adjusted interval;
// only a successful generation advances it.
type ScheduleRule struct {
	ID             string       `bson:"_id,omitempty" json:"id"`
	OrganizationID string       `bson:"organization_id" json:"organization_id"`
	AssetID        string       `bson:"asset_id" json:"asset_id"`
	AssetName      string       `bson:"asset_name" json:"asset_name"`
	TemplateID     string       `bson:"template_id" json:"template_id"`
	ScheduleKind   ScheduleKind `bson:"schedule_kind" json:"schedule_kind"`
	IntervalValue  int          `bson:"interval_value" json:"interval_value"`
	IntervalUnit   IntervalUnit `bson:"interval_unit" json:"interval_unit"`
	StartDate      time.Time    `bson:"start_date" json:"start_date"`
	EndDate        *time.Time   `bson:"end_date,omitempty" json:"end_date,omitempty"`
	Active         bool         `bson:"active" json:"active"`
	LastGenerated  *time.Time   `bson:"last_generated,omitempty" json:"last_generated,omitempty"`
	NextDue        *time.Time   `bson:"next_due,omitempty" json:"next_due,omitempty"`
	// SeasonalMultipliers scales the interval per calendar season,
	// e.g. {"summer": 0.8, "winter": 1.2}. Missing seasons default to 1.0.
	SeasonalMultipliers map[string]float64 `bson:"seasonal_multipliers,omitempty" json:"seasonal_multipliers,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}
