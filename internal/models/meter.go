package models

import (
	"time"
)

// MeterKind identifies what an asset meter measures.
type MeterKind string

const (
	MeterRuntimeHours MeterKind = "runtime_hours"
	MeterCycles       MeterKind = "cycles"
	MeterVibration    MeterKind = "vibration"
	MeterTemperature  MeterKind = "temperature"
	MeterPressure     MeterKind = "pressure"
)

// ReadingSource records how a meter value arrived.
type ReadingSource string

const (
	SourceManual    ReadingSource = "manual"
	SourceAutomated ReadingSource = "automated"
)

// AssetMeter is a single usage/condition metric tracked for one asset.
// Cumulative kinds (runtime hours, cycles) only grow; condition kinds
// (vibration, temperature, pressure) fluctuate, so nothing downstream may
// assume monotonic values.
type AssetMeter struct {
	ID                string        `bson:"_id,omitempty" json:"id"`
	OrganizationID    string        `bson:"organization_id" json:"organization_id"`
	AssetID           string        `bson:"asset_id" json:"asset_id"`
	AssetName         string        `bson:"asset_name" json:"asset_name"`
	MeterKind         MeterKind     `bson:"meter_kind" json:"meter_kind"`
	Unit              string        `bson:"unit" json:"unit"`
	CurrentValue      float64       `bson:"current_value" json:"current_value"`
	PreviousValue     float64       `bson:"previous_value" json:"previous_value"`
	LastReading       time.Time     `bson:"last_reading" json:"last_reading"`
	ReadingSource     ReadingSource `bson:"reading_source" json:"reading_source"`
	ThresholdWarning  *float64      `bson:"threshold_warning,omitempty" json:"threshold_warning,omitempty"`
	ThresholdCritical *float64      `bson:"threshold_critical,omitempty" json:"threshold_critical,omitempty"`
	ResetsAfterMaint  bool          `bson:"resets_after_maintenance" json:"resets_after_maintenance"`
	Active            bool          `bson:"active" json:"active"`
	CreatedAt         time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `bson:"updated_at" json:"updated_at"`
}

// MeterReading is one external reading applied to an asset meter.
type MeterReading struct {
	MeterID        string        `json:"meter_id"`
	OrganizationID string        `json:"organization_id"`
	Value          float64       `json:"value"`
	Timestamp      time.Time     `json:"timestamp"`
	Source         ReadingSource `json:"source"`
}

// MeterAlert is a threshold notification handed to the notification service.
// Alerts are emitted, never persisted by this engine.
type MeterAlert struct {
	OrganizationID string    `json:"organization_id"`
	MeterID        string    `json:"meter_id"`
	AssetID        string    `json:"asset_id"`
	AssetName      string    `json:"asset_name"`
	MeterKind      MeterKind `json:"meter_kind"`
	Severity       string    `json:"severity"` // "warning" or "critical"
	Value          float64   `json:"value"`
	Threshold      float64   `json:"threshold"`
	At             time.Time `json:"at"`
}
