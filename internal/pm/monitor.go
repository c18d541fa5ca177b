package pm

import (
	"fmt"
	"time"

	"github.com/maintly/pm-engine/internal/models"
)

// Severity classifies a meter value against its thresholds.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// conditionDueDays is the SLA for critical condition crossings.
const conditionDueDays = 1

// ClassifyMeter compares a meter's current value against its thresholds.
// Condition meters fluctuate, so the comparison is on the current value only;
// no monotonicity is assumed. The comparison happens here, client-side,
// because the store cannot express it as a query filter.
func ClassifyMeter(meter models.AssetMeter) Severity {
	if meter.ThresholdCritical != nil && meter.CurrentValue >= *meter.ThresholdCritical {
		return SeverityCritical
	}
	if meter.ThresholdWarning != nil && meter.CurrentValue >= *meter.ThresholdWarning {
		return SeverityWarning
	}
	return SeverityNormal
}

// EvaluateMeters classifies one tenant's threshold meters. Only critical
// crossings become trigger decisions; warning crossings become alerts for the
// notification service, never work orders, so threshold proximity alone does
// not flood a tenant with orders.
func EvaluateMeters(meters []models.AssetMeter, now time.Time) ([]Decision, []models.MeterAlert) {
	var decisions []Decision
	var alerts []models.MeterAlert
	for _, meter := range meters {
		switch ClassifyMeter(meter) {
		case SeverityCritical:
			value := meter.CurrentValue
			decisions = append(decisions, Decision{
				Due:            true,
				OrganizationID: meter.OrganizationID,
				TriggerKind:    models.TriggerCondition,
				Identity:       ConditionIdentity(meter.AssetID, meter.MeterKind),
				Reason: fmt.Sprintf("%s at %.1f %s breached critical threshold %.1f",
					meter.MeterKind, meter.CurrentValue, meter.Unit, *meter.ThresholdCritical),
				DueDate:   now.AddDate(0, 0, conditionDueDays),
				Value:     &value,
				RuleID:    ConditionIdentity(meter.AssetID, meter.MeterKind),
				AssetID:   meter.AssetID,
				AssetName: meter.AssetName,
			})
		case SeverityWarning:
			alerts = append(alerts, models.MeterAlert{
				OrganizationID: meter.OrganizationID,
				MeterID:        meter.ID,
				AssetID:        meter.AssetID,
				AssetName:      meter.AssetName,
				MeterKind:      meter.MeterKind,
				Severity:       string(SeverityWarning),
				Value:          meter.CurrentValue,
				Threshold:      *meter.ThresholdWarning,
				At:             now,
			})
		}
	}
	return decisions, alerts
}
