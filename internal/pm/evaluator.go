package pm

import (
	"fmt"
	"time"

	"github.com/maintly/pm-engine/internal/models"
)

// Decision is the outcome of evaluating one rule or meter: whether
// maintenance is due, why, and everything the generator needs to act on it.
type Decision struct {
	Due            bool
	OrganizationID string
	TriggerKind    models.TriggerKind
	// Identity is the trigger-identity half of the idempotency key.
	Identity   string
	Reason     string
	DueDate    time.Time
	Value      *float64
	TemplateID string
	RuleID     string
	AssetID    string
	AssetName  string
}

func notDue() Decision { return Decision{Due: false} }

// Season returns the calendar season at t: "winter", "spring", "summer" or
// "autumn" (northern-hemisphere months).
func Season(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

// SeasonalMultiplier returns the rule's interval scale for the season at t,
// defaulting to 1.0 when unspecified.
func SeasonalMultiplier(rule models.ScheduleRule, t time.Time) float64 {
	if rule.SeasonalMultipliers == nil {
		return 1.0
	}
	if m, ok := rule.SeasonalMultipliers[Season(t)]; ok && m > 0 {
		return m
	}
	return 1.0
}

// NextDue derives when the rule next falls due: last_generated (or the start
// date before any generation) plus the interval scaled by the seasonal
// multiplier at now.
func NextDue(rule models.ScheduleRule, now time.Time) time.Time {
	anchor := rule.StartDate
	if rule.LastGenerated != nil {
		anchor = *rule.LastGenerated
	}
	hours := float64(rule.IntervalValue) * rule.IntervalUnit.Hours() * SeasonalMultiplier(rule, now)
	return anchor.Add(time.Duration(hours * float64(time.Hour)))
}

// EvaluateRule decides whether a time-based or seasonal rule is due. latest
// is the rule's most recent generated record, nil if it has never generated.
// A deferred record with deferred_until in the future supersedes the schedule
// and suppresses re-triggering. lookahead widens the due window for batch
// passes that materialize upcoming work early.
func EvaluateRule(rule models.ScheduleRule, latest *models.GeneratedOrderRecord, now time.Time, lookahead time.Duration) Decision {
	if !rule.Active {
		return notDue()
	}
	if rule.ScheduleKind != models.ScheduleTimeBased && rule.ScheduleKind != models.ScheduleSeasonal {
		return notDue()
	}
	if now.Before(rule.StartDate) {
		return notDue()
	}
	if rule.EndDate != nil && now.After(*rule.EndDate) {
		return notDue()
	}
	if latest != nil && latest.DeferralActive(now) {
		return notDue()
	}

	due := NextDue(rule, now)
	if due.After(now.Add(lookahead)) {
		return notDue()
	}

	mult := SeasonalMultiplier(rule, now)
	reason := fmt.Sprintf("scheduled interval of %d %s elapsed", rule.IntervalValue, rule.IntervalUnit)
	if mult != 1.0 {
		reason = fmt.Sprintf("%s (seasonal multiplier %.2f)", reason, mult)
	}
	return Decision{
		Due:            true,
		OrganizationID: rule.OrganizationID,
		TriggerKind:    models.TriggerScheduled,
		Identity:       RuleIdentity(rule.ID),
		Reason:         reason,
		DueDate:        due,
		TemplateID:     rule.TemplateID,
		RuleID:         rule.ID,
		AssetID:        rule.AssetID,
		AssetName:      rule.AssetName,
	}
}

// EvaluateUsageRule decides whether a usage-based rule is due by comparing
// its asset meter against the template's usage trigger threshold.
func EvaluateUsageRule(rule models.ScheduleRule, tmpl *models.MaintenanceTemplate, meter *models.AssetMeter, latest *models.GeneratedOrderRecord, now time.Time) Decision {
	if !rule.Active || rule.ScheduleKind != models.ScheduleUsageBased {
		return notDue()
	}
	if latest != nil && latest.DeferralActive(now) {
		return notDue()
	}
	trigger := tmpl.TriggerOfKind(models.TriggerUsage)
	if trigger == nil || meter == nil {
		return notDue()
	}
	if meter.CurrentValue < trigger.Threshold {
		return notDue()
	}
	value := meter.CurrentValue
	return Decision{
		Due:            true,
		OrganizationID: rule.OrganizationID,
		TriggerKind:    models.TriggerUsage,
		Identity:       UsageIdentity(rule.AssetID, meter.MeterKind, trigger.Threshold),
		Reason: fmt.Sprintf("%s reached %.1f %s (threshold %.1f)",
			meter.MeterKind, meter.CurrentValue, meter.Unit, trigger.Threshold),
		DueDate:    now.AddDate(0, 0, usageDueDays),
		Value:      &value,
		TemplateID: rule.TemplateID,
		RuleID:     rule.ID,
		AssetID:    rule.AssetID,
		AssetName:  rule.AssetName,
	}
}

// usageDueDays is the SLA for usage-triggered maintenance. Usage crossings
// are less urgent than critical condition crossings, which get one day.
const usageDueDays = 7
