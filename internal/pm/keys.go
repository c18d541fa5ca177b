package pm

import (
	"fmt"
	"strconv"
	"time"

	"github.com/maintly/pm-engine/internal/models"
)

// BuildIdempotencyKey derives the unique key collapsing repeated invocations
// of one logical generation decision into one outcome:
//
//	{organization_id}_{trigger_identity}_{due_date:YYYYMMDD}
//
// Identical inputs always yield an identical key. This is the only mechanism
// preventing duplicate work-order creation; no caller may derive a key any
// other way.
func BuildIdempotencyKey(organizationID, triggerIdentity string, dueDate time.Time) string {
	return fmt.Sprintf("%s_%s_%s", organizationID, triggerIdentity, dueDate.Format("20060102"))
}

// RuleIdentity is the trigger identity of a scheduled (time-based) rule.
func RuleIdentity(ruleID string) string {
	return ruleID
}

// ConditionIdentity is the trigger identity of a condition-based decision.
// Two condition triggers for the same asset/meter on one calendar day share a
// key, so at most one condition order per asset/meter/day is generated.
func ConditionIdentity(assetID string, kind models.MeterKind) string {
	return fmt.Sprintf("condition_%s_%s", assetID, kind)
}

// UsageIdentity is the trigger identity of a usage-based decision. The
// threshold is part of the identity so re-crossing the same threshold after a
// meter reset produces a new key.
func UsageIdentity(assetID string, kind models.MeterKind, threshold float64) string {
	return fmt.Sprintf("usage_%s_%s_%s", assetID, kind, strconv.FormatFloat(threshold, 'f', -1, 64))
}

// ManualIdentity is the trigger identity of a manually requested generation.
func ManualIdentity(assetID string, at time.Time) string {
	return fmt.Sprintf("manual_%s_%d", assetID, at.Unix())
}
