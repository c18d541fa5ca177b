package models

import (
	"time"
)

// OrganizationResult is the per-tenant outcome of one batch pass.
type OrganizationResult struct {
	OrganizationID    string   `json:"organization_id"`
	OrganizationName  string   `json:"organization_name"`
	ActiveRules       int      `json:"active_rules"`
	MetersEvaluated   int      `json:"meters_evaluated"`
	PMOrdersGenerated int      `json:"pm_orders_generated"`
	WorkOrdersCreated int      `json:"work_orders_created"`
	DuplicatesSkipped int      `json:"duplicates_skipped"`
	AlertsEmitted     int      `json:"alerts_emitted"`
	Errors            []string `json:"errors,omitempty"`
}

// BatchError is one tenant-scoped failure surfaced in the run result.
type BatchError struct {
	OrganizationID string `json:"organization_id"`
	Message        string `json:"message"`
}

// BatchResult is the aggregate outcome of one batch pass across all tenants.
// One tenant's failure never aborts the run; it lands in Errors instead.
type BatchResult struct {
	OrganizationsProcessed int                  `json:"organizations_processed"`
	TotalPMOrdersGenerated int                  `json:"total_pm_orders_generated"`
	TotalWorkOrdersCreated int                  `json:"total_work_orders_created"`
	TotalDuplicatesSkipped int                  `json:"total_duplicates_skipped"`
	Organizations          []OrganizationResult `json:"organizations"`
	Errors                 []BatchError         `json:"errors"`
	ExecutionTimeMS        int64                `json:"execution_time_ms"`
	DryRun                 bool                 `json:"dry_run"`
	StartedAt              time.Time            `json:"started_at"`
}

// Add folds one organization result into the aggregate.
func (b *BatchResult) Add(r OrganizationResult) {
	b.OrganizationsProcessed++
	b.TotalPMOrdersGenerated += r.PMOrdersGenerated
	b.TotalWorkOrdersCreated += r.WorkOrdersCreated
	b.TotalDuplicatesSkipped += r.DuplicatesSkipped
	b.Organizations = append(b.Organizations, r)
	for _, msg := range r.Errors {
		b.Errors = append(b.Errors, BatchError{OrganizationID: r.OrganizationID, Message: msg})
	}
}
