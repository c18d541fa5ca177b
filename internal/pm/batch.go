package pm

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/models"
	"github.com/maintly/pm-engine/internal/notify"
)

// DefaultLookaheadDays is the due window for full passes when the trigger
// does not specify one.
const DefaultLookaheadDays = 30

// Driver runs one evaluation pass over every tenant. Organizations are
// processed as a fold into the aggregate result: one tenant's failure is
// recorded and the run continues. Only a store failure before the first
// tenant is fatal to the run.
type Driver struct {
	store     db.Store
	generator *Generator
	notifier  notify.Notifier
	now       func() time.Time
}

// NewDriver builds a batch driver.
func NewDriver(store db.Store, generator *Generator, notifier notify.Notifier) *Driver {
	return &Driver{store: store, generator: generator, notifier: notifier, now: time.Now}
}

// RunFull evaluates every tenant's time-based, seasonal and usage-based rules
// within the look-ahead window and materializes the due ones. dryRun
// evaluates and reports without reserving keys, writing records or calling
// the work-order service.
func (d *Driver) RunFull(ctx context.Context, lookaheadDays int, dryRun bool) (*models.BatchResult, error) {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	return d.run(ctx, "full", dryRun, func(ctx context.Context, org models.Organization, result *models.OrganizationResult, dryRun bool) {
		d.evaluateRules(ctx, org, result, time.Duration(lookaheadDays)*24*time.Hour, dryRun)
	})
}

// RunMeterPass evaluates every tenant's threshold meters, emitting warning
// alerts and generating condition-based orders for critical crossings.
func (d *Driver) RunMeterPass(ctx context.Context, dryRun bool) (*models.BatchResult, error) {
	return d.run(ctx, "meters", dryRun, d.evaluateMeters)
}

type orgPass func(ctx context.Context, org models.Organization, result *models.OrganizationResult, dryRun bool)

func (d *Driver) run(ctx context.Context, passName string, dryRun bool, pass orgPass) (*models.BatchResult, error) {
	started := d.now()
	result := &models.BatchResult{DryRun: dryRun, StartedAt: started, Errors: []models.BatchError{}}

	orgs, err := d.store.ListActiveOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	for _, org := range orgs {
		orgResult := d.processOrganization(ctx, org, dryRun, pass)
		result.Add(orgResult)
		log.WithFields(log.Fields{
			"pass":                passName,
			"organization_id":     org.ID,
			"active_rules":        orgResult.ActiveRules,
			"meters_evaluated":    orgResult.MetersEvaluated,
			"pm_orders_generated": orgResult.PMOrdersGenerated,
			"duplicates_skipped":  orgResult.DuplicatesSkipped,
			"errors":              len(orgResult.Errors),
		}).Info("Organization processed")
	}

	result.ExecutionTimeMS = time.Since(started).Milliseconds()
	log.WithFields(log.Fields{
		"pass":                      passName,
		"dry_run":                   dryRun,
		"organizations_processed":   result.OrganizationsProcessed,
		"total_pm_orders_generated": result.TotalPMOrdersGenerated,
		"total_work_orders_created": result.TotalWorkOrdersCreated,
		"execution_time_ms":         result.ExecutionTimeMS,
	}).Info("Batch pass finished")
	return result, nil
}

// processOrganization runs one pass for one tenant. Panics and errors stop
// here: they become entries in the tenant's result, never the run's fate.
func (d *Driver) processOrganization(ctx context.Context, org models.Organization, dryRun bool, pass orgPass) (result models.OrganizationResult) {
	result = models.OrganizationResult{OrganizationID: org.ID, OrganizationName: org.Name}
	defer func() {
		if r := recover(); r != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", r))
			log.WithFields(log.Fields{"organization_id": org.ID, "panic": r}).Error("Organization pass panicked")
		}
	}()
	pass(ctx, org, &result, dryRun)
	return result
}

func (d *Driver) evaluateRules(ctx context.Context, org models.Organization, result *models.OrganizationResult, lookahead time.Duration, dryRun bool) {
	now := d.now()

	if !dryRun {
		if reopened, err := d.store.ReopenExpiredDeferrals(ctx, org.ID, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("reopen deferrals: %v", err))
		} else if reopened > 0 {
			log.WithFields(log.Fields{"organization_id": org.ID, "reopened": reopened}).Info("Expired deferrals reopened")
		}
	}

	rules, err := d.store.FindActiveRules(ctx, org.ID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load rules: %v", err))
		return
	}
	result.ActiveRules = len(rules)

	for _, rule := range rules {
		decision, err := d.evaluateOneRule(ctx, rule, now, lookahead)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if !decision.Due {
			continue
		}
		d.materialize(ctx, decision, result, dryRun)
	}
}

func (d *Driver) evaluateOneRule(ctx context.Context, rule models.ScheduleRule, now time.Time, lookahead time.Duration) (Decision, error) {
	latest, err := d.store.LatestRecordForRule(ctx, rule.OrganizationID, rule.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return notDue(), fmt.Errorf("rule %s: load latest record: %v", rule.ID, err)
	}

	switch rule.ScheduleKind {
	case models.ScheduleTimeBased, models.ScheduleSeasonal:
		return EvaluateRule(rule, latest, now, lookahead), nil
	case models.ScheduleUsageBased:
		tmpl, err := d.store.FindTemplateByID(ctx, rule.TemplateID)
		if err != nil {
			intErr := &DataIntegrityError{RuleID: rule.ID, Ref: fmt.Sprintf("template %s", rule.TemplateID), Err: err}
			log.WithError(intErr).WithField("organization_id", rule.OrganizationID).Error("Rule skipped")
			return notDue(), intErr
		}
		trigger := tmpl.TriggerOfKind(models.TriggerUsage)
		if trigger == nil {
			return notDue(), nil
		}
		meter, err := d.store.FindMeterByAsset(ctx, rule.OrganizationID, rule.AssetID, trigger.MeterKind)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				intErr := &DataIntegrityError{RuleID: rule.ID, Ref: fmt.Sprintf("meter for asset %s", rule.AssetID), Err: err}
				log.WithError(intErr).WithField("organization_id", rule.OrganizationID).Error("Rule skipped")
				return notDue(), intErr
			}
			return notDue(), fmt.Errorf("rule %s: load meter: %v", rule.ID, err)
		}
		return EvaluateUsageRule(rule, tmpl, meter, latest, now), nil
	default:
		// Condition-based rules are driven by the meter pass, not the
		// schedule evaluation.
		return notDue(), nil
	}
}

func (d *Driver) evaluateMeters(ctx context.Context, org models.Organization, result *models.OrganizationResult, dryRun bool) {
	meters, err := d.store.FindThresholdMeters(ctx, org.ID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load meters: %v", err))
		return
	}
	result.MetersEvaluated = len(meters)

	decisions, alerts := EvaluateMeters(meters, d.now())
	for _, alert := range alerts {
		if err := d.notifier.MeterAlert(ctx, alert); err != nil {
			log.WithError(err).WithField("organization_id", org.ID).Error("Failed to emit meter alert")
			continue
		}
		result.AlertsEmitted++
	}
	for _, decision := range decisions {
		d.materialize(ctx, decision, result, dryRun)
	}
}

// materialize runs the generator for one due decision and folds the outcome
// into the tenant result.
func (d *Driver) materialize(ctx context.Context, decision Decision, result *models.OrganizationResult, dryRun bool) {
	if dryRun {
		result.PMOrdersGenerated++
		return
	}
	genResult, err := d.generator.Generate(ctx, decision)
	if err != nil {
		var downstream *DownstreamError
		if errors.As(err, &downstream) {
			// The record is reserved and pending; the next pass retries it.
			result.PMOrdersGenerated++
			result.Errors = append(result.Errors, err.Error())
			return
		}
		result.Errors = append(result.Errors, err.Error())
		return
	}
	switch genResult.Outcome {
	case OutcomeCreated:
		result.PMOrdersGenerated++
		result.WorkOrdersCreated++
	case OutcomeSkippedDuplicate:
		result.DuplicatesSkipped++
	}
}
