package pm

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/models"
)

// Lifecycle applies state transitions to already-generated records.
//
// pending -> work_order_created -> deferred <-> pending, then cancelled or
// completed (both terminal). An expired deferral re-enters the loop at
// work_order_created when a work order is already linked, at pending when it
// is not. Cancelling is allowed from any non-terminal state. The schedule
// rule is never touched by a deferral; the deferred record itself suppresses
// re-triggering until deferred_until passes.
//
// Closing a scheduled record, by completion or cancellation, anchors the
// rule's last_generated at the record's due date. While the record is open
// its idempotency key keeps batch passes on the duplicate path, so the
// schedule only moves once the occurrence is settled.
type Lifecycle struct {
	store db.Store
	now   func() time.Time
}

// NewLifecycle builds a lifecycle manager over the given store.
func NewLifecycle(store db.Store) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

func (l *Lifecycle) load(ctx context.Context, key string) (*models.GeneratedOrderRecord, error) {
	rec, err := l.store.FindRecordByKey(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Defer postpones a record until the given date. Allowed only from pending or
// work_order_created, and only when the template's deferral policy permits it.
func (l *Lifecycle) Defer(ctx context.Context, key string, until time.Time, deferredBy, reason string) (*models.GeneratedOrderRecord, error) {
	rec, err := l.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusPending && rec.Status != models.StatusWorkOrderCreated {
		return nil, &InvalidTransitionError{Current: rec.Status, Requested: models.StatusDeferred}
	}

	if rec.TemplateID != "" {
		tmpl, err := l.store.FindTemplateByID(ctx, rec.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", rec.TemplateID, err)
		}
		if !tmpl.CanBeDeferred {
			return nil, ErrDeferralNotAllowed
		}
		if tmpl.MaxDeferralDays != nil {
			limit := rec.DueDate.AddDate(0, 0, *tmpl.MaxDeferralDays)
			if until.After(limit) {
				return nil, ErrDeferralTooLong
			}
		}
	}

	rec.Status = models.StatusDeferred
	rec.DeferralCount++
	rec.DeferredUntil = &until
	rec.DeferredBy = &deferredBy
	rec.DeferralReason = &reason
	if err := l.store.UpdateRecord(ctx, *rec); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"key":            key,
		"deferred_until": until,
		"deferred_by":    deferredBy,
		"deferral_count": rec.DeferralCount,
	}).Info("Maintenance deferred")
	return rec, nil
}

// Cancel terminates a record from any non-terminal state.
func (l *Lifecycle) Cancel(ctx context.Context, key string) (*models.GeneratedOrderRecord, error) {
	rec, err := l.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, &InvalidTransitionError{Current: rec.Status, Requested: models.StatusCancelled}
	}
	rec.Status = models.StatusCancelled
	if err := l.store.UpdateRecord(ctx, *rec); err != nil {
		return nil, err
	}
	l.advanceSchedule(ctx, rec)
	log.WithField("key", key).Info("Maintenance cancelled")
	return rec, nil
}

// Complete marks a record done once the linked work order is observed closed.
// The closure itself is decided by the work-order service, not this engine.
func (l *Lifecycle) Complete(ctx context.Context, key string) (*models.GeneratedOrderRecord, error) {
	rec, err := l.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusWorkOrderCreated && rec.Status != models.StatusDeferred {
		return nil, &InvalidTransitionError{Current: rec.Status, Requested: models.StatusCompleted}
	}
	rec.Status = models.StatusCompleted
	if err := l.store.UpdateRecord(ctx, *rec); err != nil {
		return nil, err
	}
	l.advanceSchedule(ctx, rec)
	log.WithField("key", key).Info("Maintenance completed")
	return rec, nil
}

// advanceSchedule anchors the rule's last_generated at the due date the closed
// record satisfied, keeping the cadence free of drift from late batch runs.
// Condition and usage records carry synthetic identities without a stored
// rule, so only scheduled records move a schedule.
func (l *Lifecycle) advanceSchedule(ctx context.Context, rec *models.GeneratedOrderRecord) {
	if rec.TriggerKind != models.TriggerScheduled || rec.RuleID == "" {
		return
	}
	rule, err := l.store.FindRuleByID(ctx, rec.RuleID)
	if err != nil {
		log.WithError(err).WithField("rule_id", rec.RuleID).Error("Failed to load rule for schedule advance")
		return
	}
	last := rec.DueDate
	rule.LastGenerated = &last
	next := NextDue(*rule, l.now())
	if err := l.store.MarkRuleGenerated(ctx, rule.ID, last, next); err != nil {
		log.WithError(err).WithField("rule_id", rec.RuleID).Error("Failed to advance rule schedule")
	}
}
