package pm

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/models"
	"github.com/maintly/pm-engine/internal/workorder"
)

// Outcome classifies one generation attempt.
type Outcome string

const (
	// OutcomeCreated means the record was reserved and the work order exists.
	OutcomeCreated Outcome = "created"
	// OutcomeSkippedDuplicate means the key was already reserved and the
	// obligation already has a work order or reached a later state.
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	// OutcomePending means the record is reserved but the work-order
	// collaborator failed; the next pass retries the creation in place.
	OutcomePending Outcome = "pending"
)

// GenerateResult is the outcome of one generation attempt.
type GenerateResult struct {
	Outcome     Outcome
	Key         string
	WorkOrderID string
}

// Generator turns trigger decisions into generated order records and work
// orders, exactly once per idempotency key.
type Generator struct {
	store      db.Store
	workOrders workorder.Client
	now        func() time.Time
}

// NewGenerator builds a generator over the given store and collaborator.
func NewGenerator(store db.Store, workOrders workorder.Client) *Generator {
	return &Generator{store: store, workOrders: workOrders, now: time.Now}
}

// Generate materializes one due decision. The idempotency key is reserved by
// atomically inserting the record under the key; a duplicate reservation is
// inspected rather than discarded, so a pending record from a failed prior
// attempt gets its work-order creation retried in place instead of being
// blocked forever.
//
// The rule's schedule is not advanced here. The reserved record keeps the
// same due date falling on the duplicate path until the occurrence closes,
// at which point the lifecycle manager moves the schedule forward.
func (g *Generator) Generate(ctx context.Context, d Decision) (GenerateResult, error) {
	if !d.Due {
		return GenerateResult{}, fmt.Errorf("decision is not due")
	}

	if d.TemplateID != "" {
		if _, err := g.store.FindTemplateByID(ctx, d.TemplateID); err != nil {
			return GenerateResult{}, &DataIntegrityError{
				RuleID: d.RuleID,
				Ref:    fmt.Sprintf("template %s", d.TemplateID),
				Err:    err,
			}
		}
	}

	key := BuildIdempotencyKey(d.OrganizationID, d.Identity, d.DueDate)
	now := g.now()
	rec := models.GeneratedOrderRecord{
		ID:             key,
		OrganizationID: d.OrganizationID,
		TemplateID:     d.TemplateID,
		RuleID:         d.RuleID,
		AssetID:        d.AssetID,
		AssetName:      d.AssetName,
		TriggerKind:    d.TriggerKind,
		TriggerReason:  d.Reason,
		TriggerValue:   d.Value,
		GeneratedAt:    now,
		DueDate:        d.DueDate,
		Status:         models.StatusPending,
	}

	err := g.store.ReserveRecord(ctx, rec)
	if errors.Is(err, db.ErrDuplicateKey) {
		existing, findErr := g.store.FindRecordByKey(ctx, key)
		if findErr != nil {
			return GenerateResult{}, fmt.Errorf("load existing record %s: %w", key, findErr)
		}
		if existing.Status == models.StatusPending && existing.WorkOrderID == nil {
			// A prior attempt reserved the key but its work-order creation
			// failed. Claim the retry atomically so overlapping invocations
			// cannot both call the collaborator.
			claimed, claimErr := g.store.ClaimPendingRetry(ctx, key)
			if claimErr != nil {
				return GenerateResult{}, fmt.Errorf("claim retry for %s: %w", key, claimErr)
			}
			if claimed {
				return g.createWorkOrder(ctx, d, key)
			}
		}
		log.WithFields(log.Fields{
			"organization_id": d.OrganizationID,
			"key":             key,
			"status":          existing.Status,
		}).Debug("Duplicate generation skipped")
		return GenerateResult{Outcome: OutcomeSkippedDuplicate, Key: key}, nil
	}
	if err != nil {
		return GenerateResult{}, fmt.Errorf("reserve key %s: %w", key, err)
	}

	return g.createWorkOrder(ctx, d, key)
}

// createWorkOrder calls the collaborator and promotes the record. On failure
// the reservation is never rolled back: rolling back would reopen the
// duplicate-generation window the key exists to close.
func (g *Generator) createWorkOrder(ctx context.Context, d Decision, key string) (GenerateResult, error) {
	workOrderID, err := g.workOrders.CreateWorkOrder(ctx, workorder.CreateRequest{
		OrganizationID: d.OrganizationID,
		AssetID:        d.AssetID,
		AssetName:      d.AssetName,
		TemplateID:     d.TemplateID,
		DueDate:        d.DueDate,
		TriggerReason:  d.Reason,
	})
	if err != nil {
		if recErr := g.store.RecordFailure(ctx, key, err.Error()); recErr != nil {
			log.WithError(recErr).WithField("key", key).Error("Failed to record downstream failure")
		}
		return GenerateResult{Outcome: OutcomePending, Key: key}, &DownstreamError{Key: key, Err: err}
	}

	if err := g.store.AttachWorkOrder(ctx, key, workOrderID); err != nil {
		return GenerateResult{}, fmt.Errorf("attach work order %s to %s: %w", workOrderID, key, err)
	}

	log.WithFields(log.Fields{
		"organization_id": d.OrganizationID,
		"key":             key,
		"work_order_id":   workOrderID,
		"trigger_kind":    d.TriggerKind,
	}).Info("Generated maintenance work order")
	return GenerateResult{Outcome: OutcomeCreated, Key: key, WorkOrderID: workOrderID}, nil
}
