package pm

import (
	"errors"
	"fmt"

	"github.com/maintly/pm-engine/internal/models"
)

var (
	// ErrRecordNotFound is returned by lifecycle operations for unknown keys.
	ErrRecordNotFound = errors.New("generated order record not found")
	// ErrDeferralNotAllowed is returned when the template forbids deferral.
	ErrDeferralNotAllowed = errors.New("template does not allow deferral")
	// ErrDeferralTooLong is returned when the requested deferral exceeds the
	// template's maximum deferral window.
	ErrDeferralTooLong = errors.New("deferral exceeds template maximum")
)

// InvalidTransitionError reports a lifecycle request that the record's
// current state disallows.
type InvalidTransitionError struct {
	Current   models.RecordStatus
	Requested models.RecordStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.Current, e.Requested)
}

// DataIntegrityError reports a rule referencing a missing template or asset.
// The rule is skipped; the tenant's other rules are unaffected.
type DataIntegrityError struct {
	RuleID string
	Ref    string // what the rule references, e.g. "template tmpl-1"
	Err    error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("rule %s references missing %s: %v", e.RuleID, e.Ref, e.Err)
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }

// DownstreamError reports a work-order collaborator failure. The reserved
// record stays pending and is retried in place on the next pass.
type DownstreamError struct {
	Key string
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("work order creation failed for %s: %v", e.Key, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }
