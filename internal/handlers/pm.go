package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/pm"
)

// PMHandler exposes the batch trigger and lifecycle operations over HTTP.
type PMHandler struct {
	driver               *pm.Driver
	lifecycle            *pm.Lifecycle
	store                db.Store
	defaultLookaheadDays int
}

// NewPMHandler creates the PM trigger/lifecycle handler.
func NewPMHandler(driver *pm.Driver, lifecycle *pm.Lifecycle, store db.Store, defaultLookaheadDays int) *PMHandler {
	if defaultLookaheadDays <= 0 {
		defaultLookaheadDays = pm.DefaultLookaheadDays
	}
	return &PMHandler{
		driver:               driver,
		lifecycle:            lifecycle,
		store:                store,
		defaultLookaheadDays: defaultLookaheadDays,
	}
}

// RunFullPass triggers the daily full schedule evaluation.
// POST /api/pm/run?lookahead_days=30&dry_run=false
func (h *PMHandler) RunFullPass(w http.ResponseWriter, r *http.Request) {
	lookahead := h.defaultLookaheadDays
	if v := r.URL.Query().Get("lookahead_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "lookahead_days must be a positive integer", http.StatusBadRequest)
			return
		}
		lookahead = n
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"

	result, err := h.driver.RunFull(r.Context(), lookahead, dryRun)
	if err != nil {
		http.Error(w, "Batch run failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunMeterPass triggers the meter-threshold-only evaluation.
// POST /api/pm/run-meters?dry_run=false
func (h *PMHandler) RunMeterPass(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"

	result, err := h.driver.RunMeterPass(r.Context(), dryRun)
	if err != nil {
		http.Error(w, "Batch run failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type deferRequest struct {
	DeferredUntil time.Time `json:"deferred_until"`
	DeferredBy    string    `json:"deferred_by"`
	Reason        string    `json:"reason"`
}

// DeferRecord postpones a generated record.
// POST /api/pm/records/{key}/defer
func (h *PMHandler) DeferRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	var req deferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.DeferredUntil.IsZero() || req.DeferredBy == "" {
		http.Error(w, "deferred_until and deferred_by are required", http.StatusBadRequest)
		return
	}

	rec, err := h.lifecycle.Defer(r.Context(), key, req.DeferredUntil, req.DeferredBy, req.Reason)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelRecord terminates a generated record.
// POST /api/pm/records/{key}/cancel
func (h *PMHandler) CancelRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.lifecycle.Cancel(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CompleteRecord marks a record done after its work order closed.
// POST /api/pm/records/{key}/complete
func (h *PMHandler) CompleteRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.lifecycle.Complete(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListRecords returns a tenant's generated records, newest first.
// GET /api/pm/records?organization_id=org1&limit=50
func (h *PMHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}
	limit := int64(100)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.store.FindRecordsByOrganization(r.Context(), orgID, limit)
	if err != nil {
		http.Error(w, "Failed to list records", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func writeLifecycleError(w http.ResponseWriter, err error) {
	var invalid *pm.InvalidTransitionError
	switch {
	case errors.Is(err, pm.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalid):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pm.ErrDeferralNotAllowed), errors.Is(err, pm.ErrDeferralTooLong):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
