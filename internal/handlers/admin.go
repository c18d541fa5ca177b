package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/models"
)

// AdminHandler covers the administrative surface: creating templates, rules,
// meters and organizations, and submitting manual meter readings.
type AdminHandler struct {
	store db.Store
}

// NewAdminHandler creates the administrative handler.
func NewAdminHandler(store db.Store) *AdminHandler {
	return &AdminHandler{store: store}
}

// CreateTemplate registers a maintenance template; a missing organization_id
// marks it global.
// POST /api/pm/templates
func (h *AdminHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.MaintenanceTemplate
	if !decodeBody(w, r, &tmpl) {
		return
	}
	if tmpl.Name == "" || !models.IsValidMaintenanceType(tmpl.MaintenanceType) {
		http.Error(w, "name and a valid maintenance_type are required", http.StatusBadRequest)
		return
	}
	if tmpl.Criticality < 1 || tmpl.Criticality > 5 {
		http.Error(w, "criticality must be between 1 and 5", http.StatusBadRequest)
		return
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	if err := h.store.InsertTemplate(r.Context(), tmpl); err != nil {
		http.Error(w, "Failed to create template", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

// CreateRule schedules maintenance for one asset.
// POST /api/pm/rules
func (h *AdminHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.ScheduleRule
	if !decodeBody(w, r, &rule) {
		return
	}
	if rule.OrganizationID == "" || rule.AssetID == "" || rule.TemplateID == "" {
		http.Error(w, "organization_id, asset_id and template_id are required", http.StatusBadRequest)
		return
	}
	if _, err := h.store.FindTemplateByID(r.Context(), rule.TemplateID); err != nil {
		http.Error(w, "template not found", http.StatusUnprocessableEntity)
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.StartDate.IsZero() {
		rule.StartDate = time.Now()
	}
	rule.Active = true
	if err := h.store.InsertRule(r.Context(), rule); err != nil {
		http.Error(w, "Failed to create rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// CreateMeter instruments an asset with a tracked metric.
// POST /api/meters
func (h *AdminHandler) CreateMeter(w http.ResponseWriter, r *http.Request) {
	var meter models.AssetMeter
	if !decodeBody(w, r, &meter) {
		return
	}
	if meter.OrganizationID == "" || meter.AssetID == "" || meter.MeterKind == "" {
		http.Error(w, "organization_id, asset_id and meter_kind are required", http.StatusBadRequest)
		return
	}
	if meter.ID == "" {
		meter.ID = uuid.NewString()
	}
	meter.Active = true
	if err := h.store.InsertMeter(r.Context(), meter); err != nil {
		http.Error(w, "Failed to create meter", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, meter)
}

// CreateOrganization registers a tenant.
// POST /api/organizations
func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var org models.Organization
	if !decodeBody(w, r, &org) {
		return
	}
	if org.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.Active = true
	if err := h.store.InsertOrganization(r.Context(), org); err != nil {
		http.Error(w, "Failed to create organization", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// SubmitReading applies one manual meter reading.
// POST /api/meters/readings
func (h *AdminHandler) SubmitReading(w http.ResponseWriter, r *http.Request) {
	var reading models.MeterReading
	if !decodeBody(w, r, &reading) {
		return
	}
	if reading.MeterID == "" || reading.OrganizationID == "" {
		http.Error(w, "meter_id and organization_id are required", http.StatusBadRequest)
		return
	}
	reading.Source = models.SourceManual
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}
	if err := h.store.ApplyReading(r.Context(), reading); err != nil {
		http.Error(w, "Failed to apply reading", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}
