// Package workorder is the client side of the external work-order service.
// The engine never owns work orders; it only asks this collaborator to create
// them and observes their closure.
package workorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// CreateRequest describes one work order to create.
type CreateRequest struct {
	OrganizationID string    `json:"organization_id"`
	AssetID        string    `json:"asset_id"`
	AssetName      string    `json:"asset_name,omitempty"`
	TemplateID     string    `json:"template_id,omitempty"`
	DueDate        time.Time `json:"due_date"`
	TriggerReason  string    `json:"trigger_reason"`
}

// Client creates work orders in the external service. Implementations must be
// safe to retry: the generator calls again after a prior attempt's failure.
type Client interface {
	CreateWorkOrder(ctx context.Context, req CreateRequest) (string, error)
}

// HTTPClient talks to the work-order service over authenticated HTTP.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient builds a client for the given service base URL.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateWorkOrder posts the request and returns the new work order id.
func (c *HTTPClient) CreateWorkOrder(ctx context.Context, req CreateRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal work order request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/work-orders", bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("build work order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("work order service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.WithFields(log.Fields{
			"status":          resp.Status,
			"organization_id": req.OrganizationID,
			"asset_id":        req.AssetID,
		}).Error("Work order creation rejected")
		return "", fmt.Errorf("work order service returned %s: %s", resp.Status, string(body))
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode work order response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("work order service returned empty id")
	}
	return created.ID, nil
}
