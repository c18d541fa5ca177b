package pm

import (
	"context"
	"fmt"
	"sync"

	"github.com/maintly/pm-engine/internal/models"
	"github.com/maintly/pm-engine/internal/workorder"
)

// fakeWorkOrderClient counts creations and can be told to fail.
type fakeWorkOrderClient struct {
	mu       sync.Mutex
	calls    int
	failWith error
	requests []workorder.CreateRequest
}

func (f *fakeWorkOrderClient) CreateWorkOrder(ctx context.Context, req workorder.CreateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.failWith != nil {
		return "", f.failWith
	}
	return fmt.Sprintf("wo-%d", f.calls), nil
}

func (f *fakeWorkOrderClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeNotifier collects alerts and can panic for one tenant to exercise the
// batch driver's isolation boundary.
type fakeNotifier struct {
	mu          sync.Mutex
	alerts      []models.MeterAlert
	panicForOrg string
}

func (f *fakeNotifier) MeterAlert(ctx context.Context, alert models.MeterAlert) error {
	if f.panicForOrg != "" && alert.OrganizationID == f.panicForOrg {
		panic("notifier exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotifier) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
