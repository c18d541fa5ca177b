// Package notify hands meter alerts to the external notification service.
// Warning crossings are reported here and never persisted or turned into
// work orders.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/maintly/pm-engine/internal/models"
)

// Notifier delivers meter alerts to the notification service.
type Notifier interface {
	MeterAlert(ctx context.Context, alert models.MeterAlert) error
}

// MQTTNotifier publishes alerts to the broker topic
// alerts/{organization_id}/meters.
type MQTTNotifier struct {
	client mqtt.Client
}

// NewMQTTNotifier connects to the broker and returns a publisher.
func NewMQTTNotifier(broker, clientID string) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectRetry(true).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return &MQTTNotifier{client: client}, nil
}

// MeterAlert publishes one alert.
func (n *MQTTNotifier) MeterAlert(ctx context.Context, alert models.MeterAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	topic := fmt.Sprintf("alerts/%s/meters", alert.OrganizationID)
	token := n.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish alert to %s timed out", topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}

// LogNotifier logs alerts instead of delivering them. Used when no broker is
// configured.
type LogNotifier struct{}

// MeterAlert logs one alert.
func (LogNotifier) MeterAlert(ctx context.Context, alert models.MeterAlert) error {
	log.WithFields(log.Fields{
		"organization_id": alert.OrganizationID,
		"asset_id":        alert.AssetID,
		"meter_kind":      alert.MeterKind,
		"severity":        alert.Severity,
		"value":           alert.Value,
		"threshold":       alert.Threshold,
	}).Warn("Meter threshold alert")
	return nil
}
