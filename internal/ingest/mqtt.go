// Package ingest receives external meter readings from the IoT feed and
// applies them to asset meters. This is the write path of the readings
// surface; the engine itself treats meters as read-only.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/maintly/pm-engine/internal/db"
	"github.com/maintly/pm-engine/internal/models"
)

// Subscriber consumes readings from the broker topic meters/+/readings.
type Subscriber struct {
	meters db.MeterCollection
	client mqtt.Client
	topic  string
}

// NewSubscriber connects to the broker and subscribes to the readings topic.
func NewSubscriber(meters db.MeterCollection, broker, clientID, topic string) (*Subscriber, error) {
	s := &Subscriber{meters: meters, topic: topic}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectRetry(true).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(client mqtt.Client) {
			token := client.Subscribe(topic, 1, s.handleMessage)
			if token.WaitTimeout(10*time.Second) && token.Error() != nil {
				log.WithError(token.Error()).WithField("topic", topic).Error("Meter feed subscription failed")
				return
			}
			log.WithField("topic", topic).Info("Subscribed to meter feed")
		})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return s, nil
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var reading models.MeterReading
	if err := json.Unmarshal(msg.Payload(), &reading); err != nil {
		log.WithError(err).WithField("topic", msg.Topic()).Error("Invalid meter reading payload")
		return
	}
	if reading.Source == "" {
		reading.Source = models.SourceAutomated
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.meters.ApplyReading(ctx, reading); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"meter_id":        reading.MeterID,
			"organization_id": reading.OrganizationID,
		}).Error("Failed to apply meter reading")
		return
	}
	log.WithFields(log.Fields{
		"meter_id": reading.MeterID,
		"value":    reading.Value,
		"source":   reading.Source,
	}).Debug("Meter reading applied")
}

// Close unsubscribes and disconnects from the broker.
func (s *Subscriber) Close() {
	s.client.Unsubscribe(s.topic)
	s.client.Disconnect(250)
}
