// The simulator publishes randomized asset meter readings over MQTT,
// exercising the engine's meter feed the way a fleet of instrumented assets
// would.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// MeterState tracks one simulated meter between ticks.
type MeterState struct {
	MeterID        string
	OrganizationID string
	AssetID        string
	Kind           string // "runtime_hours", "cycles", "vibration", "temperature"
	Value          float64
}

// Reading is the wire format the ingest subscriber expects.
type Reading struct {
	MeterID        string    `json:"meter_id"`
	OrganizationID string    `json:"organization_id"`
	Value          float64   `json:"value"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
}

var meterKinds = []string{"runtime_hours", "cycles", "vibration", "temperature"}

// step advances one meter. Cumulative kinds only grow; condition kinds
// wander around a baseline so threshold crossings happen both ways.
func (s *MeterState) step() {
	switch s.Kind {
	case "runtime_hours":
		s.Value += 2 + rand.Float64()*6
	case "cycles":
		s.Value += float64(rand.Intn(40))
	case "vibration":
		s.Value += (rand.Float64()*2 - 1) * 1.5
		if s.Value < 0 {
			s.Value = 0
		}
	case "temperature":
		s.Value += (rand.Float64()*2 - 1) * 4
		if s.Value < 20 {
			s.Value = 20
		}
	}
}

func publishReading(client mqtt.Client, s *MeterState) {
	reading := Reading{
		MeterID:        s.MeterID,
		OrganizationID: s.OrganizationID,
		Value:          s.Value,
		Timestamp:      time.Now(),
		Source:         "automated",
	}
	payload, err := json.Marshal(reading)
	if err != nil {
		log.WithError(err).Error("Failed to marshal reading")
		return
	}
	topic := fmt.Sprintf("meters/%s/readings", s.MeterID)
	token := client.Publish(topic, 1, false, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.WithError(token.Error()).WithField("topic", topic).Error("Failed to publish reading")
		return
	}
	log.WithFields(log.Fields{"meter_id": s.MeterID, "kind": s.Kind, "value": s.Value}).Info("Published reading")
}

func simulateMeter(client mqtt.Client, s *MeterState, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for range tick.C {
		s.step()
		publishReading(client, s)
	}
}

func initialValue(kind string) float64 {
	switch kind {
	case "runtime_hours":
		return 100 + rand.Float64()*400
	case "cycles":
		return float64(rand.Intn(5000))
	case "vibration":
		return 2 + rand.Float64()*4
	case "temperature":
		return 40 + rand.Float64()*30
	}
	return 0
}

func main() {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	orgID := os.Getenv("SIM_ORG_ID")
	if orgID == "" {
		orgID = "org_sim"
	}

	meterCount := 10
	if val := os.Getenv("METER_COUNT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			meterCount = n
		}
	}

	interval := 5 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	log.WithFields(log.Fields{
		"broker":      broker,
		"org_id":      orgID,
		"meter_count": meterCount,
		"interval":    interval,
	}).Info("Starting meter feed simulation")

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("pm-meter-simulator").
		SetConnectRetry(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.WithError(token.Error()).Fatal("Failed to connect to broker")
	}

	states := make([]*MeterState, 0, meterCount)
	for i := 0; i < meterCount; i++ {
		kind := meterKinds[rand.Intn(len(meterKinds))]
		state := &MeterState{
			MeterID:        fmt.Sprintf("meter-%d", i+1),
			OrganizationID: orgID,
			AssetID:        fmt.Sprintf("asset-%d", i/2+1),
			Kind:           kind,
			Value:          initialValue(kind),
		}
		states = append(states, state)
	}

	for _, s := range states {
		go simulateMeter(client, s, interval)
	}

	log.WithField("meters", len(states)).Info("Meter feed simulation started")
	select {} // Block forever
}
