package state

import (
	"time"

	"github.com/nerrad567/roomsync-core/internal/normalize"
)

// Default projection bounds.
const (
	DefaultSeriesCapacity = 30
	DefaultLogCapacity    = 200
)

// DefaultSensorKinds are the payload keys recognised as numeric sensors.
var DefaultSensorKinds = []string{"temperature", "humidity", "co2", "tvoc"}

// RawMessage is one inbound message exactly as delivered.
type RawMessage struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// DeviceState is the latest value stored under a key.
type DeviceState struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	LastUpdate time.Time `json:"last_update"`
}

// Sample is one point of a sensor series.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SensorSample is a sample appended by an ingest, with its origin.
type SensorSample struct {
	Kind      string    `json:"kind"`
	ContextID string    `json:"context_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Applied describes what one Ingest changed.
type Applied struct {
	Message RawMessage
	Update  normalize.ParsedUpdate

	// ChangedKeys lists every device-state key written, in write order.
	ChangedKeys []string

	// Samples lists sensor samples appended to the series.
	Samples []SensorSample
}

// Snapshot is a point-in-time copy of every projection.
type Snapshot struct {
	DeviceStates        map[string]DeviceState `json:"device_states"`
	SensorSeries        map[string][]Sample    `json:"sensor_series"`
	CurrentSensorValues map[string]float64     `json:"current_sensor_values"`
	MessageLog          []RawMessage           `json:"message_log"`
}
