package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Room Sync.
const (
	measurementSensor = "sensor_readings"
	measurementDevice = "device_states"
)

// WriteSensorSample records one numeric sensor reading for a room.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteSensorSample("room1", "temperature", 21.5, time.Now())
func (c *Client) WriteSensorSample(room, sensor string, value float64, ts time.Time) {
	c.write(sensorPoint(room, sensor, value, ts))
}

// WriteDeviceState records the latest value stored under a device-state key.
func (c *Client) WriteDeviceState(key, value string, ts time.Time) {
	c.write(devicePoint(key, value, ts))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//   - timestamp: The time of the point; zero means now
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	c.write(write.NewPoint(measurement, tags, fields, timestamp))
}

func sensorPoint(room, sensor string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementSensor,
		map[string]string{
			"room":   room,
			"sensor": sensor,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}

func devicePoint(key, value string, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementDevice,
		map[string]string{
			"key": key,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}
