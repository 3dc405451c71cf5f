// Package influxdb provides InfluxDB connectivity for Room Sync Core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, telemetry writes and health monitoring.
//
// # Purpose
//
// The in-memory sensor series keep only the most recent samples. When
// enabled, every sample the engine applies is also written here so longer
// histories can be charted elsewhere:
//   - sensor_readings: one point per numeric sensor sample (tags room, sensor)
//   - device_states: one point per device-state write (tag key)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSensorSample("room1", "temperature", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking. Rejected batches are reported via the
// SetOnError callback and counted in Stats. Connection and health check
// errors are returned directly.
package influxdb
