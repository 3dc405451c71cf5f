package influxdb

import "errors"

// Errors returned by Connect and HealthCheck. Write failures are never
// returned; they reach the SetOnError callback and the Failed counter.
var (
	// ErrDisabled means the influxdb section is not enabled.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps a failed or unhealthy initial ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
