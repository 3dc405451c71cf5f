package engine

import "errors"

// Domain-specific errors for the sync engine.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyConnected is returned by Connect while a session is connecting,
	// connected or closing.
	ErrAlreadyConnected = errors.New("engine: connection already active")

	// ErrConnectFailed wraps every reason a Connect attempt did not end Connected.
	ErrConnectFailed = errors.New("engine: connect failed")

	// ErrConnectionLost is returned by Serve when the broker drops the session.
	ErrConnectionLost = errors.New("engine: connection lost")

	// ErrNotConnected is reported by HealthCheck while no session is up.
	ErrNotConnected = errors.New("engine: not connected")

	// ErrPublishFailed wraps transport publish failures.
	ErrPublishFailed = errors.New("engine: publish failed")

	// ErrInvalidTopic is returned for an empty topic or malformed room id.
	ErrInvalidTopic = errors.New("engine: invalid topic")

	// ErrEngineStopped is returned once the event loop has exited.
	ErrEngineStopped = errors.New("engine: stopped")
)
