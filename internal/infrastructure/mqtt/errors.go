package mqtt

import "errors"

// Sentinel errors. Operations wrap them with the topic or filter involved,
// so match with errors.Is.
var (
	// ErrNotConnected means no broker session is open.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps a refused or timed-out connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps a publish the broker did not acknowledge.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a rejected or unacknowledged subscribe.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a rejected or unacknowledged unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for a QoS other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic or one carrying
	// wildcards or NUL.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidFilter is returned for a filter with a misplaced + or #.
	ErrInvalidFilter = errors.New("mqtt: invalid topic filter")

	// ErrTimeout is joined with the operation error when the broker does not
	// answer within the configured deadline.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
