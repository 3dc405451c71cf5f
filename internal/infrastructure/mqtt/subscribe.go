package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages matching the filter.
//
// Filters can include MQTT wildcards:
//   - + (single-level): "office/+/light/state" matches any room
//   - # (multi-level): "office/room1/#" matches the room topic and everything below it
//
// Subscribe blocks until the broker acknowledges the SUBACK or the
// operation timeout elapses.
//
// Parameters:
//   - filter: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
//
// Example:
//
//	err := client.Subscribe("office/room1/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(filter, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.subMu.Lock()
	c.subscriptions[filter] = subscription{filter: filter, qos: qos}
	c.subMu.Unlock()

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a filter.
//
// Any messages already in flight may still be delivered to the old handler.
//
// Parameters:
//   - filter: The exact filter that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()

	token := c.client.Unsubscribe(filter)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrUnsubscribeFailed, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given filter.
//
// Note: This checks only the exact filter string, not pattern matching.
func (c *Client) HasSubscription(filter string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[filter]
	return exists
}
