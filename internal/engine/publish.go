package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/roomsync-core/internal/normalize"
)

// PublishGateway sends user actions to the broker.
//
// Publishing while not Connected is a silent no-op: during reconnect races
// the UI may fire actions that have nowhere to go, and dropping them is the
// contract.
type PublishGateway struct {
	conn   *ConnectionManager
	topics normalize.Topics
	qos    byte
	logger Logger
}

// NewPublishGateway creates a gateway publishing at the given QoS.
func NewPublishGateway(conn *ConnectionManager, topics normalize.Topics, qos byte) *PublishGateway {
	return &PublishGateway{
		conn:   conn,
		topics: topics,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *PublishGateway) SetLogger(logger Logger) {
	g.logger = logger
}

// PublishRaw publishes message verbatim on topic.
//
// Returns:
//   - nil when not connected (nothing is sent, the topic is not checked)
//   - ErrInvalidTopic for an empty topic
//   - an error wrapping ErrPublishFailed when the transport rejects it
func (g *PublishGateway) PublishRaw(topic, message string) error {
	if !g.conn.IsConnected() {
		g.logger.Debug("publish dropped, not connected", "topic", topic)
		return nil
	}
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	return g.publish(topic, []byte(message))
}

// PublishContext publishes payload as a JSON object on the room topic.
//
// While disconnected it is a silent no-op, even for an invalid room id. A
// payload that cannot be encoded is logged and skipped; it is not an error
// for the caller.
func (g *PublishGateway) PublishContext(contextID string, payload map[string]any) error {
	if !g.conn.IsConnected() {
		g.logger.Debug("publish dropped, not connected", "room", contextID)
		return nil
	}
	if contextID == "" || strings.ContainsAny(contextID, "/+#") {
		return fmt.Errorf("%w: room id %q", ErrInvalidTopic, contextID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("encoding room payload", "room", contextID, "error", err)
		return nil
	}
	return g.publish(g.topics.Room(contextID), body)
}

func (g *PublishGateway) publish(topic string, body []byte) error {
	_, transport, ok := g.conn.active()
	if !ok {
		g.logger.Debug("publish dropped, not connected", "topic", topic)
		return nil
	}

	if err := transport.Publish(topic, body, g.qos, false); err != nil {
		g.logger.Warn("publish failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	g.logger.Debug("published", "topic", topic, "bytes", len(body))
	return nil
}
