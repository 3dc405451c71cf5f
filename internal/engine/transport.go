package engine

import "context"

// MessageHandler receives one inbound message.
type MessageHandler func(topic string, payload []byte)

// Transport is one publish/subscribe session with a broker.
//
// A Transport is used for a single connection attempt and discarded
// afterwards; the engine asks its TransportFactory for a fresh one on every
// Connect. Callbacks must be registered before Connect is called.
type Transport interface {
	// Connect opens the session, blocking until acknowledged or ctx ends.
	Connect(ctx context.Context) error

	// Close ends the session. It must be safe to call more than once.
	Close() error

	Subscribe(filter string, qos byte, handler MessageHandler) error
	Unsubscribe(filter string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// SetOnConnect registers the callback for session establishment.
	SetOnConnect(func())

	// SetOnDisconnect registers the callback for an unexpected session loss.
	SetOnDisconnect(func(err error))
}

// Endpoint identifies the broker and the credentials to present.
type Endpoint struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// TransportFactory builds an unconnected Transport for an endpoint.
type TransportFactory func(ep Endpoint) (Transport, error)

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
