package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for a single, non-reconnecting session.
//
// A Client connects once. When the connection is lost it stays down and
// reports the loss through the OnDisconnect callback; whoever owns the
// client decides whether to build a new one. Paho's auto-reconnect and
// connect-retry are disabled so that no message is delivered through a
// session the owner has already given up on.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions tracks filters acknowledged by the broker.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	filter string
	qos    byte
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked from paho's router goroutine, one message at a time
// and in delivery order. They should hand the message off and return
// quickly.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// New builds a disconnected client from configuration.
// Call Connect to open the session.
func New(cfg config.MQTTConfig) *Client {
	opts := buildClientOptions(cfg)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Dial builds a client and connects it.
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed when the broker cannot be reached in time
func Dial(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := New(cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect opens the session and blocks until the broker acknowledges it,
// the context is cancelled, or the connect timeout elapses.
//
// A cancelled attempt is abandoned: the underlying client is disconnected
// so a late CONNACK cannot resurrect it.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have executed
	// yet; set the flag here so IsConnected is true once Connect returns.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	// Clean session: the broker forgot every filter with the connection.
	c.subMu.Lock()
	c.subscriptions = make(map[string]subscription)
	c.subMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Close disconnects from the broker, waiting briefly for in-flight work.
// Safe to call more than once and on a client that never connected.
//
// A graceful Close does not invoke the OnDisconnect callback.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.client.IsConnectionOpen() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.subMu.Lock()
	c.subscriptions = make(map[string]subscription)
	c.subMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// SetOnConnect sets a callback invoked when the broker acknowledges the session.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when an established connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
