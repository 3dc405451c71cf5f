package mqtt

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout bounds publish, subscribe and unsubscribe acknowledgements.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// BrokerURL returns the broker URL the client dials.
//
// An explicit Broker.URL wins; otherwise it is assembled from host, port
// and the TLS flag as tcp:// or ssl://.
func BrokerURL(cfg config.MQTTConfig) string {
	if cfg.Broker.URL != "" {
		return cfg.Broker.URL
	}
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// buildClientOptions creates paho MQTT options from Room Sync config.
//
// This configures:
//   - Broker URL (explicit, or tcp:// / ssl:// from host and port)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Clean session with auto-reconnect and connect-retry disabled
//   - TLS configuration for ssl:// and wss:// brokers
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	brokerURL := BrokerURL(cfg)
	opts.AddBroker(brokerURL)

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - the broker keeps nothing between sessions.
	opts.SetCleanSession(true)

	// Reconnection is the owner's decision, never paho's.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Deliver messages one at a time in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS || strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "wss://") ||
		strings.HasPrefix(brokerURL, "tls://") || strings.HasPrefix(brokerURL, "mqtts://") {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
