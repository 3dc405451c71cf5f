// Package mqtttransport connects the sync engine to a real broker through
// the paho-based mqtt client.
package mqtttransport

import (
	"context"
	"errors"

	"github.com/nerrad567/roomsync-core/internal/engine"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/mqtt"
)

// ErrMissingClientID is returned when neither the endpoint nor the base
// configuration names a client id.
var ErrMissingClientID = errors.New("mqtttransport: client id is required")

// Transport adapts an *mqtt.Client to engine.Transport.
type Transport struct {
	client *mqtt.Client
}

var _ engine.Transport = (*Transport)(nil)

// Factory returns an engine.TransportFactory building one fresh client per
// session from base, with the endpoint's fields taking precedence.
// logger may be nil.
func Factory(base config.MQTTConfig, logger mqtt.Logger) engine.TransportFactory {
	return func(ep engine.Endpoint) (engine.Transport, error) {
		cfg := base
		if ep.URL != "" {
			cfg.Broker.URL = ep.URL
		}
		if ep.ClientID != "" {
			cfg.Broker.ClientID = ep.ClientID
		}
		if ep.Username != "" {
			cfg.Auth.Username = ep.Username
			cfg.Auth.Password = ep.Password
		}
		if cfg.Broker.ClientID == "" {
			return nil, ErrMissingClientID
		}

		client := mqtt.New(cfg)
		if logger != nil {
			client.SetLogger(logger)
		}
		return &Transport{client: client}, nil
	}
}

// Endpoint derives the engine endpoint from configuration.
func Endpoint(cfg config.MQTTConfig) engine.Endpoint {
	return engine.Endpoint{
		URL:      mqtt.BrokerURL(cfg),
		ClientID: cfg.Broker.ClientID,
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	}
}

// Connect opens the session.
func (t *Transport) Connect(ctx context.Context) error {
	return t.client.Connect(ctx)
}

// Close ends the session.
func (t *Transport) Close() error {
	return t.client.Close()
}

// Subscribe subscribes to filter, delivering every message to handler.
func (t *Transport) Subscribe(filter string, qos byte, handler engine.MessageHandler) error {
	return t.client.Subscribe(filter, qos, func(topic string, payload []byte) error {
		handler(topic, payload)
		return nil
	})
}

// Unsubscribe removes the subscription for filter.
func (t *Transport) Unsubscribe(filter string) error {
	return t.client.Unsubscribe(filter)
}

// Publish sends payload to topic.
func (t *Transport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return t.client.Publish(topic, payload, qos, retained)
}

// SetOnConnect registers the session-established callback.
func (t *Transport) SetOnConnect(fn func()) {
	t.client.SetOnConnect(fn)
}

// SetOnDisconnect registers the session-lost callback.
func (t *Transport) SetOnDisconnect(fn func(err error)) {
	t.client.SetOnDisconnect(fn)
}
