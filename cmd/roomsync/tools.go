package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/logging"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/mqtt"
)

// lockedWriter serialises writes from paho's router goroutine and ours.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

// dialTool connects a plain client for the tool modes. The returned channel
// receives the error when the broker drops the session.
func dialTool(ctx context.Context, cfg *config.Config, log *logging.Logger, out *lockedWriter) (*mqtt.Client, <-chan error, error) {
	client := mqtt.New(cfg.MQTT)
	client.SetLogger(log)

	lost := make(chan error, 1)
	client.SetOnDisconnect(func(err error) {
		out.printf("[disconnected] %v\n", err)
		select {
		case lost <- err:
		default:
		}
	})

	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", mqtt.BrokerURL(cfg.MQTT), err)
	}
	out.printf("[connected] %s (client_id=%s)\n", mqtt.BrokerURL(cfg.MQTT), cfg.MQTT.Broker.ClientID)
	return client, lost, nil
}

// runSub prints "[topic] payload" for every message matching filter until
// ctx is cancelled.
func runSub(ctx context.Context, cfg *config.Config, log *logging.Logger, filter string, stdout io.Writer) error {
	if err := mqtt.ValidateFilter(filter); err != nil {
		return err
	}
	out := &lockedWriter{w: stdout}

	client, lost, err := dialTool(ctx, cfg, log, out)
	if err != nil {
		return err
	}
	defer client.Close()

	qos := byte(cfg.MQTT.QoS)
	err = client.Subscribe(filter, qos, func(topic string, payload []byte) error {
		out.printf("[%s] %s\n", topic, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", filter, err)
	}
	out.printf("Subscribed to %s (qos=%d). Press Ctrl+C to exit.\n", filter, qos)

	select {
	case <-ctx.Done():
		return nil
	case err := <-lost:
		return fmt.Errorf("%w: %w", mqtt.ErrNotConnected, err)
	}
}

// pubOptions holds the pub mode parameters.
type pubOptions struct {
	topic    string
	message  string
	count    int
	interval time.Duration
	retain   bool
}

// runPub publishes the message count times, interval apart.
//
// A failed publish is reported and the run continues; the returned error
// counts the failures.
func runPub(ctx context.Context, cfg *config.Config, log *logging.Logger, p pubOptions, stdout io.Writer) error {
	if err := mqtt.ValidateTopic(p.topic); err != nil {
		return err
	}
	out := &lockedWriter{w: stdout}

	client, _, err := dialTool(ctx, cfg, log, out)
	if err != nil {
		return err
	}
	defer client.Close()

	qos := byte(cfg.MQTT.QoS)
	failed := 0
	for i := 0; i < p.count; i++ {
		if err := client.Publish(p.topic, []byte(p.message), qos, p.retain); err != nil {
			out.printf("Failed to publish: %v\n", err)
			failed++
		} else {
			out.printf("Published -> topic: %s, payload: %s\n", p.topic, p.message)
		}

		if i < p.count-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.interval):
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d publishes failed", failed, p.count)
	}
	return nil
}
