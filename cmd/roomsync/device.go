package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/logging"
)

// controlBuffer is the depth of the device's pending command queue.
const controlBuffer = 16

type controlMsg struct {
	topic   string
	payload []byte
}

// publisher is the part of *mqtt.Client the simulated device uses.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// deviceSim is a simulated room device. It answers "on"/"off" control
// messages with a light state and numeric ones with a temperature reading,
// and reports both on every tick.
type deviceSim struct {
	base string
	qos  byte
	pub  publisher
	out  *lockedWriter

	// drift returns the next temperature step.
	drift func() float64

	mu    sync.Mutex
	temp  float64
	light string
}

func newDeviceSim(base string, qos byte, pub publisher, out *lockedWriter) *deviceSim {
	return &deviceSim{
		base:  base,
		qos:   qos,
		pub:   pub,
		out:   out,
		drift: func() float64 { return (rand.Float64() - 0.5) * 0.2 },
		temp:  24.0,
		light: "off",
	}
}

// controlFilters are the topics the device takes commands on. Both the
// "control" and "set" conventions are accepted.
func (d *deviceSim) controlFilters() []string {
	return []string{d.base + "/+/control", d.base + "/+/set"}
}

func (d *deviceSim) telemetryTopic() string { return d.base + "/sensor/temperature" }

func (d *deviceSim) stateTopic() string { return d.base + "/light/state" }

// handleControl applies one control message.
func (d *deviceSim) handleControl(topic string, payload []byte) {
	value := strings.TrimSpace(string(payload))
	d.out.printf("[control received] %s -> %s\n", topic, value)

	switch lower := strings.ToLower(value); lower {
	case "on", "off":
		d.mu.Lock()
		d.light = lower
		d.mu.Unlock()
		d.publish(d.stateTopic(), lower)
		d.out.printf("[state published] %s = %s\n", d.stateTopic(), lower)
	default:
		temp, err := strconv.ParseFloat(value, 64)
		if err != nil {
			d.out.printf("Unknown control payload\n")
			return
		}
		d.mu.Lock()
		d.temp = temp
		d.mu.Unlock()
		reading := formatReading(temp)
		d.publish(d.telemetryTopic(), reading)
		d.out.printf("[telemetry published] %s = %s\n", d.telemetryTopic(), reading)
	}
}

// tick drifts the temperature and reports temperature and light state.
func (d *deviceSim) tick() {
	d.mu.Lock()
	d.temp += d.drift()
	reading := formatReading(d.temp)
	light := d.light
	d.mu.Unlock()

	d.publish(d.telemetryTopic(), reading)
	d.publish(d.stateTopic(), light)
	d.out.printf("[device telemetry] %s=%s, %s=%s\n", d.telemetryTopic(), reading, d.stateTopic(), light)
}

func (d *deviceSim) publish(topic, payload string) {
	if err := d.pub.Publish(topic, []byte(payload), d.qos, false); err != nil {
		d.out.printf("Failed to publish %s: %v\n", topic, err)
	}
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// runDevice runs the simulated device on base until ctx is cancelled or
// the broker drops the session.
func runDevice(ctx context.Context, cfg *config.Config, log *logging.Logger, base string, interval time.Duration, stdout io.Writer) error {
	out := &lockedWriter{w: stdout}

	client, lost, err := dialTool(ctx, cfg, log, out)
	if err != nil {
		return err
	}
	defer client.Close()

	dev := newDeviceSim(base, byte(cfg.MQTT.QoS), client, out)

	// Handlers run on paho's ordered router, where waiting on a publish ack
	// can stall delivery. Commands are applied from the loop below instead.
	controls := make(chan controlMsg, controlBuffer)
	enqueue := func(topic string, payload []byte) error {
		select {
		case controls <- controlMsg{topic: topic, payload: payload}:
		case <-ctx.Done():
		}
		return nil
	}
	for _, filter := range dev.controlFilters() {
		if err := client.Subscribe(filter, dev.qos, enqueue); err != nil {
			return fmt.Errorf("subscribing to %s: %w", filter, err)
		}
	}
	out.printf("[device connected] subscribed to control topics: %v\n", dev.controlFilters())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dev.tick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-lost:
			return fmt.Errorf("device session lost: %w", err)
		case msg := <-controls:
			dev.handleControl(msg.topic, msg.payload)
		case <-ticker.C:
			dev.tick()
		}
	}
}
