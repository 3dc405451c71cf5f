// Package testutil provides an in-process MQTT broker for tests that need a
// real wire connection without an external Mosquitto.
package testutil

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Broker is a running mochi broker bound to a loopback port.
type Broker struct {
	Host string
	Port int

	server    *mochi.Server
	closeOnce sync.Once
}

// URL returns the tcp:// URL of the broker.
func (b *Broker) URL() string {
	return fmt.Sprintf("tcp://%s:%d", b.Host, b.Port)
}

// Close stops the broker, dropping every connected client.
// Safe to call more than once.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		_ = b.server.Close()
	})
}

// StartBroker starts an anonymous broker on a free loopback port and
// registers its shutdown with t.Cleanup.
func StartBroker(t testing.TB) *Broker {
	t.Helper()

	port, err := freePort()
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}

	server := mochi.New(nil)
	if err := server.AddHook(&auth.AllowHook{}, nil); err != nil {
		t.Fatalf("adding auth hook: %v", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test-" + addr,
		Address: addr,
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("adding listener: %v", err)
	}

	if err := server.Serve(); err != nil {
		t.Fatalf("starting broker: %v", err)
	}

	b := &Broker{Host: "127.0.0.1", Port: port, server: server}
	t.Cleanup(b.Close)

	if err := waitListening(addr, 2*time.Second); err != nil {
		t.Fatalf("broker not listening: %v", err)
	}
	return b
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func waitListening(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
}
