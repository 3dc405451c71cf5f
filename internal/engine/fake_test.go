package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type publishedMessage struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// fakeTransport records every call and lets tests drive callbacks by hand.
type fakeTransport struct {
	mu           sync.Mutex
	onConnect    func()
	onDisconnect func(error)
	handlers     map[string]MessageHandler
	subscribes   []string
	unsubscribes []string
	published    []publishedMessage
	connects     int
	closes       int

	connectErr   error
	publishErr   error
	subscribeErr error

	// subscribeGate, when set, holds every Subscribe until it is closed.
	subscribeGate chan struct{}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	cb := f.onConnect
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Subscribe(filter string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	f.subscribes = append(f.subscribes, filter)
	gate := f.subscribeGate
	err := f.subscribeErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.handlers == nil {
		f.handlers = make(map[string]MessageHandler)
	}
	f.handlers[filter] = handler
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Unsubscribe(filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, filter)
	delete(f.handlers, filter)
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (f *fakeTransport) SetOnConnect(fn func()) {
	f.mu.Lock()
	f.onConnect = fn
	f.mu.Unlock()
}

func (f *fakeTransport) SetOnDisconnect(fn func(error)) {
	f.mu.Lock()
	f.onDisconnect = fn
	f.mu.Unlock()
}

// drop simulates the broker dropping the session.
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	cb := f.onDisconnect
	f.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (f *fakeTransport) handler(filter string) MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[filter]
}

// liveFilters returns the filters currently subscribed.
func (f *fakeTransport) liveFilters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	filters := make([]string, 0, len(f.handlers))
	for filter := range f.handlers {
		filters = append(filters, filter)
	}
	return filters
}

func (f *fakeTransport) counts() (subscribes, unsubscribes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes), len(f.unsubscribes)
}

func (f *fakeTransport) publishes() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeFactory hands out fakeTransports and remembers them.
type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	endpoints  []Endpoint
	prepare    func(*fakeTransport)
	err        error
}

func (f *fakeFactory) build(ep Endpoint) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	tr := &fakeTransport{}
	if f.prepare != nil {
		f.prepare(tr)
	}
	f.transports = append(f.transports, tr)
	f.endpoints = append(f.endpoints, ep)
	return tr, nil
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

var testEndpoint = Endpoint{URL: "tcp://broker.test:1883", ClientID: "roomsync-test"}

// startEngine creates an engine and runs its loop until the test ends.
// configure runs before the loop starts.
func startEngine(t *testing.T, factory *fakeFactory, opts Options, configure ...func(*Engine)) *Engine {
	t.Helper()

	e := New(factory.build, opts)
	for _, fn := range configure {
		fn(e)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	t.Cleanup(func() {
		_ = e.Teardown()
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	return e
}

// connect connects e and fails the test on error.
func connect(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Connect(context.Background(), testEndpoint); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

var errBoom = errors.New("boom")
