package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/roomsync-core/internal/normalize"
	"github.com/nerrad567/roomsync-core/internal/state"
)

// DefaultEventBuffer is the event queue depth used when Options leaves it zero.
const DefaultEventBuffer = 256

// errAlreadyRunning is returned by a second concurrent Run.
var errAlreadyRunning = errors.New("engine: event loop already running")

// Options configures an Engine.
type Options struct {
	// Root is the topic root prefix. Empty means "office".
	Root string

	// SensorKinds, SeriesCapacity and LogCapacity configure the state store.
	SensorKinds    []string
	SeriesCapacity int
	LogCapacity    int

	// EventBuffer is the depth of the event queue. Zero means DefaultEventBuffer.
	EventBuffer int

	// QoS is used for subscriptions and publishes.
	QoS byte

	// DefaultContext is the room selected before the first SetActiveContext.
	DefaultContext string

	// Clock stamps inbound messages. Nil means time.Now.
	Clock func() time.Time
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventState
)

type event struct {
	kind   eventKind
	gen    uint64
	msg    state.RawMessage
	change StateChange
}

// Status is a point-in-time summary of the engine.
type Status struct {
	State          string `json:"state"`
	Generation     uint64 `json:"generation"`
	DesiredContext string `json:"desired_context"`
	ActiveContext  string `json:"active_context"`
	Subscription   string `json:"subscription"`
	Messages       int    `json:"messages"`
	DroppedStale   uint64 `json:"dropped_stale"`
}

// Engine is the real-time sync engine: it owns the connection, the room
// subscription, the state store and the event loop that feeds it.
//
// Transport callbacks never touch the store. They enqueue events tagged
// with their generation, and the single Run goroutine applies them in
// arrival order, dropping any whose generation is no longer live.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Run must be running for Connect and inbound messages to make progress.
type Engine struct {
	conn    *ConnectionManager
	coord   *SubscriptionCoordinator
	gateway *PublishGateway
	store   *state.Store
	topics  normalize.Topics
	clock   func() time.Time
	logger  Logger

	events   chan event
	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	workers  sync.WaitGroup
	dropped  atomic.Uint64

	observersMu sync.RWMutex
	onApplied   []func(state.Applied)
	onConn      []func(StateChange)
}

// New creates an engine using factory to build a transport per session.
func New(factory TransportFactory, opts Options) *Engine {
	root := opts.Root
	if root == "" {
		root = "office"
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		topics: normalize.Topics{Root: root},
		clock:  clock,
		logger: noopLogger{},
		events: make(chan event, buffer),
		done:   make(chan struct{}),
	}
	e.store = state.NewStore(state.Options{
		Root:           root,
		SensorKinds:    opts.SensorKinds,
		SeriesCapacity: opts.SeriesCapacity,
		LogCapacity:    opts.LogCapacity,
		Clock:          clock,
	})
	e.conn = NewConnectionManager(factory)
	e.coord = NewSubscriptionCoordinator(e.conn, e.topics, opts.QoS, e.handlerFor)
	e.gateway = NewPublishGateway(e.conn, e.topics, opts.QoS)

	if opts.DefaultContext != "" {
		// Nothing is connected yet, so this only records the choice.
		e.coord.SetActiveContext(opts.DefaultContext)
	}

	e.conn.OnStateChange(func(change StateChange) {
		e.enqueue(event{kind: eventState, gen: change.Generation, change: change})
	})
	return e
}

// SetLogger sets the logger for the engine and its components.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
	e.conn.SetLogger(logger)
	e.coord.SetLogger(logger)
	e.gateway.SetLogger(logger)
}

// OnApplied registers an observer for every message applied to the store.
// Observers run on the event loop and must not block.
func (e *Engine) OnApplied(fn func(state.Applied)) {
	e.observersMu.Lock()
	e.onApplied = append(e.onApplied, fn)
	e.observersMu.Unlock()
}

// OnConnectionChange registers an observer for connection state changes.
// Observers run on the event loop and must not block.
func (e *Engine) OnConnectionChange(fn func(StateChange)) {
	e.observersMu.Lock()
	e.onConn = append(e.onConn, fn)
	e.observersMu.Unlock()
}

// Run drives the event loop until ctx ends. After Run returns the engine is
// stopped and cannot be restarted.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}
	if !e.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer e.stop()

	e.logger.Info("event loop started", "root", e.topics.Root)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("event loop stopped")
			return nil
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.workers.Wait()
}

func (e *Engine) stopped() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// enqueue hands ev to the loop, giving up once the loop has stopped.
func (e *Engine) enqueue(ev event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// handlerFor builds the transport message handler for generation gen.
func (e *Engine) handlerFor(gen uint64) MessageHandler {
	return func(topic string, payload []byte) {
		if !e.conn.IsCurrent(gen) {
			e.dropped.Add(1)
			return
		}
		e.enqueue(event{
			kind: eventMessage,
			gen:  gen,
			msg: state.RawMessage{
				Topic:      topic,
				Payload:    string(payload),
				ReceivedAt: e.clock(),
			},
		})
	}
}

func (e *Engine) handle(ev event) {
	switch ev.kind {
	case eventMessage:
		// The session may have ended while the message sat in the queue.
		if !e.conn.IsCurrent(ev.gen) {
			e.dropped.Add(1)
			return
		}
		applied := e.store.Ingest(ev.msg)
		e.observersMu.RLock()
		observers := e.onApplied
		e.observersMu.RUnlock()
		for _, fn := range observers {
			fn(applied)
		}

	case eventState:
		switch ev.change.State {
		case StateConnected:
			if e.conn.IsCurrent(ev.gen) {
				// Subscribing waits for the broker; keep it off the loop.
				e.workers.Add(1)
				go func(gen uint64) {
					defer e.workers.Done()
					e.coord.HandleConnected(gen)
				}(ev.gen)
			}
		case StateDisconnected:
			e.coord.HandleDisconnected(ev.gen)
		}
		e.observersMu.RLock()
		observers := e.onConn
		e.observersMu.RUnlock()
		for _, fn := range observers {
			fn(ev.change)
		}
	}
}

// Connect opens a session. See ConnectionManager.Connect.
func (e *Engine) Connect(ctx context.Context, ep Endpoint) error {
	if e.stopped() {
		return ErrEngineStopped
	}
	return e.conn.Connect(ctx, ep)
}

// Teardown closes the session. See ConnectionManager.Teardown.
func (e *Engine) Teardown() error {
	return e.conn.Teardown()
}

// WithConnection connects, runs fn and tears down afterwards.
func (e *Engine) WithConnection(ctx context.Context, ep Endpoint, fn func(ctx context.Context) error) error {
	if e.stopped() {
		return ErrEngineStopped
	}
	return e.conn.WithConnection(ctx, ep, fn)
}

// Serve holds one session open until ctx ends or the broker drops it.
func (e *Engine) Serve(ctx context.Context, ep Endpoint) error {
	if e.stopped() {
		return ErrEngineStopped
	}
	return e.conn.Serve(ctx, ep)
}

// SetActiveContext selects the room to follow; "" follows none.
func (e *Engine) SetActiveContext(contextID string) {
	e.coord.SetActiveContext(contextID)
}

// DesiredContext returns the selected room id.
func (e *Engine) DesiredContext() string {
	return e.coord.Desired()
}

// ActiveContext returns the room id the broker subscription belongs to.
func (e *Engine) ActiveContext() string {
	return e.coord.ActiveContext()
}

// Subscription returns the active subscription filter and whether one exists.
func (e *Engine) Subscription() (string, bool) {
	return e.coord.Active()
}

// PublishRaw publishes message verbatim on topic.
func (e *Engine) PublishRaw(topic, message string) error {
	return e.gateway.PublishRaw(topic, message)
}

// PublishContext publishes payload as JSON on the room topic.
func (e *Engine) PublishContext(contextID string, payload map[string]any) error {
	return e.gateway.PublishContext(contextID, payload)
}

// IsConnected reports whether a session is Connected.
func (e *Engine) IsConnected() bool {
	return e.conn.IsConnected()
}

// State returns the connection state.
func (e *Engine) State() ConnState {
	return e.conn.State()
}

// Topics returns the topic builder for the engine's root.
func (e *Engine) Topics() normalize.Topics {
	return e.topics
}

// Root returns the topic root prefix.
func (e *Engine) Root() string {
	return e.topics.Root
}

// SensorKinds returns the recognised sensor keys.
func (e *Engine) SensorKinds() []string {
	return e.store.SensorKinds()
}

// DeviceStates returns a copy of the device-state projection.
func (e *Engine) DeviceStates() map[string]state.DeviceState {
	return e.store.DeviceStates()
}

// DeviceValue returns the stored value for key and whether one exists.
func (e *Engine) DeviceValue(key string) (string, bool) {
	return e.store.DeviceValue(key)
}

// SensorSeries returns a copy of every sensor series, oldest sample first.
func (e *Engine) SensorSeries() map[string][]state.Sample {
	return e.store.SensorSeries()
}

// CurrentSensorValues returns the latest value of each sensor kind seen.
func (e *Engine) CurrentSensorValues() map[string]float64 {
	return e.store.CurrentSensorValues()
}

// MessageLog returns the message log, newest first.
func (e *Engine) MessageLog() []state.RawMessage {
	return e.store.MessageLog()
}

// RecentMessages returns at most limit messages, newest first.
func (e *Engine) RecentMessages(limit int) []state.RawMessage {
	return e.store.RecentMessages(limit)
}

// Snapshot returns a consistent copy of every projection.
func (e *Engine) Snapshot() state.Snapshot {
	return e.store.Snapshot()
}

// Status returns a summary of the connection and subscription.
func (e *Engine) Status() Status {
	filter, _ := e.coord.Active()
	return Status{
		State:          e.conn.State().String(),
		Generation:     e.conn.Generation(),
		DesiredContext: e.coord.Desired(),
		ActiveContext:  e.coord.ActiveContext(),
		Subscription:   filter,
		Messages:       e.store.MessageCount(),
		DroppedStale:   e.dropped.Load(),
	}
}

// HealthCheck reports whether the engine is running and connected.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("engine health check: %w", err)
	}
	if e.stopped() {
		return ErrEngineStopped
	}
	if !e.conn.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
