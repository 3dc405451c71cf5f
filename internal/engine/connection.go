package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ConnState is the lifecycle state of the broker connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the lowercase state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// StateChange is emitted on every connection state transition.
type StateChange struct {
	State      ConnState
	Generation uint64

	// Err is set when a transition was caused by a failure or connection loss.
	Err error
}

// session is one connection attempt and the transport serving it.
type session struct {
	gen       uint64
	transport Transport
	done      chan struct{}
	err       error
	endOnce   sync.Once
}

func newSession(gen uint64) *session {
	return &session{gen: gen, done: make(chan struct{})}
}

// end closes done exactly once, recording why the session ended.
func (s *session) end(err error) {
	s.endOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// ConnectionManager owns the transport lifecycle and the generation token.
//
// State machine:
//
//	Disconnected -connect-> Connecting -ack-> Connected -loss-> Disconnected
//	Connected -teardown-> Closing -closed-> Disconnected
//
// The generation increases on every Connect and every Teardown. Transport
// callbacks capture the generation they were registered under and are
// ignored once it is no longer live. Nothing reconnects automatically.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type ConnectionManager struct {
	factory TransportFactory
	logger  Logger

	mu         sync.Mutex
	state      ConnState
	generation uint64
	current    *session

	listenersMu sync.RWMutex
	listeners   []func(StateChange)

	// notifyMu keeps listener invocations from interleaving.
	notifyMu sync.Mutex
}

// NewConnectionManager creates a manager in the Disconnected state.
func NewConnectionManager(factory TransportFactory) *ConnectionManager {
	return &ConnectionManager{
		factory: factory,
		logger:  noopLogger{},
		state:   StateDisconnected,
	}
}

// SetLogger sets the logger for the manager.
func (m *ConnectionManager) SetLogger(logger Logger) {
	m.logger = logger
}

// OnStateChange registers a listener for state transitions.
//
// Listeners run synchronously on the goroutine that caused the transition,
// one at a time. They must not call back into Connect or Teardown.
func (m *ConnectionManager) OnStateChange(fn func(StateChange)) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

func (m *ConnectionManager) notify(change StateChange) {
	m.listenersMu.RLock()
	listeners := slices.Clone(m.listeners)
	m.listenersMu.RUnlock()

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the live generation token.
func (m *ConnectionManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// IsConnected reports whether the state is Connected.
func (m *ConnectionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// IsCurrent reports whether gen is the live generation of a session that
// is connecting or connected. Events tagged with any other generation are
// stale.
func (m *ConnectionManager) IsCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation && (m.state == StateConnecting || m.state == StateConnected)
}

// active returns the live generation and its transport while Connected.
func (m *ConnectionManager) active() (uint64, Transport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.current == nil || m.current.transport == nil {
		return 0, nil, false
	}
	return m.generation, m.current.transport, true
}

// Connect starts a new session and blocks until it is Connected or fails.
//
// Returns:
//   - ErrAlreadyConnected if the state is not Disconnected
//   - an error wrapping ErrConnectFailed on any failure, including a
//     Teardown that overtook the attempt
func (m *ConnectionManager) Connect(ctx context.Context, ep Endpoint) error {
	_, err := m.connect(ctx, ep)
	return err
}

func (m *ConnectionManager) connect(ctx context.Context, ep Endpoint) (*session, error) {
	m.mu.Lock()
	if m.state != StateDisconnected {
		state := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: state is %s", ErrAlreadyConnected, state)
	}
	m.generation++
	sess := newSession(m.generation)
	m.current = sess
	m.state = StateConnecting
	m.mu.Unlock()

	gen := sess.gen
	m.notify(StateChange{State: StateConnecting, Generation: gen})
	m.logger.Info("connecting to broker", "url", ep.URL, "client_id", ep.ClientID, "generation", gen)

	transport, err := m.factory(ep)
	if err != nil {
		m.fail(sess, nil, err)
		return nil, fmt.Errorf("%w: building transport: %w", ErrConnectFailed, err)
	}

	transport.SetOnConnect(func() { m.markConnected(gen) })
	transport.SetOnDisconnect(func(err error) { m.connectionLost(gen, err) })

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		_ = transport.Close()
		return nil, fmt.Errorf("%w: torn down while connecting", ErrConnectFailed)
	}
	sess.transport = transport
	m.mu.Unlock()

	if err := transport.Connect(ctx); err != nil {
		m.fail(sess, transport, err)
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if !m.markConnected(gen) {
		_ = transport.Close()
		return nil, fmt.Errorf("%w: session ended while connecting", ErrConnectFailed)
	}

	m.logger.Info("connected to broker", "url", ep.URL, "generation", gen)
	return sess, nil
}

// fail returns a still-live Connecting session to Disconnected.
func (m *ConnectionManager) fail(sess *session, transport Transport, cause error) {
	if transport != nil {
		_ = transport.Close()
	}

	m.mu.Lock()
	live := m.generation == sess.gen && m.state == StateConnecting
	if live {
		m.state = StateDisconnected
		m.current = nil
	}
	m.mu.Unlock()

	sess.end(cause)
	if !live {
		return
	}

	m.logger.Warn("broker connection failed", "error", cause, "generation", sess.gen)
	m.notify(StateChange{State: StateDisconnected, Generation: sess.gen, Err: cause})
}

// markConnected moves a live Connecting session to Connected. It is safe to
// call from both the transport's connect callback and Connect itself.
func (m *ConnectionManager) markConnected(gen uint64) bool {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return false
	}
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return true
	case StateConnecting:
		m.state = StateConnected
	default:
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	m.notify(StateChange{State: StateConnected, Generation: gen})
	return true
}

// connectionLost handles an unexpected loss reported by the transport.
func (m *ConnectionManager) connectionLost(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.generation || (m.state != StateConnected && m.state != StateConnecting) {
		m.mu.Unlock()
		return
	}
	sess := m.current
	m.state = StateDisconnected
	m.current = nil
	m.mu.Unlock()

	if cause == nil {
		cause = ErrConnectionLost
	}
	m.logger.Warn("broker connection lost", "error", cause, "generation", gen)

	if sess != nil {
		if sess.transport != nil {
			_ = sess.transport.Close()
		}
		sess.end(cause)
	}
	m.notify(StateChange{State: StateDisconnected, Generation: gen, Err: cause})
}

// Teardown invalidates the live generation and closes the transport.
//
// It is idempotent: tearing down a Disconnected manager only advances the
// generation. The transport is closed on every exit path, panics included.
func (m *ConnectionManager) Teardown() (err error) {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	sess := m.current
	m.current = nil
	if m.state == StateDisconnected && sess == nil {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosing
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.generation == gen {
			m.state = StateDisconnected
		}
		m.mu.Unlock()

		if sess != nil {
			sess.end(nil)
		}
		m.notify(StateChange{State: StateDisconnected, Generation: gen})
		m.logger.Info("broker connection closed", "generation", gen)
	}()

	if sess != nil && sess.transport != nil {
		defer func() {
			if cerr := sess.transport.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing transport: %w", cerr)
			}
		}()
	}

	m.notify(StateChange{State: StateClosing, Generation: gen})
	return nil
}

// WithConnection connects, runs fn, and tears down afterwards whether fn
// returns, fails or panics.
func (m *ConnectionManager) WithConnection(ctx context.Context, ep Endpoint, fn func(ctx context.Context) error) (err error) {
	if _, err := m.connect(ctx, ep); err != nil {
		return err
	}
	defer func() {
		if terr := m.Teardown(); terr != nil && err == nil {
			err = terr
		}
	}()
	return fn(ctx)
}

// Serve holds one session open until ctx ends or the broker drops it.
//
// Returns:
//   - nil when ctx ends (the session is torn down)
//   - an error wrapping ErrConnectionLost when the broker drops the session
//   - any Connect error
func (m *ConnectionManager) Serve(ctx context.Context, ep Endpoint) (err error) {
	sess, err := m.connect(ctx, ep)
	if err != nil {
		return err
	}
	defer func() {
		if terr := m.Teardown(); terr != nil && err == nil {
			err = terr
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-sess.done:
		if sess.err == nil {
			return nil
		}
		if errors.Is(sess.err, ErrConnectionLost) {
			return sess.err
		}
		return fmt.Errorf("%w: %w", ErrConnectionLost, sess.err)
	}
}
