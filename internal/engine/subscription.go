package engine

import (
	"sync"

	"github.com/nerrad567/roomsync-core/internal/normalize"
)

// SubscriptionCoordinator keeps exactly one room subscription in step with
// the selected room.
//
// Reconciliation is level-triggered: each pass compares the desired filter
// with the active one and issues at most one unsubscribe and one subscribe.
// Passes are serialized and repeat until nothing changed underneath them,
// so a burst of selections converges on the last one.
//
// Thread Safety:
//   - All methods are safe for concurrent use. SetActiveContext blocks for
//     the broker round-trips; HandleDisconnected and the readers never do.
type SubscriptionCoordinator struct {
	conn    *ConnectionManager
	topics  normalize.Topics
	qos     byte
	handler func(gen uint64) MessageHandler
	logger  Logger

	// opMu serializes reconciliation passes.
	opMu sync.Mutex

	mu        sync.Mutex
	desired   string // room id, "" for none
	active    string // subscribed filter, "" for none
	activeCtx string
	activeGen uint64
}

// NewSubscriptionCoordinator creates a coordinator. handler builds the
// message handler for a subscription made under a given generation.
func NewSubscriptionCoordinator(conn *ConnectionManager, topics normalize.Topics, qos byte, handler func(gen uint64) MessageHandler) *SubscriptionCoordinator {
	return &SubscriptionCoordinator{
		conn:    conn,
		topics:  topics,
		qos:     qos,
		handler: handler,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *SubscriptionCoordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetActiveContext selects a room; "" selects none.
//
// While connected, the call returns once the broker subscriptions are
// exactly {RoomFilter(id)} (or empty), unless the broker rejected the
// subscribe, which is logged. While disconnected it only records the choice;
// HandleConnected applies it.
func (c *SubscriptionCoordinator) SetActiveContext(id string) {
	c.mu.Lock()
	c.desired = id
	c.mu.Unlock()

	c.reconcile()
}

// HandleConnected applies the desired room to a freshly connected session.
func (c *SubscriptionCoordinator) HandleConnected(gen uint64) {
	if !c.conn.IsCurrent(gen) {
		return
	}
	c.reconcile()
}

// HandleDisconnected forgets the active subscription of generation gen or
// older. Clean sessions lose all subscriptions with the connection; a late
// notice about an old session leaves a newer subscription alone.
func (c *SubscriptionCoordinator) HandleDisconnected(gen uint64) {
	c.mu.Lock()
	if c.activeGen <= gen {
		c.active = ""
		c.activeCtx = ""
		c.activeGen = 0
	}
	c.mu.Unlock()
}

// Desired returns the selected room id, "" for none.
func (c *SubscriptionCoordinator) Desired() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Active returns the filter the live session is subscribed to and whether
// one exists. A subscription left over from an ended session does not count.
func (c *SubscriptionCoordinator) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" || !c.conn.IsCurrent(c.activeGen) {
		return "", false
	}
	return c.active, true
}

// ActiveContext returns the room id the live subscription belongs to.
func (c *SubscriptionCoordinator) ActiveContext() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" || !c.conn.IsCurrent(c.activeGen) {
		return ""
	}
	return c.activeCtx
}

func (c *SubscriptionCoordinator) reconcile() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	for {
		gen, transport, ok := c.conn.active()
		if !ok {
			return
		}

		c.mu.Lock()
		desired := c.desired
		active := c.active
		if c.activeGen != gen {
			active = ""
		}
		c.mu.Unlock()

		want := ""
		if desired != "" {
			want = c.topics.RoomFilter(desired)
		}
		if want == active {
			return
		}

		if active != "" {
			if err := transport.Unsubscribe(active); err != nil {
				c.logger.Warn("unsubscribe failed", "filter", active, "error", err)
			}
			c.mu.Lock()
			if c.activeGen == gen && c.active == active {
				c.active, c.activeCtx = "", ""
			}
			c.mu.Unlock()
			c.logger.Debug("unsubscribed", "filter", active)
		}

		if want == "" {
			continue
		}

		// A teardown may have overtaken the unsubscribe.
		if !c.conn.IsCurrent(gen) {
			return
		}

		if err := transport.Subscribe(want, c.qos, c.handler(gen)); err != nil {
			c.logger.Warn("subscribe failed", "filter", want, "room", desired, "error", err)
			return
		}

		c.mu.Lock()
		if c.conn.IsCurrent(gen) {
			c.active, c.activeCtx, c.activeGen = want, desired, gen
		}
		c.mu.Unlock()
		c.logger.Info("subscribed", "filter", want, "room", desired, "generation", gen)
	}
}
