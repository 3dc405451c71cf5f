package state

import (
	"sync"
	"time"

	"github.com/nerrad567/roomsync-core/internal/normalize"
)

// Options configures a Store.
type Options struct {
	// Root is the topic root prefix (e.g. "office").
	Root string

	// SensorKinds lists the recognised sensor keys. Nil means DefaultSensorKinds.
	SensorKinds []string

	// SeriesCapacity bounds each sensor series. Zero means DefaultSeriesCapacity.
	SeriesCapacity int

	// LogCapacity bounds the message log. Zero means DefaultLogCapacity.
	LogCapacity int

	// Clock stamps messages that arrive without a receive time. Nil means time.Now.
	Clock func() time.Time
}

// Store owns the device-state, sensor-series and message-log projections.
//
// Ingest is the only mutator and applies one message to every projection
// under a single write lock, so a reader never sees a partially applied
// message. Readers receive copies and never hold the lock beyond the copy.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Store struct {
	normalizer *normalize.Normalizer
	topics     normalize.Topics
	clock      func() time.Time
	kinds      []string
	isKind     map[string]bool

	mu      sync.RWMutex
	devices map[string]DeviceState
	series  map[string]*ring[Sample]
	current map[string]float64
	log     *ring[RawMessage]
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	kinds := opts.SensorKinds
	if kinds == nil {
		kinds = DefaultSensorKinds
	}
	seriesCap := opts.SeriesCapacity
	if seriesCap <= 0 {
		seriesCap = DefaultSeriesCapacity
	}
	logCap := opts.LogCapacity
	if logCap <= 0 {
		logCap = DefaultLogCapacity
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Store{
		normalizer: normalize.New(opts.Root),
		topics:     normalize.Topics{Root: opts.Root},
		clock:      clock,
		kinds:      append([]string(nil), kinds...),
		isKind:     make(map[string]bool, len(kinds)),
		devices:    make(map[string]DeviceState),
		series:     make(map[string]*ring[Sample], len(kinds)),
		current:    make(map[string]float64, len(kinds)),
		log:        newRing[RawMessage](logCap),
	}
	for _, kind := range kinds {
		s.isKind[kind] = true
		s.series[kind] = newRing[Sample](seriesCap)
	}
	return s
}

// Root returns the topic root prefix.
func (s *Store) Root() string {
	return s.normalizer.Root()
}

// SensorKinds returns the recognised sensor keys.
func (s *Store) SensorKinds() []string {
	return append([]string(nil), s.kinds...)
}

// Ingest records msg in the log and applies its classification.
//
//   - ContextUpdate: every field is written to "{root}/{ctx}/{key}/state",
//     the room topic keeps the raw payload, and numeric values of
//     recognised sensor keys are appended to their series and current value.
//     A non-numeric sensor value skips that key only.
//   - LegacyUpdate: the value is written to its state key.
//   - RawPassthrough: the value is written under the topic itself.
func (s *Store) Ingest(msg RawMessage) Applied {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.clock()
	}
	update := s.normalizer.Classify(msg.Topic, msg.Payload)
	applied := Applied{Message: msg, Update: update}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.push(msg)

	switch u := update.(type) {
	case normalize.ContextUpdate:
		for _, key := range normalize.SortedKeys(u.Fields) {
			value := u.Fields[key]
			applied.ChangedKeys = append(applied.ChangedKeys, s.setDevice(s.topics.DeviceState(u.ContextID, key), value, msg.ReceivedAt))

			if !s.isKind[key] {
				continue
			}
			f, ok := normalize.ParseNumeric(value)
			if !ok {
				continue
			}
			s.series[key].push(Sample{Timestamp: msg.ReceivedAt, Value: f})
			s.current[key] = f
			applied.Samples = append(applied.Samples, SensorSample{
				Kind:      key,
				ContextID: u.ContextID,
				Value:     f,
				Timestamp: msg.ReceivedAt,
			})
		}
		applied.ChangedKeys = append(applied.ChangedKeys, s.setDevice(msg.Topic, msg.Payload, msg.ReceivedAt))

	case normalize.LegacyUpdate:
		applied.ChangedKeys = append(applied.ChangedKeys, s.setDevice(u.StateKey, u.Value, msg.ReceivedAt))

	case normalize.RawPassthrough:
		applied.ChangedKeys = append(applied.ChangedKeys, s.setDevice(u.Topic, u.Value, msg.ReceivedAt))
	}

	return applied
}

func (s *Store) setDevice(key, value string, at time.Time) string {
	s.devices[key] = DeviceState{Key: key, Value: value, LastUpdate: at}
	return key
}

// DeviceStates returns a copy of the device-state projection.
func (s *Store) DeviceStates() map[string]DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyDevices()
}

// DeviceValue returns the value stored under key.
func (s *Store) DeviceValue(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[key]
	return d.Value, ok
}

// SensorSeries returns a copy of every sensor series, oldest sample first.
func (s *Store) SensorSeries() map[string][]Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copySeries()
}

// CurrentSensorValues returns the latest value of each sensor kind seen so far.
func (s *Store) CurrentSensorValues() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyCurrent()
}

// MessageLog returns the logged messages, newest first.
func (s *Store) MessageLog() []RawMessage {
	return s.RecentMessages(0)
}

// RecentMessages returns at most limit logged messages, newest first.
// A limit below 1 returns the whole log.
func (s *Store) RecentMessages(limit int) []RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.newestFirst(limit)
}

// MessageCount returns the number of messages currently held in the log.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.count()
}

// Snapshot returns a consistent copy of all projections.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		DeviceStates:        s.copyDevices(),
		SensorSeries:        s.copySeries(),
		CurrentSensorValues: s.copyCurrent(),
		MessageLog:          s.log.newestFirst(0),
	}
}

func (s *Store) copyDevices() map[string]DeviceState {
	out := make(map[string]DeviceState, len(s.devices))
	for k, v := range s.devices {
		out[k] = v
	}
	return out
}

func (s *Store) copySeries() map[string][]Sample {
	out := make(map[string][]Sample, len(s.series))
	for kind, r := range s.series {
		out[kind] = r.oldestFirst()
	}
	return out
}

func (s *Store) copyCurrent() map[string]float64 {
	out := make(map[string]float64, len(s.current))
	for k, v := range s.current {
		out[k] = v
	}
	return out
}
