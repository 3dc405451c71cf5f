package state

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/roomsync-core/internal/normalize"
)

// fakeClock returns a clock that advances one second per call.
func fakeClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestStore() *Store {
	return NewStore(Options{Root: "root", Clock: fakeClock()})
}

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore(Options{Root: "office"})

	if s.Root() != "office" {
		t.Errorf("Root() = %q, want %q", s.Root(), "office")
	}
	if !reflect.DeepEqual(s.SensorKinds(), DefaultSensorKinds) {
		t.Errorf("SensorKinds() = %v, want %v", s.SensorKinds(), DefaultSensorKinds)
	}

	series := s.SensorSeries()
	for _, kind := range DefaultSensorKinds {
		got, ok := series[kind]
		if !ok {
			t.Errorf("SensorSeries() missing kind %q", kind)
		}
		if len(got) != 0 {
			t.Errorf("SensorSeries()[%q] len = %d, want 0", kind, len(got))
		}
	}
	if len(s.CurrentSensorValues()) != 0 {
		t.Errorf("CurrentSensorValues() = %v, want empty", s.CurrentSensorValues())
	}
	if len(s.MessageLog()) != 0 {
		t.Errorf("MessageLog() len = %d, want 0", len(s.MessageLog()))
	}
}

func TestIngest_ContextJSONMapping(t *testing.T) {
	s := newTestStore()

	applied := s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"light":"on","temperature":27.2}`})

	devices := s.DeviceStates()
	if got := devices["root/room1/light/state"].Value; got != "on" {
		t.Errorf(`deviceStates["root/room1/light/state"] = %q, want "on"`, got)
	}
	if got := devices["root/room1/temperature/state"].Value; got != "27.2" {
		t.Errorf(`deviceStates["root/room1/temperature/state"] = %q, want "27.2"`, got)
	}
	if got := devices["root/room1"].Value; got != `{"light":"on","temperature":27.2}` {
		t.Errorf(`deviceStates["root/room1"] = %q, want raw payload`, got)
	}

	if got := s.CurrentSensorValues()["temperature"]; got != 27.2 {
		t.Errorf(`currentSensorValues["temperature"] = %v, want 27.2`, got)
	}

	series := s.SensorSeries()["temperature"]
	if len(series) != 1 || series[0].Value != 27.2 {
		t.Errorf("temperature series = %v, want one point of 27.2", series)
	}

	if _, ok := applied.Update.(normalize.ContextUpdate); !ok {
		t.Errorf("Applied.Update = %T, want normalize.ContextUpdate", applied.Update)
	}
	wantKeys := []string{"root/room1/light/state", "root/room1/temperature/state", "root/room1"}
	if !reflect.DeepEqual(applied.ChangedKeys, wantKeys) {
		t.Errorf("Applied.ChangedKeys = %v, want %v", applied.ChangedKeys, wantKeys)
	}
	if len(applied.Samples) != 1 {
		t.Fatalf("Applied.Samples len = %d, want 1", len(applied.Samples))
	}
	sample := applied.Samples[0]
	if sample.Kind != "temperature" || sample.ContextID != "room1" || sample.Value != 27.2 {
		t.Errorf("Applied.Samples[0] = %+v, want temperature/room1/27.2", sample)
	}
	if !sample.Timestamp.Equal(applied.Message.ReceivedAt) {
		t.Errorf("sample timestamp = %v, want receive time %v", sample.Timestamp, applied.Message.ReceivedAt)
	}
}

func TestIngest_NumericStringSensor(t *testing.T) {
	s := newTestStore()

	s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"humidity":" 55 "}`})

	if got := s.CurrentSensorValues()["humidity"]; got != 55 {
		t.Errorf(`currentSensorValues["humidity"] = %v, want 55`, got)
	}
}

func TestIngest_NonNumericSensorSkipsOnlyThatKey(t *testing.T) {
	s := newTestStore()

	applied := s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"temperature":"warm","co2":415,"light":"off"}`})

	current := s.CurrentSensorValues()
	if _, ok := current["temperature"]; ok {
		t.Error("currentSensorValues has temperature for non-numeric value")
	}
	if got := current["co2"]; got != 415 {
		t.Errorf(`currentSensorValues["co2"] = %v, want 415`, got)
	}

	series := s.SensorSeries()
	if len(series["temperature"]) != 0 {
		t.Errorf("temperature series len = %d, want 0", len(series["temperature"]))
	}
	if len(series["co2"]) != 1 {
		t.Errorf("co2 series len = %d, want 1", len(series["co2"]))
	}

	// The non-numeric value is still a device state.
	if got, _ := s.DeviceValue("root/room1/temperature/state"); got != "warm" {
		t.Errorf(`DeviceValue("root/room1/temperature/state") = %q, want "warm"`, got)
	}
	if got, _ := s.DeviceValue("root/room1/light/state"); got != "off" {
		t.Errorf(`DeviceValue("root/room1/light/state") = %q, want "off"`, got)
	}
	if len(applied.Samples) != 1 {
		t.Errorf("Applied.Samples len = %d, want 1", len(applied.Samples))
	}
}

func TestIngest_UnrecognisedNumericKeyNotSeries(t *testing.T) {
	s := newTestStore()

	s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"ac":24}`})

	if len(s.CurrentSensorValues()) != 0 {
		t.Errorf("CurrentSensorValues() = %v, want empty", s.CurrentSensorValues())
	}
	if got, _ := s.DeviceValue("root/room1/ac/state"); got != "24" {
		t.Errorf(`DeviceValue("root/room1/ac/state") = %q, want "24"`, got)
	}
}

func TestIngest_MalformedJSON(t *testing.T) {
	s := newTestStore()
	s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"temperature":20}`})
	seriesBefore := s.SensorSeries()
	currentBefore := s.CurrentSensorValues()

	applied := s.Ingest(RawMessage{Topic: "root/room1", Payload: "{not json"})

	if got := s.DeviceStates()["root/room1"].Value; got != "{not json" {
		t.Errorf(`deviceStates["root/room1"] = %q, want "{not json"`, got)
	}
	if !reflect.DeepEqual(s.SensorSeries(), seriesBefore) {
		t.Error("sensor series changed by malformed payload")
	}
	if !reflect.DeepEqual(s.CurrentSensorValues(), currentBefore) {
		t.Error("current sensor values changed by malformed payload")
	}
	if _, ok := applied.Update.(normalize.RawPassthrough); !ok {
		t.Errorf("Applied.Update = %T, want normalize.RawPassthrough", applied.Update)
	}
	if got := s.MessageLog()[0].Payload; got != "{not json" {
		t.Errorf("MessageLog()[0].Payload = %q, want malformed payload logged", got)
	}
}

func TestIngest_LegacyMapping(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		wantKey string
	}{
		{"root/room1/light/state", "on", "root/room1/light/state"},
		{"root/room1/light/set", "off", "root/room1/light/state"},
		{"root/room1/ac/control", "24", "root/room1/ac/state"},
		{"root/room1/door/status", "open", "root/room1/door/state"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			s := newTestStore()
			applied := s.Ingest(RawMessage{Topic: tt.topic, Payload: tt.payload})

			if got := s.DeviceStates()[tt.wantKey].Value; got != tt.payload {
				t.Errorf("deviceStates[%q] = %q, want %q", tt.wantKey, got, tt.payload)
			}
			if !reflect.DeepEqual(applied.ChangedKeys, []string{tt.wantKey}) {
				t.Errorf("Applied.ChangedKeys = %v, want [%s]", applied.ChangedKeys, tt.wantKey)
			}
		})
	}
}

func TestIngest_RawPassthrough(t *testing.T) {
	s := newTestStore()

	s.Ingest(RawMessage{Topic: "root/room1/sensor/temperature", Payload: "27.5"})
	s.Ingest(RawMessage{Topic: "elsewhere/x", Payload: "hello"})

	devices := s.DeviceStates()
	if got := devices["root/room1/sensor/temperature"].Value; got != "27.5" {
		t.Errorf("deviceStates[sensor topic] = %q, want %q", got, "27.5")
	}
	if got := devices["elsewhere/x"].Value; got != "hello" {
		t.Errorf("deviceStates[elsewhere/x] = %q, want %q", got, "hello")
	}
	// Raw sensor-looking topics are not sensor samples.
	if len(s.CurrentSensorValues()) != 0 {
		t.Errorf("CurrentSensorValues() = %v, want empty", s.CurrentSensorValues())
	}
}

func TestIngest_Overwrite(t *testing.T) {
	s := newTestStore()

	s.Ingest(RawMessage{Topic: "root/room1/light/state", Payload: "on"})
	s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"light":"off"}`})

	got := s.DeviceStates()["root/room1/light/state"]
	if got.Value != "off" {
		t.Errorf("light state = %q, want %q", got.Value, "off")
	}
	if got.Key != "root/room1/light/state" {
		t.Errorf("DeviceState.Key = %q, want the map key", got.Key)
	}
}

func TestIngest_BoundedSeries(t *testing.T) {
	s := newTestStore()

	const n = 75
	for i := 0; i < n; i++ {
		s.Ingest(RawMessage{Topic: "root/room1", Payload: fmt.Sprintf(`{"temperature":%d,"tvoc":%d}`, i, i*2)})
	}

	series := s.SensorSeries()
	for _, kind := range []string{"temperature", "tvoc"} {
		got := series[kind]
		if len(got) != DefaultSeriesCapacity {
			t.Fatalf("%s series len = %d, want %d", kind, len(got), DefaultSeriesCapacity)
		}
		factor := 1.0
		if kind == "tvoc" {
			factor = 2
		}
		for i, sample := range got {
			want := float64(n-DefaultSeriesCapacity+i) * factor
			if sample.Value != want {
				t.Errorf("%s series[%d] = %v, want %v", kind, i, sample.Value, want)
			}
			if i > 0 && !sample.Timestamp.After(got[i-1].Timestamp) {
				t.Errorf("%s series not in arrival order at %d", kind, i)
			}
		}
	}

	if got := s.CurrentSensorValues()["temperature"]; got != n-1 {
		t.Errorf(`currentSensorValues["temperature"] = %v, want %d`, got, n-1)
	}
}

func TestIngest_BoundedLog(t *testing.T) {
	s := newTestStore()

	for i := 0; i < 500; i++ {
		s.Ingest(RawMessage{Topic: "root/room1/light/state", Payload: fmt.Sprintf("msg-%d", i)})
	}

	log := s.MessageLog()
	if len(log) != DefaultLogCapacity {
		t.Fatalf("MessageLog() len = %d, want %d", len(log), DefaultLogCapacity)
	}
	if log[0].Payload != "msg-499" {
		t.Errorf("MessageLog()[0] = %q, want %q", log[0].Payload, "msg-499")
	}
	if log[len(log)-1].Payload != "msg-300" {
		t.Errorf("MessageLog()[last] = %q, want %q", log[len(log)-1].Payload, "msg-300")
	}
	if s.MessageCount() != DefaultLogCapacity {
		t.Errorf("MessageCount() = %d, want %d", s.MessageCount(), DefaultLogCapacity)
	}

	recent := s.RecentMessages(3)
	want := []string{"msg-499", "msg-498", "msg-497"}
	for i, m := range recent {
		if m.Payload != want[i] {
			t.Errorf("RecentMessages(3)[%d] = %q, want %q", i, m.Payload, want[i])
		}
	}
}

func TestIngest_KeepsReceiveTime(t *testing.T) {
	s := newTestStore()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	applied := s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"co2":600}`, ReceivedAt: at})

	if !applied.Message.ReceivedAt.Equal(at) {
		t.Errorf("ReceivedAt = %v, want %v", applied.Message.ReceivedAt, at)
	}
	if got := s.SensorSeries()["co2"][0].Timestamp; !got.Equal(at) {
		t.Errorf("sample timestamp = %v, want %v", got, at)
	}
	if got := s.DeviceStates()["root/room1/co2/state"].LastUpdate; !got.Equal(at) {
		t.Errorf("LastUpdate = %v, want %v", got, at)
	}
}

func TestStore_CustomOptions(t *testing.T) {
	s := NewStore(Options{
		Root:           "lab",
		SensorKinds:    []string{"pm25"},
		SeriesCapacity: 2,
		LogCapacity:    3,
	})

	for i := 0; i < 5; i++ {
		s.Ingest(RawMessage{Topic: "lab/bench", Payload: fmt.Sprintf(`{"pm25":%d,"temperature":1}`, i)})
	}

	series := s.SensorSeries()
	if _, ok := series["temperature"]; ok {
		t.Error("temperature is not a configured kind but has a series")
	}
	if got := series["pm25"]; len(got) != 2 || got[0].Value != 3 || got[1].Value != 4 {
		t.Errorf("pm25 series = %v, want [3 4]", got)
	}
	if len(s.MessageLog()) != 3 {
		t.Errorf("MessageLog() len = %d, want 3", len(s.MessageLog()))
	}
}

func TestStore_ReadersReturnCopies(t *testing.T) {
	s := newTestStore()
	s.Ingest(RawMessage{Topic: "root/room1", Payload: `{"light":"on","temperature":21}`})

	devices := s.DeviceStates()
	devices["root/room1/light/state"] = DeviceState{Value: "tampered"}
	series := s.SensorSeries()
	series["temperature"][0].Value = -1
	current := s.CurrentSensorValues()
	current["temperature"] = -1
	log := s.MessageLog()
	log[0].Payload = "tampered"

	if got, _ := s.DeviceValue("root/room1/light/state"); got != "on" {
		t.Errorf("device state mutated through copy: %q", got)
	}
	if got := s.SensorSeries()["temperature"][0].Value; got != 21 {
		t.Errorf("series mutated through copy: %v", got)
	}
	if got := s.CurrentSensorValues()["temperature"]; got != 21 {
		t.Errorf("current value mutated through copy: %v", got)
	}
	if got := s.MessageLog()[0].Payload; got == "tampered" {
		t.Error("message log mutated through copy")
	}
}

func TestStore_SnapshotConsistent(t *testing.T) {
	s := newTestStore()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Ingest(RawMessage{Topic: "root/room1", Payload: fmt.Sprintf(`{"temperature":%d}`, i)})
		}
	}()

	// Every snapshot must agree with itself: the current temperature is
	// always the newest series sample and its device state.
	for i := 0; i < 200; i++ {
		snap := s.Snapshot()
		series := snap.SensorSeries["temperature"]
		if len(series) == 0 {
			continue
		}
		last := series[len(series)-1].Value
		if snap.CurrentSensorValues["temperature"] != last {
			t.Fatalf("snapshot current = %v, newest sample = %v", snap.CurrentSensorValues["temperature"], last)
		}
		want := fmt.Sprintf("%d", int(last))
		if snap.DeviceStates["root/room1/temperature/state"].Value != want {
			t.Fatalf("snapshot device state = %q, newest sample = %s", snap.DeviceStates["root/room1/temperature/state"].Value, want)
		}
		if len(snap.MessageLog) == 0 || snap.MessageLog[0].Payload != fmt.Sprintf(`{"temperature":%s}`, want) {
			t.Fatalf("snapshot log head does not match newest sample %s", want)
		}
	}
	wg.Wait()
}

func TestRing(t *testing.T) {
	r := newRing[int](3)
	if got := r.oldestFirst(); len(got) != 0 {
		t.Errorf("empty oldestFirst() = %v", got)
	}

	for i := 1; i <= 5; i++ {
		r.push(i)
	}

	if r.count() != 3 {
		t.Errorf("count() = %d, want 3", r.count())
	}
	if got := r.oldestFirst(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("oldestFirst() = %v, want [3 4 5]", got)
	}
	if got := r.newestFirst(0); !reflect.DeepEqual(got, []int{5, 4, 3}) {
		t.Errorf("newestFirst(0) = %v, want [5 4 3]", got)
	}
	if got := r.newestFirst(2); !reflect.DeepEqual(got, []int{5, 4}) {
		t.Errorf("newestFirst(2) = %v, want [5 4]", got)
	}
	if got := newRing[int](0).buf; len(got) != 1 {
		t.Errorf("newRing(0) capacity = %d, want 1", len(got))
	}
}
