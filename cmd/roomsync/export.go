package main

import (
	"time"

	"github.com/nerrad567/roomsync-core/internal/state"
)

// pointWriter is the part of *influxdb.Client the exporter uses.
type pointWriter interface {
	WriteSensorSample(room, sensor string, value float64, ts time.Time)
	WriteDeviceState(key, value string, ts time.Time)
}

// deviceLookup reads back device values written by an ingest.
type deviceLookup interface {
	DeviceValue(key string) (string, bool)
}

// exportApplied returns an engine observer writing each appended sensor
// sample and each changed device state. Writes are non-blocking batches,
// so the observer is safe on the event loop.
func exportApplied(w pointWriter, devices deviceLookup) func(state.Applied) {
	return func(applied state.Applied) {
		ts := applied.Message.ReceivedAt
		for _, s := range applied.Samples {
			w.WriteSensorSample(s.ContextID, s.Kind, s.Value, s.Timestamp)
		}
		for _, key := range applied.ChangedKeys {
			if value, ok := devices.DeviceValue(key); ok {
				w.WriteDeviceState(key, value, ts)
			}
		}
	}
}
