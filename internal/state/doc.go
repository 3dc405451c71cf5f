// Package state holds the read projections built from inbound room messages:
//
//   - device states: latest value per key, append-or-overwrite
//   - sensor series: bounded per-kind history of numeric samples
//   - current sensor values: latest numeric value per kind
//   - message log: bounded raw log, newest first
//
// Nothing is persisted; a Store lives as long as its engine.
package state
