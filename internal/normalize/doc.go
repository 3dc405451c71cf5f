// Package normalize classifies inbound room messages.
//
// Two wire conventions share one root namespace:
//
//	office/room1                 {"light":"on","temperature":27.2}   new format
//	office/room1/light/state     on                                  legacy format
//
// Classify turns each (topic, payload) pair into exactly one of
// ContextUpdate, LegacyUpdate or RawPassthrough. It never fails: a payload
// that cannot be interpreted is passed through unchanged.
package normalize
