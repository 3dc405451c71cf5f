// Package engine keeps a local view of one room's state in sync with an
// MQTT broker.
//
// The engine is built from four parts:
//
//   - ConnectionManager owns the transport lifecycle and the generation
//     token that marks every callback as current or stale
//   - SubscriptionCoordinator keeps exactly one room subscription in step
//     with the selected room, across switches and reconnects
//   - PublishGateway sends user actions, dropping them while disconnected
//   - the event loop in Engine.Run applies inbound messages to a state.Store
//
// Usage:
//
//	eng := engine.New(factory, engine.Options{Root: "office", DefaultContext: "room1"})
//	go eng.Run(ctx)
//	err := eng.Serve(ctx, engine.Endpoint{URL: "tcp://127.0.0.1:1883", ClientID: "roomsync-1"})
//
// Nothing reconnects on its own. Serve returns when the broker drops the
// session and the caller decides whether to call it again.
package engine
