// Package api implements the HTTP REST API and WebSocket server for Room Sync Core.
//
// This package provides:
//   - REST endpoints for reading the synced room state and the message log
//   - Endpoints for switching the followed room and publishing user actions
//   - WebSocket hub broadcasting applied messages and connection changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server is a thin view over the sync engine. Reads are served from
// engine snapshots; writes go through the engine's publish gateway, so a
// publish while the broker is unreachable is accepted and dropped.
//
// # Graceful Degradation
//
// The server keeps answering while the broker is down. /health reports the
// connection as degraded and reads return the last synced state.
package api
