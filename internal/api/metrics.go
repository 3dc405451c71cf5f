package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/roomsync-core/internal/engine"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Sync          SyncMetrics     `json:"sync"`
	Session       *SessionMetrics `json:"session,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains broker session statistics.
type MQTTMetrics struct {
	Connected  bool   `json:"connected"`
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
}

// SessionMetrics contains supervisor statistics for the MQTT session.
type SessionMetrics struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	RestartCount  int    `json:"restart_count"`
	LastError     string `json:"last_error,omitempty"`
}

// SyncMetrics contains state store and subscription statistics.
type SyncMetrics struct {
	ActiveContext string         `json:"active_context"`
	Subscription  string         `json:"subscription"`
	Messages      int            `json:"messages"`
	DroppedStale  uint64         `json:"dropped_stale"`
	DeviceStates  int            `json:"device_states"`
	SensorSamples map[string]int `json:"sensor_samples"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := s.engine.Status()
	snap := s.engine.Snapshot()

	samples := make(map[string]int, len(snap.SensorSeries))
	for kind, series := range snap.SensorSeries {
		samples[kind] = len(series)
	}

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT: MQTTMetrics{
			Connected:  status.State == engine.StateConnected.String(),
			State:      status.State,
			Generation: status.Generation,
		},
		Sync: SyncMetrics{
			ActiveContext: status.ActiveContext,
			Subscription:  status.Subscription,
			Messages:      status.Messages,
			DroppedStale:  status.DroppedStale,
			DeviceStates:  len(snap.DeviceStates),
			SensorSamples: samples,
		},
	}

	if s.session != nil {
		stats := s.session.Stats()
		metrics.Session = &SessionMetrics{
			Status:        string(stats.Status),
			UptimeSeconds: int64(stats.Uptime.Seconds()),
			RestartCount:  stats.RestartCount,
			LastError:     stats.LastError,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
