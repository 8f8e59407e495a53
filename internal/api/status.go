package api

import (
	"net/http"
	"runtime"
	"time"
)

// Status is the GET /api/v1/status response.
type Status struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	HubStatus
}

// HubStatus is the part of the status owned by the hub's event loop.
type HubStatus struct {
	Server            ServerInfo     `json:"server"`
	Clients           map[string]int `json:"clients"`
	Things            int            `json:"things"`
	PendingOperations map[string]int `json:"pending_operations"`
	MQTT              MQTTStatus     `json:"mqtt"`
}

// ServerInfo identifies the hub.
type ServerInfo struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// MQTTStatus reports the broker connection.
type MQTTStatus struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleStatus returns the hub status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeUnavailable(w, "status not available")
		return
	}
	hub, err := s.status(r.Context())
	if err != nil {
		s.logger.Warn("collecting status failed", "error", err)
		writeUnavailable(w, "status not available")
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, Status{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		HubStatus: hub,
	})
}
