package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

// SystemStatus is the response of GET /system/status.
type SystemStatus struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          *MQTTMetrics    `json:"mqtt,omitempty"`
	Devices       DeviceMetrics   `json:"devices"`
	Profiles      ProfileMetrics  `json:"profiles"`
	Database      *DatabaseStatus `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics counts the inventory.
type DeviceMetrics struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// ProfileMetrics summarises the profile tree.
type ProfileMetrics struct {
	Total   int    `json:"total"`
	Active  string `json:"active,omitempty"`
	Changed bool   `json:"changed"`
}

// DatabaseStatus contains connection pool statistics.
type DatabaseStatus struct {
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
}

// handleSystemStatus returns runtime, device and profile statistics.
func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if s.mqtt != nil {
		status.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}

	for _, d := range s.ctx.Inventory().Devices() {
		status.Devices.Total++
		if d.IsActive() {
			status.Devices.Active++
		}
	}

	status.Profiles = ProfileMetrics{
		Total:   len(s.ctx.AllProfiles()),
		Changed: s.ctx.IsChanged(),
	}
	if active := s.ctx.ActiveProfile(); active != nil {
		status.Profiles.Active = active.Path()
	}

	if s.db != nil {
		st := s.db.Stats()
		status.Database = &DatabaseStatus{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// logLevelBody is the body of GET and PUT /system/log-level.
type logLevelBody struct {
	Level string `json:"level"`
}

func (s *Server) handleGetLogLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, logLevelBody{Level: s.logger.Level()})
}

// handleSetLogLevel changes the level of every logger derived from the
// server's logger, which in a running daemon is all of them.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var body logLevelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.logger.SetLevel(body.Level); err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}
	s.logger.Info("log level changed", "level", s.logger.Level())
	writeJSON(w, http.StatusOK, logLevelBody{Level: s.logger.Level()})
}
