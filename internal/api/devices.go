package api

import (
	"net/http"

	"github.com/nerrad567/remapd/internal/device"
)

// handleListDevices returns the device inventory grouped by provider.
// ?direction=input|output narrows the response to one list.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("direction"); raw != "" {
		dir, err := device.ParseDirection(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"groups": groupViews(s.ctx.GetAvailableDeviceList(dir)),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"inputs":  groupViews(s.ctx.GetAvailableDeviceList(device.Input)),
		"outputs": groupViews(s.ctx.GetAvailableDeviceList(device.Output)),
	})
}

// handleRescanDevices rebuilds the inventory and reactivates the active
// profile against it.
func (s *Server) handleRescanDevices(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctx.Init(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inputs":  groupViews(s.ctx.GetAvailableDeviceList(device.Input)),
		"outputs": groupViews(s.ctx.GetAvailableDeviceList(device.Output)),
	})
}
