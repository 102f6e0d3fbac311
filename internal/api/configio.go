package api

import (
	"bytes"
	"net/http"

	"github.com/nerrad567/remapd/internal/profile"
)

// handleConfigStatus reports whether there are unsaved edits.
func (s *Server) handleConfigStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"changed":        s.ctx.IsChanged(),
		"schema_version": profile.SchemaVersion,
		"persistent":     s.repo != nil,
	})
}

// handleSaveConfig writes the current snapshot to the repository.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "no configuration store")
		return
	}
	snap := s.ctx.Snapshot()
	if err := s.repo.Save(r.Context(), snap); err != nil {
		s.logger.Error("saving configuration failed", "error", err)
		writeInternalError(w, "saving configuration failed")
		return
	}
	s.ctx.MarkSaved()
	writeJSON(w, http.StatusOK, map[string]any{
		"saved":    true,
		"profiles": len(snap.Profiles),
	})
}

// handleExportConfig streams the current snapshot as YAML.
func (s *Server) handleExportConfig(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := profile.WriteYAML(&buf, s.ctx.Snapshot()); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="remapd-profiles.yaml"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write(buf.Bytes())
}

// handleImportConfig replaces the configuration with a YAML snapshot from
// the request body and activates its saved profile. The import is not
// saved until /config/save is called.
func (s *Server) handleImportConfig(w http.ResponseWriter, r *http.Request) {
	snap, err := profile.ReadYAML(r.Body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}
	report, err := s.ctx.Load(snap)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activationResponse{OK: report.OK(), Report: report})
}
