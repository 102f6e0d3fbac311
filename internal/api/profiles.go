package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/profile"
)

// createProfileRequest is the body of POST /profiles and /profiles/{id}/children.
type createProfileRequest struct {
	Title string `json:"title"`
}

// updateProfileRequest is the body of PATCH /profiles/{id}.
type updateProfileRequest struct {
	Title *string `json:"title"`
}

// setDeviceGroupRequest is the body of PUT /profiles/{id}/devices.
// An empty provider id clears the reference so the parent's applies.
type setDeviceGroupRequest struct {
	Direction  device.Direction  `json:"direction"`
	DeviceType device.DeviceType `json:"device_type"`
	ProviderID string            `json:"provider_id"`
}

// activationResponse wraps an activation report with its summary.
type activationResponse struct {
	OK     bool                     `json:"ok"`
	Report profile.ActivationReport `json:"report"`
}

// profileFromURL resolves the {id} path parameter, writing a 404 on miss.
func (s *Server) profileFromURL(w http.ResponseWriter, r *http.Request) (*profile.Profile, bool) {
	p, err := s.ctx.FindProfile(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return p, true
}

// handleListProfiles returns the profile tree from the roots down.
func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	active := s.ctx.ActiveProfile()
	roots := s.ctx.Profiles()
	views := make([]ProfileView, 0, len(roots))
	for _, p := range roots {
		views = append(views, profileView(p, active, true))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": views,
		"active":   activeID(active),
		"changed":  s.ctx.IsChanged(),
	})
}

func activeID(p *profile.Profile) string {
	if p == nil {
		return ""
	}
	return p.ID()
}

// handleCreateProfile adds a root profile.
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	title, ok := decodeTitle(w, r)
	if !ok {
		return
	}
	p := s.ctx.AddProfile(title)
	writeJSON(w, http.StatusCreated, profileView(p, s.ctx.ActiveProfile(), false))
}

// handleCreateChildProfile adds a child under {id}.
func (s *Server) handleCreateChildProfile(w http.ResponseWriter, r *http.Request) {
	parent, ok := s.profileFromURL(w, r)
	if !ok {
		return
	}
	title, ok := decodeTitle(w, r)
	if !ok {
		return
	}
	child := parent.AddChild(title)
	writeJSON(w, http.StatusCreated, profileView(child, s.ctx.ActiveProfile(), false))
}

func decodeTitle(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return "", false
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "title is required")
		return "", false
	}
	return title, true
}

// handleGetActiveProfile returns the active profile.
func (s *Server) handleGetActiveProfile(w http.ResponseWriter, _ *http.Request) {
	active := s.ctx.ActiveProfile()
	if active == nil {
		writeNotFound(w, "no profile is active")
		return
	}
	writeJSON(w, http.StatusOK, profileView(active, active, false))
}

// handleGetProfile returns one profile with its behaviors.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileFromURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileView(p, s.ctx.ActiveProfile(), false))
}

// handleUpdateProfile renames a profile. Global keeps its title.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileFromURL(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		switch {
		case title == "":
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "title cannot be empty")
			return
		case p.IsGlobal() && title != profile.GlobalTitle:
			writeError(w, http.StatusConflict, ErrCodeConflict, "the global profile cannot be renamed")
			return
		}
		p.Rename(title)
	}
	writeJSON(w, http.StatusOK, profileView(p, s.ctx.ActiveProfile(), false))
}

// handleDeleteProfile removes a profile and its subtree.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileFromURL(w, r)
	if !ok {
		return
	}
	if err := s.ctx.DeleteProfile(p); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetDeviceGroup assigns or clears a provider for a direction and type.
func (s *Server) handleSetDeviceGroup(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileFromURL(w, r)
	if !ok {
		return
	}

	var req setDeviceGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ProviderID != "" {
		if _, found := s.ctx.Inventory().Group(req.Direction, req.ProviderID); !found {
			s.logger.Warn("device group references an absent provider",
				"profile", p.Title(), "provider_id", req.ProviderID)
		}
	}
	if err := p.SetDeviceGroup(req.Direction, req.DeviceType, req.ProviderID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView(p, s.ctx.ActiveProfile(), false))
}

// handleActivateProfile runs the activation protocol. A failed activation
// is a normal outcome: the response carries ok=false and the per-slot
// failures, and the previously active profile stays live.
func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileFromURL(w, r)
	if !ok {
		return
	}
	report, err := s.ctx.ActivateProfile(p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activationResponse{OK: report.OK(), Report: report})
}
