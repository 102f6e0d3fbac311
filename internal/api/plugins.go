package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
	"github.com/nerrad567/remapd/internal/profile"
)

// createPluginRequest is the body of POST /profiles/{id}/plugins.
type createPluginRequest struct {
	Kind     string         `json:"kind"`
	Title    string         `json:"title"`
	Settings map[string]any `json:"settings"`
}

// updatePluginRequest is the body of PATCH .../plugins/{pluginID}.
type updatePluginRequest struct {
	Title    *string        `json:"title"`
	Settings map[string]any `json:"settings"`
}

// duplicatePluginRequest optionally names a target profile for the copy.
type duplicatePluginRequest struct {
	ProfileID string `json:"profile_id"`
}

// handleListPluginKinds returns the registered behavior kinds.
func (s *Server) handleListPluginKinds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"kinds": s.ctx.Catalog().Kinds(),
	})
}

// pluginFromURL resolves {id} and {pluginID}, writing a 404 on miss.
func (s *Server) pluginFromURL(w http.ResponseWriter, r *http.Request) (*profile.Profile, plugin.Plugin, bool) {
	p, ok := s.profileFromURL(w, r)
	if !ok {
		return nil, nil, false
	}
	id := chi.URLParam(r, "pluginID")
	pl, found := p.FindPlugin(id)
	if !found {
		writeDomainError(w, fmt.Errorf("%w: %s", profile.ErrPluginNotFound, id))
		return nil, nil, false
	}
	return p, pl, true
}

// handleCreatePlugin builds a behavior of the requested kind and appends it.
func (s *Server) handleCreatePlugin(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileFromURL(w, r)
	if !ok {
		return
	}

	var req createPluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pl, err := s.ctx.Catalog().New(req.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if title := strings.TrimSpace(req.Title); title != "" {
		pl.Core().SetTitle(title)
	}
	if len(req.Settings) > 0 {
		if err := applySettings(pl, req.Settings); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if err := p.AddPlugin(pl); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pluginView(pl))
}

// handleGetPlugin returns one behavior.
func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	_, pl, ok := s.pluginFromURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pluginView(pl))
}

// handleUpdatePlugin renames a behavior and/or replaces its settings.
// Settings take effect on the next activation.
func (s *Server) handleUpdatePlugin(w http.ResponseWriter, r *http.Request) {
	p, pl, ok := s.pluginFromURL(w, r)
	if !ok {
		return
	}

	var req updatePluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Settings != nil {
		if err := applySettings(pl, req.Settings); err != nil {
			writeDomainError(w, err)
			return
		}
		p.PluginChanged()
	}
	if req.Title != nil {
		pl.Core().Rename(strings.TrimSpace(*req.Title))
	}
	writeJSON(w, http.StatusOK, pluginView(pl))
}

func applySettings(pl plugin.Plugin, settings map[string]any) error {
	c, ok := pl.(plugin.Configurable)
	if !ok {
		return fmt.Errorf("%w: %s has no settings", plugin.ErrInvalidSetting, pl.Kind())
	}
	return c.ApplySettings(settings)
}

// handleDeletePlugin removes a behavior and its subscriptions.
func (s *Server) handleDeletePlugin(w http.ResponseWriter, r *http.Request) {
	p, pl, ok := s.pluginFromURL(w, r)
	if !ok {
		return
	}
	p.RemovePlugin(pl)
	w.WriteHeader(http.StatusNoContent)
}

// handleDuplicatePlugin copies a behavior into the same profile, or into
// the profile named in the body.
func (s *Server) handleDuplicatePlugin(w http.ResponseWriter, r *http.Request) {
	p, pl, ok := s.pluginFromURL(w, r)
	if !ok {
		return
	}

	var req duplicatePluginRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	target := p
	if req.ProfileID != "" {
		var err error
		if target, err = s.ctx.FindProfile(req.ProfileID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	cp, err := plugin.Duplicate(s.ctx.Catalog(), pl)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := target.AddPlugin(cp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pluginView(cp))
}

// handleSetBinding replaces the descriptor of one slot.
func (s *Server) handleSetBinding(w http.ResponseWriter, r *http.Request) {
	_, pl, ok := s.pluginFromURL(w, r)
	if !ok {
		return
	}

	dir, err := device.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeBadRequest(w, "slot must be an integer")
		return
	}

	var desc device.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if desc.IsBound && (!desc.DeviceType.Valid() || !desc.KeyType.Valid()) {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
			"a bound descriptor needs a valid device_type and key_type")
		return
	}

	if err := pl.Core().SetBinding(dir, slot, desc); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pluginView(pl))
}
