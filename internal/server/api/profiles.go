package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/squatcoach/internal/logging"
	"github.com/ayusman/squatcoach/internal/store"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// Activator applies a threshold set to the live session.
type Activator interface {
	SetThresholds(th thresholds.Thresholds) (string, error)
}

// ProfileHandler handles HTTP requests for threshold profiles.
type ProfileHandler struct {
	store     *store.Store
	activator Activator
	logger    *slog.Logger
}

// NewProfileHandler creates a ProfileHandler. activator may be nil, in which
// case activation only records the active_profile setting.
func NewProfileHandler(s *store.Store, activator Activator, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ProfileHandler{store: s, activator: activator, logger: logger}
}

// ServeHTTP routes /api/profiles, /api/profiles/{id} and
// /api/profiles/{id}/activate.
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, action, _ := strings.Cut(path, "/")
	switch action {
	case "":
	case "activate":
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, id)
		return
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createProfileRequest struct {
	Name string `json:"name"`
	// Base names the preset the thresholds are applied over. Defaults to
	// beginner.
	Base       string         `json:"base"`
	Thresholds map[string]any `json:"thresholds"`
}

type updateProfileRequest struct {
	Name       string         `json:"name"`
	Thresholds map[string]any `json:"thresholds"`
}

type profileResponse struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Version    int                   `json:"version"`
	Builtin    bool                  `json:"builtin"`
	Active     bool                  `json:"active"`
	Thresholds thresholds.Thresholds `json:"thresholds"`
	CreatedAt  string                `json:"created_at"`
	UpdatedAt  string                `json:"updated_at"`
}

type listProfilesResponse struct {
	Profiles []profileResponse `json:"profiles"`
}

type activateResponse struct {
	Active    string `json:"active"`
	SessionID string `json:"sessionId,omitempty"`
}

func toResponse(p *store.Profile, activeID string) profileResponse {
	return profileResponse{
		ID:         p.ID,
		Name:       p.Name,
		Version:    p.Version,
		Builtin:    p.Builtin,
		Active:     p.ID == activeID,
		Thresholds: p.Thresholds,
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339),
	}
}

// activeID returns the active profile ID, or "" when none is set.
func (h *ProfileHandler) activeID() string {
	id, err := h.store.Settings().Get(store.SettingActiveProfile)
	if err != nil {
		return ""
	}
	return id
}

// storeError maps repository errors onto responses.
func (h *ProfileHandler) storeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, thresholds.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("profile store", "action", action, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to "+action+" profile")
	}
}

// list handles GET /api/profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.Profiles().List()
	if err != nil {
		h.storeError(w, err, "list")
		return
	}

	active := h.activeID()
	response := listProfilesResponse{
		Profiles: make([]profileResponse, 0, len(profiles)),
	}
	for _, p := range profiles {
		response.Profiles = append(response.Profiles, toResponse(p, active))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/profiles/{id}.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		h.storeError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p, h.activeID()))
}

// create handles POST /api/profiles.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	if req.Base == "" {
		req.Base = "beginner"
	}
	base, ok := thresholds.Preset(req.Base)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown base preset")
		return
	}

	th, err := thresholds.Decode(base, req.Thresholds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := &store.Profile{Name: req.Name, Thresholds: th}
	if err := h.store.Profiles().Create(p); err != nil {
		h.storeError(w, err, "create")
		return
	}

	h.logger.Info("profile created", "profile", p.Name, "id", p.ID)
	writeJSON(w, http.StatusCreated, toResponse(p, h.activeID()))
}

// update handles PUT /api/profiles/{id}. Thresholds are applied over the
// stored ones and the version is bumped.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		h.storeError(w, err, "get")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if len(req.Thresholds) > 0 {
		th, err := thresholds.Decode(p.Thresholds, req.Thresholds)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p.Thresholds = th
	}

	if err := h.store.Profiles().Update(p); err != nil {
		h.storeError(w, err, "update")
		return
	}

	h.logger.Info("profile updated", "profile", p.Name, "version", p.Version)
	writeJSON(w, http.StatusOK, toResponse(p, h.activeID()))
}

// delete handles DELETE /api/profiles/{id}. Deleting the active profile
// clears the active_profile setting.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Profiles().Delete(id); err != nil {
		h.storeError(w, err, "delete")
		return
	}

	if h.activeID() == id {
		if err := h.store.Settings().Delete(store.SettingActiveProfile); err != nil {
			h.logger.Warn("clearing active profile", "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// activate handles PUT /api/profiles/{id}/activate. The live session, if
// any, restarts with the profile's thresholds.
func (h *ProfileHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		h.storeError(w, err, "get")
		return
	}

	var resp activateResponse
	resp.Active = p.ID
	if h.activator != nil {
		sessionID, err := h.activator.SetThresholds(p.Thresholds)
		if err != nil {
			h.storeError(w, err, "activate")
			return
		}
		resp.SessionID = sessionID
	}

	if err := h.store.Settings().Set(store.SettingActiveProfile, p.ID); err != nil {
		h.storeError(w, err, "activate")
		return
	}

	h.logger.Info("profile activated", "profile", p.Name, "version", p.Version)
	writeJSON(w, http.StatusOK, resp)
}
