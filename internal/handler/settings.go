package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/service"
)

// SettingsHandler reads and writes the admin settings store.
type SettingsHandler struct {
	settings *service.SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// List returns every stored setting.
// GET /api/admin/settings
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settings")
		return
	}
	if settings == nil {
		settings = []model.Setting{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: settings,
		Meta:     &model.ResponseMeta{Count: len(settings)},
	})
}

type settingRequest struct {
	Value string `json:"value"`
}

// Put stores a setting. Known keys are validated.
// PUT /api/admin/settings/{key}
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req settingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		writeServiceError(w, err, "Failed to save setting")
		return
	}

	value, err := h.settings.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, err, "Failed to read setting")
		return
	}
	writeJSON(w, http.StatusOK, model.Setting{Key: key, Value: value})
}
