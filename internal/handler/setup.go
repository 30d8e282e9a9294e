package handler

import (
	"net/http"

	"github.com/assistly/gatekeeper/internal/service"
)

// SetupHandler exposes the setup state and redeems setup tokens.
type SetupHandler struct {
	settings *service.SettingsService
	tokens   *service.TokenIssuer
}

// NewSetupHandler creates a new SetupHandler.
func NewSetupHandler(settings *service.SettingsService, tokens *service.TokenIssuer) *SetupHandler {
	return &SetupHandler{settings: settings, tokens: tokens}
}

// Status reports the bootstrap state.
// GET /api/admin/setup/status
func (h *SetupHandler) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.settings.SetupState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read setup state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state.Label()})
}

type completeSetupRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Complete redeems a setup token and sets the admin's password. Expired
// tokens are reported with 410 so the client can offer a resend.
// POST /api/admin/setup/complete
func (h *SetupHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeSetupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	admin, err := h.tokens.CompleteSetup(r.Context(), req.Token, req.Password)
	if err != nil {
		writeServiceError(w, err, "Failed to complete setup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"admin":   admin,
	})
}
