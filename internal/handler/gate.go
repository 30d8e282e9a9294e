package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/assistly/gatekeeper/internal/service"
)

// GateHandler serves the secret access path. Presenting the current path
// and key yields a short-lived gate token that unlocks the login endpoint.
type GateHandler struct {
	access *service.AccessTokenManager
	auth   *service.AuthService
	links  service.Links
	logger *slog.Logger
}

// NewGateHandler creates a new GateHandler.
func NewGateHandler(access *service.AccessTokenManager, auth *service.AuthService, links service.Links, logger *slog.Logger) *GateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GateHandler{access: access, auth: auth, links: links, logger: logger}
}

type gateResponse struct {
	GateToken string    `json:"gate_token"`
	ExpiresAt time.Time `json:"expires_at"`
	LoginURL  string    `json:"login_url"`
}

// Enter validates the access key for the requested secret path.
// GET /secure-admin-{code}?key=...
func (h *GateHandler) Enter(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get("X-Access-Key")
	}

	tok, err := h.access.VerifyAccess(r.Context(), r.URL.Path, key)
	if err != nil {
		// Unknown paths look exactly like missing pages.
		status, msg := classifyError(err, "Access check failed")
		if status == http.StatusForbidden {
			status, msg = http.StatusNotFound, "Not found"
		}
		if status == http.StatusInternalServerError {
			h.logger.Error("verify admin access", "error", err)
		}
		writeError(w, status, msg)
		return
	}

	gate, err := h.auth.IssueGateToken(r.Context(), tok.ID)
	if err != nil {
		h.logger.Error("issue gate token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue gate token")
		return
	}

	writeJSON(w, http.StatusOK, gateResponse{
		GateToken: gate.Token,
		ExpiresAt: gate.ExpiresAt,
		LoginURL:  h.links.Access("/admin/login"),
	})
}
