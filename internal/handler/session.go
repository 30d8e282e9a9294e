package handler

import (
	"net/http"

	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/service"
)

// SessionHandler issues and discards admin session tokens.
type SessionHandler struct {
	auth *service.AuthService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(auth *service.AuthService) *SessionHandler {
	return &SessionHandler{auth: auth}
}

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an admin user and returns a JWT session token. The
// route is only reachable with a valid gate token.
// POST /api/admin/session
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err, "Authentication error")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Logout invalidates the current session. Since JWTs are stateless, this is
// a no-op on the server side. Clients should discard their token.
// DELETE /api/admin/session
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true, Message: "Session invalidated"})
}
