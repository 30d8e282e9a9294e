package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/scheduler"
	"github.com/assistly/gatekeeper/internal/server/middleware"
	"github.com/assistly/gatekeeper/internal/service"
)

// Rotator issues a new access token on demand and distributes it.
type Rotator interface {
	RotateNow(ctx context.Context, actorID int64) (*scheduler.RenewalResult, error)
}

// AccessTokenHandler inspects and rotates the admin access token.
type AccessTokenHandler struct {
	access  *service.AccessTokenManager
	rotator Rotator
}

// NewAccessTokenHandler creates a new AccessTokenHandler.
func NewAccessTokenHandler(access *service.AccessTokenManager, rotator Rotator) *AccessTokenHandler {
	return &AccessTokenHandler{access: access, rotator: rotator}
}

// Show returns the active access token without its key.
// GET /api/admin/access-token
func (h *AccessTokenHandler) Show(w http.ResponseWriter, r *http.Request) {
	tok, err := h.access.ActiveToken(r.Context())
	if errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No active access token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read access token")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

type rotateResponse struct {
	TokenID    int64     `json:"token_id"`
	Path       string    `json:"path"`
	ExpiresAt  time.Time `json:"expires_at"`
	Recipients int       `json:"recipients"`
	Failed     int       `json:"failed"`
}

// Rotate replaces the access token immediately and emails the new
// credentials to every active admin. The key is not echoed in the response.
// POST /api/admin/access-token/rotate
func (h *AccessTokenHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	res, err := h.rotator.RotateNow(r.Context(), p.AdminID)
	if err != nil && (res == nil || res.Rotation == nil) {
		writeServiceError(w, err, "Failed to rotate access token")
		return
	}
	writeJSON(w, http.StatusOK, rotateResponse{
		TokenID:    res.Rotation.TokenID,
		Path:       res.Rotation.Path,
		ExpiresAt:  res.Rotation.ExpiresAt,
		Recipients: res.Recipients,
		Failed:     res.Failed,
	})
}
