package handler

import (
	"log/slog"
	"net/http"

	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/server/middleware"
	"github.com/assistly/gatekeeper/internal/service"
)

// AdminUsersHandler serves the /api/admin/users endpoints.
type AdminUsersHandler struct {
	admins *service.AdminService
	logger *slog.Logger
}

// NewAdminUsersHandler creates a new AdminUsersHandler.
func NewAdminUsersHandler(admins *service.AdminService, logger *slog.Logger) *AdminUsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminUsersHandler{admins: admins, logger: logger}
}

// List returns every admin account.
// GET /api/admin/users
func (h *AdminUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	admins, err := h.admins.List(r.Context())
	if err != nil {
		h.logger.Error("list admins", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list admins")
		return
	}
	if admins == nil {
		admins = []model.Admin{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: admins,
		Meta:     &model.ResponseMeta{Count: len(admins)},
	})
}

// Get returns a single admin.
// GET /api/admin/users/{id}
func (h *AdminUsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid admin id")
		return
	}
	admin, err := h.admins.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get admin")
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

// Me returns the authenticated admin.
// GET /api/admin/me
func (h *AdminUsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	admin, err := h.admins.Get(r.Context(), p.AdminID)
	if err != nil {
		writeServiceError(w, err, "Failed to get admin")
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

// Create invites a new admin. The account has no password until the invitee
// redeems the emailed setup link.
// POST /api/admin/users
func (h *AdminUsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.InviteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	admin, err := h.admins.Invite(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "Failed to create admin")
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

// Update applies a partial update to an admin.
// PATCH /api/admin/users/{id}
func (h *AdminUsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid admin id")
		return
	}

	var patch model.AdminPatch
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	admin, err := h.admins.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err, "Failed to update admin")
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

// Delete removes an admin. Deleting yourself or the last active super-admin
// is rejected with 400.
// DELETE /api/admin/users/{id}
func (h *AdminUsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid admin id")
		return
	}
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.admins.Delete(r.Context(), p.AdminID, id); err != nil {
		writeServiceError(w, err, "Failed to delete admin")
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true, Message: "Admin deleted"})
}
