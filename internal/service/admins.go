package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
)

// InviteRequest describes a new admin account.
type InviteRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// AdminService manages admin accounts and guards the invariant that at least
// one active super-admin remains.
type AdminService struct {
	store  *config.Store
	tokens *TokenIssuer
	logger *slog.Logger
}

func NewAdminService(store *config.Store, tokens *TokenIssuer, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{store: store, tokens: tokens, logger: logger}
}

// List returns all admins.
func (s *AdminService) List(ctx context.Context) ([]model.Admin, error) {
	return s.store.ListAdmins(ctx)
}

// Get returns one admin or ErrAdminNotFound.
func (s *AdminService) Get(ctx context.Context, id int64) (*model.Admin, error) {
	admin, err := s.store.GetAdmin(ctx, id)
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrAdminNotFound
	}
	return admin, err
}

// Invite creates an admin without a password and emails a setup link. If the
// email cannot be sent the account is not created.
func (s *AdminService) Invite(ctx context.Context, req InviteRequest) (*model.Admin, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	admin := &model.Admin{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		IsActive:     true,
		IsSuperAdmin: req.IsSuperAdmin,
	}

	err = s.store.WithTx(ctx, func(tx *config.Tx) error {
		if err := tx.CreateAdmin(ctx, admin); err != nil {
			if errors.Is(err, config.ErrConflict) {
				return ErrEmailTaken
			}
			return err
		}
		_, err := s.tokens.IssueSetupForAdmin(ctx, tx.Queries, admin)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin invited", "admin_id", admin.ID, "email", admin.Email, "super_admin", admin.IsSuperAdmin)
	return admin, nil
}

// Update applies patch to admin id. Demoting or deactivating the last active
// super-admin fails with ErrLastSuperAdmin and changes nothing.
func (s *AdminService) Update(ctx context.Context, id int64, patch model.AdminPatch) (*model.Admin, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if patch.Email != nil {
		email, err := NormalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		patch.Email = &email
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}

	var admin *model.Admin
	err := s.store.WithTx(ctx, func(tx *config.Tx) error {
		var err error
		admin, err = tx.GetAdmin(ctx, id)
		if errors.Is(err, config.ErrNotFound) {
			return ErrAdminNotFound
		}
		if err != nil {
			return err
		}

		wasGuardian := admin.IsActive && admin.IsSuperAdmin
		patch.Apply(admin)
		if wasGuardian && !(admin.IsActive && admin.IsSuperAdmin) {
			if err := ensureAnotherSuperAdmin(ctx, tx); err != nil {
				return err
			}
		}

		if err := tx.UpdateAdmin(ctx, admin); err != nil {
			if errors.Is(err, config.ErrConflict) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin updated", "admin_id", admin.ID)
	return admin, nil
}

// Delete removes admin id on behalf of actorID. Admins cannot delete
// themselves and the last active super-admin cannot be deleted.
func (s *AdminService) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfDelete
	}

	err := s.store.WithTx(ctx, func(tx *config.Tx) error {
		admin, err := tx.GetAdmin(ctx, id)
		if errors.Is(err, config.ErrNotFound) {
			return ErrAdminNotFound
		}
		if err != nil {
			return err
		}
		if admin.IsActive && admin.IsSuperAdmin {
			if err := ensureAnotherSuperAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return tx.DeleteAdmin(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("admin deleted", "admin_id", id, "actor_id", actorID)
	return nil
}

// ensureAnotherSuperAdmin fails unless more than one active super-admin
// exists, i.e. one may be removed. The rows stay locked until the
// transaction ends so concurrent demotions cannot both pass.
func ensureAnotherSuperAdmin(ctx context.Context, tx *config.Tx) error {
	ids, err := tx.LockActiveSuperAdmins(ctx)
	if err != nil {
		return err
	}
	if len(ids) <= 1 {
		return ErrLastSuperAdmin
	}
	return nil
}
