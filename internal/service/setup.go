package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/notify"
)

// BootstrapAccessTTL is the validity of the access token created by setup.
const BootstrapAccessTTL = 30 * 24 * time.Hour

// SetupResult describes what SetupInitialAdmin did.
type SetupResult int

const (
	// SetupFailed means an error rolled the attempt back.
	SetupFailed SetupResult = iota
	// SetupCreated means the admin, tokens and email were all produced.
	SetupCreated
	// SetupAlreadyCompleted means the first admin finished setup earlier.
	SetupAlreadyCompleted
	// SetupAlreadyInProgress means a setup email is outstanding.
	SetupAlreadyInProgress
	// SetupMisconfigured means admin_email is unset or not a valid address.
	SetupMisconfigured
)

func (r SetupResult) String() string {
	switch r {
	case SetupCreated:
		return "created"
	case SetupAlreadyCompleted:
		return "already_completed"
	case SetupAlreadyInProgress:
		return "already_in_progress"
	case SetupMisconfigured:
		return "misconfigured"
	default:
		return "failed"
	}
}

// SetupInitiator bootstraps the first super-admin from the admin_email
// setting.
type SetupInitiator struct {
	store  *config.Store
	access *AccessTokenManager
	tokens *TokenIssuer
	mailer notify.Mailer
	clock  Clock
	links  Links
	logger *slog.Logger
}

func NewSetupInitiator(store *config.Store, access *AccessTokenManager, tokens *TokenIssuer, mailer notify.Mailer, clock Clock, links Links, logger *slog.Logger) *SetupInitiator {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SetupInitiator{
		store:  store,
		access: access,
		tokens: tokens,
		mailer: mailer,
		clock:  clock,
		links:  links,
		logger: logger,
	}
}

// SetupInitialAdmin creates the bootstrap admin, its gate credentials and a
// setup token, and emails them, all in one transaction. It is a no-op once
// setup is completed and also while it is in_progress, unlike a plain
// "setup_completed != true" check; use ResendSetup to replace an outstanding
// setup email.
func (s *SetupInitiator) SetupInitialAdmin(ctx context.Context) (SetupResult, error) {
	return s.run(ctx, false)
}

// ResendSetup repeats the bootstrap while it is in progress, replacing the
// outstanding credentials. Completed setups are left alone.
func (s *SetupInitiator) ResendSetup(ctx context.Context) (SetupResult, error) {
	return s.run(ctx, true)
}

// errSetupNoop aborts the transaction without reporting a failure.
var errSetupNoop = errors.New("setup no-op")

func (s *SetupInitiator) run(ctx context.Context, resend bool) (SetupResult, error) {
	result := SetupFailed
	var adminEmail string

	err := s.store.WithTx(ctx, func(tx *config.Tx) error {
		state, err := readSetupState(ctx, tx.Queries)
		if err != nil {
			return err
		}
		switch {
		case state == model.SetupStateCompleted:
			result = SetupAlreadyCompleted
			return errSetupNoop
		case state == model.SetupStateInProgress && !resend:
			result = SetupAlreadyInProgress
			return errSetupNoop
		}

		adminEmail, err = readAdminEmail(ctx, tx.Queries)
		if errors.Is(err, config.ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			result = SetupMisconfigured
			return errSetupNoop
		}
		if err != nil {
			return err
		}

		admin, err := s.ensureAdmin(ctx, tx, adminEmail)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		rot, err := s.access.RotateTx(ctx, tx, admin.ID, now.Add(BootstrapAccessTTL))
		if err != nil {
			return fmt.Errorf("create access token: %w", err)
		}

		setupTok, err := s.tokens.CreateSetupToken(ctx, tx.Queries, admin.ID)
		if err != nil {
			return fmt.Errorf("create setup token: %w", err)
		}

		if err := s.mailer.SendAdminSetupEmail(ctx, notify.SetupEmail{
			To:              admin.Email,
			Name:            admin.Name,
			SetupURL:        s.links.Setup(setupTok.Raw),
			SetupExpiresAt:  setupTok.ExpiresAt,
			AccessURL:       s.links.Access(rot.Path),
			AccessKey:       rot.Key,
			AccessExpiresAt: rot.ExpiresAt,
		}); err != nil {
			return err
		}

		if err := tx.SetSetting(ctx, model.SettingSetupCompleted, model.SetupStateInProgress.String()); err != nil {
			return err
		}
		result = SetupCreated
		return nil
	})

	switch {
	case errors.Is(err, errSetupNoop):
		if result == SetupMisconfigured {
			s.logger.Error("admin setup skipped: admin_email setting is missing or not a valid address")
		} else {
			s.logger.Debug("admin setup not needed", "result", result.String())
		}
		return result, nil
	case err != nil:
		s.logger.Error("admin setup failed", "error", err)
		return SetupFailed, fmt.Errorf("setup initial admin: %w", err)
	}

	s.logger.Info("admin setup initiated", "email", adminEmail, "resend", resend)
	return result, nil
}

// ensureAdmin finds the admin by email or creates it. The bootstrap admin is
// always an active super-admin.
func (s *SetupInitiator) ensureAdmin(ctx context.Context, tx *config.Tx, email string) (*model.Admin, error) {
	admin, err := tx.GetAdminByEmail(ctx, email)
	if errors.Is(err, config.ErrNotFound) {
		name, _ := tx.GetSetting(ctx, model.SettingAdminName)
		admin = &model.Admin{
			Email:        email,
			Name:         name,
			IsActive:     true,
			IsSuperAdmin: true,
		}
		if err := tx.CreateAdmin(ctx, admin); err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		return admin, nil
	}
	if err != nil {
		return nil, err
	}

	if !admin.IsActive || !admin.IsSuperAdmin {
		admin.IsActive = true
		admin.IsSuperAdmin = true
		if err := tx.UpdateAdmin(ctx, admin); err != nil {
			return nil, fmt.Errorf("promote admin: %w", err)
		}
	}
	return admin, nil
}
