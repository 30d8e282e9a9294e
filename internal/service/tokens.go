package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/notify"
)

// SetupTokenTTL is how long a setup link stays valid.
const SetupTokenTTL = 24 * time.Hour

// SetupToken is a freshly issued setup token. Raw is returned once and only
// its hash is stored.
type SetupToken struct {
	Raw       string
	ExpiresAt time.Time
}

// TokenIssuer issues and redeems single-use admin setup tokens.
type TokenIssuer struct {
	store  *config.Store
	mailer notify.Mailer
	clock  Clock
	links  Links
	logger *slog.Logger
}

func NewTokenIssuer(store *config.Store, mailer notify.Mailer, clock Clock, links Links, logger *slog.Logger) *TokenIssuer {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenIssuer{store: store, mailer: mailer, clock: clock, links: links, logger: logger}
}

// CreateSetupToken stores a new admin_setup token for adminID using q, which
// may be the store or a caller's transaction.
func (i *TokenIssuer) CreateSetupToken(ctx context.Context, q *config.Queries, adminID int64) (*SetupToken, error) {
	if q == nil {
		q = i.store.Queries
	}
	raw := uuid.NewString()
	tok := &model.VerificationToken{
		AdminID:   adminID,
		TokenHash: config.HashToken(raw),
		Type:      model.TokenTypeAdminSetup,
		ExpiresAt: i.clock.Now().Add(SetupTokenTTL),
	}
	if err := q.CreateVerificationToken(ctx, tok); err != nil {
		return nil, err
	}
	return &SetupToken{Raw: raw, ExpiresAt: tok.ExpiresAt}, nil
}

// IssueSetupForAdmin creates a setup token for admin and emails the setup
// link. The email carries no gate credentials. When q is a transaction, a
// send failure returned here should roll it back.
func (i *TokenIssuer) IssueSetupForAdmin(ctx context.Context, q *config.Queries, admin *model.Admin) (*SetupToken, error) {
	tok, err := i.CreateSetupToken(ctx, q, admin.ID)
	if err != nil {
		return nil, err
	}
	if err := i.mailer.SendAdminSetupEmail(ctx, notify.SetupEmail{
		To:             admin.Email,
		Name:           admin.Name,
		SetupURL:       i.links.Setup(tok.Raw),
		SetupExpiresAt: tok.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	return tok, nil
}

// CompleteSetup redeems a setup token and sets the admin's password. When the
// token belongs to the admin_email admin and bootstrap setup is in progress,
// setup is marked completed in the same transaction. Invitees redeeming
// their own links leave the setup state alone.
func (i *TokenIssuer) CompleteSetup(ctx context.Context, rawToken, password string) (*model.Admin, error) {
	if rawToken == "" {
		return nil, ErrTokenInvalid
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := i.clock.Now()
	tokenHash := config.HashToken(rawToken)
	var admin *model.Admin

	err = i.store.WithTx(ctx, func(tx *config.Tx) error {
		adminID, err := tx.ConsumeVerificationToken(ctx, tokenHash, model.TokenTypeAdminSetup, now)
		if errors.Is(err, config.ErrNotFound) {
			return i.rejection(ctx, tx, tokenHash, now)
		}
		if err != nil {
			return err
		}

		if err := tx.SetAdminPassword(ctx, adminID, hash); err != nil {
			if errors.Is(err, config.ErrNotFound) {
				return ErrAdminNotFound
			}
			return err
		}

		bootstrap, err := isBootstrapAdmin(ctx, tx, adminID)
		if err != nil {
			return err
		}
		if bootstrap {
			state, err := readSetupState(ctx, tx.Queries)
			if err != nil {
				return err
			}
			if state == model.SetupStateInProgress {
				if err := tx.SetSetting(ctx, model.SettingSetupCompleted, model.SetupStateCompleted.String()); err != nil {
					return err
				}
			}
		}

		admin, err = tx.GetAdmin(ctx, adminID)
		return err
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("admin setup completed", "admin_id", admin.ID, "email", admin.Email)
	return admin, nil
}

// isBootstrapAdmin reports whether adminID is the admin named by the
// admin_email setting.
func isBootstrapAdmin(ctx context.Context, tx *config.Tx, adminID int64) (bool, error) {
	email, err := readAdminEmail(ctx, tx.Queries)
	if errors.Is(err, config.ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	admin, err := tx.GetAdminByEmail(ctx, email)
	if errors.Is(err, config.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return admin.ID == adminID, nil
}

// rejection explains why a token could not be consumed.
func (i *TokenIssuer) rejection(ctx context.Context, tx *config.Tx, tokenHash string, now time.Time) error {
	tok, err := tx.GetVerificationToken(ctx, tokenHash)
	if errors.Is(err, config.ErrNotFound) {
		return ErrTokenInvalid
	}
	if err != nil {
		return err
	}
	if tok.UsedAt == nil && tok.Type == model.TokenTypeAdminSetup && !now.Before(tok.ExpiresAt) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

// PurgeExpired deletes verification tokens past their expiry.
func (i *TokenIssuer) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := i.store.DeleteExpiredVerificationTokens(ctx, i.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		i.logger.Info("purged expired verification tokens", "count", n)
	}
	return n, nil
}

// Lookup reports the state of a raw setup token without consuming it.
func (i *TokenIssuer) Lookup(ctx context.Context, rawToken string) (*model.VerificationToken, error) {
	tok, err := i.store.GetVerificationToken(ctx, config.HashToken(rawToken))
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup setup token: %w", err)
	}
	return tok, nil
}
