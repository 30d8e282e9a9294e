package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
)

const (
	accessPathPrefix = "/secure-admin-"
	accessKeyBytes   = 16
)

// Rotation is the result of issuing a new access token. Key is the raw access
// key; it exists only here and in the emails sent from it.
type Rotation struct {
	TokenID   int64     `json:"token_id"`
	Path      string    `json:"path"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccessTokenManager owns the secret path + key pair that gates the admin
// login surface. Exactly one token is active after every rotation.
type AccessTokenManager struct {
	store  *config.Store
	clock  Clock
	logger *slog.Logger
}

func NewAccessTokenManager(store *config.Store, clock Clock, logger *slog.Logger) *AccessTokenManager {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessTokenManager{store: store, clock: clock, logger: logger}
}

// UpdateAdminAccessToken replaces the active access token with a new one
// created by adminID, valid for one renewal period. Nothing is written when
// the admin does not exist.
func (m *AccessTokenManager) UpdateAdminAccessToken(ctx context.Context, adminID int64, freq model.RenewalFrequency) (*Rotation, error) {
	if _, err := model.ParseRenewalFrequency(string(freq)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	expiresAt := freq.ExpiresAt(m.clock.Now())

	var rot *Rotation
	err := m.store.WithTx(ctx, func(tx *config.Tx) error {
		var err error
		rot, err = m.RotateTx(ctx, tx, adminID, expiresAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("admin access token rotated",
		"token_id", rot.TokenID,
		"path", rot.Path,
		"expires_at", rot.ExpiresAt,
		"frequency", string(freq),
	)
	return rot, nil
}

// RotateTx performs the rotation inside a transaction owned by the caller.
func (m *AccessTokenManager) RotateTx(ctx context.Context, tx *config.Tx, adminID int64, expiresAt time.Time) (*Rotation, error) {
	exists, err := tx.AdminExists(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: id %d", ErrAdminNotFound, adminID)
	}

	path, err := newAccessPath()
	if err != nil {
		return nil, err
	}
	key, err := newAccessKey()
	if err != nil {
		return nil, err
	}

	if _, err := tx.DeactivateActiveAccessTokens(ctx); err != nil {
		return nil, err
	}

	tok := &model.AccessToken{
		URLPath:       path,
		AccessKeyHash: config.HashToken(key),
		ExpiresAt:     expiresAt,
		CreatedBy:     &adminID,
		IsActive:      true,
	}
	if err := tx.CreateAccessToken(ctx, tok); err != nil {
		return nil, err
	}

	return &Rotation{
		TokenID:   tok.ID,
		Path:      path,
		Key:       key,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// ActiveToken returns the current access token, or config.ErrNotFound.
func (m *AccessTokenManager) ActiveToken(ctx context.Context) (*model.AccessToken, error) {
	return m.store.GetActiveAccessToken(ctx)
}

// VerifyAccess checks a secret path and key against the active token.
// Unknown paths and wrong keys both yield ErrAccessDenied; a matching but
// expired token yields ErrTokenExpired.
func (m *AccessTokenManager) VerifyAccess(ctx context.Context, path, key string) (*model.AccessToken, error) {
	if !strings.HasPrefix(path, accessPathPrefix) || key == "" {
		return nil, ErrAccessDenied
	}

	tok, err := m.store.GetActiveAccessTokenByPath(ctx, path)
	if errors.Is(err, config.ErrNotFound) {
		return nil, ErrAccessDenied
	}
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(config.HashToken(key)), []byte(tok.AccessKeyHash)) != 1 {
		return nil, ErrAccessDenied
	}
	if tok.Expired(m.clock.Now()) {
		return nil, ErrTokenExpired
	}
	return tok, nil
}

func newAccessPath() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("generate access path: %w", err)
	}
	return fmt.Sprintf("%s%04d", accessPathPrefix, n.Int64()), nil
}

func newAccessKey() (string, error) {
	b := make([]byte, accessKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
