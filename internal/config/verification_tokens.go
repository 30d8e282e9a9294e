package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/assistly/gatekeeper/internal/model"
)

// CreateVerificationToken inserts a token. TokenHash must already be set (use
// HashToken). The ID and CreatedAt fields are populated after insert.
func (q *Queries) CreateVerificationToken(ctx context.Context, tok *model.VerificationToken) error {
	tok.CreatedAt = dbTime(time.Now())
	tok.ExpiresAt = dbTime(tok.ExpiresAt)

	id, err := q.insert(ctx, `INSERT INTO verification_tokens
		(admin_id, token_hash, type, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		tok.AdminID, tok.TokenHash, tok.Type, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert verification token: %w", err)
	}
	tok.ID = id
	return nil
}

// ConsumeVerificationToken marks the token identified by tokenHash and
// tokenType as used and returns its admin ID. The update only matches an
// unused, unexpired token, so of two concurrent callers exactly one wins.
// ErrNotFound is returned when no usable token matched.
func (q *Queries) ConsumeVerificationToken(ctx context.Context, tokenHash, tokenType string, now time.Time) (int64, error) {
	now = dbTime(now)
	n, err := q.exec(ctx, `UPDATE verification_tokens SET used_at = ?
		WHERE token_hash = ? AND type = ? AND used_at IS NULL AND expires_at > ?`,
		now, tokenHash, tokenType, now)
	if err != nil {
		return 0, fmt.Errorf("consume verification token: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	var adminID int64
	if err := q.get(ctx, &adminID,
		"SELECT admin_id FROM verification_tokens WHERE token_hash = ?", tokenHash); err != nil {
		return 0, fmt.Errorf("read consumed token: %w", err)
	}
	return adminID, nil
}

// GetVerificationToken returns a token by hash regardless of its state, or
// ErrNotFound.
func (q *Queries) GetVerificationToken(ctx context.Context, tokenHash string) (*model.VerificationToken, error) {
	var tok model.VerificationToken
	err := q.get(ctx, &tok, `SELECT id, admin_id, token_hash, type, expires_at, used_at, created_at
		FROM verification_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verification token: %w", err)
	}
	return &tok, nil
}

// DeleteExpiredVerificationTokens removes tokens that expired before now and
// returns how many were deleted.
func (q *Queries) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	n, err := q.exec(ctx, "DELETE FROM verification_tokens WHERE expires_at <= ?", dbTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired verification tokens: %w", err)
	}
	return n, nil
}
