package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/assistly/gatekeeper/internal/model"
)

const accessTokenColumns = `id, url_path, access_key_hash, expires_at, created_by, is_active, created_at`

// CreateAccessToken inserts a new access token. AccessKeyHash must already be
// set (use HashToken). The ID and CreatedAt fields are populated after insert.
// Callers deactivate the previous token first, inside the same transaction.
func (q *Queries) CreateAccessToken(ctx context.Context, tok *model.AccessToken) error {
	tok.CreatedAt = dbTime(time.Now())
	tok.ExpiresAt = dbTime(tok.ExpiresAt)

	id, err := q.insert(ctx, `INSERT INTO admin_access_tokens
		(url_path, access_key_hash, expires_at, created_by, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tok.URLPath, tok.AccessKeyHash, tok.ExpiresAt, tok.CreatedBy, tok.IsActive, tok.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert access token: %w", err)
	}
	tok.ID = id
	return nil
}

// DeactivateActiveAccessTokens marks every active access token inactive and
// returns how many rows changed.
func (q *Queries) DeactivateActiveAccessTokens(ctx context.Context) (int64, error) {
	n, err := q.exec(ctx,
		"UPDATE admin_access_tokens SET is_active = ? WHERE is_active = ?", false, true)
	if err != nil {
		return 0, fmt.Errorf("deactivate access tokens: %w", err)
	}
	return n, nil
}

// GetActiveAccessToken returns the current active token, or ErrNotFound.
func (q *Queries) GetActiveAccessToken(ctx context.Context) (*model.AccessToken, error) {
	var tok model.AccessToken
	err := q.get(ctx, &tok, "SELECT "+accessTokenColumns+
		" FROM admin_access_tokens WHERE is_active = ? ORDER BY id DESC LIMIT 1", true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active access token: %w", err)
	}
	return &tok, nil
}

// GetActiveAccessTokenByPath returns the active token whose secret path is
// urlPath, or ErrNotFound.
func (q *Queries) GetActiveAccessTokenByPath(ctx context.Context, urlPath string) (*model.AccessToken, error) {
	var tok model.AccessToken
	err := q.get(ctx, &tok, "SELECT "+accessTokenColumns+
		" FROM admin_access_tokens WHERE url_path = ? AND is_active = ?", urlPath, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get access token by path: %w", err)
	}
	return &tok, nil
}

// ListAccessTokens returns every access token, newest first. Inactive rows
// are kept as an audit trail.
func (q *Queries) ListAccessTokens(ctx context.Context) ([]model.AccessToken, error) {
	var toks []model.AccessToken
	if err := q.selectAll(ctx, &toks, "SELECT "+accessTokenColumns+
		" FROM admin_access_tokens ORDER BY id DESC"); err != nil {
		return nil, fmt.Errorf("list access tokens: %w", err)
	}
	return toks, nil
}

// CountActiveAccessTokens returns the number of active tokens.
func (q *Queries) CountActiveAccessTokens(ctx context.Context) (int, error) {
	var count int
	if err := q.get(ctx, &count,
		"SELECT COUNT(*) FROM admin_access_tokens WHERE is_active = ?", true); err != nil {
		return 0, fmt.Errorf("count active access tokens: %w", err)
	}
	return count, nil
}

// ListExpiringAccessTokens returns active tokens that expire strictly before
// the given instant, joined with the admin that created them.
func (q *Queries) ListExpiringAccessTokens(ctx context.Context, before time.Time) ([]model.ExpiringAccessToken, error) {
	var toks []model.ExpiringAccessToken
	err := q.selectAll(ctx, &toks, `SELECT
			t.id, t.url_path, t.access_key_hash, t.expires_at, t.created_by, t.is_active, t.created_at,
			COALESCE(a.email, '') AS creator_email,
			COALESCE(a.name, '') AS creator_name
		FROM admin_access_tokens t
		LEFT JOIN admin_users a ON a.id = t.created_by
		WHERE t.is_active = ? AND t.expires_at < ?
		ORDER BY t.expires_at`, true, dbTime(before))
	if err != nil {
		return nil, fmt.Errorf("list expiring access tokens: %w", err)
	}
	return toks, nil
}
