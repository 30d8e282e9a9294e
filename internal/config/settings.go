package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/assistly/gatekeeper/internal/model"
)

// GetSetting returns the value stored under key, or ErrNotFound.
func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.get(ctx, &value, `SELECT value FROM admin_settings WHERE setting_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting inserts or replaces the value stored under key.
func (q *Queries) SetSetting(ctx context.Context, key, value string) error {
	if _, err := q.exec(ctx, q.dialect.upsert, key, value); err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// ListSettings returns all settings ordered by key.
func (q *Queries) ListSettings(ctx context.Context) ([]model.Setting, error) {
	var settings []model.Setting
	if err := q.selectAll(ctx, &settings,
		`SELECT setting_key, value FROM admin_settings ORDER BY setting_key`); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// DeleteSetting removes key. Deleting an absent key returns ErrNotFound.
func (q *Queries) DeleteSetting(ctx context.Context, key string) error {
	n, err := q.exec(ctx, `DELETE FROM admin_settings WHERE setting_key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
