package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/assistly/gatekeeper/internal/model"
)

const adminColumns = `id, email, password_hash, name, is_active, is_super_admin,
	last_login_at, created_at, updated_at`

// CreateAdmin inserts a new admin account. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert. A duplicate email returns
// ErrConflict.
func (q *Queries) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	now := dbTime(time.Now())
	admin.CreatedAt = now
	admin.UpdatedAt = now

	id, err := q.insert(ctx, `INSERT INTO admin_users
		(email, password_hash, name, is_active, is_super_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		admin.Email, admin.PasswordHash, admin.Name, admin.IsActive, admin.IsSuperAdmin,
		admin.CreatedAt, admin.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	admin.ID = id
	return nil
}

// GetAdmin returns an admin by ID.
func (q *Queries) GetAdmin(ctx context.Context, id int64) (*model.Admin, error) {
	var admin model.Admin
	if err := q.get(ctx, &admin, "SELECT "+adminColumns+" FROM admin_users WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// GetAdminByEmail returns an admin by email address.
func (q *Queries) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var admin model.Admin
	if err := q.get(ctx, &admin, "SELECT "+adminColumns+" FROM admin_users WHERE email = ?", email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns all admin accounts ordered by ID.
func (q *Queries) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := q.selectAll(ctx, &admins, "SELECT "+adminColumns+" FROM admin_users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// ListActiveAdmins returns every active admin. These are the recipients of
// access update emails.
func (q *Queries) ListActiveAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := q.selectAll(ctx, &admins,
		"SELECT "+adminColumns+" FROM admin_users WHERE is_active = ? ORDER BY id", true); err != nil {
		return nil, fmt.Errorf("list active admins: %w", err)
	}
	return admins, nil
}

// UpdateAdmin writes the mutable profile fields of admin (email, name,
// is_active, is_super_admin) and bumps UpdatedAt.
func (q *Queries) UpdateAdmin(ctx context.Context, admin *model.Admin) error {
	admin.UpdatedAt = dbTime(time.Now())

	n, err := q.exec(ctx, `UPDATE admin_users SET
		email = ?, name = ?, is_active = ?, is_super_admin = ?, updated_at = ?
		WHERE id = ?`,
		admin.Email, admin.Name, admin.IsActive, admin.IsSuperAdmin, admin.UpdatedAt, admin.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update admin: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAdmin removes an admin account. Access tokens it created keep their
// rows with created_by cleared; its verification tokens are removed.
func (q *Queries) DeleteAdmin(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, "DELETE FROM admin_users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAdminPassword stores a new bcrypt hash for the admin.
func (q *Queries) SetAdminPassword(ctx context.Context, id int64, passwordHash string) error {
	n, err := q.exec(ctx,
		"UPDATE admin_users SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, dbTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set admin password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAdminLastLogin sets the last_login_at timestamp for an admin.
func (q *Queries) UpdateAdminLastLogin(ctx context.Context, id int64) error {
	now := dbTime(time.Now())
	n, err := q.exec(ctx,
		"UPDATE admin_users SET last_login_at = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveSuperAdmins returns the number of admins that are both active and
// super-admins.
func (q *Queries) CountActiveSuperAdmins(ctx context.Context) (int, error) {
	var count int
	if err := q.get(ctx, &count,
		"SELECT COUNT(*) FROM admin_users WHERE is_active = ? AND is_super_admin = ?", true, true); err != nil {
		return 0, fmt.Errorf("count super admins: %w", err)
	}
	return count, nil
}

// FindActiveSuperAdmin returns the oldest active super-admin, or ErrNotFound
// when none exists.
func (q *Queries) FindActiveSuperAdmin(ctx context.Context) (*model.Admin, error) {
	var admin model.Admin
	err := q.get(ctx, &admin, "SELECT "+adminColumns+` FROM admin_users
		WHERE is_active = ? AND is_super_admin = ? ORDER BY id LIMIT 1`, true, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find super admin: %w", err)
	}
	return &admin, nil
}

// AdminExists reports whether an admin with the given ID exists.
func (q *Queries) AdminExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := q.get(ctx, &count, "SELECT COUNT(*) FROM admin_users WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("check admin exists: %w", err)
	}
	return count > 0, nil
}

// HasAnyAdmin reports whether at least one admin account exists.
func (q *Queries) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := q.get(ctx, &count, "SELECT COUNT(*) FROM admin_users"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// LockActiveSuperAdmins returns the IDs of active super-admins, locking those
// rows until the surrounding transaction ends on databases that support row
// locks. SQLite serializes writers and needs no lock.
func (q *Queries) LockActiveSuperAdmins(ctx context.Context) ([]int64, error) {
	query := "SELECT id FROM admin_users WHERE is_active = ? AND is_super_admin = ? ORDER BY id"
	if q.dialect.name != DriverSQLite {
		query += " FOR UPDATE"
	}
	var ids []int64
	if err := q.selectAll(ctx, &ids, query, true, true); err != nil {
		return nil, fmt.Errorf("lock super admins: %w", err)
	}
	return ids, nil
}
