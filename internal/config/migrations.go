package config

import (
	"fmt"
	"strings"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS admin_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_super_admin INTEGER NOT NULL DEFAULT 0,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS admin_settings (
		setting_key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS admin_access_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url_path TEXT NOT NULL,
		access_key_hash TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		created_by INTEGER REFERENCES admin_users(id) ON DELETE SET NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS verification_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		admin_id INTEGER NOT NULL REFERENCES admin_users(id) ON DELETE CASCADE,
		token_hash TEXT UNIQUE NOT NULL,
		type TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		used_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	// At most one active access token.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_admin_access_tokens_active
		ON admin_access_tokens(is_active) WHERE is_active = 1`,
	`CREATE INDEX IF NOT EXISTS idx_admin_access_tokens_expires ON admin_access_tokens(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_tokens_admin ON verification_tokens(admin_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS admin_users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS admin_settings (
		setting_key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS admin_access_tokens (
		id BIGSERIAL PRIMARY KEY,
		url_path TEXT NOT NULL,
		access_key_hash TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_by BIGINT REFERENCES admin_users(id) ON DELETE SET NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS verification_tokens (
		id BIGSERIAL PRIMARY KEY,
		admin_id BIGINT NOT NULL REFERENCES admin_users(id) ON DELETE CASCADE,
		token_hash TEXT UNIQUE NOT NULL,
		type TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_admin_access_tokens_active
		ON admin_access_tokens(is_active) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_admin_access_tokens_expires ON admin_access_tokens(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_tokens_admin ON verification_tokens(admin_id)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
// It also lacks partial indexes; the single-active-token rule is upheld by
// the rotation transaction alone.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS admin_users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL DEFAULT '',
		name VARCHAR(255) NOT NULL DEFAULT '',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		is_super_admin TINYINT(1) NOT NULL DEFAULT 0,
		last_login_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_admin_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS admin_settings (
		setting_key VARCHAR(191) NOT NULL PRIMARY KEY,
		value TEXT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS admin_access_tokens (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		url_path VARCHAR(64) NOT NULL,
		access_key_hash CHAR(64) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		created_by BIGINT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_admin_access_tokens_active (is_active),
		KEY idx_admin_access_tokens_expires (expires_at),
		CONSTRAINT fk_admin_access_tokens_creator FOREIGN KEY (created_by)
			REFERENCES admin_users(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS verification_tokens (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		admin_id BIGINT NOT NULL,
		token_hash CHAR(64) NOT NULL,
		type VARCHAR(32) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		used_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_verification_tokens_hash (token_hash),
		KEY idx_verification_tokens_admin (admin_id),
		CONSTRAINT fk_verification_tokens_admin FOREIGN KEY (admin_id)
			REFERENCES admin_users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func (s *Store) migrate() error {
	for _, m := range s.dialect.schema {
		if _, err := s.db.Exec(m); err != nil {
			// Re-running a migration against an existing object is a no-op.
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") ||
		strings.Contains(msg, "already exists")
}
