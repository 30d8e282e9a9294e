package model

import "time"

// TokenTypeAdminSetup marks a verification token that lets a newly created
// admin choose an initial password.
const TokenTypeAdminSetup = "admin_setup"

// VerificationToken is a short-lived, single-use token bound to an admin and a
// purpose. The raw token is only ever sent to the admin; the store keeps its
// SHA-256 hash.
type VerificationToken struct {
	ID        int64      `json:"id" db:"id"`
	AdminID   int64      `json:"admin_id" db:"admin_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	Type      string     `json:"type" db:"type"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Usable reports whether the token can still be consumed at now.
func (t *VerificationToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
