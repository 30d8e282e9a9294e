package model

import "time"

// AccessToken is a secret URL path plus access key pair that gates
// reachability of the admin login surface. Only the SHA-256 hash of the key is
// persisted. At most one token is active at a time; rotated tokens are
// deactivated, never deleted.
type AccessToken struct {
	ID            int64     `json:"id" db:"id"`
	URLPath       string    `json:"url_path" db:"url_path"`
	AccessKeyHash string    `json:"-" db:"access_key_hash"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	CreatedBy     *int64    `json:"created_by,omitempty" db:"created_by"` // nil once the creator is deleted
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ExpiringAccessToken is an active access token joined with the admin that
// created it. Creator fields are empty when that admin no longer exists.
type ExpiringAccessToken struct {
	AccessToken
	CreatorEmail string `json:"creator_email" db:"creator_email"`
	CreatorName  string `json:"creator_name" db:"creator_name"`
}
