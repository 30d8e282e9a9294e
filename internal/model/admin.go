package model

import "time"

// Admin represents an administrative user of the platform console. Passwords
// are stored as bcrypt hashes. An empty hash means the account was created by
// setup or an invite and the owner has not chosen a password yet.
type Admin struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name         string     `json:"name" db:"name"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	IsSuperAdmin bool       `json:"is_super_admin" db:"is_super_admin"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the admin has completed password setup.
func (a *Admin) HasPassword() bool {
	return a.PasswordHash != ""
}

// AdminPatch carries a partial update to an admin account. Nil fields are
// left untouched.
type AdminPatch struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	IsSuperAdmin *bool   `json:"is_super_admin,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AdminPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.IsSuperAdmin == nil && p.IsActive == nil
}

// Apply copies the non-nil patch fields onto a.
func (p AdminPatch) Apply(a *Admin) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.IsSuperAdmin != nil {
		a.IsSuperAdmin = *p.IsSuperAdmin
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
}
