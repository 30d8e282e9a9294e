package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid or already used")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidInput       = errors.New("invalid input")

	ErrAdminNotFound  = errors.New("admin not found")
	ErrEmailTaken     = errors.New("email already in use")
	ErrLastSuperAdmin = errors.New("cannot remove the last active super admin")
	ErrSelfDelete     = errors.New("cannot delete your own account")
	ErrNoSuperAdmin   = errors.New("no active super admin")
)
