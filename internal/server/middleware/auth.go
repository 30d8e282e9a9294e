package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// GateTokenHeader carries the gate token issued by the secret access path.
const GateTokenHeader = "X-Gate-Token"

// Principal represents the authenticated admin making the request. It is
// rebuilt from the database on every request so role and status changes
// apply immediately.
type Principal struct {
	AdminID      int64
	Email        string
	IsSuperAdmin bool
}

// AdminLoader loads the current state of an admin account.
type AdminLoader interface {
	GetAdmin(ctx context.Context, id int64) (*model.Admin, error)
}

// Authenticate returns an HTTP middleware that validates the JWT Bearer token
// in the Authorization header and reloads the admin it names. Deleted and
// deactivated accounts are rejected with 401 even while their token is
// otherwise valid.
func Authenticate(authSvc *service.AuthService, admins AdminLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			p, err := authSvc.ValidateJWT(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			admin, err := admins.GetAdmin(r.Context(), p.AdminID)
			if err != nil || !admin.IsActive {
				writeAuthError(w, http.StatusUnauthorized, "Account is disabled or no longer exists")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, &Principal{
				AdminID:      admin.ID,
				Email:        admin.Email,
				IsSuperAdmin: admin.IsSuperAdmin,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSuperAdmin returns an HTTP middleware that enforces super-admin
// access. It must be used after Authenticate in the middleware chain.
func RequireSuperAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principal.IsSuperAdmin {
				writeAuthError(w, http.StatusForbidden, "Super admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireGate returns an HTTP middleware that admits only requests carrying
// a gate token bound to the currently active access token.
func RequireGate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(GateTokenHeader)
			if token == "" {
				writeAuthError(w, http.StatusForbidden, "Admin access path required")
				return
			}
			if err := authSvc.ValidateGateToken(r.Context(), token); err != nil {
				writeAuthError(w, http.StatusForbidden, "Admin access path expired or invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

// writeAuthError writes the standard error envelope. It is duplicated here
// to avoid an import cycle with the handler package.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
