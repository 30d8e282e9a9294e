package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/service"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDReplacesUnsafeClientID(t *testing.T) {
	for _, clientID := range []string{
		"forged\nlevel=ERROR msg=pwned",
		strings.Repeat("a", maxRequestIDLen+1),
	} {
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", clientID)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("X-Request-ID"); got == clientID || len(got) != 36 {
			t.Errorf("client ID %q: expected a generated UUID, got %q", clientID, got)
		}
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Authenticate middleware tests
// ---------------------------------------------------------------------------

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type authEnv struct {
	store *config.Store
	auth  *service.AuthService
	clock *service.FixedClock
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	clock := service.NewFixedClock(testNow)
	return &authEnv{store: store, auth: service.NewAuthService(store, "middleware-test-secret", clock), clock: clock}
}

func (e *authEnv) seedAdmin(t *testing.T, email string, super bool) *model.Admin {
	t.Helper()
	a := &model.Admin{Email: email, Name: email, IsActive: true, IsSuperAdmin: super}
	if err := e.store.CreateAdmin(context.Background(), a); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	return a
}

func (e *authEnv) bearer(t *testing.T, a *model.Admin) string {
	t.Helper()
	tok, err := e.auth.IssueJWT(context.Background(), a.ID, a.Email, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return "Bearer " + tok
}

func (e *authEnv) serve(t *testing.T, mw func(http.Handler) http.Handler, header, value string) (*httptest.ResponseRecorder, *Principal) {
	t.Helper()
	var seen *Principal
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("GET", "/api/admin/users", nil)
	if value != "" {
		req.Header.Set(header, value)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, seen
}

func TestAuthenticateAcceptsActiveAdmin(t *testing.T) {
	env := newAuthEnv(t)
	admin := env.seedAdmin(t, "root@example.com", true)

	rr, p := env.serve(t, Authenticate(env.auth, env.store), "Authorization", env.bearer(t, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if p == nil || p.AdminID != admin.ID || !p.IsSuperAdmin {
		t.Errorf("unexpected principal %+v", p)
	}
}

func TestAuthenticateRejectsMissingAndInvalidTokens(t *testing.T) {
	env := newAuthEnv(t)

	rr, _ := env.serve(t, Authenticate(env.auth, env.store), "Authorization", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rr.Code)
	}

	rr, _ = env.serve(t, Authenticate(env.auth, env.store), "Authorization", "Bearer not-a-jwt")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":401`) {
		t.Errorf("expected error envelope, got %s", rr.Body.String())
	}
}

func TestAuthenticateRejectsDeactivatedAdmin(t *testing.T) {
	env := newAuthEnv(t)
	env.seedAdmin(t, "root@example.com", true)
	admin := env.seedAdmin(t, "helper@example.com", false)
	bearer := env.bearer(t, admin)

	admin.IsActive = false
	if err := env.store.UpdateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}

	rr, _ := env.serve(t, Authenticate(env.auth, env.store), "Authorization", bearer)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthenticateRejectsDeletedAdmin(t *testing.T) {
	env := newAuthEnv(t)
	admin := env.seedAdmin(t, "helper@example.com", false)
	bearer := env.bearer(t, admin)
	if err := env.store.DeleteAdmin(context.Background(), admin.ID); err != nil {
		t.Fatalf("DeleteAdmin: %v", err)
	}

	rr, _ := env.serve(t, Authenticate(env.auth, env.store), "Authorization", bearer)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthenticateSeesDemotionImmediately(t *testing.T) {
	env := newAuthEnv(t)
	env.seedAdmin(t, "root@example.com", true)
	admin := env.seedAdmin(t, "second@example.com", true)
	bearer := env.bearer(t, admin)

	admin.IsSuperAdmin = false
	if err := env.store.UpdateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}

	chain := func(next http.Handler) http.Handler {
		return Authenticate(env.auth, env.store)(RequireSuperAdmin()(next))
	}
	rr, _ := env.serve(t, chain, "Authorization", bearer)
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// RequireSuperAdmin middleware tests
// ---------------------------------------------------------------------------

func TestRequireSuperAdmin(t *testing.T) {
	tests := []struct {
		name      string
		principal *Principal
		want      int
	}{
		{"super admin", &Principal{AdminID: 1, IsSuperAdmin: true}, http.StatusOK},
		{"regular admin", &Principal{AdminID: 2}, http.StatusForbidden},
		{"unauthenticated", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireSuperAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest("DELETE", "/api/admin/users/3", nil)
			if tt.principal != nil {
				req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, tt.principal))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// RequireGate middleware tests
// ---------------------------------------------------------------------------

func TestRequireGate(t *testing.T) {
	env := newAuthEnv(t)
	ctx := context.Background()
	admin := env.seedAdmin(t, "root@example.com", true)
	tok := &model.AccessToken{
		URLPath:       "/secure-admin-1234",
		AccessKeyHash: config.HashToken("key"),
		ExpiresAt:     testNow.Add(24 * time.Hour),
		CreatedBy:     &admin.ID,
		IsActive:      true,
	}
	if err := env.store.CreateAccessToken(ctx, tok); err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	gate, err := env.auth.IssueGateToken(ctx, tok.ID)
	if err != nil {
		t.Fatalf("IssueGateToken: %v", err)
	}

	rr, _ := env.serve(t, RequireGate(env.auth), GateTokenHeader, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("missing gate: expected 403, got %d", rr.Code)
	}

	rr, _ = env.serve(t, RequireGate(env.auth), GateTokenHeader, gate.Token)
	if rr.Code != http.StatusOK {
		t.Errorf("valid gate: expected 200, got %d", rr.Code)
	}

	// Rotating the access token invalidates outstanding gate tokens.
	err = env.store.WithTx(ctx, func(tx *config.Tx) error {
		if _, err := tx.DeactivateActiveAccessTokens(ctx); err != nil {
			return err
		}
		next := &model.AccessToken{
			URLPath:       "/secure-admin-5678",
			AccessKeyHash: config.HashToken("key2"),
			ExpiresAt:     testNow.Add(24 * time.Hour),
			CreatedBy:     &admin.ID,
			IsActive:      true,
		}
		return tx.CreateAccessToken(ctx, next)
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	rr, _ = env.serve(t, RequireGate(env.auth), GateTokenHeader, gate.Token)
	if rr.Code != http.StatusForbidden {
		t.Errorf("rotated gate: expected 403, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// GetPrincipal tests
// ---------------------------------------------------------------------------

func TestGetPrincipalWithValue(t *testing.T) {
	expected := &Principal{AdminID: 42, IsSuperAdmin: true}
	ctx := context.WithValue(context.Background(), AuthPrincipalKey, expected)

	got := GetPrincipal(ctx)
	if got == nil {
		t.Fatal("expected non-nil principal")
	}
	if got.AdminID != 42 {
		t.Errorf("expected AdminID 42, got %d", got.AdminID)
	}
	if !got.IsSuperAdmin {
		t.Error("expected IsSuperAdmin true")
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	got := GetPrincipal(context.Background())
	if got != nil {
		t.Error("expected nil principal from bare context")
	}
}

// ---------------------------------------------------------------------------
// Logger and rate limit tests
// ---------------------------------------------------------------------------

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))

	req := httptest.NewRequest("GET", "/api/admin/users/9", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	out := buf.String()
	if !strings.Contains(out, "status=404") || !strings.Contains(out, "level=WARN") {
		t.Errorf("unexpected log line: %s", out)
	}
	if !strings.Contains(out, "request_id="+rr.Header().Get("X-Request-ID")) {
		t.Errorf("expected request id in log line: %s", out)
	}
}

func TestLoggerRedactsSecretPath(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Get("/secure-admin-{code}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/secure-admin-5f3a9c?key=topsecret", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, secret := range []string{"5f3a9c", "topsecret"} {
		if strings.Contains(out, secret) {
			t.Errorf("log line leaks %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "path=/secure-admin-[redacted]") {
		t.Errorf("expected redacted path: %s", out)
	}
	if !strings.Contains(out, "route=/secure-admin-{code}") {
		t.Errorf("expected route pattern: %s", out)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/secure-admin-1234", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}
}
