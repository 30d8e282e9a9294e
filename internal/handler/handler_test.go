package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/notify"
	"github.com/assistly/gatekeeper/internal/scheduler"
	"github.com/assistly/gatekeeper/internal/server/middleware"
	"github.com/assistly/gatekeeper/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingMailer struct {
	mu      sync.Mutex
	setup   []notify.SetupEmail
	updates []notify.AccessUpdateEmail
}

func (m *recordingMailer) SendAdminSetupEmail(_ context.Context, e notify.SetupEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setup = append(m.setup, e)
	return nil
}

func (m *recordingMailer) SendAdminAccessUpdateEmail(_ context.Context, e notify.AccessUpdateEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, e)
	return nil
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store    *config.Store
	clock    *service.FixedClock
	mailer   *recordingMailer
	authSvc  *service.AuthService
	access   *service.AccessTokenManager
	tokens   *service.TokenIssuer
	settings *service.SettingsService
	router   chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory config store
// and a Chi router with the admin routes and auth middleware mounted.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := service.NewFixedClock(testNow)
	mailer := &recordingMailer{}
	links := service.Links{BaseURL: "https://admin.example.com"}

	authSvc := service.NewAuthService(store, testJWTSecret, clock)
	settings := service.NewSettingsService(store, nil)
	access := service.NewAccessTokenManager(store, clock, nil)
	tokens := service.NewTokenIssuer(store, mailer, clock, links, nil)
	admins := service.NewAdminService(store, tokens, nil)
	sched := scheduler.New(scheduler.Deps{
		Store:    store,
		Settings: settings,
		Access:   access,
		Tokens:   tokens,
		Mailer:   mailer,
		Clock:    clock,
		Links:    links,
	}, scheduler.Config{})

	users := NewAdminUsersHandler(admins, nil)
	session := NewSessionHandler(authSvc)
	gate := NewGateHandler(access, authSvc, links, nil)
	setup := NewSetupHandler(settings, tokens)
	accessHandler := NewAccessTokenHandler(access, sched)
	settingsHandler := NewSettingsHandler(settings)

	r := chi.NewRouter()
	r.Get("/secure-admin-{code}", gate.Enter)
	r.Route("/api/admin", func(r chi.Router) {
		r.With(middleware.RequireGate(authSvc)).Post("/session", session.Login)
		r.Delete("/session", session.Logout)
		r.Get("/setup/status", setup.Status)
		r.Post("/setup/complete", setup.Complete)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(authSvc, store))
			r.Get("/me", users.Me)
			r.Get("/users", users.List)
			r.Get("/users/{id}", users.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSuperAdmin())
				r.Post("/users", users.Create)
				r.Patch("/users/{id}", users.Update)
				r.Delete("/users/{id}", users.Delete)
				r.Get("/access-token", accessHandler.Show)
				r.Post("/access-token/rotate", accessHandler.Rotate)
				r.Get("/settings", settingsHandler.List)
				r.Put("/settings/{key}", settingsHandler.Put)
			})
		})
	})

	return &testEnv{
		store:    store,
		clock:    clock,
		mailer:   mailer,
		authSvc:  authSvc,
		access:   access,
		tokens:   tokens,
		settings: settings,
		router:   r,
	}
}

// seedAdmin creates an active admin with the test password.
func (e *testEnv) seedAdmin(t *testing.T, email string, super bool) *model.Admin {
	t.Helper()
	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &model.Admin{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test Admin",
		IsActive:     true,
		IsSuperAdmin: super,
	}
	if err := e.store.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	return admin
}

// tokenFor issues a session token for admin.
func (e *testEnv) tokenFor(t *testing.T, admin *model.Admin) string {
	t.Helper()
	tok, err := e.authSvc.IssueJWT(context.Background(), admin.ID, admin.Email, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return tok
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// doAs executes a request authenticated as admin.
func (e *testEnv) doAs(t *testing.T, admin *model.Admin, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, "Authorization", "Bearer "+e.tokenFor(t, admin))
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
