package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/notify"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu        sync.Mutex
	setup     []notify.SetupEmail
	updates   []notify.AccessUpdateEmail
	setupErr  error
	updateErr map[string]error // by recipient
}

func (m *fakeMailer) SendAdminSetupEmail(_ context.Context, e notify.SetupEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setupErr != nil {
		return m.setupErr
	}
	m.setup = append(m.setup, e)
	return nil
}

func (m *fakeMailer) SendAdminAccessUpdateEmail(_ context.Context, e notify.AccessUpdateEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[e.To]; err != nil {
		return err
	}
	m.updates = append(m.updates, e)
	return nil
}

var errMailDown = errors.New("mail relay down")

type testEnv struct {
	store    *config.Store
	clock    *FixedClock
	mailer   *fakeMailer
	settings *SettingsService
	access   *AccessTokenManager
	tokens   *TokenIssuer
	setup    *SetupInitiator
	admins   *AdminService
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := config.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := NewFixedClock(testNow)
	mailer := &fakeMailer{}
	links := Links{BaseURL: "https://admin.example.com/"}

	access := NewAccessTokenManager(store, clock, nil)
	tokens := NewTokenIssuer(store, mailer, clock, links, nil)
	return &testEnv{
		store:    store,
		clock:    clock,
		mailer:   mailer,
		settings: NewSettingsService(store, nil),
		access:   access,
		tokens:   tokens,
		setup:    NewSetupInitiator(store, access, tokens, mailer, clock, links, nil),
		admins:   NewAdminService(store, tokens, nil),
		auth:     NewAuthService(store, "test-secret-key-for-jwt", clock),
	}
}

func (e *testEnv) seedAdmin(t *testing.T, email string, super bool) *model.Admin {
	t.Helper()
	a := &model.Admin{Email: email, Name: email, IsActive: true, IsSuperAdmin: super}
	require.NoError(t, e.store.CreateAdmin(context.Background(), a))
	return a
}

func (e *testEnv) seedAdminWithPassword(t *testing.T, email, password string, super bool) *model.Admin {
	t.Helper()
	a := e.seedAdmin(t, email, super)
	hash, err := HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, e.store.SetAdminPassword(context.Background(), a.ID, hash))
	a.PasswordHash = hash
	return a
}

// counts captures row counts used to assert that an operation wrote nothing.
type counts struct {
	admins       int
	tokens       int
	activeTokens int
	settings     int
}

func (e *testEnv) counts(t *testing.T) counts {
	t.Helper()
	ctx := context.Background()
	admins, err := e.store.ListAdmins(ctx)
	require.NoError(t, err)
	toks, err := e.store.ListAccessTokens(ctx)
	require.NoError(t, err)
	active, err := e.store.CountActiveAccessTokens(ctx)
	require.NoError(t, err)
	settings, err := e.store.ListSettings(ctx)
	require.NoError(t, err)
	return counts{admins: len(admins), tokens: len(toks), activeTokens: active, settings: len(settings)}
}
