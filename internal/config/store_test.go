package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/assistly/gatekeeper/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAdmin(t *testing.T, s *Store, email string, super bool) *model.Admin {
	t.Helper()
	a := &model.Admin{Email: email, Name: "Admin", IsActive: true, IsSuperAdmin: super}
	if err := s.CreateAdmin(context.Background(), a); err != nil {
		t.Fatalf("CreateAdmin(%s): %v", email, err)
	}
	return a
}

func TestNewStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SetSetting(context.Background(), "k", "v"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, "gatekeeper.db")); err != nil {
		t.Fatalf("expected database file: %v", err)
	}

	// Reopening runs migrations again and keeps data.
	s2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, err := s2.GetSetting(context.Background(), "k")
	if err != nil || v != "v" {
		t.Fatalf("GetSetting after reopen = %q, %v", v, err)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, model.SettingSetupCompleted); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing setting, got %v", err)
	}

	if err := s.SetSetting(ctx, model.SettingSetupCompleted, "false"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, model.SettingSetupCompleted, "in_progress"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, err := s.GetSetting(ctx, model.SettingSetupCompleted)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "in_progress" {
		t.Errorf("got %q, want %q", v, "in_progress")
	}

	// No validation at this layer.
	if err := s.SetSetting(ctx, model.SettingRenewalFrequency, "fortnightly"); err != nil {
		t.Fatalf("SetSetting arbitrary value: %v", err)
	}

	list, err := s.ListSettings(ctx)
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d settings, want 2", len(list))
	}
	if list[0].Key != model.SettingRenewalFrequency {
		t.Errorf("settings not ordered by key: %+v", list)
	}

	if err := s.DeleteSetting(ctx, model.SettingRenewalFrequency); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if err := s.DeleteSetting(ctx, model.SettingRenewalFrequency); err != ErrNotFound {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestAdminCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	has, err := s.HasAnyAdmin(ctx)
	if err != nil || has {
		t.Fatalf("HasAnyAdmin on empty store = %v, %v", has, err)
	}

	admin := seedAdmin(t, s, "root@example.com", true)
	if admin.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}
	if admin.HasPassword() {
		t.Error("new admin should not have a password")
	}

	got, err := s.GetAdmin(ctx, admin.ID)
	if err != nil {
		t.Fatalf("GetAdmin: %v", err)
	}
	if got.Email != "root@example.com" || !got.IsSuperAdmin || !got.IsActive {
		t.Errorf("unexpected admin: %+v", got)
	}

	byEmail, err := s.GetAdminByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("GetAdminByEmail: %v", err)
	}
	if byEmail.ID != admin.ID {
		t.Errorf("got ID %d, want %d", byEmail.ID, admin.ID)
	}

	// Duplicate email.
	dup := &model.Admin{Email: "root@example.com", IsActive: true}
	if err := s.CreateAdmin(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate email: expected ErrConflict, got %v", err)
	}

	// Update
	got.Name = "Root"
	got.IsSuperAdmin = false
	if err := s.UpdateAdmin(ctx, got); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}
	got2, _ := s.GetAdmin(ctx, admin.ID)
	if got2.Name != "Root" || got2.IsSuperAdmin {
		t.Errorf("update not persisted: %+v", got2)
	}

	// Password + last login
	if err := s.SetAdminPassword(ctx, admin.ID, "$2a$10$hash"); err != nil {
		t.Fatalf("SetAdminPassword: %v", err)
	}
	if err := s.UpdateAdminLastLogin(ctx, admin.ID); err != nil {
		t.Fatalf("UpdateAdminLastLogin: %v", err)
	}
	got3, _ := s.GetAdmin(ctx, admin.ID)
	if !got3.HasPassword() {
		t.Error("expected password hash to be set")
	}
	if got3.LastLoginAt == nil {
		t.Error("expected last_login_at to be set")
	}

	// Delete
	if err := s.DeleteAdmin(ctx, admin.ID); err != nil {
		t.Fatalf("DeleteAdmin: %v", err)
	}
	if _, err := s.GetAdmin(ctx, admin.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteAdmin(ctx, admin.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.UpdateAdminLastLogin(ctx, 9999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for missing admin, got %v", err)
	}
}

func TestSuperAdminQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindActiveSuperAdmin(ctx); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first := seedAdmin(t, s, "a@example.com", true)
	seedAdmin(t, s, "b@example.com", true)
	plain := seedAdmin(t, s, "c@example.com", false)

	n, err := s.CountActiveSuperAdmins(ctx)
	if err != nil {
		t.Fatalf("CountActiveSuperAdmins: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d super admins, want 2", n)
	}

	sa, err := s.FindActiveSuperAdmin(ctx)
	if err != nil {
		t.Fatalf("FindActiveSuperAdmin: %v", err)
	}
	if sa.ID != first.ID {
		t.Errorf("got super admin %d, want oldest %d", sa.ID, first.ID)
	}

	first.IsActive = false
	if err := s.UpdateAdmin(ctx, first); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}
	n, _ = s.CountActiveSuperAdmins(ctx)
	if n != 1 {
		t.Errorf("inactive super admin counted: got %d, want 1", n)
	}

	active, err := s.ListActiveAdmins(ctx)
	if err != nil {
		t.Fatalf("ListActiveAdmins: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("got %d active admins, want 2", len(active))
	}

	ok, err := s.AdminExists(ctx, plain.ID)
	if err != nil || !ok {
		t.Errorf("AdminExists(%d) = %v, %v", plain.ID, ok, err)
	}
	ok, _ = s.AdminExists(ctx, 12345)
	if ok {
		t.Error("AdminExists reported a missing admin")
	}
}

func TestAccessTokenRotationInTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s, "root@example.com", true)

	rotate := func(path string, expires time.Time) *model.AccessToken {
		t.Helper()
		tok := &model.AccessToken{
			URLPath:       path,
			AccessKeyHash: HashToken(path + "-key"),
			ExpiresAt:     expires,
			CreatedBy:     &admin.ID,
			IsActive:      true,
		}
		err := s.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.DeactivateActiveAccessTokens(ctx); err != nil {
				return err
			}
			return tx.CreateAccessToken(ctx, tok)
		})
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		return tok
	}

	now := time.Now().UTC()
	first := rotate("/secure-admin-1111", now.Add(24*time.Hour))
	second := rotate("/secure-admin-2222", now.Add(7*24*time.Hour))

	n, err := s.CountActiveAccessTokens(ctx)
	if err != nil {
		t.Fatalf("CountActiveAccessTokens: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d active tokens, want 1", n)
	}

	active, err := s.GetActiveAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetActiveAccessToken: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("active token %d, want %d", active.ID, second.ID)
	}

	if _, err := s.GetActiveAccessTokenByPath(ctx, first.URLPath); err != ErrNotFound {
		t.Errorf("old path should no longer resolve, got %v", err)
	}
	byPath, err := s.GetActiveAccessTokenByPath(ctx, second.URLPath)
	if err != nil {
		t.Fatalf("GetActiveAccessTokenByPath: %v", err)
	}
	if byPath.AccessKeyHash != HashToken("/secure-admin-2222-key") {
		t.Error("access key hash mismatch")
	}

	all, err := s.ListAccessTokens(ctx)
	if err != nil {
		t.Fatalf("ListAccessTokens: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d tokens, want 2 (old rows are kept)", len(all))
	}
	if all[1].IsActive {
		t.Error("old token should be inactive")
	}
}

func TestSecondActiveTokenRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, path := range []string{"/secure-admin-0001", "/secure-admin-0002"} {
		err := s.CreateAccessToken(ctx, &model.AccessToken{
			URLPath:       path,
			AccessKeyHash: HashToken(path),
			ExpiresAt:     time.Now().Add(time.Hour),
			IsActive:      true,
		})
		if i == 0 && err != nil {
			t.Fatalf("first token: %v", err)
		}
		if i == 1 && !errors.Is(err, ErrConflict) {
			t.Fatalf("second active token: expected ErrConflict, got %v", err)
		}
	}
}

func TestListExpiringAccessTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s, "root@example.com", true)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tok := &model.AccessToken{
		URLPath:       "/secure-admin-4242",
		AccessKeyHash: HashToken("k"),
		ExpiresAt:     now.Add(24 * time.Hour),
		CreatedBy:     &admin.ID,
		IsActive:      true,
	}
	if err := s.CreateAccessToken(ctx, tok); err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	due, err := s.ListExpiringAccessTokens(ctx, now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListExpiringAccessTokens: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("got %d expiring tokens, want 1", len(due))
	}
	if due[0].CreatorEmail != "root@example.com" {
		t.Errorf("creator email = %q", due[0].CreatorEmail)
	}
	if !due[0].ExpiresAt.Equal(tok.ExpiresAt) {
		t.Errorf("expires_at = %v, want %v", due[0].ExpiresAt, tok.ExpiresAt)
	}

	// Threshold is exclusive.
	due, _ = s.ListExpiringAccessTokens(ctx, tok.ExpiresAt)
	if len(due) != 0 {
		t.Errorf("token expiring exactly at threshold should not be listed")
	}

	// Creator deleted: the token survives with empty creator fields.
	if err := s.DeleteAdmin(ctx, admin.ID); err != nil {
		t.Fatalf("DeleteAdmin: %v", err)
	}
	due, err = s.ListExpiringAccessTokens(ctx, now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListExpiringAccessTokens after delete: %v", err)
	}
	if len(due) != 1 || due[0].CreatorEmail != "" || due[0].CreatedBy != nil {
		t.Errorf("unexpected orphaned token: %+v", due)
	}
}

func TestVerificationTokenSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s, "root@example.com", true)
	now := time.Now().UTC()

	tok := &model.VerificationToken{
		AdminID:   admin.ID,
		TokenHash: HashToken("raw-token"),
		Type:      model.TokenTypeAdminSetup,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := s.CreateVerificationToken(ctx, tok); err != nil {
		t.Fatalf("CreateVerificationToken: %v", err)
	}

	// Wrong type never matches.
	if _, err := s.ConsumeVerificationToken(ctx, tok.TokenHash, "password_reset", now); err != ErrNotFound {
		t.Errorf("wrong type: expected ErrNotFound, got %v", err)
	}

	id, err := s.ConsumeVerificationToken(ctx, tok.TokenHash, model.TokenTypeAdminSetup, now)
	if err != nil {
		t.Fatalf("ConsumeVerificationToken: %v", err)
	}
	if id != admin.ID {
		t.Errorf("got admin %d, want %d", id, admin.ID)
	}

	if _, err := s.ConsumeVerificationToken(ctx, tok.TokenHash, model.TokenTypeAdminSetup, now); err != ErrNotFound {
		t.Errorf("replay: expected ErrNotFound, got %v", err)
	}

	got, err := s.GetVerificationToken(ctx, tok.TokenHash)
	if err != nil {
		t.Fatalf("GetVerificationToken: %v", err)
	}
	if got.UsedAt == nil {
		t.Error("expected used_at to be set")
	}
}

func TestVerificationTokenExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := seedAdmin(t, s, "root@example.com", true)
	now := time.Now().UTC()

	tok := &model.VerificationToken{
		AdminID:   admin.ID,
		TokenHash: HashToken("stale"),
		Type:      model.TokenTypeAdminSetup,
		ExpiresAt: now.Add(-time.Minute),
	}
	if err := s.CreateVerificationToken(ctx, tok); err != nil {
		t.Fatalf("CreateVerificationToken: %v", err)
	}
	if _, err := s.ConsumeVerificationToken(ctx, tok.TokenHash, model.TokenTypeAdminSetup, now); err != ErrNotFound {
		t.Errorf("expired token: expected ErrNotFound, got %v", err)
	}

	n, err := s.DeleteExpiredVerificationTokens(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredVerificationTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d tokens, want 1", n)
	}
	if _, err := s.GetVerificationToken(ctx, tok.TokenHash); err != ErrNotFound {
		t.Errorf("expected purged token to be gone, got %v", err)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.SetSetting(ctx, model.SettingAdminEmail, "a@example.com"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetSetting(ctx, model.SettingAdminEmail); err != ErrNotFound {
		t.Errorf("write should have been rolled back, got %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = s.WithTx(ctx, func(tx *Tx) error {
			_ = tx.SetSetting(ctx, model.SettingAdminEmail, "b@example.com")
			panic("kaboom")
		})
	}()
	if _, err := s.GetSetting(ctx, model.SettingAdminEmail); err != ErrNotFound {
		t.Errorf("write should have been rolled back after panic, got %v", err)
	}

	// The connection is usable again after rollback.
	if err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetSetting(ctx, model.SettingAdminEmail, "c@example.com")
	}); err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	v, _ := s.GetSetting(ctx, model.SettingAdminEmail)
	if v != "c@example.com" {
		t.Errorf("got %q after commit", v)
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("secret")
	h2 := HashToken("secret")
	if h1 != h2 {
		t.Error("hash should be deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("got hash length %d, want 64", len(h1))
	}
	if HashToken("other") == h1 {
		t.Error("different inputs should hash differently")
	}
}
