package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
)

// SettingsService is a typed view over the settings store. The store itself
// holds opaque strings; this is where values are parsed and validated.
type SettingsService struct {
	store  *config.Store
	logger *slog.Logger
}

func NewSettingsService(store *config.Store, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{store: store, logger: logger}
}

// SetupState returns the current bootstrap state.
func (s *SettingsService) SetupState(ctx context.Context) (model.SetupState, error) {
	return readSetupState(ctx, s.store.Queries)
}

// SetSetupState persists state. Pass the caller's transaction as q to make the
// write part of it, or nil to write directly.
func (s *SettingsService) SetSetupState(ctx context.Context, q *config.Queries, state model.SetupState) error {
	if q == nil {
		q = s.store.Queries
	}
	return q.SetSetting(ctx, model.SettingSetupCompleted, state.String())
}

// AdminEmail returns the configured bootstrap admin address, normalized. It
// returns config.ErrNotFound when unset or blank and ErrInvalidInput when the
// stored value is not an email address.
func (s *SettingsService) AdminEmail(ctx context.Context) (string, error) {
	return readAdminEmail(ctx, s.store.Queries)
}

// SetAdminEmail validates and stores the bootstrap admin address.
func (s *SettingsService) SetAdminEmail(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	return s.store.SetSetting(ctx, model.SettingAdminEmail, email)
}

// RenewalFrequency returns the rotation cadence. An absent value means
// weekly; an unparsable value is logged and also treated as weekly.
func (s *SettingsService) RenewalFrequency(ctx context.Context) (model.RenewalFrequency, error) {
	v, err := s.store.GetSetting(ctx, model.SettingRenewalFrequency)
	if errors.Is(err, config.ErrNotFound) {
		return model.DefaultRenewalFrequency, nil
	}
	if err != nil {
		return "", err
	}
	freq, err := model.ParseRenewalFrequency(v)
	if err != nil {
		s.logger.Warn("invalid renewal frequency setting, using default",
			"value", v, "default", model.DefaultRenewalFrequency)
		return model.DefaultRenewalFrequency, nil
	}
	return freq, nil
}

// SetRenewalFrequency stores the rotation cadence.
func (s *SettingsService) SetRenewalFrequency(ctx context.Context, freq model.RenewalFrequency) error {
	if _, err := model.ParseRenewalFrequency(string(freq)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.SetSetting(ctx, model.SettingRenewalFrequency, string(freq))
}

// Get returns a raw setting value.
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	return s.store.GetSetting(ctx, key)
}

// List returns every stored setting.
func (s *SettingsService) List(ctx context.Context) ([]model.Setting, error) {
	return s.store.ListSettings(ctx)
}

// Set validates value against the domain of known keys and stores it.
// Unknown keys are stored verbatim.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}

	switch key {
	case model.SettingSetupCompleted:
		if _, err := model.ParseSetupState(value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	case model.SettingRenewalFrequency:
		return s.SetRenewalFrequency(ctx, model.RenewalFrequency(value))
	case model.SettingAdminEmail:
		return s.SetAdminEmail(ctx, value)
	case model.SettingInstanceID:
		return fmt.Errorf("%w: %s is managed by the server", ErrInvalidInput, key)
	}
	return s.store.SetSetting(ctx, key, value)
}

func readSetupState(ctx context.Context, q *config.Queries) (model.SetupState, error) {
	v, err := q.GetSetting(ctx, model.SettingSetupCompleted)
	if errors.Is(err, config.ErrNotFound) {
		return model.SetupStateNotStarted, nil
	}
	if err != nil {
		return model.SetupStateNotStarted, err
	}
	return model.ParseSetupState(v)
}

func readAdminEmail(ctx context.Context, q *config.Queries) (string, error) {
	v, err := q.GetSetting(ctx, model.SettingAdminEmail)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", config.ErrNotFound
	}
	// Rows written outside SetAdminEmail are normalized here so the
	// bootstrap admin is stored the way Login looks it up.
	return NormalizeEmail(v)
}
