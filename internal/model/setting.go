package model

import (
	"fmt"
	"time"
)

// Setting keys persisted in the admin_settings table.
const (
	SettingSetupCompleted   = "setup_completed"
	SettingAdminEmail       = "admin_email"
	SettingAdminName        = "admin_name"
	SettingRenewalFrequency = "access_token_renewal_frequency"
	SettingInstanceID       = "instance_id"
)

// Setting is a single key/value row of the settings store.
type Setting struct {
	Key   string `json:"key" db:"setting_key"`
	Value string `json:"value" db:"value"`
}

// SetupState tracks the one-time bootstrap of the first admin.
type SetupState int

const (
	// SetupStateNotStarted means no setup_completed row exists.
	SetupStateNotStarted SetupState = iota
	// SetupStatePending is an explicit "false" written by an operator.
	SetupStatePending
	// SetupStateInProgress means the setup email went out and the admin has
	// not yet chosen a password.
	SetupStateInProgress
	// SetupStateCompleted means the first admin finished setup.
	SetupStateCompleted
)

// ParseSetupState converts a persisted setup_completed value. An empty string
// is treated as a missing row.
func ParseSetupState(v string) (SetupState, error) {
	switch v {
	case "":
		return SetupStateNotStarted, nil
	case "false":
		return SetupStatePending, nil
	case "in_progress":
		return SetupStateInProgress, nil
	case "true":
		return SetupStateCompleted, nil
	default:
		return SetupStateNotStarted, fmt.Errorf("unknown setup state %q", v)
	}
}

// String returns the persisted representation of the state.
func (s SetupState) String() string {
	switch s {
	case SetupStatePending:
		return "false"
	case SetupStateInProgress:
		return "in_progress"
	case SetupStateCompleted:
		return "true"
	default:
		return ""
	}
}

// Label is a human readable name for logs and API responses.
func (s SetupState) Label() string {
	switch s {
	case SetupStatePending:
		return "pending"
	case SetupStateInProgress:
		return "in_progress"
	case SetupStateCompleted:
		return "completed"
	default:
		return "not_started"
	}
}

// RenewalFrequency is the configured cadence of access token rotation.
type RenewalFrequency string

const (
	RenewalWeekly  RenewalFrequency = "weekly"
	RenewalMonthly RenewalFrequency = "monthly"
)

// DefaultRenewalFrequency applies when no frequency setting is stored.
const DefaultRenewalFrequency = RenewalWeekly

// Lookahead margins before expiry at which the scheduler renews a token.
// They are not proportional to the period; keep them as literal values.
const (
	weeklyLookahead  = 2 * 24 * time.Hour
	monthlyLookahead = 7 * 24 * time.Hour
)

// ParseRenewalFrequency validates a frequency string.
func ParseRenewalFrequency(v string) (RenewalFrequency, error) {
	switch RenewalFrequency(v) {
	case RenewalWeekly:
		return RenewalWeekly, nil
	case RenewalMonthly:
		return RenewalMonthly, nil
	default:
		return "", fmt.Errorf("unknown renewal frequency %q (want weekly or monthly)", v)
	}
}

// ExpiresAt returns the expiry of a token issued at from.
func (f RenewalFrequency) ExpiresAt(from time.Time) time.Time {
	if f == RenewalMonthly {
		return from.AddDate(0, 1, 0)
	}
	return from.AddDate(0, 0, 7)
}

// Lookahead returns how long before expiry a token becomes due for renewal.
func (f RenewalFrequency) Lookahead() time.Duration {
	if f == RenewalMonthly {
		return monthlyLookahead
	}
	return weeklyLookahead
}
