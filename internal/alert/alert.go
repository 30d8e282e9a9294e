// Package alert raises operational alerts for conditions that need a human,
// such as the admin console drifting towards a lockout.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/assistly/gatekeeper/internal/model"
)

// Events raised by gatekeeper.
const (
	EventNoSuperAdmin  = "no_super_admin"
	EventRenewalFailed = "renewal_failed"
	EventSetupFailed   = "setup_failed"
)

// Severity levels.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a single operational event.
type Alert struct {
	Event    string
	Severity string
	Message  string
	Details  map[string]any
	Time     time.Time
}

// Notifier delivers alerts. Raise never fails: delivery problems are logged
// by the implementation.
type Notifier interface {
	Raise(ctx context.Context, a Alert)
}

// SettingsStore is the interface the alert package needs from the config store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// LogNotifier writes alerts to the log at ERROR level.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Raise(ctx context.Context, a Alert) {
	attrs := []any{"event", a.Event, "severity", a.Severity}
	for k, v := range a.Details {
		attrs = append(attrs, k, v)
	}
	n.logger.ErrorContext(ctx, "ALERT: "+a.Message, attrs...)
}

// Multi fans an alert out to several notifiers.
type Multi []Notifier

func (m Multi) Raise(ctx context.Context, a Alert) {
	for _, n := range m {
		if n != nil {
			n.Raise(ctx, a)
		}
	}
}

// resolveInstanceID loads or generates a persistent instance ID so alerts
// from different deployments can be told apart.
func resolveInstanceID(ctx context.Context, store SettingsStore) string {
	if store != nil {
		id, err := store.GetSetting(ctx, model.SettingInstanceID)
		if err == nil && id != "" {
			return id
		}
	}

	id := uuid.New().String()

	if store != nil {
		_ = store.SetSetting(ctx, model.SettingInstanceID, id)
	}
	return id
}
