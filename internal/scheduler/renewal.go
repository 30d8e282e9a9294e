package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/assistly/gatekeeper/internal/alert"
	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/notify"
	"github.com/assistly/gatekeeper/internal/service"
)

// RenewalOutcome classifies a renewal check.
type RenewalOutcome int

const (
	// RenewalSkipped means setup is not completed yet.
	RenewalSkipped RenewalOutcome = iota
	// RenewalNotDue means no active token expires within the lookahead.
	RenewalNotDue
	// RenewalNoSuperAdmin means a token is due but nobody can own the
	// replacement. Tokens are left to expire and an alert is raised.
	RenewalNoSuperAdmin
	// RenewalRotated means a new token was issued and admins were emailed.
	RenewalRotated
)

func (o RenewalOutcome) String() string {
	switch o {
	case RenewalNotDue:
		return "not_due"
	case RenewalNoSuperAdmin:
		return "no_super_admin"
	case RenewalRotated:
		return "rotated"
	default:
		return "skipped"
	}
}

// RenewalResult reports what a renewal check did.
type RenewalResult struct {
	Outcome    RenewalOutcome
	Frequency  model.RenewalFrequency
	Expiring   int
	Rotation   *service.Rotation
	Recipients int
	Failed     int
}

// CheckAndRenewAdminAccessTokens rotates the access token when it expires
// within the lookahead of the configured renewal frequency, then emails the
// new credentials to every active admin.
func (s *Scheduler) CheckAndRenewAdminAccessTokens(ctx context.Context) (*RenewalResult, error) {
	state, err := s.Settings.SetupState(ctx)
	if err != nil {
		s.Logger.Error("renewal check: read setup state", "error", err)
		return nil, err
	}
	if state != model.SetupStateCompleted {
		s.Logger.Debug("renewal check skipped, setup not completed", "state", state.Label())
		return &RenewalResult{Outcome: RenewalSkipped}, nil
	}

	freq, err := s.Settings.RenewalFrequency(ctx)
	if err != nil {
		s.Logger.Error("renewal check: read frequency", "error", err)
		return nil, err
	}
	result := &RenewalResult{Frequency: freq}

	threshold := s.Clock.Now().Add(freq.Lookahead())
	expiring, err := s.Store.ListExpiringAccessTokens(ctx, threshold)
	if err != nil {
		s.Logger.Error("renewal check: list expiring tokens", "error", err)
		return nil, err
	}
	result.Expiring = len(expiring)
	if len(expiring) == 0 {
		result.Outcome = RenewalNotDue
		s.Logger.Debug("no access tokens due for renewal", "frequency", string(freq), "threshold", threshold)
		return result, nil
	}

	owner, err := s.Store.FindActiveSuperAdmin(ctx)
	if errors.Is(err, config.ErrNotFound) {
		result.Outcome = RenewalNoSuperAdmin
		s.Logger.Error("cannot renew admin access token: no active super admin",
			"token_id", expiring[0].ID,
			"expires_at", expiring[0].ExpiresAt,
		)
		s.Alerts.Raise(ctx, alert.Alert{
			Event:    alert.EventNoSuperAdmin,
			Severity: alert.SeverityCritical,
			Message:  "admin access token is expiring and no active super admin exists to renew it",
			Details: map[string]any{
				"token_id":   expiring[0].ID,
				"expires_at": expiring[0].ExpiresAt,
			},
			Time: s.Clock.Now(),
		})
		return result, nil
	}
	if err != nil {
		s.Logger.Error("renewal check: find super admin", "error", err)
		return nil, err
	}

	rot, err := s.Access.UpdateAdminAccessToken(ctx, owner.ID, freq)
	if err != nil {
		s.raiseRenewalFailed(ctx, "access token rotation failed", err)
		return nil, fmt.Errorf("rotate access token: %w", err)
	}
	result.Outcome = RenewalRotated
	result.Rotation = rot

	if err := s.notifyAdmins(ctx, rot, result); err != nil {
		return result, err
	}
	return result, nil
}

// RotateNow issues a new access token on behalf of actorID regardless of the
// current token's expiry and emails it to every active admin.
func (s *Scheduler) RotateNow(ctx context.Context, actorID int64) (*RenewalResult, error) {
	freq, err := s.Settings.RenewalFrequency(ctx)
	if err != nil {
		return nil, err
	}
	rot, err := s.Access.UpdateAdminAccessToken(ctx, actorID, freq)
	if err != nil {
		return nil, err
	}
	result := &RenewalResult{Outcome: RenewalRotated, Frequency: freq, Rotation: rot}
	if err := s.notifyAdmins(ctx, rot, result); err != nil {
		return result, err
	}
	return result, nil
}

// notifyAdmins emails the new credentials to every active admin. Individual
// send failures are logged and counted; if nobody could be reached an alert
// is raised because the new path is otherwise unknown to anyone.
func (s *Scheduler) notifyAdmins(ctx context.Context, rot *service.Rotation, result *RenewalResult) error {
	admins, err := s.Store.ListActiveAdmins(ctx)
	if err != nil {
		s.raiseRenewalFailed(ctx, "could not list admins to notify of new access token", err)
		return fmt.Errorf("list active admins: %w", err)
	}

	accessURL := s.Links.Access(rot.Path)
	for _, a := range admins {
		err := s.Mailer.SendAdminAccessUpdateEmail(ctx, notify.AccessUpdateEmail{
			To:        a.Email,
			Name:      a.Name,
			AccessURL: accessURL,
			AccessKey: rot.Key,
			ExpiresAt: rot.ExpiresAt,
		})
		if err != nil {
			result.Failed++
			s.Logger.Error("failed to send access update email", "admin_id", a.ID, "error", err)
			continue
		}
		result.Recipients++
	}

	s.Logger.Info("admin access token renewed",
		"token_id", rot.TokenID,
		"expires_at", rot.ExpiresAt,
		"frequency", string(result.Frequency),
		"recipients", result.Recipients,
		"failed", result.Failed,
	)

	if result.Recipients == 0 {
		s.raiseRenewalFailed(ctx, "new admin access token was not delivered to any admin",
			fmt.Errorf("%d of %d emails failed", result.Failed, len(admins)))
	}
	return nil
}

func (s *Scheduler) raiseRenewalFailed(ctx context.Context, msg string, err error) {
	s.Logger.Error(msg, "error", err)
	s.Alerts.Raise(ctx, alert.Alert{
		Event:    alert.EventRenewalFailed,
		Severity: alert.SeverityCritical,
		Message:  msg,
		Details:  map[string]any{"error": err.Error()},
		Time:     s.Clock.Now(),
	})
}
