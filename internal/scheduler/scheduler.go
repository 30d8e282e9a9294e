// Package scheduler runs gatekeeper's background jobs: bootstrapping the
// first admin, renewing the admin access token before it expires, and
// purging expired setup tokens.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/assistly/gatekeeper/internal/alert"
	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/notify"
	"github.com/assistly/gatekeeper/internal/service"
)

const (
	DefaultSchedule      = "@every 24h"
	DefaultPurgeSchedule = "@daily"
	DefaultLockTTL       = 5 * time.Minute
)

// Job names, also used as lock names.
const (
	jobSetup   = "admin-setup"
	jobRenewal = "access-token-renewal"
	jobPurge   = "verification-token-purge"
)

// Deps are the collaborators the scheduler drives.
type Deps struct {
	Store    *config.Store
	Settings *service.SettingsService
	Setup    *service.SetupInitiator
	Access   *service.AccessTokenManager
	Tokens   *service.TokenIssuer
	Mailer   notify.Mailer
	Alerts   alert.Notifier
	Locker   Locker
	Clock    service.Clock
	Links    service.Links
	Logger   *slog.Logger
}

// Config controls job timing.
type Config struct {
	Schedule      string
	PurgeSchedule string
	LockTTL       time.Duration
}

// Scheduler owns the cron instance and the job implementations.
type Scheduler struct {
	Deps
	cfg  Config
	cron *cron.Cron
}

// New creates a scheduler. Missing optional deps fall back to in-process
// defaults: a local lock, log alerts and the system clock.
func New(deps Deps, cfg Config) *Scheduler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = service.SystemClock{}
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Alerts == nil {
		deps.Alerts = alert.NewLogNotifier(deps.Logger)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.PurgeSchedule == "" {
		cfg.PurgeSchedule = DefaultPurgeSchedule
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}

	logger := cronLogger{deps.Logger}
	return &Scheduler{
		Deps: deps,
		cfg:  cfg,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Start runs the setup check and the renewal check once, then schedules the
// recurring jobs. Job failures are logged and never stop the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runLocked(ctx, jobSetup, func(ctx context.Context) {
		_, _ = s.CheckAndSetupAdmin(ctx)
	})
	s.runLocked(ctx, jobRenewal, func(ctx context.Context) {
		_, _ = s.CheckAndRenewAdminAccessTokens(ctx)
	})

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.runLocked(context.Background(), jobRenewal, func(ctx context.Context) {
			_, _ = s.CheckAndRenewAdminAccessTokens(ctx)
		})
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.cfg.PurgeSchedule, func() {
		s.runLocked(context.Background(), jobPurge, func(ctx context.Context) {
			if _, err := s.Tokens.PurgeExpired(ctx); err != nil {
				s.Logger.Error("failed to purge expired verification tokens", "error", err)
			}
		})
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.Logger.Info("scheduler started", "jobs", len(s.cron.Entries()), "schedule", s.cfg.Schedule)
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.Logger.Info("scheduler stopped")
}

// runLocked runs fn under the named lock with a deadline of one lock TTL.
// A run is skipped when another holder has the lock.
func (s *Scheduler) runLocked(parent context.Context, name string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.LockTTL)
	defer cancel()

	release, ok, err := s.Locker.TryLock(ctx, name, s.cfg.LockTTL)
	if err != nil {
		s.Logger.Error("failed to acquire job lock", "job", name, "error", err)
		return
	}
	if !ok {
		s.Logger.Info("job already running elsewhere, skipping", "job", name)
		return
	}
	defer release()

	fn(ctx)
}

// CheckAndSetupAdmin runs the first-admin bootstrap.
func (s *Scheduler) CheckAndSetupAdmin(ctx context.Context) (service.SetupResult, error) {
	result, err := s.Setup.SetupInitialAdmin(ctx)
	if err != nil {
		s.Alerts.Raise(ctx, alert.Alert{
			Event:    alert.EventSetupFailed,
			Severity: alert.SeverityWarning,
			Message:  "initial admin setup failed",
			Details:  map[string]any{"error": err.Error()},
			Time:     s.Clock.Now(),
		})
	}
	return result, err
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
