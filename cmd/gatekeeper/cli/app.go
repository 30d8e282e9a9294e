package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/assistly/gatekeeper/internal/alert"
	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/notify"
	"github.com/assistly/gatekeeper/internal/scheduler"
	"github.com/assistly/gatekeeper/internal/service"
)

// app holds the store and services shared by serve and the one-shot
// commands. Close releases everything newApp opened.
type app struct {
	store    *config.Store
	logger   *slog.Logger
	links    service.Links
	settings *service.SettingsService
	access   *service.AccessTokenManager
	tokens   *service.TokenIssuer
	admins   *service.AdminService
	setup    *service.SetupInitiator
	mailer   notify.Mailer
	alerts   alert.Notifier
	sched    *scheduler.Scheduler

	closers []func()
}

func newApp(logger *slog.Logger) (*app, error) {
	store, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		store:  store,
		logger: logger,
		links:  service.Links{BaseURL: viper.GetString("server.base_url")},
	}
	a.closers = append(a.closers, func() { store.Close() })

	transport, err := newMailTransport(logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.mailer = notify.New(transport, viper.GetString("mail.from"))

	clock := service.SystemClock{}
	a.settings = service.NewSettingsService(store, logger)
	a.access = service.NewAccessTokenManager(store, clock, logger)
	a.tokens = service.NewTokenIssuer(store, a.mailer, clock, a.links, logger)
	a.admins = service.NewAdminService(store, a.tokens, logger)
	a.setup = service.NewSetupInitiator(store, a.access, a.tokens, a.mailer, clock, a.links, logger)

	alerts := alert.Multi{alert.NewLogNotifier(logger)}
	if url := viper.GetString("alert.webhook_url"); url != "" {
		webhook := alert.NewWebhookNotifier(context.Background(), store, url, logger)
		webhook.Start()
		a.closers = append(a.closers, webhook.Shutdown)
		alerts = append(alerts, webhook)
	}
	a.alerts = alerts

	var locker scheduler.Locker
	if url := viper.GetString("redis.url"); url != "" {
		redisLocker, err := scheduler.NewRedisLocker(url)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		a.closers = append(a.closers, func() { redisLocker.Close() })
		locker = redisLocker
	}

	a.sched = scheduler.New(scheduler.Deps{
		Store:    store,
		Settings: a.settings,
		Setup:    a.setup,
		Access:   a.access,
		Tokens:   a.tokens,
		Mailer:   a.mailer,
		Alerts:   a.alerts,
		Locker:   locker,
		Clock:    clock,
		Links:    a.links,
		Logger:   logger,
	}, scheduler.Config{
		Schedule: viper.GetString("scheduler.schedule"),
		LockTTL:  viper.GetDuration("scheduler.lock_ttl"),
	})

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newMailTransport selects the email transport named by mail.transport.
func newMailTransport(logger *slog.Logger) (notify.Transport, error) {
	switch name := viper.GetString("mail.transport"); name {
	case "", "log":
		return notify.NewLogTransport(logger), nil
	case "smtp":
		t, err := notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     viper.GetString("mail.smtp.host"),
			Port:     viper.GetInt("mail.smtp.port"),
			Username: viper.GetString("mail.smtp.username"),
			Password: viper.GetString("mail.smtp.password"),
			TLS:      viper.GetBool("mail.smtp.tls"),
		})
		if err != nil {
			return nil, fmt.Errorf("smtp transport: %w", err)
		}
		return t, nil
	case "amqp":
		t, err := notify.NewQueueTransport(viper.GetString("mail.amqp.url"), viper.GetString("mail.amqp.queue"))
		if err != nil {
			return nil, fmt.Errorf("amqp transport: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q (want smtp, amqp or log)", name)
	}
}
