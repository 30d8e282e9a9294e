package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/assistly/gatekeeper/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Gatekeeper configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default gatekeeper.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&path, "path", "gatekeeper.yaml", "Where to write the file")

	return cmd
}

func runConfigInit(out io.Writer, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out, "Set auth.jwt_secret and the mail transport, then run 'gatekeeper serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), showSecrets)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets instead of masking them")

	return cmd
}

func runConfigShow(out io.Writer, showSecrets bool) error {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Fprintf(out, "# Config file: %s\n", configFile)
	} else {
		fmt.Fprintln(out, "# Config file: (none found, using defaults and environment)")
	}

	cfg := effectiveConfig()
	if !showSecrets {
		cfg.Auth.JWTSecret = mask(cfg.Auth.JWTSecret)
		cfg.Mail.SMTP.Password = mask(cfg.Mail.SMTP.Password)
		cfg.Database.DSN = mask(cfg.Database.DSN)
		cfg.Mail.AMQP.URL = mask(cfg.Mail.AMQP.URL)
		cfg.Redis.URL = mask(cfg.Redis.URL)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// effectiveConfig resolves every key through viper, so file, environment and
// flag overrides are all reflected.
func effectiveConfig() *config.YAMLConfig {
	return &config.YAMLConfig{
		Server: config.ServerConfig{
			Host:            viper.GetString("server.host"),
			Port:            viper.GetInt("server.port"),
			BaseURL:         viper.GetString("server.base_url"),
			CORSOrigins:     viper.GetStringSlice("server.cors_origins"),
			ShutdownTimeout: viper.GetString("server.shutdown_timeout"),
		},
		Database: config.DatabaseConfig{
			Driver: viper.GetString("database.driver"),
			DSN:    viper.GetString("database.dsn"),
		},
		DataDir: resolveDataDir(),
		Auth: config.AuthConfig{
			JWTSecret:  viper.GetString("auth.jwt_secret"),
			SessionTTL: viper.GetString("auth.session_ttl"),
			GateTTL:    viper.GetString("auth.gate_ttl"),
		},
		Mail: config.MailConfig{
			Transport: viper.GetString("mail.transport"),
			From:      viper.GetString("mail.from"),
			SMTP: config.SMTPConfig{
				Host:     viper.GetString("mail.smtp.host"),
				Port:     viper.GetInt("mail.smtp.port"),
				Username: viper.GetString("mail.smtp.username"),
				Password: viper.GetString("mail.smtp.password"),
				TLS:      viper.GetBool("mail.smtp.tls"),
			},
			AMQP: config.AMQPConfig{
				URL:   viper.GetString("mail.amqp.url"),
				Queue: viper.GetString("mail.amqp.queue"),
			},
		},
		Scheduler: config.SchedulerConfig{
			Schedule: viper.GetString("scheduler.schedule"),
			LockTTL:  viper.GetString("scheduler.lock_ttl"),
		},
		Redis: config.RedisConfig{URL: viper.GetString("redis.url")},
		Alert: config.AlertConfig{WebhookURL: viper.GetString("alert.webhook_url")},
		Log: config.LoggingConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
	}
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return "********"
}
