package cli

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/assistly/gatekeeper/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, used by serve for the banner
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Admin access and setup lifecycle for the Assistly console",
		Long: `Gatekeeper: bootstraps the first platform admin, hides the admin login behind a
rotating secret path and key, and manages admin accounts.

The secret access path is renewed automatically before it expires and every active
admin is emailed the new credentials.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gatekeeper.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.gatekeeper)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newSettingsCmd())

	return cmd
}

func initConfig() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gatekeeper")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.gatekeeper")
	}

	viper.SetEnvPrefix("GATEKEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

// setDefaults registers every known key so AutomaticEnv can resolve it.
func setDefaults() {
	d := config.DefaultYAMLConfig()

	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.base_url", d.Server.BaseURL)
	viper.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	viper.SetDefault("database.driver", d.Database.Driver)
	viper.SetDefault("database.dsn", d.Database.DSN)
	viper.SetDefault("data_dir", d.DataDir)

	viper.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	viper.SetDefault("auth.session_ttl", d.Auth.SessionTTL)
	viper.SetDefault("auth.gate_ttl", d.Auth.GateTTL)

	viper.SetDefault("mail.transport", d.Mail.Transport)
	viper.SetDefault("mail.from", d.Mail.From)
	viper.SetDefault("mail.smtp.host", d.Mail.SMTP.Host)
	viper.SetDefault("mail.smtp.port", d.Mail.SMTP.Port)
	viper.SetDefault("mail.smtp.username", d.Mail.SMTP.Username)
	viper.SetDefault("mail.smtp.password", d.Mail.SMTP.Password)
	viper.SetDefault("mail.smtp.tls", d.Mail.SMTP.TLS)
	viper.SetDefault("mail.amqp.url", d.Mail.AMQP.URL)
	viper.SetDefault("mail.amqp.queue", d.Mail.AMQP.Queue)

	viper.SetDefault("scheduler.schedule", d.Scheduler.Schedule)
	viper.SetDefault("scheduler.lock_ttl", d.Scheduler.LockTTL)
	viper.SetDefault("redis.url", d.Redis.URL)
	viper.SetDefault("alert.webhook_url", d.Alert.WebhookURL)

	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
}
