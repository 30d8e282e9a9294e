package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level gatekeeper configuration file. Its keys
// mirror the viper keys read by the CLI, so a file written by
// WriteDefaultConfig is directly loadable with --config.
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	DataDir   string          `yaml:"data_dir"`
	Auth      AuthConfig      `yaml:"auth"`
	Mail      MailConfig      `yaml:"mail"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Redis     RedisConfig     `yaml:"redis"`
	Alert     AlertConfig     `yaml:"alert"`
	Log       LoggingConfig   `yaml:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	BaseURL         string   `yaml:"base_url"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mysql
	DSN    string `yaml:"dsn"`
}

// AuthConfig controls session and gate token signing.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	SessionTTL string `yaml:"session_ttl"`
	GateTTL    string `yaml:"gate_ttl"`
}

// MailConfig selects and configures the email transport.
type MailConfig struct {
	Transport string     `yaml:"transport"` // smtp, amqp, log
	From      string     `yaml:"from"`
	SMTP      SMTPConfig `yaml:"smtp"`
	AMQP      AMQPConfig `yaml:"amqp"`
}

// SMTPConfig holds SMTP relay credentials.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// AMQPConfig points the queue transport at a broker.
type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// SchedulerConfig controls the renewal job.
type SchedulerConfig struct {
	Schedule string `yaml:"schedule"`
	LockTTL  string `yaml:"lock_ttl"`
}

// RedisConfig enables the distributed scheduler lock when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AlertConfig enables webhook alerts when WebhookURL is set.
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			BaseURL:         "http://localhost:8080",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
		},
		Auth: AuthConfig{
			SessionTTL: "12h",
			GateTTL:    "10m",
		},
		Mail: MailConfig{
			Transport: "log",
			From:      "Assistly <no-reply@assistly.local>",
			SMTP: SMTPConfig{
				Port: 587,
				TLS:  true,
			},
			AMQP: AMQPConfig{
				Queue: "gatekeeper.mail",
			},
		},
		Scheduler: SchedulerConfig{
			Schedule: "@every 24h",
			LockTTL:  "5m",
		},
		Log: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
