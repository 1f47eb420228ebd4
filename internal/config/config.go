// Package config loads and validates tabbackup configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	TableauServer ServerConfig      `yaml:"tableauServer"`
	Git           GitConfig         `yaml:"git"`
	Retry         RetryConfig       `yaml:"retry,omitempty"`
	Logging       LoggingConfig     `yaml:"logging,omitempty"`
	Schedule      ScheduleConfig    `yaml:"schedule,omitempty"`
	Metrics       MetricsConfig     `yaml:"metrics,omitempty"`
	Credentials   CredentialsConfig `yaml:"credentials,omitempty"`
}

// ServerConfig describes the remote Tableau Server and how hard to drive it.
type ServerConfig struct {
	URL         string        `yaml:"url"`
	User        string        `yaml:"user"`
	APIVersion  string        `yaml:"apiVersion,omitempty"` // empty => discovered from serverinfo
	PageSize    int           `yaml:"pageSize,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	RateLimit   float64       `yaml:"rateLimit,omitempty"` // requests per second
	RateBurst   int           `yaml:"rateBurst,omitempty"`
}

// GitConfig describes the backup repository.
type GitConfig struct {
	URL         string `yaml:"url"`
	Login       string `yaml:"login"`
	ProjectName string `yaml:"projectName"` // local working tree directory
	Remote      string `yaml:"remote,omitempty"`
	AuthorName  string `yaml:"authorName,omitempty"`
	AuthorEmail string `yaml:"authorEmail,omitempty"`
}

// RetryConfig controls backoff for transient network and push failures.
type RetryConfig struct {
	MaxRetries   int              `yaml:"maxRetries,omitempty"`
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay time.Duration    `yaml:"initialDelay,omitempty"`
	MaxDelay     time.Duration    `yaml:"maxDelay,omitempty"`
}

// LoggingConfig controls log level and optional rotated log file.
type LoggingConfig struct {
	Level      LogLevel `yaml:"level,omitempty"`
	File       string   `yaml:"file,omitempty"`
	MaxSizeMB  int      `yaml:"maxSizeMB,omitempty"`
	MaxBackups int      `yaml:"maxBackups,omitempty"`
	MaxAgeDays int      `yaml:"maxAgeDays,omitempty"`
}

// ScheduleConfig drives the periodic backup command.
type ScheduleConfig struct {
	Every time.Duration `yaml:"every,omitempty"`
	Hours int           `yaml:"hours,omitempty"` // incremental window per scheduled run
}

// MetricsConfig enables the Prometheus endpoint in schedule mode.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

// CredentialsConfig names the secret store namespace.
type CredentialsConfig struct {
	Service string `yaml:"service,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.ConfigError("failed to read configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references, then applies
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.ConfigError("failed to unmarshal configuration").
			WithCause(err).
			Build()
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Config{
		TableauServer: ServerConfig{
			URL:  "https://tableau.example.com",
			User: "backup-admin",
		},
		Git: GitConfig{
			URL:         "https://git.example.com/bi/tableau-backup.git",
			Login:       "backup-bot",
			ProjectName: "tableau-backup",
		},
	}
	applyDefaults(&example)

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.FileSystemError("failed to write configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}
