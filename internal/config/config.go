// Package config loads application configuration from an optional
// YAML file layered under QUOTAWATCH_* environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quotawatch/quotawatch/internal/vault"
)

// SMTPConfig configures the email notification channel. Email sending
// stays disabled until Host is set.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Config holds the application configuration. Field defaults come from
// Load; the YAML file and environment override them in that order.
// MasterKey is deliberately absent from the YAML surface: it is read
// only from QUOTAWATCH_MASTER_KEY.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	CheckInterval       time.Duration `yaml:"check_interval"`
	WorkerCount         int           `yaml:"worker_count"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoffInitial time.Duration `yaml:"retry_backoff_initial"`
	RetryBackoffMax     time.Duration `yaml:"retry_backoff_max"`
	ProviderSpacing     time.Duration `yaml:"provider_spacing"`
	CheckTimeout        time.Duration `yaml:"check_timeout"`
	ShutdownGrace       time.Duration `yaml:"shutdown_grace"`

	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`

	SMTP SMTPConfig `yaml:"smtp"`

	// MasterKey is the decoded 32-byte vault key.
	MasterKey []byte `yaml:"-"`
}

// Load builds the configuration: defaults, then the YAML file named by
// QUOTAWATCH_CONFIG (if set), then environment overrides, then
// validation. QUOTAWATCH_MASTER_KEY is required and must be the
// base64 encoding of exactly 32 bytes.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:          "127.0.0.1:8080",
		DBPath:              "quotawatch.db",
		CheckInterval:       30 * time.Minute,
		WorkerCount:         4,
		MaxRetries:          3,
		RetryBackoffInitial: 30 * time.Second,
		RetryBackoffMax:     10 * time.Minute,
		ProviderSpacing:     2 * time.Second,
		CheckTimeout:        30 * time.Second,
		ShutdownGrace:       10 * time.Second,
		RetentionDays:       90,
		PruneSchedule:       "0 3 * * *",
		SMTP:                SMTPConfig{Port: 587},
	}

	if path, ok := os.LookupEnv("QUOTAWATCH_CONFIG"); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	encoded := os.Getenv("QUOTAWATCH_MASTER_KEY")
	if encoded == "" {
		return nil, fmt.Errorf("QUOTAWATCH_MASTER_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("QUOTAWATCH_MASTER_KEY is not valid base64: %w", err)
	}
	if len(key) != vault.KeySize {
		return nil, fmt.Errorf("QUOTAWATCH_MASTER_KEY must decode to %d bytes, got %d", vault.KeySize, len(key))
	}
	cfg.MasterKey = key

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("QUOTAWATCH_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("QUOTAWATCH_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if err := envDuration("QUOTAWATCH_CHECK_INTERVAL", &cfg.CheckInterval); err != nil {
		return err
	}
	if err := envInt("QUOTAWATCH_WORKER_COUNT", &cfg.WorkerCount); err != nil {
		return err
	}
	if err := envInt("QUOTAWATCH_MAX_RETRIES", &cfg.MaxRetries); err != nil {
		return err
	}
	if err := envDuration("QUOTAWATCH_RETRY_BACKOFF_INITIAL", &cfg.RetryBackoffInitial); err != nil {
		return err
	}
	if err := envDuration("QUOTAWATCH_RETRY_BACKOFF_MAX", &cfg.RetryBackoffMax); err != nil {
		return err
	}
	if err := envDuration("QUOTAWATCH_PROVIDER_SPACING", &cfg.ProviderSpacing); err != nil {
		return err
	}
	if err := envDuration("QUOTAWATCH_CHECK_TIMEOUT", &cfg.CheckTimeout); err != nil {
		return err
	}
	if err := envDuration("QUOTAWATCH_SHUTDOWN_GRACE", &cfg.ShutdownGrace); err != nil {
		return err
	}
	if err := envInt("QUOTAWATCH_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("QUOTAWATCH_PRUNE_SCHEDULE"); ok {
		cfg.PruneSchedule = v
	}
	if v, ok := os.LookupEnv("QUOTAWATCH_SMTP_HOST"); ok {
		cfg.SMTP.Host = v
	}
	if err := envInt("QUOTAWATCH_SMTP_PORT", &cfg.SMTP.Port); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("QUOTAWATCH_SMTP_USERNAME"); ok {
		cfg.SMTP.Username = v
	}
	if v, ok := os.LookupEnv("QUOTAWATCH_SMTP_PASSWORD"); ok {
		cfg.SMTP.Password = v
	}
	if v, ok := os.LookupEnv("QUOTAWATCH_SMTP_FROM"); ok {
		cfg.SMTP.From = v
	}
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}

func (c *Config) validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", c.CheckInterval)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryBackoffInitial <= 0 || c.RetryBackoffMax < c.RetryBackoffInitial {
		return fmt.Errorf("retry backoff bounds invalid: initial %s, max %s", c.RetryBackoffInitial, c.RetryBackoffMax)
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("check timeout must be positive, got %s", c.CheckTimeout)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative, got %d", c.RetentionDays)
	}
	return nil
}
