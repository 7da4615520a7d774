// Package config loads the client configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mistakeknot/tasksync/internal/core"
)

const (
	DefaultBackendURL      = "http://127.0.0.1:8000"
	DefaultLogLevel        = "info"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultBulkConcurrency = 8
)

// Session is the owner identity. It is optional in the file; a session can
// only be opened once all of it is known.
type Session struct {
	Email            string `yaml:"email,omitempty"`
	EncryptionSecret string `yaml:"encryption_secret,omitempty"`
	UUID             string `yaml:"uuid,omitempty"`
}

type Config struct {
	BackendURL      string        `yaml:"backend_url"`
	DBPath          string        `yaml:"db_path"`
	LogLevel        string        `yaml:"log_level"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	BulkConcurrency int           `yaml:"bulk_concurrency"`
	Session         Session       `yaml:"session,omitempty"`
}

// Default returns the configuration used when no file or env var says otherwise.
func Default() Config {
	return Config{
		BackendURL:      DefaultBackendURL,
		DBPath:          defaultDBPath(),
		LogLevel:        DefaultLogLevel,
		RequestTimeout:  DefaultRequestTimeout,
		BulkConcurrency: DefaultBulkConcurrency,
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tasksync", "tasks.db")
	}
	return filepath.Join(home, ".local", "share", "tasksync", "tasks.db")
}

// ResolvePath returns $TASKSYNC_CONFIG or ~/.config/tasksync/config.yaml.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("TASKSYNC_CONFIG")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "tasksync.yaml")
	}
	return filepath.Join(home, ".config", "tasksync", "config.yaml")
}

// Load reads path over the defaults and then applies env overrides.
func Load(path string) (Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	cfg.fill()
	return cfg, nil
}

// ReadFile reads path over the defaults without looking at the environment.
// A missing file yields the defaults.
func ReadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fill()
	return cfg, nil
}

// Save writes cfg to path, readable only by the owner.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set("TASKSYNC_BACKEND_URL", &cfg.BackendURL)
	set("TASKSYNC_DB_PATH", &cfg.DBPath)
	set("TASKSYNC_LOG_LEVEL", &cfg.LogLevel)
	set("TASKSYNC_EMAIL", &cfg.Session.Email)
	set("TASKSYNC_ENCRYPTION_SECRET", &cfg.Session.EncryptionSecret)
	set("TASKSYNC_UUID", &cfg.Session.UUID)
}

// fill replaces zero or invalid values with defaults.
func (c *Config) fill() {
	d := Default()
	if strings.TrimSpace(c.BackendURL) == "" {
		c.BackendURL = d.BackendURL
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.BulkConcurrency <= 0 {
		c.BulkConcurrency = d.BulkConcurrency
	}
}

// Credentials returns the session identity bound to the configured backend.
func (c Config) Credentials() core.Credentials {
	return core.Credentials{
		Email:            strings.TrimSpace(c.Session.Email),
		EncryptionSecret: c.Session.EncryptionSecret,
		UUID:             strings.TrimSpace(c.Session.UUID),
		BackendURL:       c.BackendURL,
	}
}
