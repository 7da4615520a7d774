package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TASKSYNC_BACKEND_URL", "TASKSYNC_DB_PATH", "TASKSYNC_LOG_LEVEL",
		"TASKSYNC_EMAIL", "TASKSYNC_ENCRYPTION_SECRET", "TASKSYNC_UUID",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendURL != DefaultBackendURL || cfg.RequestTimeout != DefaultRequestTimeout || cfg.BulkConcurrency != DefaultBulkConcurrency {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.Credentials().HasIdentity() {
		t.Fatalf("defaults must not carry an identity")
	}
}

func TestLoadFileValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `backend_url: http://backend.test
db_path: /tmp/x.db
log_level: debug
request_timeout: 5s
bulk_concurrency: 3
session:
  email: alice@example.com
  encryption_secret: s
  uuid: u-alice
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendURL != "http://backend.test" || cfg.DBPath != "/tmp/x.db" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.RequestTimeout != 5*time.Second || cfg.BulkConcurrency != 3 {
		t.Fatalf("unexpected timeout/concurrency %v %d", cfg.RequestTimeout, cfg.BulkConcurrency)
	}
	creds := cfg.Credentials()
	if !creds.HasIdentity() || creds.BackendURL != "http://backend.test" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend_url: http://file.test\nsession:\n  email: file@example.com\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKSYNC_BACKEND_URL", "http://env.test")
	t.Setenv("TASKSYNC_EMAIL", "env@example.com")
	t.Setenv("TASKSYNC_UUID", "u-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendURL != "http://env.test" || cfg.Session.Email != "env@example.com" || cfg.Session.UUID != "u-env" {
		t.Fatalf("env should win, got %+v", cfg)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bulk_concurrency: -2\nrequest_timeout: 0s\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BulkConcurrency != DefaultBulkConcurrency || cfg.RequestTimeout != DefaultRequestTimeout {
		t.Fatalf("expected defaults for invalid values, got %+v", cfg)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend_url: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.BackendURL = "http://saved.test"
	cfg.RequestTimeout = 12 * time.Second
	cfg.Session = Session{Email: "alice@example.com", EncryptionSecret: "s", UUID: "u"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != cfg {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestResolvePathFromEnv(t *testing.T) {
	t.Setenv("TASKSYNC_CONFIG", "/etc/tasksync.yaml")
	if got := ResolvePath(); got != "/etc/tasksync.yaml" {
		t.Fatalf("unexpected path %q", got)
	}
}
