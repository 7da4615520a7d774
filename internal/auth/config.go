// Package auth holds the development backend's account registry and the
// middleware that checks owner identity headers against it.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mistakeknot/tasksync/internal/core"
)

const defaultAccountsFile = "tasksync.accounts.yaml"

var (
	ErrMissingIdentity    = errors.New("missing owner identity")
	ErrUnknownAccount     = errors.New("unknown account")
	ErrCredentialMismatch = errors.New("credentials do not match account")
)

type accountsFile struct {
	DefaultPolicy struct {
		AllowUnregistered *bool `yaml:"allow_unregistered"`
	} `yaml:"default_policy"`
	Accounts []accountEntry `yaml:"accounts"`
}

type accountEntry struct {
	Email            string `yaml:"email"`
	UUID             string `yaml:"uuid"`
	EncryptionSecret string `yaml:"encryption_secret"`
}

// Registry maps owner emails to their uuid and encryption secret. With
// AllowUnregistered set, any complete identity that is not registered is
// accepted as is.
type Registry struct {
	AllowUnregistered bool
	byEmail           map[string]core.Credentials
}

func ResolveAccountsPath() string {
	if v := strings.TrimSpace(os.Getenv("TASKSYNC_ACCOUNTS_FILE")); v != "" {
		return v
	}
	return filepath.Join(".", defaultAccountsFile)
}

// LoadRegistry reads the accounts file at path. An empty path or a missing
// file yields an open registry.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultRegistry(), nil
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var cfg accountsFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	reg := defaultRegistry()
	if cfg.DefaultPolicy.AllowUnregistered != nil {
		reg.AllowUnregistered = *cfg.DefaultPolicy.AllowUnregistered
	}
	for _, a := range cfg.Accounts {
		email := core.NormalizeEmail(a.Email)
		if email == "" {
			continue
		}
		if existing, ok := reg.byEmail[email]; ok && existing.UUID != a.UUID {
			return nil, fmt.Errorf("account registered twice: %q", a.Email)
		}
		reg.byEmail[email] = core.Credentials{Email: a.Email, UUID: a.UUID, EncryptionSecret: a.EncryptionSecret}
	}
	return reg, nil
}

func defaultRegistry() *Registry {
	return &Registry{AllowUnregistered: true, byEmail: make(map[string]core.Credentials)}
}

func NewRegistry(allowUnregistered bool, accounts ...core.Credentials) *Registry {
	reg := &Registry{AllowUnregistered: allowUnregistered, byEmail: make(map[string]core.Credentials, len(accounts))}
	for _, a := range accounts {
		reg.byEmail[core.NormalizeEmail(a.Email)] = a
	}
	return reg
}

// Verify checks that c names a complete identity that matches its
// registered account, if any.
func (r *Registry) Verify(c core.Credentials) error {
	if !c.HasIdentity() {
		return ErrMissingIdentity
	}
	if r == nil {
		return nil
	}
	acct, ok := r.byEmail[core.NormalizeEmail(c.Email)]
	if !ok {
		if r.AllowUnregistered {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownAccount, c.Email)
	}
	if acct.UUID != c.UUID || acct.EncryptionSecret != c.EncryptionSecret {
		return ErrCredentialMismatch
	}
	return nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byEmail)
}
