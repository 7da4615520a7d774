// Package cli holds first-run setup shared by the command line tools.
package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mistakeknot/tasksync/internal/auth"
	"github.com/mistakeknot/tasksync/internal/config"
)

type InitOptions struct {
	ConfigPath string
	Email      string
	// BackendURL is written to the config when set.
	BackendURL string
	// AccountsFile, when set, registers the owner with a development
	// backend and copies its uuid and secret into the config.
	AccountsFile string
	// Force replaces an identity already present in the config.
	Force bool
}

type InitResult struct {
	Config  config.Config
	Created bool
}

// InitConfig writes a config file holding a session identity for
// opts.Email. An existing identity for the same email is kept unless Force
// is set.
func InitConfig(opts InitOptions) (*InitResult, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	email := strings.TrimSpace(opts.Email)
	if path == "" {
		return nil, fmt.Errorf("config path required")
	}
	if email == "" {
		return nil, fmt.Errorf("email required")
	}

	cfg, err := config.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if opts.BackendURL != "" {
		cfg.BackendURL = strings.TrimSpace(opts.BackendURL)
	}

	existing := cfg.Credentials()
	keep := existing.HasIdentity() && strings.EqualFold(existing.Email, email) && !opts.Force
	created := false
	if !keep {
		session, err := newSession(email, opts.AccountsFile)
		if err != nil {
			return nil, err
		}
		cfg.Session = session
		created = true
	}

	if err := config.Save(path, cfg); err != nil {
		return nil, err
	}
	return &InitResult{Config: cfg, Created: created}, nil
}

func newSession(email, accountsFile string) (config.Session, error) {
	if accountsFile != "" {
		res, err := auth.RegisterAccount(accountsFile, email)
		if err != nil {
			return config.Session{}, fmt.Errorf("register account: %w", err)
		}
		return config.Session{
			Email:            res.Account.Email,
			EncryptionSecret: res.Account.EncryptionSecret,
			UUID:             res.Account.UUID,
		}, nil
	}
	secret, err := auth.GenerateSecret()
	if err != nil {
		return config.Session{}, err
	}
	return config.Session{Email: email, EncryptionSecret: secret, UUID: uuid.NewString()}, nil
}
