package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mistakeknot/tasksync/internal/core"
)

// RegisterResult describes the account written by RegisterAccount.
type RegisterResult struct {
	AccountsFile string
	Account      core.Credentials
	Created      bool
}

// RegisterAccount adds email to the accounts file, creating the file if it
// does not exist. An already registered email is returned unchanged with
// Created false.
func RegisterAccount(path, email string) (*RegisterResult, error) {
	if path == "" {
		path = ResolveAccountsPath()
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrMissingIdentity
	}

	var cfg accountsFile
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse accounts file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		allow := false
		cfg.DefaultPolicy.AllowUnregistered = &allow
	default:
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	for _, a := range cfg.Accounts {
		if core.SameEmail(a.Email, email) {
			acct := core.Credentials{Email: a.Email, UUID: a.UUID, EncryptionSecret: a.EncryptionSecret}
			return &RegisterResult{AccountsFile: path, Account: acct}, nil
		}
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	entry := accountEntry{Email: email, UUID: uuid.NewString(), EncryptionSecret: secret}
	cfg.Accounts = append(cfg.Accounts, entry)

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal accounts file: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return nil, fmt.Errorf("write accounts file: %w", err)
	}
	return &RegisterResult{
		AccountsFile: path,
		Account:      core.Credentials{Email: entry.Email, UUID: entry.UUID, EncryptionSecret: entry.EncryptionSecret},
		Created:      true,
	}, nil
}

// GenerateSecret returns a random URL-safe encryption secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
