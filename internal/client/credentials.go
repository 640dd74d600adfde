package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired, log in again")
)

// Credentials is a token issued by the server's password gate.
type Credentials struct {
	Server    string    `json:"server"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is missing or past its expiry at now.
func (c Credentials) Expired(now time.Time) bool {
	return c.Token == "" || (!c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt))
}

// Verifier checks a token with the server.
type Verifier interface {
	Verify(ctx context.Context, token string) (Verification, error)
}

// CredentialStore keeps Credentials in a file readable only by the owner.
type CredentialStore struct {
	path string
	now  func() time.Time
}

func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path, now: time.Now}
}

// DefaultCredentialsPath is credentials.json under the user config dir.
func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "inkwell", "credentials.json"), nil
}

func (s *CredentialStore) Path() string { return s.path }

func (s *CredentialStore) Save(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func (s *CredentialStore) read() (Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, ErrNotLoggedIn
	}
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return c, nil
}

// Load reads the saved credentials and checks them with the server.
// Tokens that expired locally or that the server rejects are cleared. A
// server that cannot be reached leaves the file alone and returns the error.
func (s *CredentialStore) Load(ctx context.Context, v Verifier) (Credentials, error) {
	c, err := s.read()
	if err != nil {
		return Credentials{}, err
	}
	if c.Expired(s.now()) {
		_ = s.Logout()
		return Credentials{}, ErrSessionExpired
	}
	res, err := v.Verify(ctx, c.Token)
	if err != nil {
		return Credentials{}, fmt.Errorf("verify token: %w", err)
	}
	if !res.Valid {
		_ = s.Logout()
		return Credentials{}, ErrSessionExpired
	}
	if !res.ExpiresAt.IsZero() {
		c.ExpiresAt = res.ExpiresAt
	}
	return c, nil
}

// Logout removes the saved credentials.
func (s *CredentialStore) Logout() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
