// Package gate is the shared-password write gate: one password for every
// author, exchanged for a short-lived signed token.
package gate

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/inkwell-space/core/internal/config"
	"github.com/inkwell-space/core/internal/pkg/jwt"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const DefaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrNotConfigured   = errors.New("write password is not configured")
)

// Grant is an issued write token.
type Grant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	password []byte
	hash     []byte
	signer   *jwt.Signer
	ttl      time.Duration
	logger   *zap.Logger
}

// NewService builds the gate. A bcrypt hash takes precedence over a plain
// password when both are configured.
func NewService(cfg config.AuthConfig, signer *jwt.Signer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &Service{signer: signer, ttl: ttl, logger: logger}
	if cfg.WritePasswordHash != "" {
		s.hash = []byte(cfg.WritePasswordHash)
	} else if cfg.WritePassword != "" {
		s.password = []byte(cfg.WritePassword)
	}
	return s
}

// Configured reports whether any password is set.
func (s *Service) Configured() bool {
	return len(s.hash) > 0 || len(s.password) > 0
}

// Login checks password and issues a token valid for the configured TTL.
func (s *Service) Login(password string) (*Grant, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	if !s.matches(password) {
		return nil, ErrInvalidPassword
	}
	token, claims, err := s.signer.Sign(s.ttl)
	if err != nil {
		return nil, err
	}
	return &Grant{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Service) matches(password string) bool {
	if len(s.hash) > 0 {
		return bcrypt.CompareHashAndPassword(s.hash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare(s.password, []byte(password)) == 1
}

// Verify checks signature and expiry only.
func (s *Service) Verify(token string) (*Grant, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	return &Grant{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}
