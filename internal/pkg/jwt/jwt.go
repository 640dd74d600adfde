package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultSecret = "inkwell-secret-change-me"

var ErrInvalidToken = errors.New("invalid token")

// Claims is the write-gate token payload. There is no user identity, only the
// boolean permission to write.
type Claims struct {
	Authenticated bool `json:"authenticated"`
	jwtlib.RegisteredClaims
}

// Signer issues and verifies HS256 tokens with a fixed secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a Signer. An empty secret falls back to the built-in
// default, which is only suitable for development.
func NewSigner(secret string) *Signer {
	if secret == "" {
		secret = defaultSecret
	}
	return &Signer{secret: []byte(secret), now: time.Now}
}

// UsesDefaultSecret reports whether no secret was configured.
func (s *Signer) UsesDefaultSecret() bool {
	return string(s.secret) == defaultSecret
}

// Sign creates a token valid for ttl.
func (s *Signer) Sign(ttl time.Duration) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		Authenticated: true,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse validates signature and expiry and returns the claims.
func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwtlib.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Authenticated {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
