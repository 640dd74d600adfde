package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/pkg/jwt"
	"github.com/inkwell-space/core/internal/pkg/response"
)

const ContextKeyAuthenticated = "authenticated"

// TokenParser validates a write token.
type TokenParser interface {
	Parse(token string) (*jwt.Claims, error)
}

// Auth rejects requests without a valid write token.
func Auth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := parseRequestToken(tokens, c); err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyAuthenticated, true)
		c.Next()
	}
}

// OptionalAuth marks the request authenticated when it carries a valid
// token, but never blocks it.
func OptionalAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := parseRequestToken(tokens, c); err == nil {
			c.Set(ContextKeyAuthenticated, true)
		}
		c.Next()
	}
}

// IsAuthenticated reports whether an auth middleware accepted the request.
func IsAuthenticated(c *gin.Context) bool {
	return c.GetBool(ContextKeyAuthenticated)
}

func parseRequestToken(tokens TokenParser, c *gin.Context) (*jwt.Claims, error) {
	token := extractToken(c)
	if token == "" {
		return nil, jwt.ErrInvalidToken
	}
	return tokens.Parse(token)
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
