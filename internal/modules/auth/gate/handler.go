package gate

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/middleware"
	"github.com/inkwell-space/core/internal/pkg/response"
	"go.uber.org/zap"
)

type loginRequest struct {
	Password string `json:"password"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type Handler struct {
	svc     *Service
	limiter gin.HandlerFunc
}

// NewHandler wires the gate routes. limiter guards login and may be nil.
func NewHandler(svc *Service, limiter gin.HandlerFunc) *Handler {
	return &Handler{svc: svc, limiter: limiter}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/auth")
	if h.limiter != nil {
		g.POST("/login", h.limiter, h.login)
	} else {
		g.POST("/login", h.login)
	}
	g.POST("/verify", h.verify)
}

// login POST /auth/login
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "password is required")
		return
	}
	grant, err := h.svc.Login(req.Password)
	switch {
	case errors.Is(err, ErrInvalidPassword):
		h.svc.logger.Warn("rejected write login", zap.String("ip", c.ClientIP()))
		response.UnauthorizedMsg(c, err.Error())
		return
	case errors.Is(err, ErrNotConfigured):
		response.Error(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "token": grant.Token, "expires_at": grant.ExpiresAt})
}

// verify POST /auth/verify. Invalid tokens answer 200 with valid=false.
func (h *Handler) verify(c *gin.Context) {
	var req verifyRequest
	_ = c.ShouldBindJSON(&req)
	token := middleware.NormalizeToken(req.Token)
	if token == "" {
		token = middleware.NormalizeToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		response.OK(c, gin.H{"valid": false})
		return
	}
	grant, err := h.svc.Verify(token)
	if err != nil {
		response.OK(c, gin.H{"valid": false})
		return
	}
	response.OK(c, gin.H{"valid": true, "expires_at": grant.ExpiresAt})
}
