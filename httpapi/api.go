// Package httpapi exposes the engine over HTTP. Handlers bind strongly
// typed request structs and translate engine errors into status codes;
// no business rules live here.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lizztt/tunzadent"
)

// Server holds the engine and the router.
type Server struct {
	engine *tunzadent.Engine
	logger *zap.Logger
	router *gin.Engine
}

func NewServer(engine *tunzadent.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine: engine,
		logger: logger,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	api := s.router.Group("/api/auth")

	api.POST("/register", s.register)
	api.POST("/verify-email", s.verifyEmail)
	api.POST("/resend-verification", s.resendVerification)
	api.POST("/login", s.login)
	api.POST("/2fa/setup", s.beginEnrollment)
	api.POST("/2fa/complete", s.confirmEnrollment)
	api.POST("/token/refresh", s.refresh)

	authed := api.Group("", s.requireAuth)
	authed.POST("/2fa/backup-codes", s.regenerateBackupCodes)
	authed.POST("/change-password", s.changePassword)
	authed.POST("/logout", s.logout)
	authed.GET("/profile", s.getProfile)
	authed.PATCH("/profile", s.updateProfile)
}

const authContextKey = "authResult"

// requireAuth validates the bearer token and stashes the AuthResult on the
// gin context.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	auth, err := s.engine.ValidateAccess(requestContext(c), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.Set(authContextKey, auth)
	c.Next()
}

func authFromContext(c *gin.Context) *tunzadent.AuthResult {
	v, _ := c.Get(authContextKey)
	auth, _ := v.(*tunzadent.AuthResult)
	return auth
}

// requestContext tags the request context with the client IP for limiter
// keys and audit events.
func requestContext(c *gin.Context) context.Context {
	return tunzadent.WithClientIP(c.Request.Context(), c.ClientIP())
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	// An unknown verification token reads as a plain bad request so the
	// response does not confirm which tokens exist.
	case errors.Is(err, tunzadent.ErrValidation),
		errors.Is(err, tunzadent.ErrPasswordMismatch),
		errors.Is(err, tunzadent.ErrPasswordPolicy),
		errors.Is(err, tunzadent.ErrTokenInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tunzadent.ErrInvalidCredentials),
		errors.Is(err, tunzadent.ErrInvalidSecondFactor),
		errors.Is(err, tunzadent.ErrUnauthorized),
		errors.Is(err, tunzadent.ErrRefreshInvalid),
		errors.Is(err, tunzadent.ErrRefreshReuse),
		errors.Is(err, tunzadent.ErrSessionNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, tunzadent.ErrEmailTaken),
		errors.Is(err, tunzadent.ErrUsernameTaken),
		errors.Is(err, tunzadent.ErrSetupAlreadyComplete):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, tunzadent.ErrEmailNotVerified),
		errors.Is(err, tunzadent.ErrSecondFactorNotEnabled),
		errors.Is(err, tunzadent.ErrEnrollmentNotStarted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, tunzadent.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tunzadent.ErrLoginRateLimited),
		errors.Is(err, tunzadent.ErrSecondFactorRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, tunzadent.ErrMailDelivery):
		c.JSON(http.StatusBadGateway, gin.H{"error": "verification mail could not be sent"})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
