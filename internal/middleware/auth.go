package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"docgate/internal/models"
	"docgate/internal/security"
	"docgate/internal/service"
)

type Authenticator interface {
	Authenticate(ctx context.Context, claims *security.AccessClaims, device security.Device) (models.User, models.Session, error)
}

// Auth parses the bearer token and re-validates its session against the
// requesting device on every request.
func Auth(secret string, auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := security.ParseAccessToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		user, session, err := auth.Authenticate(c.Request.Context(), claims, security.DeviceFromRequest(c.Request))
		if err != nil {
			status, code := authFailure(err)
			if status == http.StatusInternalServerError {
				zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("authenticate request")
			}
			c.AbortWithStatusJSON(status, gin.H{"error": code})
			return
		}

		c.Set(ctxUserKey, user)
		c.Set(ctxSessionKey, session)

		l := zerolog.Ctx(c.Request.Context()).With().Str("user_id", user.ID).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()
	}
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrDeviceMismatch):
		return http.StatusUnauthorized, "device_mismatch"
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, "session_expired"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_not_found"
	case errors.Is(err, service.ErrUserSuspended):
		return http.StatusForbidden, "user_inactive"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}
