package middleware

import (
	"github.com/gin-gonic/gin"

	"docgate/internal/models"
)

const (
	ctxUserKey    = "current_user"
	ctxSessionKey = "current_session"
)

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func CurrentSession(c *gin.Context) (models.Session, bool) {
	v, ok := c.Get(ctxSessionKey)
	if !ok {
		return models.Session{}, false
	}
	session, ok := v.(models.Session)
	return session, ok
}
