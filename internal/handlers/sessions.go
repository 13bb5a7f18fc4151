package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docgate/internal/middleware"
)

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	current, _ := middleware.CurrentSession(c)

	sessions, err := h.sessions.ListActive(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionResponse(s, current.ID))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) TerminateSession(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if err := h.sessions.TerminateOwnedSession(c.Request.Context(), user.ID, c.Param("sessionId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TerminateOtherSessions ends every session of the caller except the current one.
func (h HandlerSet) TerminateOtherSessions(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	current, _ := middleware.CurrentSession(c)

	n, err := h.sessions.TerminateAllSessions(c.Request.Context(), user.ID, current.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terminated": n})
}
