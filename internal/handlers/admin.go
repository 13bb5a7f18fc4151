package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docgate/internal/middleware"
	"docgate/internal/models"
)

func (h HandlerSet) AdminListApprovals(c *gin.Context) {
	status := models.ApprovalStatus(strings.ToUpper(c.DefaultQuery("status", string(models.ApprovalStatusPending))))
	switch status {
	case models.ApprovalStatusPending, models.ApprovalStatusApproved, models.ApprovalStatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	limit, offset := pagination(c)

	docs, err := h.approvals.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": toDocumentList(docs)})
}

func (h HandlerSet) AdminApprove(c *gin.Context) {
	admin, _ := middleware.CurrentUser(c)

	doc, err := h.approvals.Approve(c.Request.Context(), c.Param("id"), admin.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h HandlerSet) AdminReject(c *gin.Context) {
	admin, _ := middleware.CurrentUser(c)

	// An empty body falls through so the missing reason is reported as such.
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	doc, err := h.approvals.Reject(c.Request.Context(), c.Param("id"), admin.ID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

func (h HandlerSet) AdminListSettings(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]gin.H, 0, len(settings))
	for _, s := range settings {
		items = append(items, gin.H{
			"key":         s.Key,
			"value":       s.Value,
			"description": s.Description,
			"updatedBy":   s.UpdatedBy,
			"updatedAt":   s.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type putSettingRequest struct {
	Value       *string `json:"value" binding:"required"`
	Description *string `json:"description"`
}

func (h HandlerSet) AdminPutSetting(c *gin.Context) {
	admin, _ := middleware.CurrentUser(c)

	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key := c.Param("key")
	if err := h.settings.Set(c.Request.Context(), key, *req.Value, admin.ID, req.Description); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": *req.Value})
}

func (h HandlerSet) AdminGetAutoApproval(c *gin.Context) {
	enabled, err := h.settings.AutoApprovalEnabled(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

type autoApprovalRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h HandlerSet) AdminSetAutoApproval(c *gin.Context) {
	admin, _ := middleware.CurrentUser(c)

	var req autoApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.settings.SetAutoApproval(c.Request.Context(), *req.Enabled, admin.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

type userStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h HandlerSet) AdminSetUserStatus(c *gin.Context) {
	admin, _ := middleware.CurrentUser(c)

	var req userStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	userID := c.Param("id")
	if userID == admin.ID && !*req.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot_suspend_self"})
		return
	}

	if err := h.auth.SetUserActive(c.Request.Context(), userID, *req.Active, admin.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": userID, "isActive": *req.Active})
}

func (h HandlerSet) AdminListDocuments(c *gin.Context) {
	limit, offset := pagination(c)

	docs, err := h.documents.ListAll(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": toDocumentList(docs)})
}
