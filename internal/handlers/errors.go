package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"docgate/internal/repository"
	"docgate/internal/service"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorTable = []errorMapping{
	{service.ErrSessionNotFound, http.StatusUnauthorized, "session_not_found"},
	{service.ErrDeviceMismatch, http.StatusUnauthorized, "device_mismatch"},
	{service.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrUserSuspended, http.StatusForbidden, "user_suspended"},
	{service.ErrLoginLocked, http.StatusTooManyRequests, "login_locked"},
	{service.ErrEmailTaken, http.StatusConflict, "already_registered"},

	{service.ErrNoActiveSubscription, http.StatusForbidden, "no_active_subscription"},
	{service.ErrUnknownPackage, http.StatusForbidden, "unknown_package"},
	{service.ErrDocumentTypeNotAllowed, http.StatusForbidden, "document_type_not_allowed"},

	{service.ErrInvalidRejection, http.StatusBadRequest, "rejection_reason_required"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrDocumentBusy, http.StatusConflict, "document_busy"},
	{service.ErrDuplicateDispatch, http.StatusConflict, "duplicate_document"},
	{service.ErrMissingFiles, http.StatusBadRequest, "missing_files"},
	{service.ErrUnsupportedFile, http.StatusBadRequest, "unsupported_file"},
	{service.ErrEmptyFile, http.StatusBadRequest, "empty_file"},
	{service.ErrDocumentForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"},
	{service.ErrOriginalNotFound, http.StatusNotFound, "document_not_found"},
	{repository.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{repository.ErrSettingNotFound, http.StatusNotFound, "setting_not_found"},
}

// writeError maps service errors to a status and a stable error code.
// Anything unmapped is logged and reported as 500.
func writeError(c *gin.Context, err error) {
	var quota *service.QuotaError
	if errors.As(err, &quota) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":       quotaCode(quota.Err),
			"message":     quota.Error(),
			"package":     quota.PackageCode,
			"packageName": quota.PackageName,
			"limit":       quota.Limit,
			"actual":      quota.Actual,
		})
		return
	}

	var approval *service.ApprovalError
	if errors.As(err, &approval) {
		body := gin.H{
			"error":          "approval_required",
			"message":        approval.Error(),
			"approvalStatus": approval.Status,
		}
		if approval.Reason != "" {
			body["rejectionReason"] = approval.Reason
		}
		c.JSON(http.StatusForbidden, body)
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"error": m.code, "message": err.Error()})
			return
		}
	}

	zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
}

func quotaCode(err error) string {
	switch {
	case errors.Is(err, service.ErrFileSizeExceeded):
		return "file_size_exceeded"
	case errors.Is(err, service.ErrPageCountExceeded):
		return "page_count_exceeded"
	case errors.Is(err, service.ErrDocumentQuotaExceeded):
		return "document_quota_exceeded"
	default:
		return "package_limit"
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
}
