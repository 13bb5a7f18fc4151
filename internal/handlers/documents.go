package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docgate/internal/middleware"
	"docgate/internal/models"
	"docgate/internal/service"
)

// maxUploadBytes bounds a single form file before package limits apply.
const maxUploadBytes = 64 << 20

func (h HandlerSet) Subscription(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	sub, err := h.policy.ActiveSubscription(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	features, _ := h.policy.Features(sub.PackageCode)

	c.JSON(http.StatusOK, gin.H{
		"id":            sub.ID,
		"packageCode":   sub.PackageCode,
		"status":        sub.Status,
		"startDate":     sub.StartDate,
		"endDate":       sub.EndDate,
		"documentsUsed": sub.DocumentsUsed,
		"features":      features,
	})
}

func (h HandlerSet) UploadDocument(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	docx, err := readFormFile(c, "docxFile")
	if err != nil {
		badRequest(c, err)
		return
	}
	if docx == nil {
		badRequest(c, errors.New("docxFile is required"))
		return
	}
	pdf, err := readFormFile(c, "pdfFile")
	if err != nil {
		badRequest(c, err)
		return
	}

	input := service.UploadInput{
		UserID:      user.ID,
		Title:       c.PostForm("title"),
		Document:    *docx,
		TurnitinPDF: pdf,
	}
	for field, dst := range map[string]**int{
		"pageCount":      &input.PageCount,
		"wordCount":      &input.WordCount,
		"characterCount": &input.CharacterCount,
	} {
		v, err := optionalInt(c.PostForm(field))
		if err != nil {
			badRequest(c, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = v
	}

	result, err := h.documents.Upload(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document":    toDocumentResponse(result.Document),
		"isDuplicate": result.Duplicate,
	})
}

func readFormFile(c *gin.Context, field string) (*service.UploadFile, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header.Size > maxUploadBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", field, maxUploadBytes)
	}
	data, err := readAll(header)
	if err != nil {
		return nil, err
	}
	return &service.UploadFile{Filename: header.Filename, Data: data}, nil
}

func readAll(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}

func optionalInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid number %q", raw)
	}
	return &v, nil
}

func (h HandlerSet) ListDocuments(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	limit, offset := pagination(c)

	docs, err := h.documents.ListByUser(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": toDocumentList(docs)})
}

func (h HandlerSet) GetDocument(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	detail, err := h.documents.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentDetail(detail))
}

func (h HandlerSet) DocumentStats(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	stats, err := h.duplicates.Stats(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h HandlerSet) ProcessDocument(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	doc, err := h.dispatch.Dispatch(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"documentId": doc.ID,
		"status":     doc.Status,
	})
}

// maintenanceGuard blocks document writes for non-admins while maintenance
// mode is on.
func (h HandlerSet) maintenanceGuard(c *gin.Context) {
	if user, ok := middleware.CurrentUser(c); ok && user.Role == models.UserRoleAdmin {
		c.Next()
		return
	}

	on, err := h.settings.GetBool(c.Request.Context(), service.SettingMaintenanceMode, false)
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	if on {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "maintenance_mode"})
		return
	}
	c.Next()
}
