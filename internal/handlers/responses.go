package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docgate/internal/models"
	"docgate/internal/service"
)

type userResponse struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Username *string `json:"username,omitempty"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	IsActive bool    `json:"isActive"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Name:     u.Name,
		Role:     string(u.Role),
		IsActive: u.IsActive,
	}
}

type sessionResponse struct {
	ID           string    `json:"id"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	IPAddress    string    `json:"ipAddress"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsCurrent    bool      `json:"isCurrent"`
}

func toSessionResponse(s models.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		Browser:      s.Browser,
		OS:           s.OS,
		IPAddress:    s.IPAddress,
		LastActivity: s.LastActivity,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
		IsCurrent:    s.ID == currentID,
	}
}

type documentResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	Title              string     `json:"title"`
	OriginalFilename   string     `json:"originalFilename"`
	FileType           string     `json:"fileType"`
	FileSize           int64      `json:"fileSize"`
	HasTurnitinPDF     bool       `json:"hasTurnitinPdf"`
	PageCount          *int       `json:"pageCount,omitempty"`
	PackageCode        *string    `json:"packageCode,omitempty"`
	Status             string     `json:"status"`
	RequiresApproval   bool       `json:"requiresApproval"`
	ApprovalStatus     string     `json:"approvalStatus"`
	RejectionReason    *string    `json:"rejectionReason,omitempty"`
	ApprovedBy         *string    `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time `json:"approvedAt,omitempty"`
	IsDuplicate        bool       `json:"isDuplicate"`
	OriginalDocumentID *string    `json:"originalDocumentId,omitempty"`
	JobID              *string    `json:"jobId,omitempty"`
	UploadedAt         time.Time  `json:"uploadedAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toDocumentResponse(d models.Document) documentResponse {
	return documentResponse{
		ID:                 d.ID,
		UserID:             d.UserID,
		Title:              d.Title,
		OriginalFilename:   d.OriginalFilename,
		FileType:           d.FileType,
		FileSize:           d.FileSize,
		HasTurnitinPDF:     d.PDFPath != nil && *d.PDFPath != "",
		PageCount:          d.PageCount,
		PackageCode:        d.PackageCode,
		Status:             string(d.Status),
		RequiresApproval:   d.RequiresApproval,
		ApprovalStatus:     string(d.ApprovalStatus),
		RejectionReason:    d.RejectionReason,
		ApprovedBy:         d.ApprovedBy,
		ApprovedAt:         d.ApprovedAt,
		IsDuplicate:        d.IsDuplicate,
		OriginalDocumentID: d.OriginalDocumentID,
		JobID:              d.JobID,
		UploadedAt:         d.UploadedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func toDocumentList(docs []models.Document) []documentResponse {
	items := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		items = append(items, toDocumentResponse(d))
	}
	return items
}

type analysisResponse struct {
	FlagCount        int                     `json:"flagCount"`
	FlagTypes        []models.FlagType       `json:"flagTypes"`
	SimilarityScore  *float64                `json:"similarityScore,omitempty"`
	PlagiarismReport models.PlagiarismReport `json:"plagiarismReport"`
	AnalyzedAt       time.Time               `json:"analyzedAt"`
}

type bypassResponse struct {
	Status         string     `json:"status"`
	Strategy       string     `json:"strategy"`
	Progress       int        `json:"progress"`
	OutputFilename *string    `json:"outputFilename,omitempty"`
	OutputFileSize *int64     `json:"outputFileSize,omitempty"`
	FlagsRemoved   int        `json:"flagsRemoved"`
	ProcessingTime float64    `json:"processingTime"`
	SuccessRate    float64    `json:"successRate"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

type documentDetailResponse struct {
	documentResponse
	Analysis *analysisResponse `json:"analysis,omitempty"`
	Bypass   *bypassResponse   `json:"bypass,omitempty"`
}

func toDocumentDetail(d service.DocumentDetail) documentDetailResponse {
	resp := documentDetailResponse{documentResponse: toDocumentResponse(d.Document)}
	if a := d.Analysis; a != nil {
		resp.Analysis = &analysisResponse{
			FlagCount:        a.FlagCount,
			FlagTypes:        a.FlagTypes,
			SimilarityScore:  a.SimilarityScore,
			PlagiarismReport: a.PlagiarismReport,
			AnalyzedAt:       a.AnalyzedAt,
		}
	}
	if b := d.Bypass; b != nil {
		resp.Bypass = &bypassResponse{
			Status:         string(b.Status),
			Strategy:       b.Strategy,
			Progress:       b.Progress,
			OutputFilename: b.OutputFilename,
			OutputFileSize: b.OutputFileSize,
			FlagsRemoved:   b.FlagsRemoved,
			ProcessingTime: b.ProcessingTime,
			SuccessRate:    b.SuccessRate,
			CompletedAt:    b.CompletedAt,
		}
	}
	return resp
}

// pagination reads page and perPage, capped at 200 per page.
func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}
	return limit, offset
}
