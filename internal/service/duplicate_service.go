package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"docgate/internal/ids"
	"docgate/internal/models"
	"docgate/internal/repository"
)

type DuplicateStore interface {
	GetByID(ctx context.Context, id string) (models.Document, error)
	FindLatestOriginalByHash(ctx context.Context, userID string, contentHash string) (models.Document, error)
	LatestAnalysis(ctx context.Context, documentID string) (models.DocumentAnalysis, error)
	LatestBypass(ctx context.Context, documentID string) (models.BypassHistory, error)
	CreateWithResults(ctx context.Context, doc models.Document, analysis *models.DocumentAnalysis, bypass *models.BypassHistory) error
	DuplicateStats(ctx context.Context, userID string) (models.DuplicateStats, error)
}

type DuplicateResult struct {
	IsDuplicate bool
	Original    *models.Document
	CanReuse    bool
}

// DuplicateService reuses finished results for byte-identical re-uploads.
type DuplicateService struct {
	store DuplicateStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewDuplicateService(store DuplicateStore, log zerolog.Logger) *DuplicateService {
	return &DuplicateService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// FindDuplicate looks up the user's latest original with contentHash. Its
// results are reusable only once it completed, passed approval and produced
// an analysis or a bypass record.
func (d *DuplicateService) FindDuplicate(ctx context.Context, contentHash string, userID string) (DuplicateResult, error) {
	original, err := d.store.FindLatestOriginalByHash(ctx, userID, contentHash)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return DuplicateResult{}, nil
		}
		return DuplicateResult{}, fmt.Errorf("find duplicate: %w", err)
	}

	result := DuplicateResult{IsDuplicate: true, Original: &original}
	if original.Status != models.DocumentStatusCompleted || original.ApprovalStatus != models.ApprovalStatusApproved {
		return result, nil
	}

	analysis, bypass, err := d.latestResults(ctx, original.ID)
	if err != nil {
		return DuplicateResult{}, err
	}
	result.CanReuse = analysis != nil || bypass != nil
	return result, nil
}

// CreateDuplicate materializes a finished copy of originalID for userID
// without contacting the processor.
func (d *DuplicateService) CreateDuplicate(ctx context.Context, originalID string, userID string, title string) (models.Document, error) {
	original, err := d.store.GetByID(ctx, originalID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return models.Document{}, ErrOriginalNotFound
		}
		return models.Document{}, fmt.Errorf("get original: %w", err)
	}
	if original.UserID != userID {
		return models.Document{}, ErrOriginalNotFound
	}

	analysis, bypass, err := d.latestResults(ctx, original.ID)
	if err != nil {
		return models.Document{}, err
	}

	now := d.now().UTC()
	originalRef := original.ID
	dup := models.Document{
		ID:                 ids.New(),
		UserID:             userID,
		SubscriptionID:     original.SubscriptionID,
		OriginalDocumentID: &originalRef,
		Title:              title,
		OriginalFilename:   original.OriginalFilename,
		FileType:           original.FileType,
		FileSize:           original.FileSize,
		UploadPath:         original.UploadPath,
		PDFPath:            cloneString(original.PDFPath),
		PDFFilename:        cloneString(original.PDFFilename),
		ContentHash:        original.ContentHash,
		PageCount:          cloneInt(original.PageCount),
		WordCount:          cloneInt(original.WordCount),
		CharacterCount:     cloneInt(original.CharacterCount),
		PackageCode:        cloneString(original.PackageCode),
		Status:             models.DocumentStatusCompleted,
		RequiresApproval:   false,
		ApprovalStatus:     models.ApprovalStatusNotRequired,
		IsDuplicate:        true,
		UploadedAt:         now,
		UpdatedAt:          now,
	}

	var analysisCopy *models.DocumentAnalysis
	if analysis != nil {
		c := copyAnalysis(*analysis, dup.ID, now)
		analysisCopy = &c
	}
	var bypassCopy *models.BypassHistory
	if bypass != nil {
		c := copyBypass(*bypass, dup.ID, userID, now)
		bypassCopy = &c
	}

	if err := d.store.CreateWithResults(ctx, dup, analysisCopy, bypassCopy); err != nil {
		return models.Document{}, fmt.Errorf("create duplicate: %w", err)
	}

	d.log.Info().
		Str("document_id", dup.ID).
		Str("original_id", original.ID).
		Str("user_id", userID).
		Msg("duplicate document created from prior result")

	return dup, nil
}

func (d *DuplicateService) Stats(ctx context.Context, userID string) (models.DuplicateStats, error) {
	return d.store.DuplicateStats(ctx, userID)
}

func (d *DuplicateService) latestResults(ctx context.Context, documentID string) (*models.DocumentAnalysis, *models.BypassHistory, error) {
	var analysis *models.DocumentAnalysis
	a, err := d.store.LatestAnalysis(ctx, documentID)
	switch {
	case err == nil:
		analysis = &a
	case !errors.Is(err, repository.ErrAnalysisNotFound):
		return nil, nil, fmt.Errorf("latest analysis: %w", err)
	}

	var bypass *models.BypassHistory
	b, err := d.store.LatestBypass(ctx, documentID)
	switch {
	case err == nil:
		bypass = &b
	case !errors.Is(err, repository.ErrBypassNotFound):
		return nil, nil, fmt.Errorf("latest bypass: %w", err)
	}

	return analysis, bypass, nil
}

func copyAnalysis(src models.DocumentAnalysis, documentID string, at time.Time) models.DocumentAnalysis {
	dst := src
	dst.ID = ids.New()
	dst.DocumentID = documentID
	dst.AnalyzedAt = at
	dst.OCRText = cloneString(src.OCRText)
	dst.SimilarityScore = cloneFloat(src.SimilarityScore)
	dst.FlagTypes = models.CopyFlagTypes(src.FlagTypes)
	dst.PlagiarismReport.Sources = append([]string(nil), src.PlagiarismReport.Sources...)
	return dst
}

func copyBypass(src models.BypassHistory, documentID string, userID string, at time.Time) models.BypassHistory {
	dst := src
	dst.ID = ids.New()
	dst.DocumentID = documentID
	dst.UserID = userID
	dst.CreatedAt = at
	dst.OutputPath = cloneString(src.OutputPath)
	dst.OutputFilename = cloneString(src.OutputFilename)
	dst.OutputFileSize = cloneInt64(src.OutputFileSize)
	if src.CompletedAt != nil {
		t := *src.CompletedAt
		dst.CompletedAt = &t
	}
	return dst
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
