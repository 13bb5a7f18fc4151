package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"docgate/internal/ids"
	"docgate/internal/media/digest"
	"docgate/internal/media/sniffer"
	"docgate/internal/models"
	"docgate/internal/repository"
)

type DocumentStore interface {
	Create(ctx context.Context, doc models.Document) error
	GetByID(ctx context.Context, id string) (models.Document, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Document, error)
	List(ctx context.Context, limit, offset int) ([]models.Document, error)
	LatestAnalysis(ctx context.Context, documentID string) (models.DocumentAnalysis, error)
	LatestBypass(ctx context.Context, documentID string) (models.BypassHistory, error)
}

// FileStore holds uploaded document bytes.
type FileStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

type UploadFile struct {
	Filename string
	Data     []byte
}

type UploadInput struct {
	UserID         string
	Title          string
	Document       UploadFile
	TurnitinPDF    *UploadFile
	PageCount      *int
	WordCount      *int
	CharacterCount *int
}

type UploadResult struct {
	Document  models.Document
	Duplicate bool
}

// DocumentDetail is a document with its latest processing results.
type DocumentDetail struct {
	Document models.Document
	Analysis *models.DocumentAnalysis
	Bypass   *models.BypassHistory
}

type DocumentService struct {
	docs       DocumentStore
	files      FileStore
	policy     *PolicyService
	duplicates *DuplicateService
	approvals  *ApprovalService
	log        zerolog.Logger
	now        func() time.Time
}

func NewDocumentService(
	docs DocumentStore,
	files FileStore,
	policy *PolicyService,
	duplicates *DuplicateService,
	approvals *ApprovalService,
	log zerolog.Logger,
) *DocumentService {
	return &DocumentService{
		docs:       docs,
		files:      files,
		policy:     policy,
		duplicates: duplicates,
		approvals:  approvals,
		log:        log,
		now:        time.Now,
	}
}

// Upload admits a new document. A byte-identical re-upload of a finished
// document becomes a duplicate carrying the earlier results and does not
// count against the package quota.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	if len(input.Document.Data) == 0 {
		return UploadResult{}, ErrEmptyFile
	}
	detected, err := sniffer.Detect(input.Document.Data)
	if err != nil || detected.Type != sniffer.TypeDOCX {
		return UploadResult{}, ErrUnsupportedFile
	}
	if input.TurnitinPDF != nil {
		if len(input.TurnitinPDF.Data) == 0 {
			return UploadResult{}, ErrEmptyFile
		}
		pdf, err := sniffer.Detect(input.TurnitinPDF.Data)
		if err != nil || pdf.Type != sniffer.TypePDF {
			return UploadResult{}, ErrUnsupportedFile
		}
	}

	contentHash := digest.Sum(input.Document.Data)
	title := input.Title
	if title == "" {
		title = input.Document.Filename
	}

	admission, err := s.policy.ValidateDocument(ctx, input.UserID, DocumentCheck{
		FileSize:  int64(len(input.Document.Data)),
		PageCount: input.PageCount,
		MIMEType:  detected.MIME,
	})
	if err != nil {
		return UploadResult{}, err
	}

	dup, err := s.duplicates.FindDuplicate(ctx, contentHash, input.UserID)
	if err != nil {
		return UploadResult{}, err
	}
	if dup.CanReuse {
		doc, err := s.duplicates.CreateDuplicate(ctx, dup.Original.ID, input.UserID, title)
		if err != nil {
			return UploadResult{}, err
		}
		return UploadResult{Document: doc, Duplicate: true}, nil
	}

	decision, err := s.approvals.InitialDecision(ctx, admission.RequiresApproval)
	if err != nil {
		return UploadResult{}, err
	}

	now := s.now().UTC()
	docID := ids.New()
	prefix := path.Join("documents", input.UserID, now.Format("2006/01/02"), docID)

	uploadPath, err := s.files.Put(ctx, prefix+".docx", input.Document.Data, detected.MIME)
	if err != nil {
		return UploadResult{}, fmt.Errorf("store document: %w", err)
	}
	stored := []string{uploadPath}

	var pdfPath, pdfFilename *string
	if input.TurnitinPDF != nil {
		p, err := s.files.Put(ctx, prefix+"-turnitin.pdf", input.TurnitinPDF.Data, sniffer.MIMEPDF)
		if err != nil {
			s.discard(ctx, stored)
			return UploadResult{}, fmt.Errorf("store turnitin pdf: %w", err)
		}
		stored = append(stored, p)
		name := input.TurnitinPDF.Filename
		pdfPath, pdfFilename = &p, &name
	}

	subID := admission.Subscription.ID
	packageCode := admission.Package.Code
	doc := models.Document{
		ID:               docID,
		UserID:           input.UserID,
		SubscriptionID:   &subID,
		Title:            title,
		OriginalFilename: input.Document.Filename,
		FileType:         detected.MIME,
		FileSize:         int64(len(input.Document.Data)),
		UploadPath:       uploadPath,
		PDFPath:          pdfPath,
		PDFFilename:      pdfFilename,
		ContentHash:      contentHash,
		PageCount:        input.PageCount,
		WordCount:        input.WordCount,
		CharacterCount:   input.CharacterCount,
		PackageCode:      &packageCode,
		Status:           models.DocumentStatusPending,
		RequiresApproval: decision.RequiresApproval,
		ApprovalStatus:   decision.Status,
		ApprovedBy:       decision.ApprovedBy,
		ApprovedAt:       decision.ApprovedAt,
		UploadedAt:       now,
		UpdatedAt:        now,
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		s.discard(ctx, stored)
		return UploadResult{}, fmt.Errorf("create document: %w", err)
	}

	if err := s.policy.IncrementDocumentUsage(ctx, subID); err != nil {
		return UploadResult{}, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("user_id", doc.UserID).
		Str("package", packageCode).
		Str("approval_status", string(doc.ApprovalStatus)).
		Msg("document uploaded")

	return UploadResult{Document: doc}, nil
}

// Get returns a document with its results. Users only see their own documents.
func (s *DocumentService) Get(ctx context.Context, actor models.User, documentID string) (DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return DocumentDetail{}, ErrDocumentNotFound
		}
		return DocumentDetail{}, fmt.Errorf("get document: %w", err)
	}
	if !canAccess(actor, doc) {
		return DocumentDetail{}, ErrDocumentForbidden
	}

	detail := DocumentDetail{Document: doc}
	if a, err := s.docs.LatestAnalysis(ctx, doc.ID); err == nil {
		detail.Analysis = &a
	} else if !errors.Is(err, repository.ErrAnalysisNotFound) {
		return DocumentDetail{}, fmt.Errorf("latest analysis: %w", err)
	}
	if b, err := s.docs.LatestBypass(ctx, doc.ID); err == nil {
		detail.Bypass = &b
	} else if !errors.Is(err, repository.ErrBypassNotFound) {
		return DocumentDetail{}, fmt.Errorf("latest bypass: %w", err)
	}
	return detail, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Document, error) {
	return s.docs.ListByUser(ctx, userID, limit, offset)
}

func (s *DocumentService) ListAll(ctx context.Context, limit, offset int) ([]models.Document, error) {
	return s.docs.List(ctx, limit, offset)
}

func canAccess(actor models.User, doc models.Document) bool {
	return actor.Role == models.UserRoleAdmin || actor.ID == doc.UserID
}

// discard removes objects written for an upload that was not persisted.
func (s *DocumentService) discard(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.files.Delete(ctx, p); err != nil {
			s.log.Error().Err(err).Str("path", p).Msg("remove orphaned object")
		}
	}
}
