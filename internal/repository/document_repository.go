package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docgate/internal/models"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentStateChanged means a conditional update found the row in a
	// different state than the one it was guarded on.
	ErrDocumentStateChanged = errors.New("document state changed")
	ErrAnalysisNotFound     = errors.New("analysis not found")
	ErrBypassNotFound       = errors.New("bypass history not found")
)

type DocumentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

const documentColumns = `
	id, user_id, subscription_id, original_document_id, title, original_filename, file_type,
	file_size, upload_path, pdf_path, pdf_filename, content_hash, page_count, word_count,
	character_count, package_code, status, requires_approval, approval_status, rejection_reason,
	approved_by, approved_at, is_duplicate, job_id, job_started_at, uploaded_at, updated_at`

func scanDocument(row pgx.Row) (models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.SubscriptionID,
		&doc.OriginalDocumentID,
		&doc.Title,
		&doc.OriginalFilename,
		&doc.FileType,
		&doc.FileSize,
		&doc.UploadPath,
		&doc.PDFPath,
		&doc.PDFFilename,
		&doc.ContentHash,
		&doc.PageCount,
		&doc.WordCount,
		&doc.CharacterCount,
		&doc.PackageCode,
		&doc.Status,
		&doc.RequiresApproval,
		&doc.ApprovalStatus,
		&doc.RejectionReason,
		&doc.ApprovedBy,
		&doc.ApprovedAt,
		&doc.IsDuplicate,
		&doc.JobID,
		&doc.JobStartedAt,
		&doc.UploadedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, ErrDocumentNotFound
	}
	return doc, err
}

func collectDocuments(rows pgx.Rows) ([]models.Document, error) {
	defer rows.Close()
	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func insertDocument(ctx context.Context, tx pgx.Tx, doc models.Document) error {
	const query = `
		INSERT INTO documents (
			id, user_id, subscription_id, original_document_id, title, original_filename, file_type,
			file_size, upload_path, pdf_path, pdf_filename, content_hash, page_count, word_count,
			character_count, package_code, status, requires_approval, approval_status, rejection_reason,
			approved_by, approved_at, is_duplicate, uploaded_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $24
		)
	`
	_, err := tx.Exec(ctx, query,
		doc.ID,
		doc.UserID,
		doc.SubscriptionID,
		doc.OriginalDocumentID,
		doc.Title,
		doc.OriginalFilename,
		doc.FileType,
		doc.FileSize,
		doc.UploadPath,
		doc.PDFPath,
		doc.PDFFilename,
		doc.ContentHash,
		doc.PageCount,
		doc.WordCount,
		doc.CharacterCount,
		doc.PackageCode,
		doc.Status,
		doc.RequiresApproval,
		doc.ApprovalStatus,
		doc.RejectionReason,
		doc.ApprovedBy,
		doc.ApprovedAt,
		doc.IsDuplicate,
		doc.UploadedAt,
	)
	return err
}

func upsertAnalysis(ctx context.Context, tx pgx.Tx, a models.DocumentAnalysis) error {
	if a.FlagTypes == nil {
		a.FlagTypes = []models.FlagType{}
	}
	const query = `
		INSERT INTO document_analyses (
			id, document_id, flag_count, flag_types, ocr_text, similarity_score,
			metadata, plagiarism_report, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id)
		DO UPDATE SET
			flag_count = EXCLUDED.flag_count,
			flag_types = EXCLUDED.flag_types,
			ocr_text = EXCLUDED.ocr_text,
			similarity_score = EXCLUDED.similarity_score,
			metadata = EXCLUDED.metadata,
			plagiarism_report = EXCLUDED.plagiarism_report,
			analyzed_at = EXCLUDED.analyzed_at
	`
	_, err := tx.Exec(ctx, query,
		a.ID,
		a.DocumentID,
		a.FlagCount,
		a.FlagTypes,
		a.OCRText,
		a.SimilarityScore,
		a.Metadata,
		a.PlagiarismReport,
		a.AnalyzedAt,
	)
	return err
}

func insertBypass(ctx context.Context, tx pgx.Tx, b models.BypassHistory) error {
	const query = `
		INSERT INTO bypass_histories (
			id, document_id, user_id, strategy, status, progress, output_path, output_filename,
			output_file_size, flags_removed, processing_time, success_rate, processor_response,
			configuration, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := tx.Exec(ctx, query,
		b.ID,
		b.DocumentID,
		b.UserID,
		b.Strategy,
		b.Status,
		b.Progress,
		b.OutputPath,
		b.OutputFilename,
		b.OutputFileSize,
		b.FlagsRemoved,
		b.ProcessingTime,
		b.SuccessRate,
		b.ProcessorResponse,
		b.Configuration,
		b.CompletedAt,
		b.CreatedAt,
	)
	return err
}

func (r *DocumentRepository) Create(ctx context.Context, doc models.Document) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertDocument(ctx, tx, doc)
	})
}

// CreateWithResults inserts doc together with copies of prior results so the
// new row is never visible without them.
func (r *DocumentRepository) CreateWithResults(ctx context.Context, doc models.Document, analysis *models.DocumentAnalysis, bypass *models.BypassHistory) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertDocument(ctx, tx, doc); err != nil {
			return err
		}
		if analysis != nil {
			if err := upsertAnalysis(ctx, tx, *analysis); err != nil {
				return err
			}
		}
		if bypass != nil {
			if err := insertBypass(ctx, tx, *bypass); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (models.Document, error) {
	query := `SELECT` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.pool.QueryRow(ctx, query, id))
}

// FindLatestOriginalByHash returns the user's most recent non-duplicate
// document with the given content hash.
func (r *DocumentRepository) FindLatestOriginalByHash(ctx context.Context, userID string, contentHash string) (models.Document, error) {
	query := `SELECT` + documentColumns + `
		FROM documents
		WHERE user_id = $1 AND content_hash = $2 AND NOT is_duplicate
		ORDER BY uploaded_at DESC
		LIMIT 1
	`
	return scanDocument(r.pool.QueryRow(ctx, query, userID, contentHash))
}

func (r *DocumentRepository) LatestAnalysis(ctx context.Context, documentID string) (models.DocumentAnalysis, error) {
	const query = `
		SELECT id, document_id, flag_count, flag_types, ocr_text, similarity_score,
		       metadata, plagiarism_report, analyzed_at
		FROM document_analyses
		WHERE document_id = $1
		ORDER BY analyzed_at DESC
		LIMIT 1
	`
	var a models.DocumentAnalysis
	err := r.pool.QueryRow(ctx, query, documentID).Scan(
		&a.ID,
		&a.DocumentID,
		&a.FlagCount,
		&a.FlagTypes,
		&a.OCRText,
		&a.SimilarityScore,
		&a.Metadata,
		&a.PlagiarismReport,
		&a.AnalyzedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DocumentAnalysis{}, ErrAnalysisNotFound
	}
	return a, err
}

func (r *DocumentRepository) LatestBypass(ctx context.Context, documentID string) (models.BypassHistory, error) {
	const query = `
		SELECT id, document_id, user_id, strategy, status, progress, output_path, output_filename,
		       output_file_size, flags_removed, processing_time, success_rate, processor_response,
		       configuration, completed_at, created_at
		FROM bypass_histories
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var b models.BypassHistory
	err := r.pool.QueryRow(ctx, query, documentID).Scan(
		&b.ID,
		&b.DocumentID,
		&b.UserID,
		&b.Strategy,
		&b.Status,
		&b.Progress,
		&b.OutputPath,
		&b.OutputFilename,
		&b.OutputFileSize,
		&b.FlagsRemoved,
		&b.ProcessingTime,
		&b.SuccessRate,
		&b.ProcessorResponse,
		&b.Configuration,
		&b.CompletedAt,
		&b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BypassHistory{}, ErrBypassNotFound
	}
	return b, err
}

// transition runs a guarded single-row update. When nothing matched it tells
// a missing row apart from one in the wrong state.
func (r *DocumentRepository) transition(ctx context.Context, id string, query string, args ...any) (models.Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, query+` RETURNING`+documentColumns, args...))
	if errors.Is(err, ErrDocumentNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return models.Document{}, getErr
		}
		return models.Document{}, ErrDocumentStateChanged
	}
	return doc, err
}

func (r *DocumentRepository) Approve(ctx context.Context, id string, approvedBy string, at time.Time) (models.Document, error) {
	const query = `
		UPDATE documents
		SET approval_status = 'APPROVED',
		    approved_by = $2,
		    approved_at = $3,
		    status = 'PENDING',
		    updated_at = $3
		WHERE id = $1 AND approval_status = 'PENDING'
	`
	return r.transition(ctx, id, query, id, approvedBy, at)
}

func (r *DocumentRepository) Reject(ctx context.Context, id string, rejectedBy string, reason string, at time.Time) (models.Document, error) {
	const query = `
		UPDATE documents
		SET approval_status = 'REJECTED',
		    approved_by = $2,
		    approved_at = $3,
		    rejection_reason = $4,
		    status = 'FAILED',
		    updated_at = $3
		WHERE id = $1 AND approval_status = 'PENDING'
	`
	return r.transition(ctx, id, query, id, rejectedBy, at, reason)
}

// MarkAnalyzing claims a document for dispatch. The guard repeats the
// approval gate so a concurrent state change cannot slip through.
func (r *DocumentRepository) MarkAnalyzing(ctx context.Context, id string, at time.Time) (models.Document, error) {
	const query = `
		UPDATE documents
		SET status = 'ANALYZING', job_started_at = $2, updated_at = $2
		WHERE id = $1
		  AND status NOT IN ('ANALYZING', 'PROCESSING')
		  AND approval_status IN ('APPROVED', 'NOT_REQUIRED')
		  AND NOT is_duplicate
	`
	return r.transition(ctx, id, query, id, at)
}

func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string, jobID string) error {
	const query = `
		UPDATE documents
		SET status = 'PROCESSING', job_id = $2, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, jobID)
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `
		UPDATE documents SET status = 'FAILED', updated_at = NOW() WHERE id = $1
	`
	return r.exec(ctx, query, id)
}

// Complete stores the processor's results and finishes the document.
func (r *DocumentRepository) Complete(ctx context.Context, id string, analysis models.DocumentAnalysis, bypass models.BypassHistory) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := upsertAnalysis(ctx, tx, analysis); err != nil {
			return err
		}
		if err := insertBypass(ctx, tx, bypass); err != nil {
			return err
		}
		const query = `
			UPDATE documents SET status = 'COMPLETED', updated_at = NOW() WHERE id = $1
		`
		_, err := tx.Exec(ctx, query, id)
		return err
	})
}

func (r *DocumentRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// ListByApprovalStatus lists documents that went through review with the given status.
func (r *DocumentRepository) ListByApprovalStatus(ctx context.Context, status models.ApprovalStatus, limit, offset int) ([]models.Document, error) {
	query := `SELECT` + documentColumns + `
		FROM documents
		WHERE requires_approval AND approval_status = $1
		ORDER BY uploaded_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Document, error) {
	query := `SELECT` + documentColumns + `
		FROM documents
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	query := `SELECT` + documentColumns + `
		FROM documents
		ORDER BY uploaded_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// ListProcessing returns documents handed to the processor that have a job id.
func (r *DocumentRepository) ListProcessing(ctx context.Context, limit int) ([]models.Document, error) {
	query := `SELECT` + documentColumns + `
		FROM documents
		WHERE status = 'PROCESSING' AND job_id IS NOT NULL
		ORDER BY updated_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) DuplicateStats(ctx context.Context, userID string) (models.DuplicateStats, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_duplicate),
		       COUNT(*) FILTER (WHERE NOT is_duplicate)
		FROM documents WHERE user_id = $1
	`
	var stats models.DuplicateStats
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&stats.TotalDocuments,
		&stats.DuplicateDocuments,
		&stats.OriginalDocuments,
	); err != nil {
		return models.DuplicateStats{}, err
	}
	if stats.TotalDocuments > 0 {
		stats.DuplicateRate = float64(stats.DuplicateDocuments) / float64(stats.TotalDocuments) * 100
	}
	return stats, nil
}
