package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog"

	"docgate/internal/ids"
	"docgate/internal/models"
	"docgate/internal/processor"
	"docgate/internal/queue"
	"docgate/internal/repository"
	"docgate/internal/service"
)

const defaultStrategy = "default"

type DocumentStore interface {
	GetByID(ctx context.Context, id string) (models.Document, error)
	MarkProcessing(ctx context.Context, id string, jobID string) error
	MarkFailed(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, analysis models.DocumentAnalysis, bypass models.BypassHistory) error
}

type FileReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

type JobClient interface {
	Submit(ctx context.Context, sub processor.Submission) (processor.Job, error)
	Status(ctx context.Context, jobID string) (processor.JobStatus, error)
}

// Processor executes dispatch and poll tasks from the document stream.
type Processor struct {
	docs   DocumentStore
	files  FileReader
	client JobClient
	logger zerolog.Logger
	now    func() time.Time
}

func NewProcessor(docs DocumentStore, files FileReader, client JobClient, logger zerolog.Logger) *Processor {
	return &Processor{
		docs:   docs,
		files:  files,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, task queue.Task) error {
	switch task.Type {
	case queue.TaskDispatch:
		return p.handleDispatch(ctx, task.DocumentID)
	case queue.TaskPoll:
		return p.handlePoll(ctx, task.DocumentID)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		return nil
	}
}

// handleDispatch submits an ANALYZING document. The approval gate is checked
// again because the stream entry may be older than the document's state.
func (p *Processor) handleDispatch(ctx context.Context, documentID string) error {
	doc, err := p.load(ctx, documentID)
	if err != nil || doc == nil {
		return err
	}
	if doc.Status != models.DocumentStatusAnalyzing {
		p.logger.Debug().Str("document_id", doc.ID).Str("status", string(doc.Status)).Msg("skip dispatch")
		return nil
	}
	if err := service.CheckDispatchable(*doc); err != nil {
		p.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("dispatch blocked by approval gate")
		return p.fail(ctx, doc.ID)
	}

	sub, err := p.submission(ctx, *doc)
	if err != nil {
		p.logger.Error().Err(err).Str("document_id", doc.ID).Msg("read document files")
		return p.fail(ctx, doc.ID)
	}

	job, err := p.client.Submit(ctx, sub)
	if err != nil {
		p.logger.Error().Err(err).Str("document_id", doc.ID).Msg("submit to processor")
		return p.fail(ctx, doc.ID)
	}

	if err := p.docs.MarkProcessing(ctx, doc.ID, job.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	p.logger.Info().Str("document_id", doc.ID).Str("job_id", job.ID).Msg("document submitted")
	return nil
}

func (p *Processor) submission(ctx context.Context, doc models.Document) (processor.Submission, error) {
	data, err := p.files.Get(ctx, doc.UploadPath)
	if err != nil {
		return processor.Submission{}, err
	}
	sub := processor.Submission{
		Document:     data,
		DocumentName: doc.OriginalFilename,
	}
	if doc.PDFPath != nil && *doc.PDFPath != "" {
		pdf, err := p.files.Get(ctx, *doc.PDFPath)
		if err != nil {
			return processor.Submission{}, err
		}
		sub.TurnitinPDF = pdf
		sub.TurnitinName = path.Base(*doc.PDFPath)
		if doc.PDFFilename != nil && *doc.PDFFilename != "" {
			sub.TurnitinName = *doc.PDFFilename
		}
	}
	return sub, nil
}

func (p *Processor) handlePoll(ctx context.Context, documentID string) error {
	doc, err := p.load(ctx, documentID)
	if err != nil || doc == nil {
		return err
	}
	if doc.Status != models.DocumentStatusProcessing || doc.JobID == nil {
		return nil
	}

	status, err := p.client.Status(ctx, *doc.JobID)
	if err != nil {
		var se *processor.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			p.logger.Warn().Str("document_id", doc.ID).Str("job_id", *doc.JobID).Msg("processor lost job")
			return p.fail(ctx, doc.ID)
		}
		return fmt.Errorf("job status: %w", err)
	}

	switch status.Status {
	case processor.StatusCompleted:
		analysis, bypass := p.results(*doc, status)
		if err := p.docs.Complete(ctx, doc.ID, analysis, bypass); err != nil {
			return fmt.Errorf("complete document: %w", err)
		}
		p.logger.Info().
			Str("document_id", doc.ID).
			Int("flags_removed", bypass.FlagsRemoved).
			Msg("document completed")
		return nil
	case processor.StatusFailed:
		p.logger.Warn().Str("document_id", doc.ID).Str("error", status.Error).Msg("processor job failed")
		return p.fail(ctx, doc.ID)
	default:
		p.logger.Debug().Str("document_id", doc.ID).Int("progress", status.Progress).Msg("job in progress")
		return nil
	}
}

func (p *Processor) results(doc models.Document, status processor.JobStatus) (models.DocumentAnalysis, models.BypassHistory) {
	now := p.now().UTC()
	result := processor.Result{}
	if status.Result != nil {
		result = *status.Result
	}

	analysis := models.DocumentAnalysis{
		ID:              ids.New(),
		DocumentID:      doc.ID,
		FlagCount:       result.FlagCount,
		FlagTypes:       models.CopyFlagTypes(result.FlagTypes),
		SimilarityScore: result.SimilarityScore,
		Metadata:        models.AnalysisMetadata{Processor: "external"},
		AnalyzedAt:      now,
	}
	if result.SimilarityScore != nil {
		analysis.PlagiarismReport.OverallSimilarity = *result.SimilarityScore
	}
	if doc.PageCount != nil {
		analysis.Metadata.SourcePages = *doc.PageCount
	}

	bypass := models.BypassHistory{
		ID:             ids.New(),
		DocumentID:     doc.ID,
		UserID:         doc.UserID,
		Strategy:       defaultStrategy,
		Status:         models.BypassStatusCompleted,
		Progress:       100,
		FlagsRemoved:   result.FlagsRemoved,
		ProcessingTime: result.ProcessingTime,
		SuccessRate:    result.SuccessRate,
		ProcessorResponse: models.ProcessorResponse{
			JobID:    *doc.JobID,
			Status:   status.Status,
			Progress: status.Progress,
		},
		Configuration: models.BypassConfiguration{Strategy: defaultStrategy},
		CompletedAt:   &now,
		CreatedAt:     now,
	}
	if result.OutputPath != "" {
		bypass.OutputPath = &result.OutputPath
	}
	if result.OutputFilename != "" {
		bypass.OutputFilename = &result.OutputFilename
	}
	if result.OutputFileSize > 0 {
		bypass.OutputFileSize = &result.OutputFileSize
	}
	return analysis, bypass
}

// Abandon fails a document whose task kept failing. Documents that already
// left the in-flight states are left alone.
func (p *Processor) Abandon(ctx context.Context, task queue.Task) error {
	doc, err := p.load(ctx, task.DocumentID)
	if err != nil || doc == nil {
		return err
	}
	if doc.Status != models.DocumentStatusAnalyzing && doc.Status != models.DocumentStatusProcessing {
		return nil
	}
	p.logger.Warn().Str("document_id", doc.ID).Str("type", task.Type).Msg("task abandoned, failing document")
	return p.fail(ctx, doc.ID)
}

// load returns nil without error for documents deleted since enqueue.
func (p *Processor) load(ctx context.Context, id string) (*models.Document, error) {
	doc, err := p.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			p.logger.Warn().Str("document_id", id).Msg("task for unknown document")
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (p *Processor) fail(ctx context.Context, id string) error {
	if err := p.docs.MarkFailed(ctx, id); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
