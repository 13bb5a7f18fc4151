package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"docgate/internal/models"
	"docgate/internal/repository"
)

type DispatchStore interface {
	GetByID(ctx context.Context, id string) (models.Document, error)
	MarkAnalyzing(ctx context.Context, id string, at time.Time) (models.Document, error)
	MarkFailed(ctx context.Context, id string) error
}

// JobQueue hands a document to the worker that talks to the processor.
type JobQueue interface {
	EnqueueDispatch(ctx context.Context, documentID string) error
}

// DispatchService sends admitted documents for processing. The approval
// gate is checked on every call.
type DispatchService struct {
	docs  DispatchStore
	files FileStore
	queue JobQueue
	log   zerolog.Logger
	now   func() time.Time
}

func NewDispatchService(docs DispatchStore, files FileStore, queue JobQueue, log zerolog.Logger) *DispatchService {
	return &DispatchService{
		docs:  docs,
		files: files,
		queue: queue,
		log:   log,
		now:   time.Now,
	}
}

func (s *DispatchService) Dispatch(ctx context.Context, actor models.User, documentID string) (models.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return models.Document{}, ErrDocumentNotFound
		}
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	if !canAccess(actor, doc) {
		return models.Document{}, ErrDocumentForbidden
	}

	if err := CheckDispatchable(doc); err != nil {
		s.log.Warn().
			Str("document_id", doc.ID).
			Str("user_id", actor.ID).
			Str("approval_status", string(doc.ApprovalStatus)).
			Msg("dispatch refused by approval gate")
		return models.Document{}, err
	}
	if doc.IsDuplicate {
		return models.Document{}, ErrDuplicateDispatch
	}
	if doc.Status == models.DocumentStatusAnalyzing || doc.Status == models.DocumentStatusProcessing {
		return models.Document{}, ErrDocumentBusy
	}

	if doc.UploadPath == "" {
		return models.Document{}, ErrMissingFiles
	}
	ok, err := s.files.Exists(ctx, doc.UploadPath)
	if err != nil {
		return models.Document{}, fmt.Errorf("check document file: %w", err)
	}
	if !ok {
		if err := s.docs.MarkFailed(ctx, doc.ID); err != nil {
			s.log.Error().Err(err).Str("document_id", doc.ID).Msg("mark failed")
		}
		return models.Document{}, ErrMissingFiles
	}

	updated, err := s.docs.MarkAnalyzing(ctx, doc.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrDocumentStateChanged) {
			return models.Document{}, ErrDocumentBusy
		}
		return models.Document{}, fmt.Errorf("mark analyzing: %w", err)
	}

	if err := s.queue.EnqueueDispatch(ctx, doc.ID); err != nil {
		if markErr := s.docs.MarkFailed(ctx, doc.ID); markErr != nil {
			s.log.Error().Err(markErr).Str("document_id", doc.ID).Msg("mark failed")
		}
		return models.Document{}, fmt.Errorf("enqueue dispatch: %w", err)
	}

	s.log.Info().Str("document_id", doc.ID).Str("user_id", actor.ID).Msg("document dispatched")
	return updated, nil
}
