package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docgate/internal/models"
	"docgate/internal/repository"
)

type ApprovalStore interface {
	Approve(ctx context.Context, id string, approvedBy string, at time.Time) (models.Document, error)
	Reject(ctx context.Context, id string, rejectedBy string, reason string, at time.Time) (models.Document, error)
	ListByApprovalStatus(ctx context.Context, status models.ApprovalStatus, limit, offset int) ([]models.Document, error)
}

// AutoApprovalSource is read on every admission decision.
type AutoApprovalSource interface {
	AutoApprovalEnabled(ctx context.Context) (bool, error)
}

// Decision is the approval state assigned to a new document.
type Decision struct {
	RequiresApproval bool
	Status           models.ApprovalStatus
	ApprovedBy       *string
	ApprovedAt       *time.Time
}

// ApprovalService drives a document from PENDING to APPROVED or REJECTED.
// Both outcomes are terminal, and nothing returns a document to PENDING.
type ApprovalService struct {
	store    ApprovalStore
	settings AutoApprovalSource
	log      zerolog.Logger
	now      func() time.Time
}

func NewApprovalService(store ApprovalStore, settings AutoApprovalSource, log zerolog.Logger) *ApprovalService {
	return &ApprovalService{
		store:    store,
		settings: settings,
		log:      log,
		now:      time.Now,
	}
}

// InitialDecision picks the approval state of a new upload. Auto-approval
// wins over package review. A failed settings read is returned, never
// treated as approval.
func (a *ApprovalService) InitialDecision(ctx context.Context, packageRequiresApproval bool) (Decision, error) {
	auto, err := a.settings.AutoApprovalEnabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read auto-approval: %w", err)
	}

	switch {
	case auto:
		now := a.now().UTC()
		approver := models.SystemApprover
		return Decision{
			Status:     models.ApprovalStatusApproved,
			ApprovedBy: &approver,
			ApprovedAt: &now,
		}, nil
	case packageRequiresApproval:
		return Decision{
			RequiresApproval: true,
			Status:           models.ApprovalStatusPending,
		}, nil
	default:
		return Decision{Status: models.ApprovalStatusNotRequired}, nil
	}
}

func (a *ApprovalService) Approve(ctx context.Context, documentID string, adminID string) (models.Document, error) {
	doc, err := a.store.Approve(ctx, documentID, adminID, a.now().UTC())
	if err != nil {
		return models.Document{}, mapTransitionError(err)
	}
	a.log.Info().Str("document_id", documentID).Str("admin_id", adminID).Msg("document approved")
	return doc, nil
}

// Reject refuses a pending document. An empty reason is refused before
// anything is written.
func (a *ApprovalService) Reject(ctx context.Context, documentID string, adminID string, reason string) (models.Document, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Document{}, ErrInvalidRejection
	}

	doc, err := a.store.Reject(ctx, documentID, adminID, reason, a.now().UTC())
	if err != nil {
		return models.Document{}, mapTransitionError(err)
	}
	a.log.Info().
		Str("document_id", documentID).
		Str("admin_id", adminID).
		Str("reason", reason).
		Msg("document rejected")
	return doc, nil
}

func (a *ApprovalService) ListByStatus(ctx context.Context, status models.ApprovalStatus, limit, offset int) ([]models.Document, error) {
	return a.store.ListByApprovalStatus(ctx, status, limit, offset)
}

func mapTransitionError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDocumentNotFound):
		return ErrDocumentNotFound
	case errors.Is(err, repository.ErrDocumentStateChanged):
		return ErrInvalidTransition
	default:
		return fmt.Errorf("update approval: %w", err)
	}
}

// CheckDispatchable is the precondition for handing a document to the
// processor. Only APPROVED and NOT_REQUIRED pass, whatever the other fields say.
func CheckDispatchable(doc models.Document) error {
	switch doc.ApprovalStatus {
	case models.ApprovalStatusApproved, models.ApprovalStatusNotRequired:
		return nil
	case models.ApprovalStatusRejected:
		reason := ""
		if doc.RejectionReason != nil {
			reason = *doc.RejectionReason
		}
		return &ApprovalError{Status: doc.ApprovalStatus, Reason: reason}
	default:
		return &ApprovalError{Status: doc.ApprovalStatus}
	}
}
