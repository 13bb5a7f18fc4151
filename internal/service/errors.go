package service

import (
	"errors"
	"fmt"

	"docgate/internal/models"
)

// Session errors. Each one means the caller must log in again.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDeviceMismatch  = errors.New("device mismatch detected")
	ErrSessionExpired  = errors.New("session expired")
)

// Package policy errors.
var (
	ErrNoActiveSubscription   = errors.New("no active subscription")
	ErrUnknownPackage         = errors.New("unknown package")
	ErrFileSizeExceeded       = errors.New("file size exceeds package limit")
	ErrPageCountExceeded      = errors.New("page count exceeds package limit")
	ErrDocumentQuotaExceeded  = errors.New("document quota exhausted")
	ErrDocumentTypeNotAllowed = errors.New("document type not allowed by package")
)

// Approval and dispatch errors.
var (
	ErrApprovalRequired   = errors.New("approval required")
	ErrInvalidRejection   = errors.New("rejection reason is required")
	ErrInvalidTransition  = errors.New("document is not awaiting approval")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentForbidden  = errors.New("document belongs to another user")
	ErrDocumentBusy       = errors.New("document is already being processed")
	ErrDuplicateDispatch  = errors.New("duplicate documents reuse prior results")
	ErrMissingFiles       = errors.New("document file is missing from storage")
	ErrOriginalNotFound   = errors.New("original document not found")
	ErrUnsupportedFile    = errors.New("unsupported file type")
	ErrEmptyFile          = errors.New("empty file")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
	ErrEmailTaken         = errors.New("email or username already registered")
	ErrLoginLocked        = errors.New("too many failed login attempts")
)

// QuotaError reports which package limit a document broke so the user can
// tell which package to upgrade to.
type QuotaError struct {
	Err         error
	PackageCode string
	PackageName string
	// Limit and Actual are in the same unit.
	Limit       int64
	Actual      int64
}

func (e *QuotaError) Error() string {
	switch e.Err {
	case ErrFileSizeExceeded:
		return fmt.Sprintf("file size exceeds the %d MB limit of %s", e.Limit/(1024*1024), e.PackageName)
	case ErrPageCountExceeded:
		return fmt.Sprintf("page count (%d) exceeds the %d page limit of %s", e.Actual, e.Limit, e.PackageName)
	case ErrDocumentQuotaExceeded:
		return fmt.Sprintf("the %d document limit of %s has been reached", e.Limit, e.PackageName)
	default:
		return fmt.Sprintf("%s: %v", e.PackageName, e.Err)
	}
}

func (e *QuotaError) Unwrap() error { return e.Err }

// ApprovalError is returned when dispatch is attempted on a document that
// has not been admitted.
type ApprovalError struct {
	Status models.ApprovalStatus
	Reason string
}

func (e *ApprovalError) Error() string {
	if e.Status == models.ApprovalStatusRejected {
		reason := e.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return fmt.Sprintf("document was rejected: %s", reason)
	}
	return fmt.Sprintf("document is awaiting approval (status %s)", e.Status)
}

func (e *ApprovalError) Unwrap() error { return ErrApprovalRequired }
