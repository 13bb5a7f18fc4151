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

type SubscriptionStore interface {
	FindActiveByUser(ctx context.Context, userID string, now time.Time) (models.Subscription, error)
	IncrementDocumentsUsed(ctx context.Context, id string) error
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}

// DocumentCheck describes an incoming document. PageCount and MIMEType are
// optional; zero values skip their checks.
type DocumentCheck struct {
	FileSize  int64
	PageCount *int
	MIMEType  string
}

// Admission is the outcome of a successful package validation.
type Admission struct {
	Subscription     models.Subscription
	Package          models.PackageFeatures
	RequiresApproval bool
}

// PolicyService enforces package quotas against a user's active subscription.
type PolicyService struct {
	subs    SubscriptionStore
	catalog map[string]models.PackageFeatures
	log     zerolog.Logger
	now     func() time.Time
}

func NewPolicyService(subs SubscriptionStore, catalog map[string]models.PackageFeatures, log zerolog.Logger) *PolicyService {
	return &PolicyService{
		subs:    subs,
		catalog: catalog,
		log:     log,
		now:     time.Now,
	}
}

// ActiveSubscription returns the user's usable subscription with the latest
// end date, or ErrNoActiveSubscription.
func (p *PolicyService) ActiveSubscription(ctx context.Context, userID string) (models.Subscription, error) {
	sub, err := p.subs.FindActiveByUser(ctx, userID, p.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return models.Subscription{}, ErrNoActiveSubscription
		}
		return models.Subscription{}, fmt.Errorf("find subscription: %w", err)
	}
	return sub, nil
}

func (p *PolicyService) Features(code string) (models.PackageFeatures, bool) {
	features, ok := p.catalog[code]
	return features, ok
}

// RequiresAdminApproval reports whether documents under code need review.
// Unknown packages require it.
func (p *PolicyService) RequiresAdminApproval(code string) bool {
	features, ok := p.catalog[code]
	if !ok {
		return true
	}
	return features.RequiresApproval
}

// ValidateDocument admits a document against the limits of the user's package.
// Size is compared in bytes, so a file of exactly the limit passes.
func (p *PolicyService) ValidateDocument(ctx context.Context, userID string, check DocumentCheck) (Admission, error) {
	sub, err := p.ActiveSubscription(ctx, userID)
	if err != nil {
		return Admission{}, err
	}

	features, ok := p.catalog[sub.PackageCode]
	if !ok {
		return Admission{}, fmt.Errorf("%w: %s", ErrUnknownPackage, sub.PackageCode)
	}

	quota := func(kind error, limit, actual int64) error {
		return &QuotaError{
			Err:         kind,
			PackageCode: features.Code,
			PackageName: features.Name,
			Limit:       limit,
			Actual:      actual,
		}
	}

	if features.MaxDocuments > 0 && sub.DocumentsUsed >= features.MaxDocuments {
		return Admission{}, quota(ErrDocumentQuotaExceeded, int64(features.MaxDocuments), int64(sub.DocumentsUsed))
	}

	if check.FileSize > features.MaxFileSizeBytes() {
		return Admission{}, quota(ErrFileSizeExceeded, features.MaxFileSizeBytes(), check.FileSize)
	}

	if check.PageCount != nil && features.MaxPages > 0 && *check.PageCount > features.MaxPages {
		return Admission{}, quota(ErrPageCountExceeded, int64(features.MaxPages), int64(*check.PageCount))
	}

	if check.MIMEType != "" && !features.AllowsType(check.MIMEType) {
		return Admission{}, fmt.Errorf("%w: %s", ErrDocumentTypeNotAllowed, check.MIMEType)
	}

	return Admission{
		Subscription:     sub,
		Package:          features,
		RequiresApproval: features.RequiresApproval,
	}, nil
}

// IncrementDocumentUsage counts one accepted document. Two concurrent uploads
// can both pass ValidateDocument before either increments.
func (p *PolicyService) IncrementDocumentUsage(ctx context.Context, subscriptionID string) error {
	if err := p.subs.IncrementDocumentsUsed(ctx, subscriptionID); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

func (p *PolicyService) ExpireSubscriptions(ctx context.Context) (int64, error) {
	return p.subs.ExpireEnded(ctx, p.now().UTC())
}
