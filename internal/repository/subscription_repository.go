package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docgate/internal/models"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// FindActiveByUser returns the usable subscription with the latest end date.
func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) (models.Subscription, error) {
	const query = `
		SELECT id, user_id, package_code, status, is_active, start_date, end_date,
		       documents_used, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1 AND status = 'ACTIVE' AND is_active AND end_date >= $2
		ORDER BY end_date DESC
		LIMIT 1
	`

	var sub models.Subscription
	err := r.pool.QueryRow(ctx, query, userID, now).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PackageCode,
		&sub.Status,
		&sub.IsActive,
		&sub.StartDate,
		&sub.EndDate,
		&sub.DocumentsUsed,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Subscription{}, ErrSubscriptionNotFound
	}
	return sub, err
}

// IncrementDocumentsUsed bumps the counter in a single-row update. It does
// not check the package limit.
func (r *SubscriptionRepository) IncrementDocumentsUsed(ctx context.Context, id string) error {
	const query = `
		UPDATE subscriptions
		SET documents_used = documents_used + 1, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ExpireEnded flips subscriptions past their end date to EXPIRED.
func (r *SubscriptionRepository) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE subscriptions
		SET status = 'EXPIRED', is_active = FALSE, updated_at = NOW()
		WHERE status = 'ACTIVE' AND end_date < $1
	`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
