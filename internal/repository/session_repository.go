package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docgate/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	id, user_id, session_token_hash, device_id, ip_address, user_agent, browser, os,
	is_active, last_activity, created_at, expires_at`

func scanSession(row pgx.Row) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.SessionTokenHash,
		&session.DeviceID,
		&session.IPAddress,
		&session.UserAgent,
		&session.Browser,
		&session.OS,
		&session.IsActive,
		&session.LastActivity,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// Rotate deactivates every active session of the user and inserts session as
// the only active one, in a single transaction. A concurrent login that wins
// the one-active-session index is deactivated by a single retry, so the last
// writer wins.
func (r *SessionRepository) Rotate(ctx context.Context, session models.Session) error {
	err := r.rotate(ctx, session)
	if isUniqueViolation(err) {
		err = r.rotate(ctx, session)
	}
	return err
}

func (r *SessionRepository) rotate(ctx context.Context, session models.Session) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const deactivate = `
			UPDATE user_sessions
			SET is_active = FALSE
			WHERE user_id = $1 AND is_active
		`
		if _, err := tx.Exec(ctx, deactivate, session.UserID); err != nil {
			return err
		}

		const insert = `
			INSERT INTO user_sessions (
				id, user_id, session_token_hash, device_id, ip_address, user_agent, browser, os,
				is_active, last_activity, created_at, expires_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11
			)
		`
		_, err := tx.Exec(ctx, insert,
			session.ID,
			session.UserID,
			session.SessionTokenHash,
			session.DeviceID,
			session.IPAddress,
			session.UserAgent,
			session.Browser,
			session.OS,
			session.LastActivity,
			session.CreatedAt,
			session.ExpiresAt,
		)
		return err
	})
}

func (r *SessionRepository) FindActiveByToken(ctx context.Context, userID string, tokenHash []byte) (models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND session_token_hash = $2 AND is_active
	`
	return scanSession(r.pool.QueryRow(ctx, query, userID, tokenHash))
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM user_sessions
		WHERE id = $1
	`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND is_active
		ORDER BY last_activity DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Deactivate marks one session inactive. Repeated calls are no-ops.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE user_sessions SET is_active = FALSE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// DeactivateAll marks every active session of userID inactive except
// exceptID, which may be empty.
func (r *SessionRepository) DeactivateAll(ctx context.Context, userID string, exceptID string) (int64, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE user_id = $1 AND is_active AND ($2 = '' OR id <> $2)
	`
	cmd, err := r.pool.Exec(ctx, query, userID, exceptID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE user_sessions SET last_activity = $2 WHERE id = $1 AND is_active`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

// DeactivateIdle revokes active sessions whose last activity is before cutoff.
func (r *SessionRepository) DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE is_active AND last_activity < $1
	`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
