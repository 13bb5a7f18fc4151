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
	"docgate/internal/security"
)

type SessionStore interface {
	Rotate(ctx context.Context, session models.Session) error
	FindActiveByToken(ctx context.Context, userID string, tokenHash []byte) (models.Session, error)
	GetByID(ctx context.Context, id string) (models.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error)
	Deactivate(ctx context.Context, id string) error
	DeactivateAll(ctx context.Context, userID string, exceptID string) (int64, error)
	Touch(ctx context.Context, id string, at time.Time) error
	DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionService keeps one active, device-bound session per user.
type SessionService struct {
	store    SessionStore
	lifetime time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewSessionService(store SessionStore, lifetime time.Duration, log zerolog.Logger) *SessionService {
	return &SessionService{
		store:    store,
		lifetime: lifetime,
		log:      log,
		now:      time.Now,
	}
}

func (s *SessionService) Lifetime() time.Duration {
	return s.lifetime
}

// CreateSession binds sessionToken to device and makes it the user's only
// active session. Prior sessions are deactivated in the same write.
func (s *SessionService) CreateSession(ctx context.Context, userID string, sessionToken string, device security.Device) (models.Session, error) {
	now := s.now().UTC()
	browser, os := security.ParseAgent(device.UserAgent)

	session := models.Session{
		ID:               ids.New(),
		UserID:           userID,
		SessionTokenHash: security.HashSessionToken(sessionToken),
		DeviceID:         device.Fingerprint,
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		Browser:          browser,
		OS:               os,
		IsActive:         true,
		LastActivity:     now,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.lifetime),
	}

	if err := s.store.Rotate(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("rotate session: %w", err)
	}

	s.log.Info().
		Str("user_id", userID).
		Str("session_id", session.ID).
		Str("browser", browser).
		Str("os", os).
		Msg("session created")

	return session, nil
}

// ValidateSession checks the session against the requesting device and the
// idle lifetime. A mismatch or an expiry revokes the session before the
// error is returned.
func (s *SessionService) ValidateSession(ctx context.Context, userID string, sessionToken string, device security.Device) (models.Session, error) {
	session, err := s.store.FindActiveByToken(ctx, userID, security.HashSessionToken(sessionToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}

	if session.DeviceID != device.Fingerprint {
		if err := s.store.Deactivate(ctx, session.ID); err != nil {
			return models.Session{}, fmt.Errorf("revoke session: %w", err)
		}
		s.log.Warn().
			Str("user_id", userID).
			Str("session_id", session.ID).
			Str("ip", device.IPAddress).
			Str("stored_ip", session.IPAddress).
			Msg("device mismatch, possible session theft; session revoked")
		return models.Session{}, ErrDeviceMismatch
	}

	now := s.now().UTC()
	if now.Sub(session.LastActivity) > s.lifetime {
		if err := s.store.Deactivate(ctx, session.ID); err != nil {
			return models.Session{}, fmt.Errorf("expire session: %w", err)
		}
		s.log.Info().
			Str("user_id", userID).
			Str("session_id", session.ID).
			Msg("session expired")
		return models.Session{}, ErrSessionExpired
	}

	if err := s.store.Touch(ctx, session.ID, now); err != nil {
		return models.Session{}, fmt.Errorf("touch session: %w", err)
	}
	session.LastActivity = now

	return session, nil
}

func (s *SessionService) TerminateSession(ctx context.Context, sessionID string) error {
	if err := s.store.Deactivate(ctx, sessionID); err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	return nil
}

// TerminateOwnedSession terminates sessionID only if it belongs to userID.
func (s *SessionService) TerminateOwnedSession(ctx context.Context, userID string, sessionID string) error {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	return s.TerminateSession(ctx, sessionID)
}

// TerminateAllSessions deactivates every active session of the user except
// exceptID, which may be empty.
func (s *SessionService) TerminateAllSessions(ctx context.Context, userID string, exceptID string) (int64, error) {
	n, err := s.store.DeactivateAll(ctx, userID, exceptID)
	if err != nil {
		return 0, fmt.Errorf("terminate sessions: %w", err)
	}
	return n, nil
}

func (s *SessionService) ListActive(ctx context.Context, userID string) ([]models.Session, error) {
	return s.store.ListActiveByUser(ctx, userID)
}

// SweepIdle revokes sessions idle past the lifetime so stale rows do not
// linger until their owner's next request.
func (s *SessionService) SweepIdle(ctx context.Context) (int64, error) {
	return s.store.DeactivateIdle(ctx, s.now().UTC().Add(-s.lifetime))
}
