package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docgate/internal/config"
	"docgate/internal/ids"
	"docgate/internal/models"
	"docgate/internal/repository"
	"docgate/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByIdentifier(ctx context.Context, identifier string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// LoginLimiter tracks failed logins per identifier.
type LoginLimiter interface {
	Locked(ctx context.Context, identifier string) (bool, error)
	RecordFailure(ctx context.Context, identifier string) error
	Reset(ctx context.Context, identifier string) error
}

type AuthService struct {
	users    UserStore
	sessions *SessionService
	guard    LoginLimiter
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	sessions *SessionService,
	guard LoginLimiter,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		guard:    guard,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
	Name     string
	Device   security.Device
}

type AuthResult struct {
	AccessToken string
	Session     models.Session
	User        models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Username = strings.TrimSpace(input.Username)
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("email and password required")
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(input.Name),
		Role:         models.UserRoleUser,
		IsActive:     true,
	}
	if input.Username != "" {
		user.Username = &input.Username
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserDuplicate) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}

	return s.startSession(ctx, user, input.Device)
}

type LoginInput struct {
	Identifier string
	Password   string
	Device     security.Device
}

// Login accepts an email or a username. A successful login replaces every
// other session the user holds.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	}

	locked, err := s.guard.Locked(ctx, identifier)
	if err != nil {
		s.log.Warn().Err(err).Msg("login guard unavailable")
	}
	if locked {
		return AuthResult{}, ErrLoginLocked
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recordFailure(ctx, identifier)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		s.recordFailure(ctx, identifier)
		return AuthResult{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return AuthResult{}, ErrUserSuspended
	}

	if err := s.guard.Reset(ctx, identifier); err != nil {
		s.log.Warn().Err(err).Msg("reset login guard")
	}

	return s.startSession(ctx, user, input.Device)
}

func (s *AuthService) recordFailure(ctx context.Context, identifier string) {
	if err := s.guard.RecordFailure(ctx, identifier); err != nil {
		s.log.Warn().Err(err).Msg("record login failure")
	}
}

func (s *AuthService) startSession(ctx context.Context, user models.User, device security.Device) (AuthResult, error) {
	sessionToken, _, err := security.GenerateSessionToken()
	if err != nil {
		return AuthResult{}, err
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, sessionToken, device)
	if err != nil {
		return AuthResult{}, err
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		session.ID,
		sessionToken,
		string(user.Role),
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken: accessToken,
		Session:     session,
		User:        user,
	}, nil
}

// Authenticate resolves a parsed access token to a live user and session.
// It runs on every authenticated request.
func (s *AuthService) Authenticate(ctx context.Context, claims *security.AccessClaims, device security.Device) (models.User, models.Session, error) {
	session, err := s.sessions.ValidateSession(ctx, claims.UserID, claims.SessionToken, device)
	if err != nil {
		return models.User{}, models.Session{}, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, models.Session{}, ErrSessionNotFound
		}
		return models.User{}, models.Session{}, err
	}
	if !user.IsActive {
		return models.User{}, models.Session{}, ErrUserSuspended
	}
	return user, session, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.TerminateSession(ctx, sessionID)
}

// SetUserActive suspends or reactivates a user. Suspension ends every
// session the user holds.
func (s *AuthService) SetUserActive(ctx context.Context, userID string, active bool, adminID string) error {
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return err
	}

	if !active {
		n, err := s.sessions.TerminateAllSessions(ctx, userID, "")
		if err != nil {
			return fmt.Errorf("terminate sessions: %w", err)
		}
		s.log.Warn().
			Str("user_id", userID).
			Str("admin_id", adminID).
			Int64("sessions_ended", n).
			Msg("user suspended")
		return nil
	}

	s.log.Info().Str("user_id", userID).Str("admin_id", adminID).Msg("user reactivated")
	return nil
}

// SessionDeadline is when the session expires if left idle from now.
func (s *AuthService) SessionDeadline(session models.Session) time.Time {
	return session.LastActivity.Add(s.sessions.Lifetime())
}
