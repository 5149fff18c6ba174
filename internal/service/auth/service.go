package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/pkg/util"
)

const minPasswordLength = 8

// IdentityVerifier checks a third-party ID token and returns the identity in it.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*GoogleIdentity, error)
}

type Service struct {
	users     repository.UserStore
	google    IdentityVerifier
	jwtSecret string
	jwtTTL    time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(users repository.UserStore, google IdentityVerifier, jwtSecret string, jwtTTL time.Duration, logger *zap.Logger) *Service {
	if jwtTTL <= 0 {
		jwtTTL = 7 * 24 * time.Hour
	}
	return &Service{
		users:     users,
		google:    google,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// Session is returned by every sign-in path.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a password user and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", model.ErrValidation, minPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email %s: %w", email, model.ErrConflict)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", u.ID))
	return s.session(u)
}

// Login checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("invalid email or password: %w", model.ErrUnauthorized)
		}
		return nil, err
	}
	if u.PasswordHash == "" || !util.CheckPassword(password, u.PasswordHash) {
		return nil, fmt.Errorf("invalid email or password: %w", model.ErrUnauthorized)
	}
	return s.session(u)
}

// Google signs in with a Google ID token, creating the user on first use
// and linking the Google account to an existing email otherwise.
func (s *Service) Google(ctx context.Context, credential string) (*Session, error) {
	if s.google == nil {
		return nil, fmt.Errorf("google sign-in is not configured: %w", model.ErrUnauthorized)
	}
	if strings.TrimSpace(credential) == "" {
		return nil, fmt.Errorf("%w: credential is required", model.ErrValidation)
	}
	id, err := s.google.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(id.Email)
	now := s.now().UTC()
	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, model.ErrNotFound):
		u = &model.User{
			ID:        uuid.NewString(),
			Name:      id.Name,
			Email:     email,
			GoogleID:  id.Subject,
			Avatar:    id.Picture,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if u.Name == "" {
			u.Name = email
		}
		if err := s.users.Create(ctx, u); err != nil {
			return nil, err
		}
		s.logger.Info("User registered with Google", zap.String("user_id", u.ID))
	case err != nil:
		return nil, err
	default:
		if u.GoogleID != id.Subject || (u.Avatar == "" && id.Picture != "") {
			u.GoogleID = id.Subject
			if u.Avatar == "" {
				u.Avatar = id.Picture
			}
			u.UpdatedAt = now
			if err := s.users.Update(ctx, u); err != nil {
				return nil, err
			}
		}
	}
	return s.session(u)
}

// Me returns the user behind a verified session.
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) session(u *model.User) (*Session, error) {
	token, err := util.GenerateJWT(u.ID, u.Email, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: u}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", model.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", model.ErrValidation, raw)
	}
	return email, nil
}
