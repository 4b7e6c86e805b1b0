package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/all-in-iam/internal/logging"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

// UserFinder looks users up by their exact email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        models.User
}

// Service authenticates users and verifies their session tokens.
type Service struct {
	users  UserFinder
	tokens *TokenManager
	logger *slog.Logger
	dummy  *dummyHasher
}

type Option func(*Service)

// WithHashCost matches the bcrypt cost used for stored passwords. Defaults to
// bcrypt.DefaultCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.dummy.cost = cost }
}

func NewService(users UserFinder, tokens *TokenManager, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		logger: logging.Resolve(logger),
		dummy:  &dummyHasher{cost: bcrypt.DefaultCost},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the credentials and issues a token whose subject is the user
// id and whose roles are the user's role names. An unknown email and a wrong
// password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.dummy.burnCompare(password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			s.logger.WarnContext(ctx, "stored password hash unusable", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return Session{}, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Generate(Payload{
		Subject: user.ID,
		Email:   user.Email,
		Roles:   user.RoleNames(),
	})
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, ExpiresAt: exp, User: user}, nil
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(_ context.Context, raw string) (Claims, error) {
	return s.tokens.Verify(raw)
}
