// Package users implements user administration and bootstrap seeding.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/logging"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

// ErrConfiguration means reference data the service relies on, such as the
// default roles, is missing from storage.
var ErrConfiguration = errors.New("configuration error")

// CreateInput holds the fields needed to register a user.
type CreateInput struct {
	Name     string
	Email    string
	Password string
}

// UpdateInput holds optional changes. Nil fields are left untouched.
type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
	Roles    *[]string
}

// Service manages user accounts.
type Service struct {
	store    storage.Store
	ids      storage.IDGenerator
	hashCost int
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logging.Resolve(l) }
}

func NewService(store storage.Store, ids storage.IDGenerator, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ids:    ids,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a standard user.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.User, error) {
	return s.CreateWithRole(ctx, in, models.RoleUser)
}

// CreateWithRole registers a user holding exactly the named role. An email
// already in use yields storage.ErrAlreadyExists and a missing role yields
// ErrConfiguration.
func (s *Service) CreateWithRole(ctx context.Context, in CreateInput, roleName string) (models.User, error) {
	email := strings.TrimSpace(in.Email)
	hash, err := auth.HashPassword(in.Password, s.hashCost)
	if err != nil {
		return models.User{}, err
	}

	var created models.User
	err = s.store.WithinUnitOfWork(ctx, func(r storage.Repositories) error {
		if _, err := r.Users().FindByEmail(ctx, email); err == nil {
			return fmt.Errorf("user %s: %w", email, storage.ErrAlreadyExists)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("find user: %w", err)
		}

		role, err := r.Roles().FindByName(ctx, roleName)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.ErrorContext(ctx, "default role missing, run the seeder", slog.String("role", roleName))
				return fmt.Errorf("role %q not found: %w", roleName, ErrConfiguration)
			}
			return fmt.Errorf("find role: %w", err)
		}

		user := models.NewUser(s.ids.NewID(), strings.TrimSpace(in.Name), email, hash, []models.Role{role}, s.now())
		created, err = r.Users().Save(ctx, *user)
		return err
	})
	if err != nil && !errors.Is(err, events.ErrPublish) {
		return models.User{}, err
	}
	if err != nil {
		s.logger.WarnContext(ctx, "user created but events not delivered", slog.String("user_id", created.ID), slog.Any("error", err))
	}
	return created, nil
}

// Get loads a user with roles and permissions.
func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	return s.store.Users().FindByID(ctx, id, "roles", "roles.permissions")
}

// List returns users matching opts. Roles are loaded unless opts names its
// own relations. Zero options list every user with roles, oldest first.
func (s *Service) List(ctx context.Context, opts storage.FindOptions) ([]models.User, int, error) {
	if isZeroOptions(opts) {
		list, err := s.store.Users().FindAllWithRoles(ctx)
		if err != nil {
			return nil, 0, err
		}
		return list, len(list), nil
	}
	if len(opts.Relations) == 0 {
		opts.Relations = []string{"roles"}
	}
	list, err := s.store.Users().FindAll(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Users().Count(ctx, opts.Filter)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func isZeroOptions(opts storage.FindOptions) bool {
	return len(opts.Filter) == 0 && len(opts.Relations) == 0 && len(opts.OrderBy) == 0 &&
		opts.Skip <= 0 && opts.Take <= 0
}

// Update applies in to the user with the given id.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (models.User, error) {
	patch := models.UserPatch{Name: in.Name}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		patch.Email = &email
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password, s.hashCost)
		if err != nil {
			return models.User{}, err
		}
		patch.PasswordHash = &hash
	}

	var updated models.User
	err := s.store.WithinUnitOfWork(ctx, func(r storage.Repositories) error {
		if in.Roles != nil {
			roles := make([]models.Role, 0, len(*in.Roles))
			for _, name := range *in.Roles {
				role, err := r.Roles().FindByName(ctx, name)
				if err != nil {
					return fmt.Errorf("role %q: %w", name, err)
				}
				roles = append(roles, role)
			}
			patch.Roles = &roles
		}
		var err error
		updated, err = r.Users().Edit(ctx, id, patch)
		return err
	})
	if err != nil && !errors.Is(err, events.ErrPublish) {
		return models.User{}, err
	}
	if err != nil {
		s.logger.WarnContext(ctx, "user updated but events not delivered", slog.String("user_id", id), slog.Any("error", err))
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Users().Delete(ctx, id)
	if errors.Is(err, events.ErrPublish) {
		s.logger.WarnContext(ctx, "user deleted but events not delivered", slog.String("user_id", id), slog.Any("error", err))
		return nil
	}
	return err
}
