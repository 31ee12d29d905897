package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

// UserService manages subject records.
type UserService struct {
	users domain.UserRepository
	now   func() time.Time
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users, now: time.Now}
}

// Create stores a new subject. The role's default scope set is resolved once
// here and written to the record; later table changes never rewrite it.
func (s *UserService) Create(ctx context.Context, email, role string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.NewInvalidRequest("a valid email is required")
	}
	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		Scopes:    domain.DefaultScopesForRole(role),
		CreatedAt: s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Str("role", role).Msg("user created")
	return user, nil
}

// Get returns a subject by identifier.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetUser(ctx, id)
}

// GetByEmail returns a subject by email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}
