package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateParams holds the fields of a new registered user. PasswordHash must already be hashed.
type CreateParams struct {
	Username     string
	PasswordHash string
	FullName     string
	Email        string
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(p.Username),
		PasswordHash: p.PasswordHash,
		FullName:     strings.TrimSpace(p.FullName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if email := strings.TrimSpace(p.Email); email != "" {
		email = strings.ToLower(email)
		user.Email = &email
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, strings.TrimSpace(username))
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.repo.ExistsByUsername(ctx, strings.TrimSpace(username))
}
