package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aichat-platform/aichat/internal/auth"
)

var ErrInvalidCredentials = errors.New("invalid admin credentials")

// TokenIssuer issues token pairs. Implemented by *auth.Service.
type TokenIssuer interface {
	GenerateTokens(ctx context.Context, sub auth.Subject) (*auth.TokenPair, error)
}

type Service struct {
	repo     Repository
	tokens   TokenIssuer
	currency string
	now      func() time.Time
}

func NewService(repo Repository, tokens TokenIssuer, currency string) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		currency: strings.ToLower(currency),
		now:      time.Now,
	}
}

// EnsureBootstrapAdmin creates the configured admin, or resets its password and name.
// Nothing happens when username or password is empty.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, username, password, fullName string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		slog.Info("admin bootstrap skipped, credentials not configured")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	a, err := s.repo.Upsert(ctx, &Admin{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return err
	}

	slog.Info("admin account ensured", "admin_id", a.ID, "username", a.Username)
	return nil
}

// Login checks the credentials, records the login time and issues admin-role tokens.
func (s *Service) Login(ctx context.Context, username, password string) (*Admin, *auth.TokenPair, error) {
	a, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		auth.CompareDummy(password)
		return nil, nil, ErrInvalidCredentials
	}
	if err := auth.ComparePassword(a.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, a.ID, now); err != nil {
		return nil, nil, err
	}
	a.LastLoginAt = &now

	tokens, err := s.tokens.GenerateTokens(ctx, auth.Subject{ID: a.ID.String(), Username: a.Username, Role: auth.RoleAdmin})
	if err != nil {
		return nil, nil, fmt.Errorf("issuing admin tokens: %w", err)
	}
	return a, tokens, nil
}

// Stats aggregates the dashboard figures over the last 30 days of sign-ups.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	since := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -statsDays)
	st, err := s.repo.Stats(ctx, since)
	if err != nil {
		return nil, err
	}
	st.Revenue.Currency = s.currency
	return st, nil
}
