package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Cipher seals message content at rest. The account key is the associated data.
type Cipher interface {
	Encrypt(plaintext, associatedData string) (string, error)
	Decrypt(encoded, associatedData string) (string, error)
}

// Service stores chat history in Postgres with a Redis tail for model context.
type Service struct {
	repo        Repository
	recent      *RecentStore
	cipher      Cipher
	contextSize int
	now         func() time.Time
}

// NewService builds the history service. recent and cipher may be nil.
func NewService(repo Repository, recent *RecentStore, cipher Cipher, contextSize int) *Service {
	return &Service{
		repo:        repo,
		recent:      recent,
		cipher:      cipher,
		contextSize: contextSize,
		now:         time.Now,
	}
}

// Append stores one message for accountID.
func (s *Service) Append(ctx context.Context, accountID, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	r := row{Message: Message{AccountID: accountID, Role: role, Content: content, CreatedAt: s.now().UTC()}}
	if s.cipher != nil {
		sealed, err := s.cipher.Encrypt(content, accountID)
		if err != nil {
			return fmt.Errorf("encrypting message: %w", err)
		}
		r.Content = sealed
		r.Encrypted = true
	}

	if err := s.repo.Insert(ctx, &r); err != nil {
		return err
	}

	if s.recent != nil {
		if err := s.recent.Append(ctx, accountID, r); err != nil {
			slog.Warn("history: caching message", "error", err, "account", accountID)
		}
	}
	return nil
}

// Recent returns the newest messages, oldest first, for building model context.
func (s *Service) Recent(ctx context.Context, accountID string) ([]Message, error) {
	if s.contextSize <= 0 {
		return nil, nil
	}

	if s.recent != nil {
		rows, ok, err := s.recent.Get(ctx, accountID)
		if err != nil {
			slog.Warn("history: reading cached messages", "error", err, "account", accountID)
		} else if ok {
			return s.open(accountID, rows)
		}
	}

	rows, err := s.repo.ListRecent(ctx, accountID, s.contextSize)
	if err != nil {
		return nil, err
	}
	if s.recent != nil {
		if err := s.recent.Fill(ctx, accountID, rows); err != nil {
			slog.Warn("history: filling cache", "error", err, "account", accountID)
		}
	}
	return s.open(accountID, rows)
}

// List returns one page of history, newest first, with the total count.
func (s *Service) List(ctx context.Context, accountID string, page, pageSize int) ([]Message, int64, error) {
	rows, err := s.repo.List(ctx, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := s.open(accountID, rows)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

func (s *Service) open(accountID string, rows []row) ([]Message, error) {
	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		m := r.Message
		if r.Encrypted {
			if s.cipher == nil {
				return nil, fmt.Errorf("message %d is encrypted but no key is configured", r.ID)
			}
			plain, err := s.cipher.Decrypt(r.Content, accountID)
			if err != nil {
				return nil, fmt.Errorf("decrypting message %d: %w", r.ID, err)
			}
			m.Content = plain
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
