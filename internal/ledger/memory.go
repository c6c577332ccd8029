package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory. All operations are
// serialized by one mutex. Used by tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	purchases map[uuid.UUID]*Purchase
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*Account),
		purchases: make(map[uuid.UUID]*Purchase),
	}
}

// Seed stores acc as-is, replacing any existing account with the same key.
func (s *MemoryStore) Seed(acc Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := acc
	s.accounts[acc.Key] = &cp
}

func (s *MemoryStore) GetAccount(_ context.Context, key string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) UpsertAccount(_ context.Context, ref AccountRef, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.upsertLocked(ref, now)
	return &cp, nil
}

func (s *MemoryStore) upsertLocked(ref AccountRef, now time.Time) *Account {
	key := ref.Key()
	acc, ok := s.accounts[key]
	if !ok {
		acc = &Account{
			Key:         key,
			Kind:        ref.Kind,
			FreeResetAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.accounts[key] = acc
	}
	return acc
}

func (s *MemoryStore) ApplyDecision(_ context.Context, ref AccountRef, now time.Time, decide DecideFunc) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.upsertLocked(ref, now)
	next, d := decide(*acc)
	if changed(*acc, next) {
		next.UpdatedAt = now
		*acc = next
	}
	return d, nil
}

func (s *MemoryStore) ReleaseDecision(_ context.Context, d Decision, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[d.AccountKey]
	if !ok {
		return false, ErrAccountNotFound
	}

	switch d.Consequence {
	case ConsumeFree:
		if acc.FreeUsed == 0 || !acc.FreeResetAt.Equal(d.WindowStart) {
			return false, nil
		}
		acc.FreeUsed--
	case ConsumePaid:
		acc.PaidAvailable++
	default:
		return false, nil
	}
	acc.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) CreatePurchase(_ context.Context, p *Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[p.AccountID]; !ok {
		return ErrAccountNotFound
	}
	cp := *p
	s.purchases[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPurchase(_ context.Context, id uuid.UUID) (*Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) AttachPayment(_ context.Context, id uuid.UUID, paymentID, paymentURL string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		return ErrPurchaseNotFound
	}
	p.PaymentID = &paymentID
	p.PaymentURL = &paymentURL
	p.UpdatedAt = now
	return nil
}

func (s *MemoryStore) TransitionPurchase(_ context.Context, id uuid.UUID, from, to PurchaseStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		return false, ErrPurchaseNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) CompletePurchase(_ context.Context, id uuid.UUID, now time.Time) (*Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	acc, ok := s.accounts[p.AccountID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	if p.Status != PurchasePending {
		cp := *p
		return &Completion{Purchase: &cp, PaidAvailable: acc.PaidAvailable}, nil
	}

	p.Status = PurchaseCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now
	acc.PaidAvailable += p.RequestsCount
	acc.UpdatedAt = now

	cp := *p
	return &Completion{Purchase: &cp, Applied: true, PaidAvailable: acc.PaidAvailable}, nil
}
