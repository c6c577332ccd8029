package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	inats "github.com/aichat-platform/aichat/internal/nats"
)

// DecideFunc computes the next account state and the decision from the locked current state.
type DecideFunc func(Account) (Account, Decision)

// Store persists accounts and purchases. ApplyDecision, ReleaseDecision,
// TransitionPurchase and CompletePurchase must each be atomic.
type Store interface {
	GetAccount(ctx context.Context, key string) (*Account, error)
	// UpsertAccount creates the account if absent (window starting at now) and returns it.
	UpsertAccount(ctx context.Context, ref AccountRef, now time.Time) (*Account, error)
	// ApplyDecision creates the account if absent, locks it, runs decide and persists the result.
	ApplyDecision(ctx context.Context, ref AccountRef, now time.Time, decide DecideFunc) (Decision, error)
	// ReleaseDecision reverses an admitted decision. It reports false when there
	// was nothing to reverse (for example, the free window has since reset).
	ReleaseDecision(ctx context.Context, d Decision, now time.Time) (bool, error)

	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchase(ctx context.Context, id uuid.UUID) (*Purchase, error)
	AttachPayment(ctx context.Context, id uuid.UUID, paymentID, paymentURL string, now time.Time) error
	// TransitionPurchase moves a purchase from one status to another only if it is still in from.
	TransitionPurchase(ctx context.Context, id uuid.UUID, from, to PurchaseStatus, now time.Time) (bool, error)
	// CompletePurchase moves a pending purchase to completed and credits its
	// requests to the owning account in the same transaction.
	CompletePurchase(ctx context.Context, id uuid.UUID, now time.Time) (*Completion, error)
}

// Transcript receives the message history of an account.
type Transcript interface {
	Append(ctx context.Context, accountKey, role, content string) error
}

// AuditPublisher receives ledger activity. Implemented by the NATS publisher.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}
