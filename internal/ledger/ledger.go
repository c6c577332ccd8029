package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aichat-platform/aichat/internal/metrics"
	inats "github.com/aichat-platform/aichat/internal/nats"
)

const publishTimeout = 2 * time.Second

// Ledger owns the free and paid request counters of every account.
type Ledger struct {
	store      Store
	transcript Transcript
	limits     Limits
	audit      AuditPublisher
	now        func() time.Time
}

type Option func(*Ledger)

// WithClock replaces time.Now; tests use it to cross window boundaries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithAuditPublisher enables audit events. Publishing is best effort.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(l *Ledger) { l.audit = p }
}

func New(store Store, transcript Transcript, limits Limits, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		transcript: transcript,
		limits:     limits,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// clock returns now in UTC at database precision, so a stored window start compares equal on release.
func (l *Ledger) clock() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

// EvaluateAndReserve decides admission for one request and applies its
// consequence atomically. A rejection returns the decision and an *ExhaustedError.
func (l *Ledger) EvaluateAndReserve(ctx context.Context, ref AccountRef) (Decision, error) {
	if err := ref.Validate(); err != nil {
		return Decision{}, err
	}

	limit := l.limits.FreeLimit(ref.Kind)
	now := l.clock()

	d, err := l.store.ApplyDecision(ctx, ref, now, func(acc Account) (Account, Decision) {
		return Evaluate(acc, limit, l.limits.Window, now)
	})
	if err != nil {
		return Decision{}, fmt.Errorf("reserving quota for %s: %w", ref, err)
	}

	outcome := string(d.Consequence)
	if !d.Admitted {
		outcome = "rejected"
	}
	metrics.QuotaDecisionsTotal.WithLabelValues(string(ref.Kind), outcome).Inc()

	if !d.Admitted {
		slog.Info("quota exhausted", "account", ref.Key(), "free_used", d.FreeUsed, "paid_available", d.PaidAvailable)
		l.publish(ctx, inats.AuditEvent{
			AccountID: ref.Key(),
			EventType: inats.EventQuotaRejected,
			Severity:  inats.SeverityWarn,
			Details:   map[string]any{"free_used": d.FreeUsed, "free_limit": d.FreeLimit, "paid_available": d.PaidAvailable},
		})
		return d, &ExhaustedError{Usage: l.usage(d)}
	}

	slog.Debug("quota reserved", "account", ref.Key(), "consequence", d.Consequence, "reset", d.Reset)
	l.publish(ctx, inats.AuditEvent{
		AccountID: ref.Key(),
		EventType: inats.EventQuotaAdmitted,
		Severity:  inats.SeverityInfo,
		Details:   map[string]any{"consequence": d.Consequence, "free_used": d.FreeUsed, "paid_available": d.PaidAvailable, "reset": d.Reset},
	})
	return d, nil
}

// Release reverses an admitted decision whose request could not be served.
func (l *Ledger) Release(ctx context.Context, d Decision) error {
	if !d.Admitted {
		return nil
	}

	released, err := l.store.ReleaseDecision(ctx, d, l.clock())
	if err != nil {
		return fmt.Errorf("releasing quota for %s: %w", d.AccountKey, err)
	}
	if !released {
		slog.Debug("quota release skipped", "account", d.AccountKey, "consequence", d.Consequence)
		return nil
	}

	metrics.QuotaReleasesTotal.WithLabelValues(string(d.Consequence)).Inc()
	l.publish(ctx, inats.AuditEvent{
		AccountID: d.AccountKey,
		EventType: inats.EventQuotaReleased,
		Severity:  inats.SeverityInfo,
		Details:   map[string]any{"consequence": d.Consequence},
	})
	return nil
}

// Usage converts a decision into the client-facing view.
func (l *Ledger) Usage(d Decision) Usage {
	return l.usage(d)
}

func (l *Ledger) usage(d Decision) Usage {
	return newUsage(d.FreeUsed, d.FreeLimit, d.PaidAvailable, d.WindowStart, l.limits.Window)
}

// Balance reports the account's balances, creating the account if absent.
// A lapsed window is reported as reset; nothing is written for it.
func (l *Ledger) Balance(ctx context.Context, ref AccountRef) (Usage, error) {
	if err := ref.Validate(); err != nil {
		return Usage{}, err
	}

	now := l.clock()
	acc, err := l.store.UpsertAccount(ctx, ref, now)
	if err != nil {
		return Usage{}, fmt.Errorf("loading account %s: %w", ref, err)
	}
	return View(*acc, l.limits.FreeLimit(ref.Kind), l.limits.Window, now), nil
}

// RecordUsage appends one message to the account's history.
func (l *Ledger) RecordUsage(ctx context.Context, ref AccountRef, role, text string) error {
	if l.transcript == nil {
		return errors.New("ledger has no transcript")
	}
	if err := l.transcript.Append(ctx, ref.Key(), role, text); err != nil {
		return fmt.Errorf("recording %s message for %s: %w", role, ref, err)
	}
	return nil
}

// OpenPurchase records a pending purchase for the account.
func (l *Ledger) OpenPurchase(ctx context.Context, np NewPurchase) (*Purchase, error) {
	if err := np.Account.Validate(); err != nil {
		return nil, err
	}
	if np.RequestsCount <= 0 {
		return nil, fmt.Errorf("%w: requests_count must be positive", ErrInvalidPurchase)
	}
	if np.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidPurchase)
	}
	if strings.TrimSpace(np.PackageType) == "" {
		return nil, fmt.Errorf("%w: package_type is required", ErrInvalidPurchase)
	}
	if np.Source == "" {
		np.Source = SourcePayment
	}

	now := l.clock()
	if _, err := l.store.UpsertAccount(ctx, np.Account, now); err != nil {
		return nil, fmt.Errorf("loading account %s: %w", np.Account, err)
	}

	p := &Purchase{
		ID:            uuid.New(),
		AccountID:     np.Account.Key(),
		PackageType:   np.PackageType,
		RequestsCount: np.RequestsCount,
		Amount:        np.Amount,
		Currency:      strings.ToLower(np.Currency),
		Status:        PurchasePending,
		Source:        np.Source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.store.CreatePurchase(ctx, p); err != nil {
		return nil, fmt.Errorf("creating purchase: %w", err)
	}

	l.publish(ctx, inats.AuditEvent{
		AccountID:    p.AccountID,
		EventType:    inats.EventPurchaseCreated,
		Severity:     inats.SeverityInfo,
		ResourceType: "purchase",
		ResourceID:   p.ID.String(),
		Details:      map[string]any{"package_type": p.PackageType, "requests_count": p.RequestsCount, "amount": p.Amount, "currency": p.Currency, "source": p.Source},
	})
	return p, nil
}

// AttachPayment stores the provider's session reference on a purchase.
func (l *Ledger) AttachPayment(ctx context.Context, id uuid.UUID, paymentID, paymentURL string) error {
	if err := l.store.AttachPayment(ctx, id, paymentID, paymentURL, l.clock()); err != nil {
		return fmt.Errorf("attaching payment to purchase %s: %w", id, err)
	}
	return nil
}

func (l *Ledger) GetPurchase(ctx context.Context, id uuid.UUID) (*Purchase, error) {
	return l.store.GetPurchase(ctx, id)
}

// ApplyPurchase completes a pending purchase and credits its requests exactly
// once. Repeated calls return Applied=false and change nothing.
func (l *Ledger) ApplyPurchase(ctx context.Context, id uuid.UUID) (*Completion, error) {
	c, err := l.store.CompletePurchase(ctx, id, l.clock())
	if err != nil {
		return nil, fmt.Errorf("completing purchase %s: %w", id, err)
	}
	if !c.Applied {
		slog.Info("purchase already settled", "purchase_id", id, "status", c.Purchase.Status)
		return c, nil
	}

	metrics.PurchasesCompletedTotal.WithLabelValues(string(c.Purchase.Source), c.Purchase.PackageType).Inc()
	slog.Info("purchase completed",
		"purchase_id", id,
		"account", c.Purchase.AccountID,
		"requests", c.Purchase.RequestsCount,
		"paid_available", c.PaidAvailable,
	)
	l.publish(ctx, inats.AuditEvent{
		AccountID:    c.Purchase.AccountID,
		EventType:    inats.EventPurchaseCompleted,
		Severity:     inats.SeverityInfo,
		ResourceType: "purchase",
		ResourceID:   id.String(),
		Details:      map[string]any{"requests_count": c.Purchase.RequestsCount, "paid_available": c.PaidAvailable, "source": c.Purchase.Source},
	})
	return c, nil
}

// CancelPurchase moves a pending purchase to canceled. Settled purchases are left alone.
func (l *Ledger) CancelPurchase(ctx context.Context, id uuid.UUID) (bool, error) {
	return l.closePurchase(ctx, id, PurchaseCanceled, inats.EventPurchaseCanceled)
}

// FailPurchase moves a pending purchase to failed.
func (l *Ledger) FailPurchase(ctx context.Context, id uuid.UUID) (bool, error) {
	return l.closePurchase(ctx, id, PurchaseFailed, inats.EventPurchaseFailed)
}

func (l *Ledger) closePurchase(ctx context.Context, id uuid.UUID, to PurchaseStatus, eventType string) (bool, error) {
	ok, err := l.store.TransitionPurchase(ctx, id, PurchasePending, to, l.clock())
	if err != nil {
		return false, fmt.Errorf("moving purchase %s to %s: %w", id, to, err)
	}
	if ok {
		var accountID string
		if p, err := l.store.GetPurchase(ctx, id); err == nil {
			accountID = p.AccountID
		}
		l.publish(ctx, inats.AuditEvent{
			AccountID:    accountID,
			EventType:    eventType,
			Severity:     inats.SeverityWarn,
			ResourceType: "purchase",
			ResourceID:   id.String(),
		})
	}
	return ok, nil
}

func (l *Ledger) publish(ctx context.Context, event inats.AuditEvent) {
	if l.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := l.audit.PublishAuditEvent(ctx, event); err != nil {
		slog.Warn("publishing audit event", "error", err, "event_type", event.EventType)
	}
}
