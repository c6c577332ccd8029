package purchases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aichat-platform/aichat/internal/ledger"
	"github.com/aichat-platform/aichat/internal/metrics"
	"github.com/aichat-platform/aichat/internal/payment"
)

var (
	ErrUnknownPackage     = errors.New("unknown package type")
	ErrNotConfigured      = errors.New("payments are not configured")
	ErrMissingPurchaseRef = errors.New("webhook event carries no purchase reference")
)

type Service struct {
	ledger  *ledger.Ledger
	gateway payment.Gateway
	catalog *Catalog
}

// NewService wires purchases. gateway may be nil when no provider is configured.
func NewService(l *ledger.Ledger, gateway payment.Gateway, catalog *Catalog) *Service {
	return &Service{ledger: l, gateway: gateway, catalog: catalog}
}

func (s *Service) Packages() []Package {
	return s.catalog.List()
}

type PaymentResult struct {
	PurchaseID uuid.UUID             `json:"purchase_id"`
	PaymentID  string                `json:"payment_id"`
	PaymentURL string                `json:"payment_url"`
	Status     ledger.PurchaseStatus `json:"status"`
}

// CreatePayment opens a pending purchase and a provider session for it. The
// purchase row exists before the session so any webhook finds it.
func (s *Service) CreatePayment(ctx context.Context, ref ledger.AccountRef, packageType string) (*PaymentResult, error) {
	pkg, ok := s.catalog.Lookup(packageType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPackage, packageType)
	}
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}

	p, err := s.ledger.OpenPurchase(ctx, ledger.NewPurchase{
		Account:       ref,
		PackageType:   pkg.Type,
		RequestsCount: pkg.RequestsCount,
		Amount:        pkg.Amount,
		Currency:      pkg.Currency,
		Source:        ledger.SourcePayment,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		PurchaseID:  p.ID,
		AccountID:   p.AccountID,
		PackageType: pkg.Type,
		Description: fmt.Sprintf("%s: %d requests", pkg.Title, pkg.RequestsCount),
		Amount:      pkg.Amount,
		Currency:    pkg.Currency,
	})
	if err != nil {
		if _, failErr := s.ledger.FailPurchase(context.WithoutCancel(ctx), p.ID); failErr != nil {
			slog.Error("purchases: marking purchase failed", "error", failErr, "purchase_id", p.ID)
		}
		return nil, err
	}

	if err := s.ledger.AttachPayment(ctx, p.ID, session.ID, session.URL); err != nil {
		return nil, err
	}

	slog.Info("purchases: payment created", "purchase_id", p.ID, "account", p.AccountID, "package", pkg.Type, "session", session.ID)
	return &PaymentResult{
		PurchaseID: p.ID,
		PaymentID:  session.ID,
		PaymentURL: session.URL,
		Status:     p.Status,
	}, nil
}

// Get returns a purchase owned by ref. Purchases of other accounts read as not found.
func (s *Service) Get(ctx context.Context, ref ledger.AccountRef, id uuid.UUID) (*ledger.Purchase, error) {
	p, err := s.ledger.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.AccountID != ref.Key() {
		return nil, ledger.ErrPurchaseNotFound
	}
	return p, nil
}

type WebhookResult struct {
	Status  string `json:"status"`
	Applied *bool  `json:"applied,omitempty"`
}

// HandleWebhook verifies and applies one provider notification. Redelivery
// of a success event is absorbed by the ledger and reported as applied=false.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (res *WebhookResult, err error) {
	defer func() {
		result := "error"
		switch {
		case err != nil && errors.Is(err, payment.ErrInvalidSignature):
			result = "invalid_signature"
		case err == nil:
			result = res.Status
		}
		metrics.PaymentWebhooksTotal.WithLabelValues(result).Inc()
	}()

	if s.gateway == nil {
		return nil, ErrNotConfigured
	}

	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	if ev.Kind == payment.EventIgnored {
		slog.Debug("purchases: webhook ignored", "event_id", ev.ID, "type", ev.Type)
		return &WebhookResult{Status: "ignored"}, nil
	}

	id, err := uuid.Parse(ev.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s", ErrMissingPurchaseRef, ev.ID)
	}

	switch ev.Kind {
	case payment.EventSucceeded:
		c, err := s.ledger.ApplyPurchase(ctx, id)
		if err != nil {
			return nil, err
		}
		slog.Info("purchases: payment succeeded", "event_id", ev.ID, "purchase_id", id, "applied", c.Applied)
		return &WebhookResult{Status: "ok", Applied: &c.Applied}, nil
	default:
		canceled, err := s.ledger.CancelPurchase(ctx, id)
		if err != nil {
			return nil, err
		}
		slog.Info("purchases: payment expired", "event_id", ev.ID, "purchase_id", id, "canceled", canceled)
		return &WebhookResult{Status: "ok"}, nil
	}
}

// GrantRequest credits requests without a payment provider.
// A known PackageType wins over RequestsCount and Amount.
type GrantRequest struct {
	Account       ledger.AccountRef
	PackageType   string
	RequestsCount int
	Amount        int64
}

type GrantResult struct {
	PurchaseID    uuid.UUID `json:"purchase_id"`
	Applied       bool      `json:"applied"`
	PaidAvailable int       `json:"paid_requests_available"`
}

// Grant records a manual purchase and applies it immediately.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	np := ledger.NewPurchase{
		Account:       req.Account,
		PackageType:   "custom",
		RequestsCount: req.RequestsCount,
		Amount:        req.Amount,
		Currency:      s.catalog.Currency(),
		Source:        ledger.SourceManual,
	}
	if req.PackageType != "" {
		pkg, ok := s.catalog.Lookup(req.PackageType)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPackage, req.PackageType)
		}
		np.PackageType = pkg.Type
		np.RequestsCount = pkg.RequestsCount
		np.Amount = pkg.Amount
	}

	p, err := s.ledger.OpenPurchase(ctx, np)
	if err != nil {
		return nil, err
	}

	c, err := s.ledger.ApplyPurchase(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &GrantResult{PurchaseID: p.ID, Applied: c.Applied, PaidAvailable: c.PaidAvailable}, nil
}
