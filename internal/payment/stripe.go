package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const metadataPurchaseID = "purchase_id"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// StripeGateway uses Stripe Checkout with inline prices.
type StripeGateway struct {
	api *client.API
	cfg StripeConfig
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway builds a gateway on its own client; backends may be nil for the defaults.
func NewStripeGateway(cfg StripeConfig, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(cfg.SecretKey, backends), cfg: cfg}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	purchaseID := req.PurchaseID.String()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withPurchase(g.cfg.SuccessURL, purchaseID)),
		CancelURL:         stripe.String(withPurchase(g.cfg.CancelURL, purchaseID)),
		ClientReferenceID: stripe.String(purchaseID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
	}
	params.Context = ctx
	params.AddMetadata(metadataPurchaseID, purchaseID)
	params.AddMetadata("account_id", req.AccountID)
	params.AddMetadata("package_type", req.PackageType)
	params.SetIdempotencyKey(purchaseID)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: creating checkout session: %v", ErrGateway, err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type), Kind: EventIgnored}
	if !strings.HasPrefix(out.Type, "checkout.session.") {
		return out, nil
	}
	if event.Data == nil {
		return nil, ErrMalformedEvent
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	out.SessionID = cs.ID
	out.PurchaseID = cs.Metadata[metadataPurchaseID]
	if out.PurchaseID == "" {
		out.PurchaseID = cs.ClientReferenceID
	}

	switch out.Type {
	case "checkout.session.completed":
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Kind = EventSucceeded
		}
	case "checkout.session.async_payment_succeeded":
		out.Kind = EventSucceeded
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		out.Kind = EventExpired
	}
	return out, nil
}

// withPurchase substitutes {PURCHASE_ID} in a redirect URL template.
func withPurchase(url, purchaseID string) string {
	return strings.ReplaceAll(url, "{PURCHASE_ID}", purchaseID)
}
