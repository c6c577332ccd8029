// Package payment creates hosted checkout sessions and verifies provider webhooks.
package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrMalformedEvent   = errors.New("payment: malformed webhook event")
	ErrGateway          = errors.New("payment: gateway request failed")
)

// SessionRequest describes one purchase to be paid on the provider's page.
type SessionRequest struct {
	PurchaseID  uuid.UUID
	AccountID   string
	PackageType string
	Description string
	Amount      int64
	Currency    string
}

type Session struct {
	ID  string
	URL string
}

type EventKind string

const (
	EventIgnored   EventKind = "ignored"
	EventSucceeded EventKind = "succeeded"
	EventExpired   EventKind = "expired"
)

// Event is a verified webhook reduced to what purchase handling needs.
// PurchaseID is empty when the provider object carries no reference.
type Event struct {
	ID         string
	Type       string
	Kind       EventKind
	SessionID  string
	PurchaseID string
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
