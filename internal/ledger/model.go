package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQuotaExhausted   = errors.New("quota exhausted")
	ErrAccountNotFound  = errors.New("account not found")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrInvalidAccount   = errors.New("invalid account")
	ErrInvalidPurchase  = errors.New("invalid purchase")
)

// Kind distinguishes anonymous guests from registered users; each kind has its own free limit.
type Kind string

const (
	KindGuest Kind = "guest"
	KindUser  Kind = "user"
)

// GuestPrefix is required on client-generated guest identifiers.
const GuestPrefix = "guest_"

const maxAccountIDLen = 64

// AccountRef names an account. Key() is the persisted identifier.
type AccountRef struct {
	Kind Kind
	ID   string
}

func GuestRef(id string) AccountRef { return AccountRef{Kind: KindGuest, ID: id} }
func UserRef(id string) AccountRef  { return AccountRef{Kind: KindUser, ID: id} }

func (r AccountRef) Key() string {
	return string(r.Kind) + ":" + r.ID
}

func (r AccountRef) String() string { return r.Key() }

// Validate checks the identifier shape for the account kind.
func (r AccountRef) Validate() error {
	switch r.Kind {
	case KindUser:
		if _, err := uuid.Parse(r.ID); err != nil {
			return fmt.Errorf("%w: user id must be a uuid", ErrInvalidAccount)
		}
	case KindGuest:
		if !strings.HasPrefix(r.ID, GuestPrefix) || len(r.ID) <= len(GuestPrefix) {
			return fmt.Errorf("%w: guest id must start with %q", ErrInvalidAccount, GuestPrefix)
		}
		if len(r.ID) > maxAccountIDLen {
			return fmt.Errorf("%w: guest id longer than %d characters", ErrInvalidAccount, maxAccountIDLen)
		}
		for _, c := range r.ID {
			if !(c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
				return fmt.Errorf("%w: guest id contains %q", ErrInvalidAccount, c)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAccount, r.Kind)
	}
	return nil
}

// ParseKey is the inverse of AccountRef.Key.
func ParseKey(key string) (AccountRef, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return AccountRef{}, fmt.Errorf("%w: malformed key %q", ErrInvalidAccount, key)
	}
	ref := AccountRef{Kind: Kind(kind), ID: id}
	if err := ref.Validate(); err != nil {
		return AccountRef{}, err
	}
	return ref, nil
}

// Account mirrors a row of the accounts table.
type Account struct {
	Key           string    `json:"account_id"`
	Kind          Kind      `json:"kind"`
	FreeUsed      int       `json:"free_used"`
	FreeResetAt   time.Time `json:"free_reset_at"`
	PaidAvailable int       `json:"paid_available"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Limits is the free-tier policy.
type Limits struct {
	GuestFree int
	UserFree  int
	Window    time.Duration
}

func (l Limits) FreeLimit(k Kind) int {
	if k == KindGuest {
		return l.GuestFree
	}
	return l.UserFree
}

// Consequence is the counter change an admitted request applied.
type Consequence string

const (
	ConsumeNone Consequence = ""
	ConsumeFree Consequence = "free"
	ConsumePaid Consequence = "paid"
)

// Decision is the outcome of one admission evaluation. Counters reflect the
// state after the consequence was applied.
type Decision struct {
	AccountKey    string
	Admitted      bool
	Consequence   Consequence
	FreeUsed      int
	FreeLimit     int
	PaidAvailable int
	WindowStart   time.Time
	Reset         bool
}

// Usage is the client-facing view of an account's balances.
type Usage struct {
	FreeUsed      int       `json:"free_requests_used"`
	FreeLimit     int       `json:"free_requests_limit"`
	FreeRemaining int       `json:"free_requests_remaining"`
	PaidAvailable int       `json:"paid_requests_available"`
	ResetAt       time.Time `json:"reset_at"`
}

func newUsage(freeUsed, freeLimit, paid int, windowStart time.Time, window time.Duration) Usage {
	return Usage{
		FreeUsed:      freeUsed,
		FreeLimit:     freeLimit,
		FreeRemaining: max(0, freeLimit-freeUsed),
		PaidAvailable: paid,
		ResetAt:       windowStart.Add(window),
	}
}

// ExhaustedError is returned for a rejected admission. errors.Is(err, ErrQuotaExhausted) holds.
type ExhaustedError struct {
	Usage Usage
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("quota exhausted: %d/%d free requests used, %d paid requests available",
		e.Usage.FreeUsed, e.Usage.FreeLimit, e.Usage.PaidAvailable)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseCanceled  PurchaseStatus = "canceled"
)

type PurchaseSource string

const (
	SourcePayment PurchaseSource = "payment"
	SourceManual  PurchaseSource = "manual"
)

// Purchase mirrors a row of the purchases table. Amount is in minor currency units.
type Purchase struct {
	ID            uuid.UUID      `json:"id"`
	AccountID     string         `json:"account_id"`
	PackageType   string         `json:"package_type"`
	RequestsCount int            `json:"requests_count"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Status        PurchaseStatus `json:"status"`
	Source        PurchaseSource `json:"source"`
	PaymentID     *string        `json:"payment_id,omitempty"`
	PaymentURL    *string        `json:"payment_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewPurchase describes a purchase to open in the pending state.
type NewPurchase struct {
	Account       AccountRef
	PackageType   string
	RequestsCount int
	Amount        int64
	Currency      string
	Source        PurchaseSource
}

// Completion is the result of a guarded pending → completed transition.
type Completion struct {
	Purchase      *Purchase
	Applied       bool
	PaidAvailable int
}
