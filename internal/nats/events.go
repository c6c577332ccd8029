package nats

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "AICHAT_EVENTS"
)

// Subject constants.
const (
	SubjectAuditEvent = "aichat.events.audit"
)

// Audit event types.
const (
	EventQuotaAdmitted     = "quota_admitted"
	EventQuotaRejected     = "quota_rejected"
	EventQuotaReleased     = "quota_released"
	EventPurchaseCreated   = "purchase_created"
	EventPurchaseCompleted = "purchase_completed"
	EventPurchaseCanceled  = "purchase_canceled"
	EventPurchaseFailed    = "purchase_failed"
)

// Severity levels.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// AuditEvent is published for ledger and purchase activity and persisted by the audit consumer.
// ID doubles as the JetStream message id and the audit_logs primary key.
type AuditEvent struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"account_id"`
	EventType    string         `json:"event_type"`
	Severity     string         `json:"severity"` // info, warn, error
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
