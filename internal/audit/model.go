package audit

import (
	"encoding/json"
	"time"
)

// AuditLog matches the audit_logs table schema.
type AuditLog struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id,omitempty"`
	EventType    string          `json:"event_type"`
	Severity     string          `json:"severity"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit log queries.
type ListParams struct {
	AccountID string
	EventType string
	Severity  string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
