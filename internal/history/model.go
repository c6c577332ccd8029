package history

import (
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrInvalidRole = errors.New("invalid message role")

// Message is one stored chat turn.
type Message struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// row is Message as persisted; Content holds the sealed form when Encrypted is set.
type row struct {
	Message
	Encrypted bool
}
