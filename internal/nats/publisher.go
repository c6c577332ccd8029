package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher writes audit events to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishAuditEvent assigns the event an id when it has none and publishes it
// with that id as the message id, so the stream drops a retried publish.
func (p *Publisher) PublishAuditEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event.EventType, err)
	}
	if _, err := p.js.Publish(ctx, SubjectAuditEvent, payload, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publishing %s event: %w", event.EventType, err)
	}
	return nil
}
