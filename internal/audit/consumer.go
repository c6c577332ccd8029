package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/aichat-platform/aichat/internal/nats"
)

const (
	consumerName = "audit-persister"
	retryDelay   = 5 * time.Second
)

// Consumer listens on the audit event subject and persists entries to the database.
type Consumer struct {
	repo        Repository
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(repo Repository, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{repo: repo, consumerMgr: consumerMgr}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectAuditEvent)
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			if err := c.persist(ctx, msg.Data()); err != nil {
				slog.Error("audit consumer: persisting event", "error", err)
				_ = msg.NakWithDelay(retryDelay)
				continue
			}
			_ = msg.Ack()
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) persist(ctx context.Context, data []byte) error {
	var event inats.AuditEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("unmarshaling event: %w", err)
	}

	log, err := toLog(event)
	if err != nil {
		return err
	}
	if err := c.repo.Insert(ctx, log); err != nil {
		return fmt.Errorf("event %s: %w", event.EventType, err)
	}

	slog.Debug("audit consumer: persisted event",
		"event_type", event.EventType,
		"account", event.AccountID,
		"resource_id", event.ResourceID,
	)
	return nil
}

func toLog(event inats.AuditEvent) (*AuditLog, error) {
	// Redeliveries carry the same id and hit ON CONFLICT DO NOTHING.
	id := event.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	log := &AuditLog{
		ID:           id,
		AccountID:    event.AccountID,
		EventType:    event.EventType,
		Severity:     event.Severity,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		CreatedAt:    event.Timestamp,
	}
	if log.Severity == "" {
		log.Severity = inats.SeverityInfo
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	if len(event.Details) > 0 {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return nil, fmt.Errorf("marshaling details: %w", err)
		}
		log.Details = data
	}
	return log, nil
}
