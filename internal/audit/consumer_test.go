package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/aichat-platform/aichat/internal/nats"
)

type memRepo struct {
	mu     sync.Mutex
	logs   []AuditLog
	err    error
	params ListParams
}

func (m *memRepo) Insert(_ context.Context, log *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, *log)
	return nil
}

func (m *memRepo) List(_ context.Context, params ListParams) ([]AuditLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
	return m.logs, int64(len(m.logs)), m.err
}

func TestToLog(t *testing.T) {
	purchaseID := uuid.NewString()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := inats.AuditEvent{
		ID:           "9d3c4e2a-1b7f-4f60-8a55-0c2e6b1d7f33",
		AccountID:    "guest:guest_abc",
		EventType:    inats.EventPurchaseCompleted,
		Severity:     inats.SeverityInfo,
		ResourceType: "purchase",
		ResourceID:   purchaseID,
		Details:      map[string]any{"requests_count": 40},
		Timestamp:    ts,
	}

	log, err := toLog(event)
	require.NoError(t, err)

	assert.Equal(t, "9d3c4e2a-1b7f-4f60-8a55-0c2e6b1d7f33", log.ID)
	assert.Equal(t, "guest:guest_abc", log.AccountID)
	assert.Equal(t, inats.EventPurchaseCompleted, log.EventType)
	assert.Equal(t, purchaseID, log.ResourceID)
	assert.Equal(t, ts, log.CreatedAt)

	var details map[string]any
	require.NoError(t, json.Unmarshal(log.Details, &details))
	assert.Equal(t, float64(40), details["requests_count"])
}

func TestToLog_Defaults(t *testing.T) {
	log, err := toLog(inats.AuditEvent{EventType: inats.EventQuotaAdmitted})
	require.NoError(t, err)
	assert.Equal(t, inats.SeverityInfo, log.Severity)
	assert.False(t, log.CreatedAt.IsZero())
	assert.Empty(t, log.Details)
	_, err = uuid.Parse(log.ID)
	assert.NoError(t, err)

	other, err := toLog(inats.AuditEvent{ID: "not-a-uuid", EventType: inats.EventQuotaAdmitted})
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-uuid", other.ID)
}

func TestConsumer_Persist(t *testing.T) {
	repo := &memRepo{}
	c := NewConsumer(repo, nil)

	data, err := json.Marshal(inats.AuditEvent{
		AccountID: "user:6f1c3b8e-0d5a-4c57-9d1e-2b8f0c7a9e11",
		EventType: inats.EventQuotaRejected,
		Severity:  inats.SeverityWarn,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, c.persist(context.Background(), data))
	require.Len(t, repo.logs, 1)
	assert.Equal(t, inats.EventQuotaRejected, repo.logs[0].EventType)
	assert.Equal(t, inats.SeverityWarn, repo.logs[0].Severity)
}

func TestConsumer_PersistErrors(t *testing.T) {
	repo := &memRepo{}
	c := NewConsumer(repo, nil)

	assert.Error(t, c.persist(context.Background(), []byte("{not json")))

	repo.err = errors.New("db down")
	data, _ := json.Marshal(inats.AuditEvent{EventType: inats.EventQuotaAdmitted})
	assert.ErrorIs(t, c.persist(context.Background(), data), repo.err)
}
