//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aichat-platform/aichat/internal/testutil"
)

func TestPostgresRepository(t *testing.T) {
	pool := testutil.Postgres(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	entries := []*AuditLog{
		{AccountID: "guest:guest_a", EventType: "quota.admitted", Severity: "info", CreatedAt: base.Add(-3 * time.Hour)},
		{AccountID: "guest:guest_a", EventType: "quota.rejected", Severity: "warn", CreatedAt: base.Add(-2 * time.Hour)},
		{AccountID: "user:u1", EventType: "purchase.completed", Severity: "info", ResourceType: "purchase",
			ResourceID: "p1", Details: json.RawMessage(`{"requests_count":40}`), CreatedAt: base.Add(-time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Insert(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	// Redelivered events keep their id and are stored once.
	require.NoError(t, repo.Insert(ctx, entries[0]))

	logs, total, err := repo.List(ctx, ListParams{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, logs, 3)
	assert.Equal(t, "purchase.completed", logs[0].EventType)
	assert.JSONEq(t, `{"requests_count":40}`, string(logs[0].Details))

	logs, total, err = repo.List(ctx, ListParams{AccountID: "guest:guest_a", Severity: "warn", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "quota.rejected", logs[0].EventType)

	from := base.Add(-150 * time.Minute)
	logs, total, err = repo.List(ctx, ListParams{From: &from, Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, logs, 1)
}
