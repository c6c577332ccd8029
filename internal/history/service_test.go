package history

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aichat-platform/aichat/internal/auth"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type memRepo struct {
	mu   sync.Mutex
	rows []row
}

func (m *memRepo) Insert(_ context.Context, r *row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *r)
	return nil
}

func (m *memRepo) byAccount(accountID string) []row {
	var out []row
	for _, r := range m.rows {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memRepo) ListRecent(_ context.Context, accountID string, limit int) ([]row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.byAccount(accountID)
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func (m *memRepo) List(_ context.Context, accountID string, limit, offset int) ([]row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.byAccount(accountID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	if offset >= len(rows) {
		return nil, nil
	}
	return rows[offset:min(len(rows), offset+limit)], nil
}

func (m *memRepo) Count(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byAccount(accountID))), nil
}

func TestService_AppendAndRecent(t *testing.T) {
	repo := &memRepo{}
	store, _ := setupMiniredis(t, 4)
	svc := NewService(repo, store, nil, 4)
	ctx := context.Background()

	for _, c := range []string{"q1", "a1", "q2", "a2", "q3"} {
		role := RoleUser
		if c[0] == 'a' {
			role = RoleAssistant
		}
		require.NoError(t, svc.Append(ctx, "guest:guest_s", role, c))
	}

	msgs, err := svc.Recent(ctx, "guest:guest_s")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "a1", msgs[0].Content)
	assert.Equal(t, "q3", msgs[3].Content)

	// Second read is served from the warmed cache and stays in sync with appends.
	require.NoError(t, svc.Append(ctx, "guest:guest_s", RoleAssistant, "a3"))
	msgs, err = svc.Recent(ctx, "guest:guest_s")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "q2", msgs[0].Content)
	assert.Equal(t, "a3", msgs[3].Content)
}

func TestService_InvalidRole(t *testing.T) {
	svc := NewService(&memRepo{}, nil, nil, 4)
	err := svc.Append(context.Background(), "guest:guest_s", "system", "x")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestService_EncryptsAtRest(t *testing.T) {
	enc, err := auth.NewEncryptor(testKey)
	require.NoError(t, err)

	repo := &memRepo{}
	store, _ := setupMiniredis(t, 10)
	svc := NewService(repo, store, enc, 10)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, "user:u1", RoleUser, "secret question"))

	require.Len(t, repo.rows, 1)
	assert.True(t, repo.rows[0].Encrypted)
	assert.NotContains(t, repo.rows[0].Content, "secret")

	msgs, err := svc.Recent(ctx, "user:u1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "secret question", msgs[0].Content)

	// A row moved to another account no longer opens.
	repo.rows[0].AccountID = "user:u2"
	_, err = svc.Recent(ctx, "user:u2")
	assert.Error(t, err)
}

func TestService_List(t *testing.T) {
	svc := NewService(&memRepo{}, nil, nil, 10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Append(ctx, "guest:guest_l", RoleUser, string(rune('a'+i))))
	}
	require.NoError(t, svc.Append(ctx, "guest:guest_other", RoleUser, "z"))

	msgs, total, err := svc.List(ctx, "guest:guest_l", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, msgs, 2)
	assert.Equal(t, "e", msgs[0].Content)
	assert.Equal(t, "d", msgs[1].Content)

	msgs, _, err = svc.List(ctx, "guest:guest_l", 3, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Content)
}
