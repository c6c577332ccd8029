package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecentStore keeps the tail of each account's conversation in a Redis list
// so building model context does not hit Postgres on every request.
type RecentStore struct {
	client *redis.Client
	size   int
	ttl    time.Duration
}

func NewRecentStore(client *redis.Client, size int, ttl time.Duration) *RecentStore {
	return &RecentStore{client: client, size: size, ttl: ttl}
}

func recentKey(accountID string) string {
	return "history:recent:" + accountID
}

type cachedRow struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Encrypted bool      `json:"encrypted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Get returns the cached rows oldest first. ok is false when nothing is cached.
func (s *RecentStore) Get(ctx context.Context, accountID string) ([]row, bool, error) {
	key := recentKey(accountID)
	vals, err := s.client.LRange(ctx, key, int64(-s.size), -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lrange %s: %w", key, err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}

	out := make([]row, 0, len(vals))
	for _, v := range vals {
		var c cachedRow
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			continue
		}
		out = append(out, row{
			Message:   Message{ID: c.ID, AccountID: accountID, Role: c.Role, Content: c.Content, CreatedAt: c.CreatedAt},
			Encrypted: c.Encrypted,
		})
	}
	return out, true, nil
}

// Fill replaces the cached tail with rows.
func (s *RecentStore) Fill(ctx context.Context, accountID string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}
	key := recentKey(accountID)
	vals, err := encodeRows(rows)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, vals...)
	pipe.LTrim(ctx, key, int64(-s.size), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Append extends an already cached tail. A cold key stays cold so a later
// Get falls back to the full history instead of a partial one.
func (s *RecentStore) Append(ctx context.Context, accountID string, rows ...row) error {
	if len(rows) == 0 {
		return nil
	}
	key := recentKey(accountID)
	vals, err := encodeRows(rows)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.RPushX(ctx, key, vals...)
	pipe.LTrim(ctx, key, int64(-s.size), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

func encodeRows(rows []row) ([]any, error) {
	vals := make([]any, 0, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(cachedRow{ID: r.ID, Role: r.Role, Content: r.Content, Encrypted: r.Encrypted, CreatedAt: r.CreatedAt})
		if err != nil {
			return nil, fmt.Errorf("marshaling message: %w", err)
		}
		vals = append(vals, string(data))
	}
	return vals, nil
}
