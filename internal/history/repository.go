package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Insert(ctx context.Context, r *row) error
	// ListRecent returns up to limit of the newest messages, oldest first.
	ListRecent(ctx context.Context, accountID string, limit int) ([]row, error)
	// List returns one page of messages, newest first.
	List(ctx context.Context, accountID string, limit, offset int) ([]row, error)
	Count(ctx context.Context, accountID string) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Insert(ctx context.Context, m *row) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (account_id, role, content, encrypted, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		m.AccountID, m.Role, m.Content, m.Encrypted, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]row, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, role, content, encrypted, created_at FROM (
		     SELECT id, account_id, role, content, encrypted, created_at
		     FROM messages
		     WHERE account_id = $1
		     ORDER BY created_at DESC, id DESC
		     LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, id ASC`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages: %w", err)
	}
	return collect(rows)
}

func (r *postgresRepository) List(ctx context.Context, accountID string, limit, offset int) ([]row, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, role, content, encrypted, created_at
		 FROM messages
		 WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return collect(rows)
}

func (r *postgresRepository) Count(ctx context.Context, accountID string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE account_id = $1`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

func collect(rows pgx.Rows) ([]row, error) {
	defer rows.Close()
	var out []row
	for rows.Next() {
		var m row
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Role, &m.Content, &m.Encrypted, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
