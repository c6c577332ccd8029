package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const statsDays = 30

type Repository interface {
	// Upsert creates the admin or replaces the password hash and name of an existing one.
	Upsert(ctx context.Context, a *Admin) (*Admin, error)
	GetByUsername(ctx context.Context, username string) (*Admin, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const adminColumns = `id, username, password_hash, full_name, created_at, last_login_at`

func scanAdmin(row pgx.Row) (*Admin, error) {
	var a Admin
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.CreatedAt, &a.LastLoginAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *postgresRepository) Upsert(ctx context.Context, a *Admin) (*Admin, error) {
	query := `
		INSERT INTO admins (id, username, password_hash, full_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ((lower(username))) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, full_name = EXCLUDED.full_name
		RETURNING ` + adminColumns

	saved, err := scanAdmin(r.pool.QueryRow(ctx, query, a.ID, a.Username, a.PasswordHash, a.FullName, a.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("upserting admin: %w", err)
	}
	return saved, nil
}

func (r *postgresRepository) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	a, err := scanAdmin(r.pool.QueryRow(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE lower(username) = lower($1)`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying admin by username: %w", err)
	}
	return a, nil
}

func (r *postgresRepository) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE admins SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("updating admin last login: %w", err)
	}
	return nil
}

// Stats runs the dashboard aggregates in one read-only transaction so the figures share a snapshot.
func (r *postgresRepository) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning stats transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	s := &Stats{
		Users:   UserStats{NewByDay: []DayCount{}},
		Revenue: RevenueStats{ByPackage: []PackageStats{}},
	}

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&s.Users.Total); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT to_char(date_trunc('day', created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day, COUNT(*)
		FROM users
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day DESC
		LIMIT $2`, since, statsDays)
	if err != nil {
		return nil, fmt.Errorf("querying new users by day: %w", err)
	}
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning new users by day: %w", err)
		}
		s.Users.NewByDay = append(s.Users.NewByDay, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating new users by day: %w", err)
	}

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&s.Messages.Total); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)::bigint,
			COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0)::bigint
		FROM purchases`).Scan(&s.Purchases.Total, &s.Revenue.Total, &s.Revenue.Pending)
	if err != nil {
		return nil, fmt.Errorf("summing purchases: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT package_type, COUNT(*), COALESCE(SUM(amount), 0)::bigint
		FROM purchases
		WHERE status = 'completed'
		GROUP BY package_type
		ORDER BY package_type`)
	if err != nil {
		return nil, fmt.Errorf("querying revenue by package: %w", err)
	}
	for rows.Next() {
		var p PackageStats
		if err := rows.Scan(&p.Package, &p.Count, &p.Revenue); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning revenue by package: %w", err)
		}
		s.Revenue.ByPackage = append(s.Revenue.ByPackage, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating revenue by package: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(free_used), 0), COALESCE(SUM(paid_available), 0)
		FROM accounts`).Scan(&s.Requests.FreeUsed, &s.Requests.PaidRemaining)
	if err != nil {
		return nil, fmt.Errorf("summing account requests: %w", err)
	}

	return s, nil
}
