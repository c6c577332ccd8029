package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const foreignKeyViolation = "23503"

// PostgresStore implements Store on the accounts and purchases tables.
// Row locks (SELECT ... FOR UPDATE) serialize concurrent decisions on one account.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const accountColumns = `account_id, kind, free_used, free_reset_at, paid_available, created_at, updated_at`

const purchaseColumns = `id, account_id, package_type, requests_count, amount, currency, status, source,
	payment_id, payment_url, created_at, updated_at, completed_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.Key, &a.Kind, &a.FreeUsed, &a.FreeResetAt, &a.PaidAvailable, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanPurchase(row pgx.Row) (*Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.AccountID, &p.PackageType, &p.RequestsCount, &p.Amount, &p.Currency,
		&p.Status, &p.Source, &p.PaymentID, &p.PaymentURL, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, key string) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return a, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func ensureAccount(ctx context.Context, q querier, ref AccountRef, now time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO accounts (account_id, kind, free_used, free_reset_at, paid_available, created_at, updated_at)
		 VALUES ($1, $2, 0, $3, 0, $3, $3)
		 ON CONFLICT (account_id) DO NOTHING`,
		ref.Key(), ref.Kind, now)
	if err != nil {
		return fmt.Errorf("ensuring account: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertAccount(ctx context.Context, ref AccountRef, now time.Time) (*Account, error) {
	if err := ensureAccount(ctx, s.pool, ref, now); err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, ref.Key())
}

func (s *PostgresStore) ApplyDecision(ctx context.Context, ref AccountRef, now time.Time, decide DecideFunc) (Decision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureAccount(ctx, tx, ref, now); err != nil {
		return Decision{}, err
	}

	acc, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1 FOR UPDATE`, ref.Key()))
	if err != nil {
		return Decision{}, fmt.Errorf("locking account: %w", err)
	}

	next, d := decide(*acc)
	if changed(*acc, next) {
		_, err = tx.Exec(ctx,
			`UPDATE accounts
			 SET free_used = $2, free_reset_at = $3, paid_available = $4, updated_at = $5
			 WHERE account_id = $1`,
			acc.Key, next.FreeUsed, next.FreeResetAt, next.PaidAvailable, now)
		if err != nil {
			return Decision{}, fmt.Errorf("updating account: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Decision{}, fmt.Errorf("committing decision: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ReleaseDecision(ctx context.Context, d Decision, now time.Time) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch d.Consequence {
	case ConsumeFree:
		tag, err = s.pool.Exec(ctx,
			`UPDATE accounts
			 SET free_used = free_used - 1, updated_at = $3
			 WHERE account_id = $1 AND free_used > 0 AND free_reset_at = $2`,
			d.AccountKey, d.WindowStart, now)
	case ConsumePaid:
		tag, err = s.pool.Exec(ctx,
			`UPDATE accounts
			 SET paid_available = paid_available + 1, updated_at = $2
			 WHERE account_id = $1`,
			d.AccountKey, now)
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("releasing %s request: %w", d.Consequence, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreatePurchase(ctx context.Context, p *Purchase) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO purchases (id, account_id, package_type, requests_count, amount, currency, status, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.AccountID, p.PackageType, p.RequestsCount, p.Amount, p.Currency,
		p.Status, p.Source, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrAccountNotFound
		}
		return fmt.Errorf("inserting purchase: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPurchase(ctx context.Context, id uuid.UUID) (*Purchase, error) {
	p, err := scanPurchase(s.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("querying purchase: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) AttachPayment(ctx context.Context, id uuid.UUID, paymentID, paymentURL string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE purchases SET payment_id = $2, payment_url = $3, updated_at = $4 WHERE id = $1`,
		id, paymentID, paymentURL, now)
	if err != nil {
		return fmt.Errorf("attaching payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (s *PostgresStore) TransitionPurchase(ctx context.Context, id uuid.UUID, from, to PurchaseStatus, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE purchases SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, now)
	if err != nil {
		return false, fmt.Errorf("transitioning purchase: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchases WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking purchase: %w", err)
	}
	if !exists {
		return false, ErrPurchaseNotFound
	}
	return false, nil
}

// CompletePurchase guards on status = 'pending' so concurrent or repeated
// deliveries credit the account at most once.
func (s *PostgresStore) CompletePurchase(ctx context.Context, id uuid.UUID, now time.Time) (*Completion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPurchase(tx.QueryRow(ctx,
		`UPDATE purchases
		 SET status = 'completed', completed_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+purchaseColumns, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := s.GetPurchase(ctx, id)
		if err != nil {
			return nil, err
		}
		var paid int
		if err := s.pool.QueryRow(ctx,
			`SELECT paid_available FROM accounts WHERE account_id = $1`, current.AccountID).Scan(&paid); err != nil {
			return nil, fmt.Errorf("querying account balance: %w", err)
		}
		return &Completion{Purchase: current, PaidAvailable: paid}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("completing purchase: %w", err)
	}

	var paid int
	err = tx.QueryRow(ctx,
		`UPDATE accounts
		 SET paid_available = paid_available + $2, updated_at = $3
		 WHERE account_id = $1
		 RETURNING paid_available`,
		p.AccountID, p.RequestsCount, now).Scan(&paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("crediting account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing purchase: %w", err)
	}
	return &Completion{Purchase: p, Applied: true, PaidAvailable: paid}, nil
}
