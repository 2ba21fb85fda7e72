package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `user_id, balance, subscription_active, version, updated_at`

// PostgresStore keeps accounts in the token_accounts table. Debits are a
// single conditional UPDATE, so Postgres row locking makes the
// check-and-deduct atomic; the table's CHECK (balance >= 0) is the floor.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanAccount(row pgx.Row) (*Account, error) {
	a := &Account{}
	if err := row.Scan(&a.UserID, &a.Balance, &a.SubscriptionActive, &a.Version, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) Open(ctx context.Context, userID string, balance int64) (*Account, error) {
	if balance < 0 {
		return nil, ErrInvalidAmount
	}
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`INSERT INTO token_accounts (user_id, balance)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING `+accountColumns,
		userID, balance,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("opening token account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM token_accounts WHERE user_id = $1`,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting token account: %w", err)
	}
	return a, nil
}

// debitRetries bounds re-attempts when a concurrent credit lands between a
// failed conditional update and the read that explains it.
const debitRetries = 3

func (s *PostgresStore) Debit(ctx context.Context, userID string, cost int64) (*Account, error) {
	for i := 0; i < debitRetries; i++ {
		a, err := scanAccount(s.pool.QueryRow(ctx,
			`UPDATE token_accounts
			 SET balance = balance - $2, version = version + 1, updated_at = now()
			 WHERE user_id = $1 AND NOT subscription_active AND balance >= $2
			 RETURNING `+accountColumns,
			userID, cost,
		))
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("debiting token account: %w", err)
		}

		// No row matched: work out why without mutating anything.
		cur, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if cur.SubscriptionActive {
			return cur, ErrSubscriptionActive
		}
		if cur.Balance < cost {
			return nil, &InsufficientTokensError{Balance: cur.Balance, Required: cost}
		}
	}
	return nil, fmt.Errorf("debiting token account: balance changed concurrently %d times", debitRetries)
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount int64) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`UPDATE token_accounts
		 SET balance = balance + $2, version = version + 1, updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+accountColumns,
		userID, amount,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("crediting token account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) SetSubscription(ctx context.Context, userID string, active bool) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`UPDATE token_accounts
		 SET subscription_active = $2, version = version + 1, updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+accountColumns,
		userID, active,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("setting subscription: %w", err)
	}
	return a, nil
}
