package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const voucherColumns = `id, code, discount_percent, expires_at, max_uses, uses_so_far, created_at`

// PostgresStore keeps vouchers in the vouchers and voucher_redemptions
// tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanVoucher(row pgx.Row) (*Voucher, error) {
	var v Voucher
	if err := row.Scan(&v.ID, &v.Code, &v.DiscountPercent, &v.ExpiresAt, &v.MaxUses, &v.UsesSoFar, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *PostgresStore) Create(ctx context.Context, v *Voucher) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO vouchers (id, code, discount_percent, expires_at, max_uses, uses_so_far, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.Code, v.DiscountPercent, v.ExpiresAt, v.MaxUses, v.UsesSoFar, v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("creating voucher: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	v, err := scanVoucher(p.pool.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting voucher: %w", err)
	}
	return v, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Voucher, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing vouchers: %w", err)
	}
	defer rows.Close()

	var out []*Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning voucher row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating voucher rows: %w", err)
	}
	return out, nil
}

// Redeem locks the voucher row, records the (voucher, user) pair and bumps
// the use count in one transaction. Any refusal rolls the whole thing back.
func (p *PostgresStore) Redeem(ctx context.Context, code, userID string, now time.Time) (*Voucher, error) {
	var out *Voucher
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		v, err := scanVoucher(tx.QueryRow(ctx,
			`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 FOR UPDATE`, code))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking voucher: %w", err)
		}
		if v.Expired(now) {
			return ErrExpired
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO voucher_redemptions (voucher_id, user_id, redeemed_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (voucher_id, user_id) DO NOTHING`,
			v.ID, userID, now.UTC(),
		)
		if err != nil {
			return fmt.Errorf("recording redemption: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyRedeemed
		}

		err = tx.QueryRow(ctx,
			`UPDATE vouchers SET uses_so_far = uses_so_far + 1
			 WHERE id = $1 AND (max_uses IS NULL OR uses_so_far < max_uses)
			 RETURNING uses_so_far`,
			v.ID,
		).Scan(&v.UsesSoFar)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExhausted
		}
		if err != nil {
			return fmt.Errorf("incrementing voucher uses: %w", err)
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Release deletes the redemption row and gives the use back, in one
// transaction. Releasing a pair that was never redeemed is a no-op.
func (p *PostgresStore) Release(ctx context.Context, voucherID, userID string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM voucher_redemptions WHERE voucher_id = $1 AND user_id = $2`,
			voucherID, userID,
		)
		if err != nil {
			return fmt.Errorf("deleting redemption: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE vouchers SET uses_so_far = uses_so_far - 1 WHERE id = $1 AND uses_so_far > 0`,
			voucherID,
		); err != nil {
			return fmt.Errorf("releasing voucher use: %w", err)
		}
		return nil
	})
}
