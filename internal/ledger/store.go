package ledger

import "context"

// Store persists token accounts. Every mutating method is atomic per
// account: the check and the write happen as one unit inside the backend.
type Store interface {
	// Open creates an account with an initial balance.
	Open(ctx context.Context, userID string, balance int64) (*Account, error)
	Get(ctx context.Context, userID string) (*Account, error)
	// Debit deducts cost when the account has no active subscription and
	// holds at least cost tokens. It returns ErrAccountNotFound,
	// *InsufficientTokensError, or ErrSubscriptionActive (with the unchanged
	// account) without mutating anything.
	Debit(ctx context.Context, userID string, cost int64) (*Account, error)
	Credit(ctx context.Context, userID string, amount int64) (*Account, error)
	SetSubscription(ctx context.Context, userID string, active bool) (*Account, error)
}
