package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound    = errors.New("token account not found")
	ErrAccountExists      = errors.New("token account already exists")
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrInvalidCost        = errors.New("token cost must be positive")
	ErrInvalidAmount      = errors.New("token amount must be positive")

	// ErrSubscriptionActive is returned by Store.Debit, together with the
	// unchanged account, when the account is exempt from charges.
	ErrSubscriptionActive = errors.New("subscription active")
)

// InsufficientTokensError carries the balance seen and the amount required
// so callers can offer an upgrade. It matches ErrInsufficientTokens.
type InsufficientTokensError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: balance %d, required %d", e.Balance, e.Required)
}

// Is reports whether target is ErrInsufficientTokens.
func (e *InsufficientTokensError) Is(target error) bool {
	return target == ErrInsufficientTokens
}
