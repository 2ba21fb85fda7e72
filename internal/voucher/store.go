package voucher

import (
	"context"
	"time"
)

// Store persists vouchers. Redeem is the shared-resource operation: it checks
// expiry, remaining uses and prior redemption by the same user, then records
// the redemption and increments the use count as one atomic step.
type Store interface {
	Create(ctx context.Context, v *Voucher) error
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	List(ctx context.Context) ([]*Voucher, error)
	Redeem(ctx context.Context, code, userID string, now time.Time) (*Voucher, error)
	// Release undoes a redemption whose follow-up grant failed, so the user
	// can redeem again.
	Release(ctx context.Context, voucherID, userID string) error
}
