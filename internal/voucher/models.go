package voucher

import "time"

// Voucher is a discount code. A 100% voucher unlocks the free plan's token
// grant; anything less is a discount on the paid plan.
type Voucher struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discount_percent"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	MaxUses         *int       `json:"max_uses,omitempty"`
	UsesSoFar       int        `json:"uses_so_far"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Expired reports whether the voucher has expired at now.
func (v *Voucher) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !now.Before(*v.ExpiresAt)
}

// Exhausted reports whether every use has been taken.
func (v *Voucher) Exhausted() bool {
	return v.MaxUses != nil && v.UsesSoFar >= *v.MaxUses
}

// Free reports whether the voucher waives the whole price.
func (v *Voucher) Free() bool {
	return v.DiscountPercent >= 100
}

// Redemption is the outcome of redeeming a voucher.
type Redemption struct {
	Voucher       *Voucher `json:"voucher"`
	TokensGranted int64    `json:"tokens_granted"`
	PriceCents    int64    `json:"price_cents"`
	Balance       int64    `json:"balance"`
}

// CreateInput is the admin payload for a new voucher.
type CreateInput struct {
	Code            string     `json:"code" validate:"required,min=3,max=64"`
	DiscountPercent int        `json:"discount_percent" validate:"required,min=1,max=100"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	MaxUses         *int       `json:"max_uses,omitempty" validate:"omitempty,min=1"`
}
