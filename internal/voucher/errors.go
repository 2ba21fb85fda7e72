package voucher

import "errors"

var (
	ErrNotFound        = errors.New("voucher not found")
	ErrExpired         = errors.New("voucher expired")
	ErrExhausted       = errors.New("voucher has no uses left")
	ErrAlreadyRedeemed = errors.New("voucher already redeemed by this user")
	ErrCodeTaken       = errors.New("voucher code already exists")
	ErrInvalid         = errors.New("invalid voucher")
)
