package metering

import (
	"errors"
	"time"
)

// ErrInvalidCursor is returned for a pagination cursor that does not decode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Transaction kinds.
const (
	KindCharge       = "charge"
	KindGrant        = "grant"
	KindSubscription = "subscription"
	KindVoucher      = "voucher"
)

// Transaction is one append-only entry of the token ledger. It is written
// after the balance mutation it describes and never updated.
type Transaction struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Kind             string    `json:"kind"`
	Delta            int64     `json:"delta"`
	ResultingBalance int64     `json:"resulting_balance"`
	Description      string    `json:"description"`
	Timestamp        time.Time `json:"timestamp"`
}

// Summary holds aggregate figures for a set of transactions.
type Summary struct {
	Count        int64 `json:"count"`
	TokensSpent  int64 `json:"tokens_spent"`
	TokensGained int64 `json:"tokens_gained"`
}

// Query defines filters and pagination for listing transactions.
type Query struct {
	UserID string    `json:"user_id,omitempty"`
	Kind   string    `json:"kind,omitempty"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Cursor string    `json:"cursor,omitempty"`
	Limit  int       `json:"limit"`
}
