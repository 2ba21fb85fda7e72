package ledger

import "time"

// Account is a learner's token balance.
type Account struct {
	UserID             string    `json:"user_id"`
	Balance            int64     `json:"balance"`
	SubscriptionActive bool      `json:"subscription_active"`
	Version            int64     `json:"version"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Charge is the outcome of ChargeOrSkip.
type Charge struct {
	Charged    bool  `json:"charged"`
	NewBalance int64 `json:"new_balance"`
}
