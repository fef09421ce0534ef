package wallet

import "time"

// Wallet holds the materialized balance of one account, in the smallest
// currency unit. The ledger entries of the wallet always sum to Balance.
type Wallet struct {
	ID        string
	UserID    string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
