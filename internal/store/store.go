// Package store groups the account, wallet and ledger repositories into one
// unit of work so multi-step balance changes commit together or not at all.
package store

import (
	"context"

	"github.com/congo-pay/minipay/internal/identity"
	"github.com/congo-pay/minipay/internal/ledger"
	"github.com/congo-pay/minipay/internal/wallet"
)

// Tx exposes repositories bound to a single transaction.
type Tx interface {
	Accounts() identity.Repository
	Wallets() wallet.Repository
	Ledger() ledger.Repository
}

// Store hands out repositories that run outside any transaction and runs
// units of work. Writes made through the tx passed to fn become visible only
// if fn returns nil.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
