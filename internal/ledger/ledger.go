package ledger

import (
	"context"
	"time"
)

// Kind labels what produced a ledger entry.
type Kind string

const (
	KindTopUp       Kind = "top_up"
	KindTransferOut Kind = "transfer_out"
	KindTransferIn  Kind = "transfer_in"
)

const (
	// DefaultHistoryLimit is used when a caller does not ask for a page size.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 100
)

// Entry is one immutable, signed change applied to a wallet balance.
type Entry struct {
	ID                   string
	WalletID             string
	Amount               int64
	Kind                 Kind
	CounterpartyWalletID string
	IdempotencyKey       string
	CreatedAt            time.Time
}

// Repository is the append-only ledger. There is no update or delete.
type Repository interface {
	// Append records entry, assigning its id and timestamp when empty.
	Append(ctx context.Context, entry Entry) (Entry, error)
	SumByWalletID(ctx context.Context, walletID string) (int64, error)
	// ListByWalletID returns the newest entries first.
	ListByWalletID(ctx context.Context, walletID string, limit int) ([]Entry, error)
	// FindByIdempotencyKey looks up the entry of the given kind recorded under
	// key. Keys are scoped per wallet and kind.
	FindByIdempotencyKey(ctx context.Context, walletID string, kind Kind, key string) (Entry, error)
}

// ClampLimit bounds a requested history page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
