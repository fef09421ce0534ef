package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/identity"
	"github.com/congo-pay/minipay/internal/ledger"
	"github.com/congo-pay/minipay/internal/wallet"
)

func seedWallet(t *testing.T, s *Memory, userID, walletID, username string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Accounts().Create(ctx, identity.Account{ID: userID, Username: username, CreatedAt: time.Now()}))
	require.NoError(t, s.Wallets().Create(ctx, wallet.Wallet{ID: walletID, UserID: userID}))
}

func TestMemory_WithinTxRollsBackOnError(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: 500, Kind: ledger.KindTopUp, IdempotencyKey: "k1"}); err != nil {
			return err
		}
		if _, err := tx.Wallets().AdjustBalance(ctx, "w1", 500); err != nil {
			return err
		}
		if err := tx.Accounts().Create(ctx, identity.Account{ID: "u2", Username: "bobby1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, err := s.Wallets().FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Balance)

	sum, err := s.Ledger().SumByWalletID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)

	_, err = s.Ledger().FindByIdempotencyKey(ctx, "w1", ledger.KindTopUp, "k1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Accounts().FindByUsername(ctx, "bobby1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemory_WithinTxCommits(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: 250, Kind: ledger.KindTopUp}); err != nil {
			return err
		}
		_, err := tx.Wallets().AdjustBalance(ctx, "w1", 250)
		return err
	})
	require.NoError(t, err)

	w, err := s.Wallets().FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), w.Balance)
}

func TestMemory_AdjustBalanceNeverNegative(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")

	_, err := s.Wallets().AdjustBalance(ctx, "w1", -1)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	_, err = s.Wallets().AdjustBalance(ctx, "missing", 10)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemory_WalletConstraints(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")

	err := s.Wallets().Create(ctx, wallet.Wallet{ID: "w2", UserID: "u1"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	err = s.Wallets().Create(ctx, wallet.Wallet{ID: "w3", UserID: "ghost"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	err = s.Accounts().Create(ctx, identity.Account{ID: "u9", Username: "alice1"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestMemory_LedgerKeysScopedByKind(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")

	_, err := s.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: 10, Kind: ledger.KindTopUp, IdempotencyKey: "k"})
	require.NoError(t, err)
	_, err = s.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: -5, Kind: ledger.KindTransferOut, IdempotencyKey: "k"})
	require.NoError(t, err)

	found, err := s.Ledger().FindByIdempotencyKey(ctx, "w1", ledger.KindTransferOut, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), found.Amount)

	_, err = s.Ledger().FindByIdempotencyKey(ctx, "w1", ledger.KindTransferIn, "k")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemory_LedgerIdempotencyAndOrdering(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")

	_, err := s.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: 1, Kind: ledger.KindTopUp, IdempotencyKey: "dup"})
	require.NoError(t, err)
	_, err = s.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: 2, Kind: ledger.KindTopUp, IdempotencyKey: "dup"})
	require.ErrorIs(t, err, apperr.ErrConflict)
	_, err = s.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: 3, Kind: ledger.KindTopUp})
	require.NoError(t, err)

	_, err = s.Ledger().Append(ctx, ledger.Entry{WalletID: "nope", Amount: 3})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	entries, err := s.Ledger().ListByWalletID(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Amount)
	assert.Equal(t, int64(1), entries[1].Amount)
}

func TestMemory_LockForUpdateOrdersIDs(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w-b", "alice1")
	seedWallet(t, s, "u2", "w-a", "bobby1")

	locked, err := s.Wallets().LockForUpdate(ctx, "w-b", "w-a")
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, "w-a", locked[0].ID)
	assert.Equal(t, "w-b", locked[1].ID)

	_, err = s.Wallets().LockForUpdate(ctx, "w-a", "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemory_ListPagesByID(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")
	seedWallet(t, s, "u2", "w2", "bobby1")
	seedWallet(t, s, "u3", "w3", "carol1")

	first, err := s.Wallets().List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := s.Wallets().List(ctx, first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "w3", rest[0].ID)
}

func TestMemory_CancelledContextRollsBack(t *testing.T) {
	s := NewMemory()
	seedWallet(t, s, "u1", "w1", "alice1")

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Wallets().AdjustBalance(ctx, "w1", 100); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	w, err := s.Wallets().FindByID(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Balance)
}

func TestMemory_ConcurrentUnits(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedWallet(t, s, "u1", "w1", "alice1")

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				if _, err := tx.Ledger().Append(ctx, ledger.Entry{WalletID: "w1", Amount: 10, Kind: ledger.KindTopUp}); err != nil {
					return err
				}
				_, err := tx.Wallets().AdjustBalance(ctx, "w1", 10)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := s.Wallets().FindByID(ctx, "w1")
	require.NoError(t, err)
	sum, err := s.Ledger().SumByWalletID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
	assert.Equal(t, w.Balance, sum)
}
