package payments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/auth"
	"github.com/congo-pay/minipay/internal/ledger"
	"github.com/congo-pay/minipay/internal/metrics"
	"github.com/congo-pay/minipay/internal/notification"
	"github.com/congo-pay/minipay/internal/store"
	"github.com/congo-pay/minipay/internal/validation"
	"github.com/congo-pay/minipay/internal/wallet"
)

// Amount bounds of a single operation, in the smallest currency unit.
const (
	MinAmount = validation.MinAmount
	MaxAmount = validation.MaxAmount
)

const (
	opTopUp    = "top_up"
	opTransfer = "transfer"
)

// Engine is the only writer of wallet balances. Every mutation appends ledger
// entries and adjusts balances inside one unit of work.
type Engine struct {
	store    store.Store
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine constructs the transfer engine. notifier and m may be nil.
func NewEngine(s store.Store, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{store: s, notifier: notifier, metrics: m, logger: logger}
}

// TopUpInput credits the caller's own wallet.
type TopUpInput struct {
	UserID         string
	Amount         int64
	IdempotencyKey string
}

// TransferInput moves funds from the sender to the wallet of ReceiverUsername.
type TransferInput struct {
	Sender           auth.Principal
	ReceiverUsername string
	Amount           int64
	IdempotencyKey   string
}

// TopUp adds Amount to the caller's wallet and records one positive entry.
func (e *Engine) TopUp(ctx context.Context, in TopUpInput) error {
	err := e.topUp(ctx, in)
	e.metrics.ObserveOperation(opTopUp, in.Amount, err)
	if err != nil {
		return err
	}
	e.logger.Info("top up committed",
		slog.String("user_id", in.UserID),
		slog.Int64("amount", in.Amount),
	)
	return nil
}

func (e *Engine) topUp(ctx context.Context, in TopUpInput) error {
	if in.UserID == "" {
		return apperr.New(apperr.ErrUnauthenticated, "user is invalid")
	}
	if err := validation.Amount(in.Amount); err != nil {
		return err
	}

	return e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.Wallets().FindByUserID(ctx, in.UserID)
		if err != nil {
			return err
		}
		if err := ensureFreshKey(ctx, tx.Ledger(), w.ID, ledger.KindTopUp, in.IdempotencyKey); err != nil {
			return err
		}
		if _, err := tx.Ledger().Append(ctx, ledger.Entry{
			WalletID:       w.ID,
			Amount:         in.Amount,
			Kind:           ledger.KindTopUp,
			IdempotencyKey: in.IdempotencyKey,
		}); err != nil {
			return err
		}
		_, err = tx.Wallets().AdjustBalance(ctx, w.ID, in.Amount)
		return err
	})
}

// Transfer debits the sender and credits the receiver atomically. Checks run
// in a fixed order: self transfer, sender wallet, sender balance, receiver
// account, receiver wallet. Both wallets are then locked in ascending id
// order and the balance is checked again on the locked row.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) error {
	receiverWallet, err := e.transfer(ctx, in)
	e.metrics.ObserveOperation(opTransfer, in.Amount, err)
	if err != nil {
		return err
	}

	e.logger.Info("transfer committed",
		slog.String("sender_id", in.Sender.UserID),
		slog.String("receiver", in.ReceiverUsername),
		slog.Int64("amount", in.Amount),
	)
	e.notifyReceiver(ctx, in, receiverWallet)
	return nil
}

func (e *Engine) transfer(ctx context.Context, in TransferInput) (wallet.Wallet, error) {
	if in.Sender.UserID == "" {
		return wallet.Wallet{}, apperr.New(apperr.ErrUnauthenticated, "user is invalid")
	}
	if in.ReceiverUsername == "" {
		return wallet.Wallet{}, apperr.New(apperr.ErrBadRequest, "username is invalid")
	}
	if err := validation.Amount(in.Amount); err != nil {
		return wallet.Wallet{}, err
	}
	if in.ReceiverUsername == in.Sender.Username {
		return wallet.Wallet{}, apperr.New(apperr.ErrBadRequest, "cannot transfer to self")
	}

	var receiverWallet wallet.Wallet
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sender, err := tx.Wallets().FindByUserID(ctx, in.Sender.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.New(apperr.ErrNotFound, "wallet sender not found")
			}
			return err
		}
		if sender.Balance < in.Amount {
			return apperr.New(apperr.ErrInsufficientFunds, "insufficient balance")
		}

		receiver, err := tx.Accounts().FindByUsername(ctx, in.ReceiverUsername)
		if err != nil {
			return err
		}
		if receiver.ID == in.Sender.UserID {
			return apperr.New(apperr.ErrBadRequest, "cannot transfer to self")
		}
		receiverWallet, err = tx.Wallets().FindByUserID(ctx, receiver.ID)
		if err != nil {
			return err
		}

		locked, err := tx.Wallets().LockForUpdate(ctx, sender.ID, receiverWallet.ID)
		if err != nil {
			return err
		}
		for _, w := range locked {
			if w.ID == sender.ID && w.Balance < in.Amount {
				return apperr.New(apperr.ErrInsufficientFunds, "insufficient balance")
			}
		}
		if err := ensureFreshKey(ctx, tx.Ledger(), sender.ID, ledger.KindTransferOut, in.IdempotencyKey); err != nil {
			return err
		}

		if _, err := tx.Ledger().Append(ctx, ledger.Entry{
			WalletID:             sender.ID,
			Amount:               -in.Amount,
			Kind:                 ledger.KindTransferOut,
			CounterpartyWalletID: receiverWallet.ID,
			IdempotencyKey:       in.IdempotencyKey,
		}); err != nil {
			return err
		}
		if _, err := tx.Wallets().AdjustBalance(ctx, sender.ID, -in.Amount); err != nil {
			return err
		}

		if _, err := tx.Ledger().Append(ctx, ledger.Entry{
			WalletID:             receiverWallet.ID,
			Amount:               in.Amount,
			Kind:                 ledger.KindTransferIn,
			CounterpartyWalletID: sender.ID,
		}); err != nil {
			return err
		}
		_, err = tx.Wallets().AdjustBalance(ctx, receiverWallet.ID, in.Amount)
		return err
	})
	return receiverWallet, err
}

// Balance returns the current balance of the caller's wallet.
func (e *Engine) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperr.New(apperr.ErrUnauthenticated, "user is invalid")
	}
	w, err := e.store.Wallets().FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// History returns the most recent ledger entries of the caller's wallet,
// newest first. limit is clamped to 1..100 and defaults to 20.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if userID == "" {
		return nil, apperr.New(apperr.ErrUnauthenticated, "user is invalid")
	}
	w, err := e.store.Wallets().FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.store.Ledger().ListByWalletID(ctx, w.ID, ledger.ClampLimit(limit))
}

func (e *Engine) notifyReceiver(ctx context.Context, in TransferInput, receiver wallet.Wallet) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: in.ReceiverUsername,
		Sender:      in.Sender.Username,
		Amount:      in.Amount,
	})
	if err != nil {
		e.logger.Warn("transfer notification failed",
			slog.String("wallet_id", receiver.ID),
			slog.Any("error", err),
		)
	}
}

// ensureFreshKey rejects a key the caller already used for the same kind of
// operation on the wallet. Only the initiating entry carries the key, so a
// receiver's own keys never collide with incoming transfers. The unique index
// on the ledger still guards concurrent repeats.
func ensureFreshKey(ctx context.Context, l ledger.Repository, walletID string, kind ledger.Kind, key string) error {
	if key == "" {
		return nil
	}
	_, err := l.FindByIdempotencyKey(ctx, walletID, kind, key)
	switch {
	case err == nil:
		return apperr.New(apperr.ErrConflict, "duplicate request")
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return err
	}
}
