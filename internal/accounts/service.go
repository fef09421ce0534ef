// Package accounts creates accounts together with their wallet.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/identity"
	"github.com/congo-pay/minipay/internal/store"
	"github.com/congo-pay/minipay/internal/wallet"
)

// ProvisionFunc creates the wallet of a new account through the
// transaction-scoped repository.
type ProvisionFunc func(ctx context.Context, repo wallet.Repository, userID string) (wallet.Wallet, error)

// Service owns account creation and lookup.
type Service struct {
	store     store.Store
	provision ProvisionFunc
	logger    *slog.Logger
}

// NewService constructs an account service that provisions wallets with
// wallet.Provision.
func NewService(s store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, provision: wallet.Provision, logger: logger}
}

// Create registers username and provisions its zero-balance wallet in the same
// unit of work. A taken username fails with apperr.ErrConflict and writes
// nothing; a provisioning failure rolls the account back.
func (s *Service) Create(ctx context.Context, username string) (identity.Account, wallet.Wallet, error) {
	var (
		account identity.Account
		created wallet.Wallet
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Accounts().FindByUsername(ctx, username)
		switch {
		case err == nil:
			return apperr.New(apperr.ErrConflict, "username already exist")
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}

		account = identity.Account{
			ID:        uuid.NewString(),
			Username:  username,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}

		created, err = s.provision(ctx, tx.Wallets(), account.ID)
		return err
	})
	if err != nil {
		return identity.Account{}, wallet.Wallet{}, err
	}

	s.logger.Info("account created",
		slog.String("user_id", account.ID),
		slog.String("username", account.Username),
		slog.String("wallet_id", created.ID),
	)
	return account, created, nil
}

// FindByUsername returns the account registered under username.
func (s *Service) FindByUsername(ctx context.Context, username string) (identity.Account, error) {
	return s.store.Accounts().FindByUsername(ctx, username)
}

// FindByID returns the account with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (identity.Account, error) {
	return s.store.Accounts().FindByID(ctx, id)
}
