package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/identity"
	"github.com/congo-pay/minipay/internal/infra"
	"github.com/congo-pay/minipay/internal/ledger"
	"github.com/congo-pay/minipay/internal/wallet"
)

// Postgres runs units of work as READ COMMITTED transactions. Balance safety
// comes from row locks and the guarded balance update, not the isolation level.
type Postgres struct {
	pool       *pgxpool.Pool
	maxRetries int
	logger     *slog.Logger
	repos      pgRepos
}

// NewPostgres wires a Postgres store. maxRetries bounds how many times a unit
// failing with apperr.ErrUnavailable is attempted again.
func NewPostgres(pool *pgxpool.Pool, maxRetries int, logger *slog.Logger) *Postgres {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Postgres{
		pool:       pool,
		maxRetries: maxRetries,
		logger:     logger,
		repos:      newPgRepos(pool),
	}
}

func (s *Postgres) Accounts() identity.Repository { return s.repos.accounts }
func (s *Postgres) Wallets() wallet.Repository     { return s.repos.wallets }
func (s *Postgres) Ledger() ledger.Repository      { return s.repos.ledger }

// WithinTx runs fn inside a transaction, retrying the whole unit on
// serialization failures, deadlocks and lost connections.
func (s *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return retry(ctx, s.maxRetries, s.logger, func() error {
		err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			return fn(ctx, newPgRepos(tx))
		})
		if err != nil && apperr.KindOf(err) == nil {
			// begin and commit failures arrive untranslated
			return infra.PgError(err, "not found")
		}
		return err
	})
}

type pgRepos struct {
	accounts *identity.PostgresRepository
	wallets  *wallet.PostgresRepository
	ledger   *ledger.PostgresRepository
}

func newPgRepos(db infra.DBTX) pgRepos {
	return pgRepos{
		accounts: identity.NewPostgresRepository(db),
		wallets:  wallet.NewPostgresRepository(db),
		ledger:   ledger.NewPostgresRepository(db),
	}
}

func (r pgRepos) Accounts() identity.Repository { return r.accounts }
func (r pgRepos) Wallets() wallet.Repository     { return r.wallets }
func (r pgRepos) Ledger() ledger.Repository      { return r.ledger }
