package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/infra"
)

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByUsername(ctx context.Context, username string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a Postgres-backed account repository. db may be
// a pool or a transaction.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account. A taken username yields apperr.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	accountID, err := uuid.Parse(account.ID)
	if err != nil {
		return apperr.Wrap(apperr.ErrBadRequest, "invalid account id", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, username, created_at) VALUES ($1, $2, $3)`,
		accountID, account.Username, account.CreatedAt.UTC())
	if err != nil {
		err = infra.PgError(err, "user not found")
		if apperr.KindOf(err) == apperr.ErrConflict {
			return apperr.New(apperr.ErrConflict, "username already exist")
		}
		return err
	}
	return nil
}

// FindByUsername fetches an account by exact, case-sensitive username.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, created_at FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

// FindByID fetches an account by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, apperr.New(apperr.ErrNotFound, "user not found")
	}
	row := r.db.QueryRow(ctx, `SELECT id, username, created_at FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (Account, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		account   Account
	)
	if err := row.Scan(&id, &account.Username, &createdAt); err != nil {
		return Account{}, infra.PgError(err, "user not found")
	}
	account.ID = id.String()
	account.CreatedAt = createdAt.UTC()
	return account, nil
}
