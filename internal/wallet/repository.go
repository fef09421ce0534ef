package wallet

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/infra"
)

// Repository persists wallets. AdjustBalance is the only balance mutation and
// must never commit a negative balance.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	FindByUserID(ctx context.Context, userID string) (Wallet, error)
	FindByID(ctx context.Context, id string) (Wallet, error)
	// LockForUpdate locks the given wallets in ascending id order and returns
	// them in that order.
	LockForUpdate(ctx context.Context, ids ...string) ([]Wallet, error)
	AdjustBalance(ctx context.Context, walletID string, delta int64) (Wallet, error)
	// List pages through wallets ordered by id, starting after afterID.
	List(ctx context.Context, afterID string, limit int) ([]Wallet, error)
}

// SortIDs returns a sorted, de-duplicated copy of ids. Every multi-wallet lock
// goes through this ordering.
func SortIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, user_id, balance, created_at, updated_at`

// Create inserts a wallet record. A second wallet for the same user yields
// apperr.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return apperr.Wrap(apperr.ErrBadRequest, "invalid wallet id", err)
	}
	userID, err := uuid.Parse(wallet.UserID)
	if err != nil {
		return apperr.Wrap(apperr.ErrBadRequest, "invalid user id", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)`, walletID, userID, wallet.Balance, wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	if err != nil {
		err = infra.PgError(err, "wallet not found")
		if apperr.KindOf(err) == apperr.ErrConflict {
			return apperr.New(apperr.ErrConflict, "wallet already exist")
		}
		return err
	}
	return nil
}

// FindByUserID fetches the wallet owned by the user.
func (r *PostgresRepository) FindByUserID(ctx context.Context, userID string) (Wallet, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, apperr.New(apperr.ErrNotFound, "wallet not found")
	}
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, id)
	return scanWallet(row)
}

// FindByID fetches wallet by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, apperr.New(apperr.ErrNotFound, "wallet not found")
	}
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

// LockForUpdate takes row locks in ascending id order. Outside a transaction
// the locks are released as soon as the statement completes.
func (r *PostgresRepository) LockForUpdate(ctx context.Context, ids ...string) ([]Wallet, error) {
	sorted := SortIDs(ids)
	for _, id := range sorted {
		if _, err := uuid.Parse(id); err != nil {
			return nil, apperr.New(apperr.ErrNotFound, "wallet not found")
		}
	}

	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, infra.PgError(err, "wallet not found")
	}
	defer rows.Close()

	wallets := make([]Wallet, 0, len(sorted))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.PgError(err, "wallet not found")
	}
	if len(wallets) != len(sorted) {
		return nil, apperr.New(apperr.ErrNotFound, "wallet not found")
	}
	return wallets, nil
}

// AdjustBalance applies delta in a single guarded statement so concurrent
// adjustments serialize on the row and a negative result is never written.
func (r *PostgresRepository) AdjustBalance(ctx context.Context, walletID string, delta int64) (Wallet, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, apperr.New(apperr.ErrNotFound, "wallet not found")
	}
	row := r.db.QueryRow(ctx, `UPDATE wallets
        SET balance = balance + $2, updated_at = now()
        WHERE id = $1 AND balance + $2 >= 0
        RETURNING `+walletColumns, id, delta)
	w, err := scanWallet(row)
	if err == nil {
		return w, nil
	}
	if apperr.KindOf(err) != apperr.ErrNotFound {
		return Wallet{}, err
	}
	// No row updated: either the wallet is missing or the guard rejected it.
	if _, findErr := r.FindByID(ctx, walletID); findErr != nil {
		return Wallet{}, findErr
	}
	return Wallet{}, apperr.New(apperr.ErrInsufficientFunds, "insufficient balance")
}

// List pages through wallets in id order.
func (r *PostgresRepository) List(ctx context.Context, afterID string, limit int) ([]Wallet, error) {
	after := uuid.Nil
	if afterID != "" {
		parsed, err := uuid.Parse(afterID)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrBadRequest, "invalid cursor", err)
		}
		after = parsed
	}
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, infra.PgError(err, "wallet not found")
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, infra.PgError(rows.Err(), "wallet not found")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (Wallet, error) {
	var (
		w                    Wallet
		id, userID           uuid.UUID
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &userID, &w.Balance, &createdAt, &updatedAt); err != nil {
		return Wallet{}, infra.PgError(err, "wallet not found")
	}
	w.ID = id.String()
	w.UserID = userID.String()
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}
