package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/infra"
)

// PostgresRepository persists ledger entries in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository constructs a Postgres-backed ledger.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, wallet_id, amount, kind, counterparty_wallet_id, idempotency_key, created_at`

// Append inserts an entry. A repeated idempotency key on the same wallet
// yields apperr.ErrConflict.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) (Entry, error) {
	entry, err := Prepare(entry)
	if err != nil {
		return Entry{}, err
	}

	walletID, err := uuid.Parse(entry.WalletID)
	if err != nil {
		return Entry{}, apperr.New(apperr.ErrNotFound, "wallet not found")
	}
	counterparty := pgtype.UUID{}
	if entry.CounterpartyWalletID != "" {
		parsed, err := uuid.Parse(entry.CounterpartyWalletID)
		if err != nil {
			return Entry{}, apperr.New(apperr.ErrNotFound, "wallet not found")
		}
		counterparty = pgtype.UUID{Bytes: parsed, Valid: true}
	}

	_, err = r.db.Exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, walletID, entry.Amount, string(entry.Kind),
		counterparty, nullable(entry.IdempotencyKey), entry.CreatedAt.UTC())
	if err != nil {
		err = infra.PgError(err, "wallet not found")
		if apperr.KindOf(err) == apperr.ErrConflict {
			return Entry{}, apperr.New(apperr.ErrConflict, "duplicate request")
		}
		return Entry{}, err
	}
	return entry, nil
}

// SumByWalletID returns the sum of all entry amounts for a wallet.
func (r *PostgresRepository) SumByWalletID(ctx context.Context, walletID string) (int64, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return 0, apperr.New(apperr.ErrNotFound, "wallet not found")
	}
	var sum int64
	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::bigint FROM ledger_entries WHERE wallet_id = $1`, id).Scan(&sum)
	if err != nil {
		return 0, infra.PgError(err, "wallet not found")
	}
	return sum, nil
}

// ListByWalletID returns up to limit entries, newest first.
func (r *PostgresRepository) ListByWalletID(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, apperr.New(apperr.ErrNotFound, "wallet not found")
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, id, ClampLimit(limit))
	if err != nil {
		return nil, infra.PgError(err, "wallet not found")
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, infra.PgError(rows.Err(), "wallet not found")
}

// FindByIdempotencyKey looks up the entry of kind previously written under key.
func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, walletID string, kind Kind, key string) (Entry, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Entry{}, apperr.New(apperr.ErrNotFound, "ledger entry not found")
	}
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE wallet_id = $1 AND kind = $2 AND idempotency_key = $3`, id, string(kind), key)
	return scanEntry(row)
}

// Prepare validates entry and fills in its id and timestamp when missing.
func Prepare(entry Entry) (Entry, error) {
	if entry.Amount == 0 {
		return Entry{}, apperr.New(apperr.ErrBadRequest, "amount must not be zero")
	}
	if entry.WalletID == "" {
		return Entry{}, apperr.New(apperr.ErrBadRequest, "wallet id is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry, nil
}

func nullable(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e              Entry
		id, walletID   uuid.UUID
		kind           string
		counterparty   pgtype.UUID
		idempotencyKey pgtype.Text
		createdAt      time.Time
	)
	if err := row.Scan(&id, &walletID, &e.Amount, &kind, &counterparty, &idempotencyKey, &createdAt); err != nil {
		return Entry{}, infra.PgError(err, "ledger entry not found")
	}
	e.ID = id.String()
	e.WalletID = walletID.String()
	e.Kind = Kind(kind)
	if counterparty.Valid {
		e.CounterpartyWalletID = uuid.UUID(counterparty.Bytes).String()
	}
	e.IdempotencyKey = idempotencyKey.String
	e.CreatedAt = createdAt.UTC()
	return e, nil
}
