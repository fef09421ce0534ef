package infra

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/congo-pay/minipay/internal/apperr"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx so repositories
// can run either standalone or inside a unit of work.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PgError translates driver errors into apperr kinds. notFound is used as the
// message when the query matched no rows.
func PgError(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.ErrNotFound, notFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Wrap(apperr.ErrConflict, "already exists", err)
		case pgCheckViolation:
			if pgErr.ConstraintName == "wallets_balance_non_negative" {
				return apperr.Wrap(apperr.ErrInsufficientFunds, "insufficient balance", err)
			}
			return apperr.Wrap(apperr.ErrBadRequest, "constraint violated", err)
		case pgSerializationFailure, pgDeadlockDetected:
			return apperr.Wrap(apperr.ErrUnavailable, "transaction conflict", err)
		}
	}
	if pgconn.SafeToRetry(err) {
		return apperr.Wrap(apperr.ErrUnavailable, "storage unavailable", err)
	}
	return err
}
