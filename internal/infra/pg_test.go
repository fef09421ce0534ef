package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/congo-pay/minipay/internal/apperr"
)

func TestPgError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, apperr.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), apperr.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, apperr.ErrConflict},
		{"balance check", &pgconn.PgError{Code: "23514", ConstraintName: "wallets_balance_non_negative"}, apperr.ErrInsufficientFunds},
		{"other check", &pgconn.PgError{Code: "23514", ConstraintName: "ledger_entries_amount_non_zero"}, apperr.ErrBadRequest},
		{"serialization", &pgconn.PgError{Code: "40001"}, apperr.ErrUnavailable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperr.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, PgError(tc.err, "wallet not found"), tc.want)
		})
	}
}

func TestPgErrorPassthrough(t *testing.T) {
	assert.NoError(t, PgError(nil, "x"))

	plain := errors.New("boom")
	assert.Same(t, plain, PgError(plain, "x"))
	assert.Nil(t, apperr.KindOf(PgError(plain, "x")))
}

func TestPgErrorNotFoundMessage(t *testing.T) {
	err := PgError(pgx.ErrNoRows, "user not found")
	assert.Equal(t, "user not found", apperr.Message(err))
}
