package wallet

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/identity"
	"github.com/congo-pay/minipay/internal/infra"
)

// testPool connects to MINIPAY_TEST_DATABASE_URL and migrates it. Tests are
// skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("MINIPAY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MINIPAY_TEST_DATABASE_URL not set")
	}
	require.NoError(t, infra.Migrate(url, nil))
	pool, err := infra.NewPostgresPool(context.Background(), url, infra.PoolOptions{AppName: "minipay-test"})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedWallet(t *testing.T, pool *pgxpool.Pool) Wallet {
	t.Helper()
	ctx := context.Background()
	account := identity.Account{ID: uuid.NewString(), Username: "w" + uuid.NewString()[:12], CreatedAt: time.Now()}
	require.NoError(t, identity.NewPostgresRepository(pool).Create(ctx, account))
	w, err := Provision(ctx, NewPostgresRepository(pool), account.ID)
	require.NoError(t, err)
	return w
}

func TestPostgresAdjustBalanceGuard(t *testing.T) {
	pool := testPool(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()
	w := seedWallet(t, pool)

	got, err := repo.AdjustBalance(ctx, w.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)

	_, err = repo.AdjustBalance(ctx, w.ID, -150)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	_, err = repo.AdjustBalance(ctx, uuid.NewString(), 10)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	after, err := repo.FindByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), after.Balance)
}

func TestPostgresAdjustBalanceConcurrentDebits(t *testing.T) {
	pool := testPool(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()
	w := seedWallet(t, pool)
	_, err := repo.AdjustBalance(ctx, w.ID, 100)
	require.NoError(t, err)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AdjustBalance(ctx, w.ID, -1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.ErrInsufficientFunds:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, ok)
	assert.Equal(t, 50, rejected)
	after, err := repo.FindByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Balance)
}

func TestPostgresLockForUpdate(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	a, b := seedWallet(t, pool), seedWallet(t, pool)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	repo := NewPostgresRepository(tx)
	locked, err := repo.LockForUpdate(ctx, b.ID, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, locked, 2)
	want := SortIDs([]string{a.ID, b.ID})
	assert.Equal(t, want, []string{locked[0].ID, locked[1].ID})

	_, err = repo.LockForUpdate(ctx, a.ID, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
