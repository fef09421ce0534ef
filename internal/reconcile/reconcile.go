// Package reconcile periodically checks that every wallet balance equals the
// sum of its ledger entries.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/minipay/internal/metrics"
	"github.com/congo-pay/minipay/internal/store"
)

const (
	defaultPageSize = 200
	runTimeout      = 2 * time.Minute
)

// Mismatch is a wallet whose balance drifted from its ledger.
type Mismatch struct {
	WalletID  string
	Balance   int64
	LedgerSum int64
}

// Reconciler audits wallets. It never repairs them; drift is reported through
// logs and metrics for an operator to investigate.
type Reconciler struct {
	store    store.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	pageSize int
}

// New constructs a reconciler.
func New(s store.Store, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: s, metrics: m, logger: logger, pageSize: defaultPageSize}
}

// Run walks all wallets once. Each wallet is locked while its ledger is summed
// so in-flight transfers cannot produce false positives.
func (r *Reconciler) Run(ctx context.Context) ([]Mismatch, error) {
	var (
		mismatches []Mismatch
		checked    int
		after      string
	)
	for {
		page, err := r.store.Wallets().List(ctx, after, r.pageSize)
		if err != nil {
			return nil, err
		}
		for _, w := range page {
			m, drifted, err := r.check(ctx, w.ID)
			if err != nil {
				return nil, err
			}
			checked++
			if drifted {
				r.logger.Error("wallet balance differs from ledger",
					slog.String("wallet_id", m.WalletID),
					slog.Int64("balance", m.Balance),
					slog.Int64("ledger_sum", m.LedgerSum),
				)
				mismatches = append(mismatches, m)
			}
		}
		if len(page) < r.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	r.metrics.ObserveReconcile(len(mismatches))
	r.logger.Info("reconciliation finished",
		slog.Int("wallets", checked),
		slog.Int("mismatched", len(mismatches)),
	)
	return mismatches, nil
}

func (r *Reconciler) check(ctx context.Context, walletID string) (Mismatch, bool, error) {
	var m Mismatch
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.Wallets().LockForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		sum, err := tx.Ledger().SumByWalletID(ctx, walletID)
		if err != nil {
			return err
		}
		m = Mismatch{WalletID: walletID, Balance: locked[0].Balance, LedgerSum: sum}
		return nil
	})
	if err != nil {
		return Mismatch{}, false, err
	}
	return m, m.Balance != m.LedgerSum, nil
}

// Schedule registers Run on c using a cron spec such as "@every 5m".
func (r *Reconciler) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error("reconciliation failed", slog.Any("error", err))
		}
	})
}
