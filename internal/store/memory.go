package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/identity"
	"github.com/congo-pay/minipay/internal/ledger"
	"github.com/congo-pay/minipay/internal/wallet"
)

// Memory is a concurrency-safe in-memory store used by tests and local runs
// without a database. Units of work are serialized by a single lock and their
// writes are undone when fn fails.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	accounts     map[string]identity.Account
	usernames    map[string]string
	wallets      map[string]wallet.Wallet
	walletByUser map[string]string
	entries      map[string][]ledger.Entry
	keys         map[string]ledger.Entry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: &memState{
		accounts:     make(map[string]identity.Account),
		usernames:    make(map[string]string),
		wallets:      make(map[string]wallet.Wallet),
		walletByUser: make(map[string]string),
		entries:      make(map[string][]ledger.Entry),
		keys:         make(map[string]ledger.Entry),
	}}
}

func (m *Memory) Accounts() identity.Repository { return memAccounts{memView{m: m}} }
func (m *Memory) Wallets() wallet.Repository     { return memWallets{memView{m: m}} }
func (m *Memory) Ledger() ledger.Repository      { return memLedger{memView{m: m}} }

// WithinTx runs fn while holding the store lock. On error or cancellation
// every write made through tx is reverted in reverse order.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state}
	view := memView{m: m, tx: tx}
	err := fn(ctx, memTxRepos{view})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memTx is the journal of one unit of work.
type memTx struct {
	state *memState
	undo  []func()
}

func (t *memTx) record(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// memView runs repository calls either inside an open unit of work or, when
// tx is nil, under the store lock as an auto-committed statement.
type memView struct {
	m  *Memory
	tx *memTx
}

func (v memView) write(fn func(t *memTx) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return fn(&memTx{state: v.m.state})
}

func (v memView) read(fn func(s *memState) error) error {
	if v.tx != nil {
		return fn(v.tx.state)
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return fn(v.m.state)
}

type memTxRepos struct{ view memView }

func (r memTxRepos) Accounts() identity.Repository { return memAccounts{r.view} }
func (r memTxRepos) Wallets() wallet.Repository     { return memWallets{r.view} }
func (r memTxRepos) Ledger() ledger.Repository      { return memLedger{r.view} }

type memAccounts struct{ view memView }

func (r memAccounts) Create(ctx context.Context, account identity.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.view.write(func(t *memTx) error {
		if _, taken := t.state.usernames[account.Username]; taken {
			return apperr.New(apperr.ErrConflict, "username already exist")
		}
		if _, taken := t.state.accounts[account.ID]; taken {
			return apperr.New(apperr.ErrConflict, "account already exist")
		}
		account.CreatedAt = account.CreatedAt.UTC()
		t.state.accounts[account.ID] = account
		t.state.usernames[account.Username] = account.ID
		t.record(func() {
			delete(t.state.accounts, account.ID)
			delete(t.state.usernames, account.Username)
		})
		return nil
	})
}

func (r memAccounts) FindByUsername(_ context.Context, username string) (identity.Account, error) {
	var found identity.Account
	err := r.view.read(func(s *memState) error {
		id, ok := s.usernames[username]
		if !ok {
			return apperr.New(apperr.ErrNotFound, "user not found")
		}
		found = s.accounts[id]
		return nil
	})
	return found, err
}

func (r memAccounts) FindByID(_ context.Context, id string) (identity.Account, error) {
	var found identity.Account
	err := r.view.read(func(s *memState) error {
		account, ok := s.accounts[id]
		if !ok {
			return apperr.New(apperr.ErrNotFound, "user not found")
		}
		found = account
		return nil
	})
	return found, err
}

type memWallets struct{ view memView }

func (r memWallets) Create(ctx context.Context, w wallet.Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.view.write(func(t *memTx) error {
		if _, ok := t.state.accounts[w.UserID]; !ok {
			return apperr.New(apperr.ErrNotFound, "user not found")
		}
		if _, exists := t.state.walletByUser[w.UserID]; exists {
			return apperr.New(apperr.ErrConflict, "wallet already exist")
		}
		if _, exists := t.state.wallets[w.ID]; exists {
			return apperr.New(apperr.ErrConflict, "wallet already exist")
		}
		if w.Balance < 0 {
			return apperr.New(apperr.ErrInsufficientFunds, "insufficient balance")
		}
		t.state.wallets[w.ID] = w
		t.state.walletByUser[w.UserID] = w.ID
		t.record(func() {
			delete(t.state.wallets, w.ID)
			delete(t.state.walletByUser, w.UserID)
		})
		return nil
	})
}

func (r memWallets) FindByUserID(_ context.Context, userID string) (wallet.Wallet, error) {
	var found wallet.Wallet
	err := r.view.read(func(s *memState) error {
		id, ok := s.walletByUser[userID]
		if !ok {
			return apperr.New(apperr.ErrNotFound, "wallet not found")
		}
		found = s.wallets[id]
		return nil
	})
	return found, err
}

func (r memWallets) FindByID(_ context.Context, id string) (wallet.Wallet, error) {
	var found wallet.Wallet
	err := r.view.read(func(s *memState) error {
		w, ok := s.wallets[id]
		if !ok {
			return apperr.New(apperr.ErrNotFound, "wallet not found")
		}
		found = w
		return nil
	})
	return found, err
}

// LockForUpdate only validates and orders: units of work already run one at a
// time under the store lock.
func (r memWallets) LockForUpdate(ctx context.Context, ids ...string) ([]wallet.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var locked []wallet.Wallet
	err := r.view.read(func(s *memState) error {
		for _, id := range wallet.SortIDs(ids) {
			w, ok := s.wallets[id]
			if !ok {
				return apperr.New(apperr.ErrNotFound, "wallet not found")
			}
			locked = append(locked, w)
		}
		return nil
	})
	return locked, err
}

func (r memWallets) AdjustBalance(ctx context.Context, walletID string, delta int64) (wallet.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return wallet.Wallet{}, err
	}
	var updated wallet.Wallet
	err := r.view.write(func(t *memTx) error {
		prev, ok := t.state.wallets[walletID]
		if !ok {
			return apperr.New(apperr.ErrNotFound, "wallet not found")
		}
		if prev.Balance+delta < 0 {
			return apperr.New(apperr.ErrInsufficientFunds, "insufficient balance")
		}
		updated = prev
		updated.Balance += delta
		updated.UpdatedAt = time.Now().UTC()
		t.state.wallets[walletID] = updated
		t.record(func() { t.state.wallets[walletID] = prev })
		return nil
	})
	return updated, err
}

func (r memWallets) List(_ context.Context, afterID string, limit int) ([]wallet.Wallet, error) {
	var page []wallet.Wallet
	err := r.view.read(func(s *memState) error {
		ids := make([]string, 0, len(s.wallets))
		for id := range s.wallets {
			if id > afterID {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		if limit > 0 && len(ids) > limit {
			ids = ids[:limit]
		}
		for _, id := range ids {
			page = append(page, s.wallets[id])
		}
		return nil
	})
	return page, err
}

type memLedger struct{ view memView }

func idempotencyIndex(walletID string, kind ledger.Kind, key string) string {
	return walletID + "\x00" + string(kind) + "\x00" + key
}

func (r memLedger) Append(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	entry, err := ledger.Prepare(entry)
	if err != nil {
		return ledger.Entry{}, err
	}
	err = r.view.write(func(t *memTx) error {
		if _, ok := t.state.wallets[entry.WalletID]; !ok {
			return apperr.New(apperr.ErrNotFound, "wallet not found")
		}
		if entry.CounterpartyWalletID != "" {
			if _, ok := t.state.wallets[entry.CounterpartyWalletID]; !ok {
				return apperr.New(apperr.ErrNotFound, "wallet not found")
			}
		}
		idx := idempotencyIndex(entry.WalletID, entry.Kind, entry.IdempotencyKey)
		if entry.IdempotencyKey != "" {
			if _, dup := t.state.keys[idx]; dup {
				return apperr.New(apperr.ErrConflict, "duplicate request")
			}
			t.state.keys[idx] = entry
		}
		t.state.entries[entry.WalletID] = append(t.state.entries[entry.WalletID], entry)
		t.record(func() {
			list := t.state.entries[entry.WalletID]
			t.state.entries[entry.WalletID] = list[:len(list)-1]
			if entry.IdempotencyKey != "" {
				delete(t.state.keys, idx)
			}
		})
		return nil
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

func (r memLedger) SumByWalletID(_ context.Context, walletID string) (int64, error) {
	var sum int64
	err := r.view.read(func(s *memState) error {
		for _, e := range s.entries[walletID] {
			sum += e.Amount
		}
		return nil
	})
	return sum, err
}

func (r memLedger) ListByWalletID(_ context.Context, walletID string, limit int) ([]ledger.Entry, error) {
	limit = ledger.ClampLimit(limit)
	entries := make([]ledger.Entry, 0)
	err := r.view.read(func(s *memState) error {
		all := s.entries[walletID]
		for i := len(all) - 1; i >= 0 && len(entries) < limit; i-- {
			entries = append(entries, all[i])
		}
		return nil
	})
	return entries, err
}

func (r memLedger) FindByIdempotencyKey(_ context.Context, walletID string, kind ledger.Kind, key string) (ledger.Entry, error) {
	var found ledger.Entry
	err := r.view.read(func(s *memState) error {
		e, ok := s.keys[idempotencyIndex(walletID, kind, key)]
		if !ok {
			return apperr.New(apperr.ErrNotFound, "ledger entry not found")
		}
		found = e
		return nil
	})
	return found, err
}
