package escrow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/speedrun-hq/speedrun-settler/pkg/bpsmath"
)

// ErrInsufficientBalance is returned when a release exceeds the locked
// balance of the (owner, asset) account.
var ErrInsufficientBalance = fmt.Errorf("insufficient escrow balance")

type accountKey struct {
	Owner string
	Asset string
}

// Account is a snapshot row of a locked balance
type Account struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// Ledger tracks locked balances per (owner, asset) together with a per
// asset running total. Both views are updated under one mutex so no
// observer can see one without the other. Invariant: for every asset,
// the sum of account balances equals the tracked total.
type Ledger struct {
	mu       sync.Mutex
	accounts map[accountKey]uint64
	totals   map[string]uint64
}

// NewLedger creates an empty escrow ledger
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[accountKey]uint64),
		totals:   make(map[string]uint64),
	}
}

// Lock adds amount to the (owner, asset) locked balance and to the asset
// total. Zero amounts are rejected: a zero lock is always a caller bug.
func (l *Ledger) Lock(owner, asset string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("cannot lock zero amount for %s/%s", owner, asset)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := accountKey{Owner: owner, Asset: asset}
	newBalance, err := bpsmath.CheckedAdd(l.accounts[key], amount)
	if err != nil {
		return fmt.Errorf("escrow lock for %s/%s: %v", owner, asset, err)
	}
	newTotal, err := bpsmath.CheckedAdd(l.totals[asset], amount)
	if err != nil {
		return fmt.Errorf("escrow total for %s: %v", asset, err)
	}

	l.accounts[key] = newBalance
	l.totals[asset] = newTotal
	return nil
}

// Release removes amount from the (owner, asset) locked balance. A zero
// release is a no-op success. Releasing to exactly zero deletes the
// account row to bound storage.
func (l *Ledger) Release(owner, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := accountKey{Owner: owner, Asset: asset}
	balance := l.accounts[key]
	if amount > balance {
		return fmt.Errorf("%w: %s/%s has %d, release of %d requested",
			ErrInsufficientBalance, owner, asset, balance, amount)
	}

	if balance == amount {
		delete(l.accounts, key)
	} else {
		l.accounts[key] = balance - amount
	}

	total := l.totals[asset]
	if amount > total {
		// Unreachable while the invariant holds; fail loudly if it ever is.
		return fmt.Errorf("escrow total for %s underflow: total %d, release %d", asset, total, amount)
	}
	if total == amount {
		delete(l.totals, asset)
	} else {
		l.totals[asset] = total - amount
	}
	return nil
}

// Balance returns the locked balance for an (owner, asset) account
func (l *Ledger) Balance(owner, asset string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[accountKey{Owner: owner, Asset: asset}]
}

// TotalLocked returns the tracked total locked for an asset
func (l *Ledger) TotalLocked(asset string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[asset]
}

// VerifyInvariants recomputes per-asset sums from the account rows and
// compares against the tracked totals. Used after bulk restore and for
// periodic health checks.
func (l *Ledger) VerifyInvariants() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	recomputed := make(map[string]uint64)
	for key, amount := range l.accounts {
		sum, err := bpsmath.CheckedAdd(recomputed[key.Asset], amount)
		if err != nil {
			return fmt.Errorf("escrow invariant: sum overflow for asset %s", key.Asset)
		}
		recomputed[key.Asset] = sum
	}

	for asset, total := range l.totals {
		if recomputed[asset] != total {
			return fmt.Errorf("escrow invariant violated for %s: accounts sum to %d, total is %d",
				asset, recomputed[asset], total)
		}
	}
	for asset, sum := range recomputed {
		if _, ok := l.totals[asset]; !ok {
			return fmt.Errorf("escrow invariant violated for %s: accounts sum to %d, no total tracked",
				asset, sum)
		}
	}
	return nil
}

// Snapshot returns all account rows in a stable order for persistence
func (l *Ledger) Snapshot() []Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := make([]Account, 0, len(l.accounts))
	for key, amount := range l.accounts {
		rows = append(rows, Account{Owner: key.Owner, Asset: key.Asset, Amount: amount})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Owner != rows[j].Owner {
			return rows[i].Owner < rows[j].Owner
		}
		return rows[i].Asset < rows[j].Asset
	})
	return rows
}

// Restore replaces the ledger contents with the given rows, rebuilding
// the per-asset totals, then re-verifies the invariant.
func (l *Ledger) Restore(rows []Account) error {
	l.mu.Lock()
	accounts := make(map[accountKey]uint64)
	totals := make(map[string]uint64)
	for _, row := range rows {
		if row.Amount == 0 {
			continue
		}
		key := accountKey{Owner: row.Owner, Asset: row.Asset}
		if _, exists := accounts[key]; exists {
			l.mu.Unlock()
			return fmt.Errorf("duplicate escrow row for %s/%s", row.Owner, row.Asset)
		}
		total, err := bpsmath.CheckedAdd(totals[row.Asset], row.Amount)
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("escrow restore for %s: %v", row.Asset, err)
		}
		accounts[key] = row.Amount
		totals[row.Asset] = total
	}
	l.accounts = accounts
	l.totals = totals
	l.mu.Unlock()

	return l.VerifyInvariants()
}
