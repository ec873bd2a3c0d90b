package ledger

import (
	"context"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/numeric"
)

// Codespace groups the custody error codes.
const Codespace = "ledger"

var (
	ErrInsufficientBalance = errorsmod.Register(Codespace, 1, "insufficient balance")
	ErrBalanceOverflow     = errorsmod.Register(Codespace, 2, "balance overflow")
	ErrInvalidAsset        = errorsmod.Register(Codespace, 3, "invalid asset")
)

// Balances maps account -> asset -> amount.
type Balances map[common.Address]map[string]numeric.Amount

// Clone returns a deep copy.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for account, assets := range b {
		inner := make(map[string]numeric.Amount, len(assets))
		for asset, amount := range assets {
			inner[asset] = amount
		}
		out[account] = inner
	}
	return out
}

// Ledger is an in-memory multi-asset balance book. Balances are bounded by
// the configured width.
type Ledger struct {
	mu       sync.RWMutex
	width    numeric.Width
	balances Balances
}

func New(width numeric.Width) *Ledger {
	return &Ledger{width: width, balances: make(Balances)}
}

// Restore replaces all balances with a copy of b.
func (l *Ledger) Restore(b Balances) {
	l.mu.Lock()
	l.balances = b.Clone()
	l.mu.Unlock()
}

// Snapshot returns a copy of all non-zero balances.
func (l *Ledger) Snapshot() Balances {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances.Clone()
}

func (l *Ledger) Balance(_ context.Context, account common.Address, asset string) (numeric.Amount, error) {
	l.mu.RLock()
	amount := l.balances[account][asset]
	l.mu.RUnlock()
	return amount, nil
}

// Deposit mints amount of asset into account.
func (l *Ledger) Deposit(_ context.Context, account common.Address, asset string, amount numeric.Amount) error {
	if asset == "" {
		return ErrInvalidAsset
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(account, asset, amount)
}

// Transfer moves amount of asset between accounts. Nothing changes on error.
func (l *Ledger) Transfer(_ context.Context, from, to common.Address, asset string, amount numeric.Amount) error {
	if asset == "" {
		return ErrInvalidAsset
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.balances[from][asset]
	remaining, ok := l.width.Sub(held, amount)
	if !ok {
		return errorsmod.Wrapf(ErrInsufficientBalance, "%s holds %s %s, needs %s", from.Hex(), held, asset, amount)
	}
	if from == to {
		return nil
	}
	if _, ok := l.width.Add(l.balances[to][asset], amount); !ok {
		return errorsmod.Wrapf(ErrBalanceOverflow, "%s %s", to.Hex(), asset)
	}

	l.set(from, asset, remaining)
	return l.credit(to, asset, amount)
}

// Accounts lists accounts holding any balance, in address order.
func (l *Ledger) Accounts() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Address, 0, len(l.balances))
	for account := range l.balances {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (l *Ledger) credit(account common.Address, asset string, amount numeric.Amount) error {
	next, ok := l.width.Add(l.balances[account][asset], amount)
	if !ok {
		return errorsmod.Wrapf(ErrBalanceOverflow, "%s %s", account.Hex(), asset)
	}
	l.set(account, asset, next)
	return nil
}

func (l *Ledger) set(account common.Address, asset string, amount numeric.Amount) {
	if amount.IsZero() {
		delete(l.balances[account], asset)
		if len(l.balances[account]) == 0 {
			delete(l.balances, account)
		}
		return
	}
	assets, ok := l.balances[account]
	if !ok {
		assets = make(map[string]numeric.Amount)
		l.balances[account] = assets
	}
	assets[asset] = amount
}
