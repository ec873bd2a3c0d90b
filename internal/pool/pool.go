package pool

import (
	"bytes"
	"maps"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/numeric"
)

// Pool is the state of one constant-product pair. It is a value: engine
// operations return a new Pool and leave the receiver untouched.
type Pool struct {
	FirstReserve     numeric.Amount                    `json:"first_reserve"`
	SecondReserve    numeric.Amount                    `json:"second_reserve"`
	Invariant        numeric.Amount                    `json:"invariant"`
	TotalShares      numeric.Amount                    `json:"total_shares"`
	Shares           map[common.Address]numeric.Amount `json:"shares"`
	LastUpdateTime   uint64                            `json:"last_update_time"`
	Price1Cumulative numeric.Amount                    `json:"price1_cumulative"`
	Price2Cumulative numeric.Amount                    `json:"price2_cumulative"`

	// Version counts committed saves of the pair. Repositories refuse to
	// overwrite a snapshot whose Version is no longer the stored one.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy; the shares map is not shared.
func (p Pool) Clone() Pool {
	out := p
	out.Shares = maps.Clone(p.Shares)
	if out.Shares == nil {
		out.Shares = make(map[common.Address]numeric.Amount)
	}
	return out
}

// Launched reports whether the pool has been initialized and not fully divested.
func (p Pool) Launched() bool {
	return !p.Invariant.IsZero() || !p.TotalShares.IsZero()
}

func (p Pool) Reserves() (first, second numeric.Amount) {
	return p.FirstReserve, p.SecondReserve
}

// SharesOf returns the owner's balance and whether an entry exists.
func (p Pool) SharesOf(owner common.Address) (numeric.Amount, bool) {
	shares, ok := p.Shares[owner]
	return shares, ok
}

// Owners lists share holders in address order.
func (p Pool) Owners() []common.Address {
	owners := make([]common.Address, 0, len(p.Shares))
	for owner := range p.Shares {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})
	return owners
}

// Observation is a snapshot of the price accumulators.
type Observation struct {
	Timestamp        uint64         `json:"timestamp"`
	Price1Cumulative numeric.Amount `json:"price1_cumulative"`
	Price2Cumulative numeric.Amount `json:"price2_cumulative"`
}

func (p Pool) Observe() Observation {
	return Observation{
		Timestamp:        p.LastUpdateTime,
		Price1Cumulative: p.Price1Cumulative,
		Price2Cumulative: p.Price2Cumulative,
	}
}

// Validate checks the accounting invariants of a loaded snapshot.
func (p Pool) Validate(width numeric.Width) error {
	for _, v := range []numeric.Amount{p.FirstReserve, p.SecondReserve, p.Invariant, p.TotalShares, p.Price1Cumulative, p.Price2Cumulative} {
		if !width.Fits(v) {
			return errorsmod.Wrapf(ErrOverflowOccured, "value %s exceeds %d bits", v, width)
		}
	}

	sum := numeric.Zero()
	for owner, shares := range p.Shares {
		next, ok := width.Add(sum, shares)
		if !ok {
			return errorsmod.Wrapf(ErrOverflowOccured, "shares of %s", owner.Hex())
		}
		sum = next
	}
	if !sum.Eq(p.TotalShares) {
		return errorsmod.Wrapf(ErrInvalidShares, "total shares %s, sum of owners %s", p.TotalShares, sum)
	}

	if p.TotalShares.IsZero() {
		if !p.Invariant.IsZero() {
			return errorsmod.Wrap(ErrInvariantNotNull, "empty pool with non-zero invariant")
		}
		return nil
	}
	product, ok := width.Mul(p.FirstReserve, p.SecondReserve)
	if !ok {
		return ErrUnderflowOrOverflowOccured
	}
	if !product.Eq(p.Invariant) {
		return errorsmod.Wrapf(ErrUnderflowOrOverflowOccured, "invariant %s, reserve product %s", p.Invariant, product)
	}
	return nil
}

// EnsureLaunch fails unless the pool is empty.
func (p Pool) EnsureLaunch() error {
	if !p.Invariant.IsZero() {
		return ErrInvariantNotNull
	}
	if !p.TotalShares.IsZero() {
		return ErrTotalSharesNotNull
	}
	return nil
}

// EnsureNonZeroAmount rejects zero user-supplied amounts.
func EnsureNonZeroAmount(amount numeric.Amount) error {
	if amount.IsZero() {
		return ErrAmountShouldBeGreaterThanZero
	}
	return nil
}

// EnsureSufficientSharesForBurn checks that owner can burn the given shares.
func (p Pool) EnsureSufficientSharesForBurn(owner common.Address, burn numeric.Amount) error {
	if burn.IsZero() {
		return ErrInvalidShares
	}
	shares, ok := p.Shares[owner]
	if !ok {
		return ErrDoesNotOwnShare
	}
	if shares.LT(burn) {
		return ErrInsufficientShares
	}
	return nil
}

// EnsureFirstAssetAmount checks a first-asset payout against the caller's
// minimum and the first reserve.
func (p Pool) EnsureFirstAssetAmount(out, minOut numeric.Amount) error {
	return ensureOutput(out, minOut, p.FirstReserve)
}

// EnsureSecondAssetAmount checks a second-asset payout against the caller's
// minimum and the second reserve.
func (p Pool) EnsureSecondAssetAmount(out, minOut numeric.Amount) error {
	return ensureOutput(out, minOut, p.SecondReserve)
}

// EnsureOutputAmountAcceptable applies the payout check to the output side of dir.
func (p Pool) EnsureOutputAmountAcceptable(dir Direction, out, minOut numeric.Amount) error {
	if dir == FirstToSecond {
		return p.EnsureSecondAssetAmount(out, minOut)
	}
	return p.EnsureFirstAssetAmount(out, minOut)
}

func ensureOutput(out, minOut, reserve numeric.Amount) error {
	// The same kind is reported for both directions.
	if out.LT(minOut) {
		return ErrSecondAssetAmountBelowExpectation
	}
	if out.GT(reserve) {
		return ErrInsufficientPool
	}
	return nil
}
