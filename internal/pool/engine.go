package pool

import (
	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/numeric"
)

// Engine holds the balance width and fee policy shared by all pools it
// operates on. It keeps no per-pool state and is safe for concurrent use.
type Engine struct {
	width  numeric.Width
	policy FeePolicy
}

func NewEngine(width numeric.Width, policy FeePolicy) *Engine {
	return &Engine{width: width, policy: policy}
}

func (e *Engine) Width() numeric.Width { return e.width }

func (e *Engine) Policy() FeePolicy { return e.policy }

// SwapDelta is the pool state after a swap and the amount paid out.
type SwapDelta struct {
	FirstReserve  numeric.Amount `json:"first_reserve"`
	SecondReserve numeric.Amount `json:"second_reserve"`
	Amount        numeric.Amount `json:"amount"`
}

// SwapQuote is the result of a swap computation.
type SwapQuote struct {
	Direction Direction      `json:"direction"`
	AmountIn  numeric.Amount `json:"amount_in"`
	Delta     SwapDelta      `json:"delta"`
	Fee       numeric.Amount `json:"fee"`
	PoolFee   numeric.Amount `json:"pool_fee"`
	Treasury  *TreasuryCut   `json:"treasury,omitempty"`
}

// Initialize launches an empty pool. The caller checks EnsureLaunch first.
// It returns the new pool and the shares credited to owner.
func (e *Engine) Initialize(first, second numeric.Amount, owner common.Address, now uint64) (Pool, numeric.Amount, error) {
	w := e.width

	product, ok := w.Mul(first, second)
	if !ok {
		return Pool{}, numeric.Amount{}, ErrUnderflowOccured
	}
	root, ok := w.Sqrt(product)
	if !ok {
		return Pool{}, numeric.Amount{}, ErrUnderflowOccured
	}
	initialShares, ok := w.Sub(root, w.MinFee())
	if !ok {
		return Pool{}, numeric.Amount{}, ErrUnderflowOccured
	}

	p := Pool{
		FirstReserve:   first,
		SecondReserve:  second,
		Invariant:      product,
		TotalShares:    initialShares,
		Shares:         map[common.Address]numeric.Amount{owner: initialShares},
		LastUpdateTime: now,
	}
	return p, initialShares, nil
}

// QuoteSwap computes the swap of amountIn in the given direction without
// changing p.
func (e *Engine) QuoteSwap(p Pool, dir Direction, amountIn numeric.Amount) (SwapQuote, error) {
	fee, poolFee, cut, err := e.splitFee(amountIn)
	if err != nil {
		return SwapQuote{}, err
	}

	reserveIn, reserveOut := p.FirstReserve, p.SecondReserve
	if dir == SecondToFirst {
		reserveIn, reserveOut = p.SecondReserve, p.FirstReserve
	}

	newIn, out, newOut, err := e.swapCalculation(p.Invariant, reserveIn, reserveOut, poolFee, amountIn)
	if err != nil {
		return SwapQuote{}, err
	}

	delta := SwapDelta{FirstReserve: newIn, SecondReserve: newOut, Amount: out}
	if dir == SecondToFirst {
		delta.FirstReserve, delta.SecondReserve = newOut, newIn
	}

	return SwapQuote{
		Direction: dir,
		AmountIn:  amountIn,
		Delta:     delta,
		Fee:       fee,
		PoolFee:   poolFee,
		Treasury:  cut,
	}, nil
}

// QuoteFirstToSecond swaps first asset in for second asset out.
func (e *Engine) QuoteFirstToSecond(p Pool, amountIn numeric.Amount) (SwapQuote, error) {
	return e.QuoteSwap(p, FirstToSecond, amountIn)
}

// QuoteSecondToFirst swaps second asset in for first asset out.
func (e *Engine) QuoteSecondToFirst(p Pool, amountIn numeric.Amount) (SwapQuote, error) {
	return e.QuoteSwap(p, SecondToFirst, amountIn)
}

func (e *Engine) swapCalculation(invariant, reserveIn, reserveOut, poolFee, amountIn numeric.Amount) (newIn, out, newOut numeric.Amount, err error) {
	w := e.width

	newIn, ok := w.Add(reserveIn, amountIn)
	if !ok {
		return newIn, out, newOut, ErrOverflowOccured
	}
	tempIn, ok := w.Sub(newIn, poolFee)
	if !ok {
		return newIn, out, newOut, ErrUnderflowOccured
	}
	newOut, ok = w.Div(invariant, tempIn)
	if !ok {
		return newIn, out, newOut, ErrUnderflowOrOverflowOccured
	}
	out, ok = w.Sub(reserveOut, newOut)
	if !ok {
		return newIn, out, newOut, ErrUnderflowOccured
	}
	return newIn, out, newOut, nil
}

// Costs returns the reserve amounts backing the given number of shares.
func (e *Engine) Costs(p Pool, shares numeric.Amount) (first, second numeric.Amount, err error) {
	first, ok := e.width.MulDiv(shares, p.FirstReserve, p.TotalShares)
	if !ok {
		return first, second, ErrUnderflowOrOverflowOccured
	}
	second, ok = e.width.MulDiv(shares, p.SecondReserve, p.TotalShares)
	if !ok {
		return first, second, ErrUnderflowOrOverflowOccured
	}
	return first, second, nil
}

// Invest credits shares to owner and adds the amounts to the reserves.
func (e *Engine) Invest(p Pool, first, second, shares numeric.Amount, owner common.Address) (Pool, error) {
	w := e.width
	next := p.Clone()

	ownerShares, ok := w.Add(next.Shares[owner], shares)
	if !ok {
		return p, ErrOverflowOccured
	}
	next.Shares[owner] = ownerShares

	if next.TotalShares, ok = w.Add(next.TotalShares, shares); !ok {
		return p, ErrOverflowOccured
	}
	if next.FirstReserve, ok = w.Add(next.FirstReserve, first); !ok {
		return p, ErrOverflowOccured
	}
	if next.SecondReserve, ok = w.Add(next.SecondReserve, second); !ok {
		return p, ErrOverflowOccured
	}
	if next.Invariant, ok = w.Mul(next.FirstReserve, next.SecondReserve); !ok {
		return p, ErrUnderflowOrOverflowOccured
	}
	return next, nil
}

// Divest burns owner's shares and removes the amounts from the reserves.
// Burning the last shares returns the pool to the unlaunched state.
func (e *Engine) Divest(p Pool, first, second, shares numeric.Amount, owner common.Address) (Pool, error) {
	w := e.width
	next := p.Clone()

	current, exists := next.Shares[owner]
	if !exists {
		return p, ErrDoesNotOwnShare
	}
	remaining, ok := w.Sub(current, shares)
	if !ok {
		return p, ErrUnderflowOccured
	}
	if remaining.IsZero() {
		delete(next.Shares, owner)
	} else {
		next.Shares[owner] = remaining
	}

	if next.TotalShares, ok = w.Sub(next.TotalShares, shares); !ok {
		return p, ErrUnderflowOccured
	}
	if next.FirstReserve, ok = w.Sub(next.FirstReserve, first); !ok {
		return p, ErrUnderflowOccured
	}
	if next.SecondReserve, ok = w.Sub(next.SecondReserve, second); !ok {
		return p, ErrUnderflowOccured
	}

	// Residual dust is tolerated; the invariant stops tracking it until the
	// next launch.
	if next.TotalShares.IsZero() {
		next.Invariant = numeric.Zero()
		return next, nil
	}
	if next.Invariant, ok = w.Mul(next.FirstReserve, next.SecondReserve); !ok {
		return p, ErrUnderflowOrOverflowOccured
	}
	return next, nil
}

// UpdatePools sets the reserves to the amounts actually held after a
// transfer and advances the price accumulators to now.
func (e *Engine) UpdatePools(p Pool, first, second numeric.Amount, now uint64) (Pool, error) {
	w := e.width
	next := p.Clone()
	next.FirstReserve = first
	next.SecondReserve = second

	if now < p.LastUpdateTime {
		return p, ErrUnderflowOrOverflowOccured
	}
	elapsed := numeric.NewAmount(now - p.LastUpdateTime)

	price1, err := e.priceDelta(first, second, elapsed)
	if err != nil {
		return p, err
	}
	price2, err := e.priceDelta(second, first, elapsed)
	if err != nil {
		return p, err
	}

	var ok bool
	if next.Price1Cumulative, ok = w.Add(next.Price1Cumulative, price1); !ok {
		return p, ErrUnderflowOrOverflowOccured
	}
	if next.Price2Cumulative, ok = w.Add(next.Price2Cumulative, price2); !ok {
		return p, ErrUnderflowOrOverflowOccured
	}
	next.LastUpdateTime = now

	if next.Invariant, ok = w.Mul(first, second); !ok {
		return p, ErrUnderflowOrOverflowOccured
	}
	return next, nil
}

// priceDelta is floor(numerator/denominator) * elapsed.
func (e *Engine) priceDelta(numerator, denominator, elapsed numeric.Amount) (numeric.Amount, error) {
	price, ok := e.width.Div(numerator, denominator)
	if !ok {
		return numeric.Amount{}, ErrUnderflowOrOverflowOccured
	}
	delta, ok := e.width.Mul(price, elapsed)
	if !ok {
		return numeric.Amount{}, ErrUnderflowOrOverflowOccured
	}
	return delta, nil
}
