package report

import (
	"fmt"
	"math/big"

	"subdex/internal/market"
	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	Pair           pool.PairKey
	WindowStart    uint64
	WindowEnd      uint64
	SwapCount      uint64
	InvestCount    uint64
	DivestCount    uint64
	VolumeFirst    *big.Int
	VolumeSecond   *big.Int
	FeeFirst       *big.Int
	FeeSecond      *big.Int
	TreasuryFirst  *big.Int
	TreasurySecond *big.Int
	ReserveFirst   *big.Int
	ReserveSecond  *big.Int
	LastTS         uint64
}

func NewAccumulator(event market.Event, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Pair:           event.Pair,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		VolumeFirst:    big.NewInt(0),
		VolumeSecond:   big.NewInt(0),
		FeeFirst:       big.NewInt(0),
		FeeSecond:      big.NewInt(0),
		TreasuryFirst:  big.NewInt(0),
		TreasurySecond: big.NewInt(0),
		ReserveFirst:   event.FirstReserve.Big(),
		ReserveSecond:  event.SecondReserve.Big(),
		LastTS:         event.Timestamp,
	}
}

func (a *Accumulator) AddEvent(event market.Event) error {
	switch event.Kind {
	case market.EventSwap:
		if err := a.applySwap(event); err != nil {
			return err
		}
	case market.EventCreate, market.EventInvest:
		a.InvestCount++
	case market.EventDivest:
		a.DivestCount++
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}

	if event.Timestamp >= a.LastTS {
		a.LastTS = event.Timestamp
		a.ReserveFirst = event.FirstReserve.Big()
		a.ReserveSecond = event.SecondReserve.Big()
	}
	return nil
}

func (a *Accumulator) applySwap(event market.Event) error {
	var volume, fee, treasury *big.Int
	switch event.AssetIn {
	case a.Pair.First:
		volume, fee, treasury = a.VolumeFirst, a.FeeFirst, a.TreasuryFirst
	case a.Pair.Second:
		volume, fee, treasury = a.VolumeSecond, a.FeeSecond, a.TreasurySecond
	default:
		return fmt.Errorf("swap input %q not in pair %s", event.AssetIn, a.Pair)
	}

	addAmount(volume, event.AmountIn)
	addAmount(fee, event.Fee)
	if event.Treasury != nil {
		addAmount(treasury, event.Treasury.Amount)
	}
	a.SwapCount++
	return nil
}

// PoolFees returns the fees kept by liquidity providers on each side, that
// is the swap fees net of the treasury cut.
func (a *Accumulator) PoolFees() (first, second *big.Int) {
	first = new(big.Int).Sub(a.FeeFirst, a.TreasuryFirst)
	second = new(big.Int).Sub(a.FeeSecond, a.TreasurySecond)
	return first, second
}

func addAmount(target *big.Int, value numeric.Amount) {
	if target == nil || value.IsZero() {
		return
	}
	target.Add(target, value.Big())
}
