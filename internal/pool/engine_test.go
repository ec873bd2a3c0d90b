package pool

import (
	"fmt"
	"testing"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"subdex/internal/numeric"
)

var (
	ownerA   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ownerB   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	treasury = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func amt(v uint64) numeric.Amount { return numeric.NewAmount(v) }

func newTestEngine(t *testing.T, width numeric.Width, nom, den uint64, cut *TreasuryPolicy) *Engine {
	t.Helper()
	policy, err := NewFeePolicy(width, amt(nom), amt(den), cut)
	require.NoError(t, err)
	return NewEngine(width, policy)
}

func launch(t *testing.T, e *Engine, first, second uint64) Pool {
	t.Helper()
	p, _, err := e.Initialize(amt(first), amt(second), ownerA, 1_000)
	require.NoError(t, err)
	return p
}

func TestInitialize(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)

	p, shares, err := e.Initialize(amt(1000), amt(1000), ownerA, 1_700_000_000)
	require.NoError(t, err)
	require.Equal(t, amt(999), shares)
	require.Equal(t, amt(999), p.TotalShares)
	require.Equal(t, amt(1_000_000), p.Invariant)
	require.Equal(t, amt(1000), p.FirstReserve)
	require.Equal(t, amt(1000), p.SecondReserve)
	require.Equal(t, uint64(1_700_000_000), p.LastUpdateTime)
	require.True(t, p.Price1Cumulative.IsZero())
	require.True(t, p.Price2Cumulative.IsZero())

	got, ok := p.SharesOf(ownerA)
	require.True(t, ok)
	require.Equal(t, amt(999), got)
	require.NoError(t, p.Validate(numeric.Width64))
}

func TestInitializeMinFeeByWidth(t *testing.T) {
	tests := []struct {
		name  string
		width numeric.Width
		want  uint64
	}{
		{"64 bit", numeric.Width64, 1_000_000 - 1},
		{"96 bit", numeric.Width(96), 1_000_000 - 10},
		{"128 bit", numeric.Width128, 1_000_000 - 1000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, tc.width, 3, 1000, nil)
			_, shares, err := e.Initialize(amt(1_000_000), amt(1_000_000), ownerA, 0)
			require.NoError(t, err)
			require.Equal(t, amt(tc.want), shares)
		})
	}
}

func TestInitializeDustPool(t *testing.T) {
	e := newTestEngine(t, numeric.Width128, 3, 1000, nil)

	// sqrt(999*1000) = 999 <= min fee of 1000
	_, _, err := e.Initialize(amt(999), amt(1000), ownerA, 0)
	require.ErrorIs(t, err, ErrUnderflowOccured)

	_, _, err = e.Initialize(amt(0), amt(1000), ownerA, 0)
	require.ErrorIs(t, err, ErrUnderflowOccured)
}

func TestInitializeOverflow(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	_, _, err := e.Initialize(amt(1<<40), amt(1<<40), ownerA, 0)
	require.ErrorIs(t, err, ErrUnderflowOccured)
}

func TestDoubleInitializeRejected(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)
	before := p.Clone()

	err := p.EnsureLaunch()
	require.ErrorIs(t, err, ErrInvariantNotNull)
	require.Equal(t, before, p)

	// Zero invariant with outstanding shares still blocks a launch.
	p.Invariant = numeric.Zero()
	require.ErrorIs(t, p.EnsureLaunch(), ErrTotalSharesNotNull)

	require.NoError(t, Pool{}.EnsureLaunch())
}

func TestSwapFirstToSecondNoTreasury(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)
	before := p.Clone()

	quote, err := e.QuoteFirstToSecond(p, amt(100))
	require.NoError(t, err)
	require.True(t, quote.Fee.IsZero())
	require.Nil(t, quote.Treasury)
	require.Equal(t, amt(1100), quote.Delta.FirstReserve)
	require.Equal(t, amt(909), quote.Delta.SecondReserve)
	require.Equal(t, amt(91), quote.Delta.Amount)

	require.Equal(t, before, p, "quote must not mutate the pool")
}

func TestSwapSecondToFirstMirrors(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)

	quote, err := e.QuoteSecondToFirst(p, amt(100))
	require.NoError(t, err)
	require.Equal(t, amt(909), quote.Delta.FirstReserve)
	require.Equal(t, amt(1100), quote.Delta.SecondReserve)
	require.Equal(t, amt(91), quote.Delta.Amount)
}

func TestSwapWithTreasury(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, &TreasuryPolicy{
		Nominator:   amt(1),
		Denominator: amt(2),
		Recipient:   treasury,
	})
	p := launch(t, e, 1000, 1000)

	quote, err := e.QuoteFirstToSecond(p, amt(1000))
	require.NoError(t, err)
	require.Equal(t, amt(3), quote.Fee)
	require.Equal(t, amt(2), quote.PoolFee)
	require.NotNil(t, quote.Treasury)
	require.Equal(t, amt(1), quote.Treasury.Amount)
	require.Equal(t, treasury, quote.Treasury.Recipient)

	// new_in = 2000, temp = 1998, new_out = floor(1e6 / 1998) = 500
	require.Equal(t, amt(2000), quote.Delta.FirstReserve)
	require.Equal(t, amt(500), quote.Delta.SecondReserve)
	require.Equal(t, amt(500), quote.Delta.Amount)
}

func TestFeeSplitConservation(t *testing.T) {
	fractions := []struct{ fn, fd, tn, td uint64 }{
		{3, 1000, 1, 2},
		{3, 1000, 1, 3},
		{30, 10000, 1, 6},
		{1, 1, 1, 1},
		{997, 1000, 0, 5},
		{25, 1000, 7, 9},
	}
	inputs := []uint64{1, 7, 999, 1000, 123_456, 10_000_000}

	for _, fr := range fractions {
		e := newTestEngine(t, numeric.Width64, fr.fn, fr.fd, &TreasuryPolicy{
			Nominator:   amt(fr.tn),
			Denominator: amt(fr.td),
			Recipient:   treasury,
		})
		for _, in := range inputs {
			fee, poolFee, cut, err := e.splitFee(amt(in))
			require.NoError(t, err)
			require.NotNil(t, cut)
			sum, ok := numeric.Width64.Add(poolFee, cut.Amount)
			require.True(t, ok)
			require.Equal(t, fee, sum, "fee %d/%d treasury %d/%d input %d", fr.fn, fr.fd, fr.tn, fr.td, in)
		}
	}
}

func TestSwapErrors(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)

	t.Run("empty pool divides by zero", func(t *testing.T) {
		_, err := e.QuoteFirstToSecond(Pool{}, amt(0))
		require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)
	})

	t.Run("input overflows reserve", func(t *testing.T) {
		p := launch(t, e, 1000, 1000)
		_, err := e.QuoteFirstToSecond(p, numeric.Width64.Max())
		require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)

		// A zero fee rate keeps the fee computable so the reserve add fails instead.
		zeroFee := newTestEngine(t, numeric.Width64, 0, 1000, nil)
		_, err = zeroFee.QuoteFirstToSecond(p, numeric.Width64.Max())
		require.ErrorIs(t, err, ErrOverflowOccured)
	})

	t.Run("stale invariant pays out more than held", func(t *testing.T) {
		p := launch(t, e, 1000, 1000)
		p.Invariant = amt(10_000_000)
		_, err := e.QuoteFirstToSecond(p, amt(10))
		require.ErrorIs(t, err, ErrUnderflowOccured)
	})
}

func TestCosts(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 4000)

	// total shares = 2000 - 1
	first, second, err := e.Costs(p, amt(100))
	require.NoError(t, err)
	require.Equal(t, amt(50), first)
	require.Equal(t, amt(200), second)

	_, _, err = e.Costs(Pool{}, amt(1))
	require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)
}

func TestInvest(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)

	next, err := e.Invest(p, amt(100), amt(100), amt(99), ownerB)
	require.NoError(t, err)
	require.Equal(t, amt(1100), next.FirstReserve)
	require.Equal(t, amt(1100), next.SecondReserve)
	require.Equal(t, amt(1_210_000), next.Invariant)
	require.Equal(t, amt(1098), next.TotalShares)
	got, _ := next.SharesOf(ownerB)
	require.Equal(t, amt(99), got)
	require.NoError(t, next.Validate(numeric.Width64))

	// Original value is untouched.
	_, ok := p.SharesOf(ownerB)
	require.False(t, ok)
	require.Equal(t, amt(999), p.TotalShares)

	again, err := e.Invest(next, amt(10), amt(10), amt(9), ownerB)
	require.NoError(t, err)
	got, _ = again.SharesOf(ownerB)
	require.Equal(t, amt(108), got)
}

func TestInvestIsAllOrNothing(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)
	before := p.Clone()

	// Shares and first reserve fit, the invariant does not.
	_, err := e.Invest(p, amt(1<<40), amt(1<<40), amt(1), ownerB)
	require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)
	require.Equal(t, before, p)

	_, err = e.Invest(p, numeric.Width64.Max(), amt(1), amt(1), ownerB)
	require.ErrorIs(t, err, ErrOverflowOccured)
	require.Equal(t, before, p)
}

func TestDivest(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)
	p, err := e.Invest(p, amt(100), amt(100), amt(99), ownerB)
	require.NoError(t, err)

	next, err := e.Divest(p, amt(50), amt(50), amt(49), ownerB)
	require.NoError(t, err)
	require.Equal(t, amt(1050), next.FirstReserve)
	require.Equal(t, amt(1050), next.SecondReserve)
	require.Equal(t, amt(1_102_500), next.Invariant)
	require.Equal(t, amt(1049), next.TotalShares)
	got, _ := next.SharesOf(ownerB)
	require.Equal(t, amt(50), got)

	_, err = e.Divest(p, amt(1), amt(1), amt(1), treasury)
	require.ErrorIs(t, err, ErrDoesNotOwnShare)

	_, err = e.Divest(p, amt(1), amt(1), amt(100), ownerB)
	require.ErrorIs(t, err, ErrUnderflowOccured)

	_, err = e.Divest(p, amt(5000), amt(1), amt(1), ownerB)
	require.ErrorIs(t, err, ErrUnderflowOccured)
}

func TestDivestAllResetsInvariant(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)

	// Leave dust behind in both reserves.
	next, err := e.Divest(p, amt(998), amt(997), amt(999), ownerA)
	require.NoError(t, err)
	require.True(t, next.TotalShares.IsZero())
	require.True(t, next.Invariant.IsZero())
	require.Equal(t, amt(2), next.FirstReserve)
	require.Equal(t, amt(3), next.SecondReserve)
	require.Empty(t, next.Shares)
	require.NoError(t, next.EnsureLaunch())
	require.NoError(t, next.Validate(numeric.Width64))
}

func TestRelaunchResetsAccumulators(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 4000)
	p, err := e.UpdatePools(p, amt(1000), amt(4000), 1_100)
	require.NoError(t, err)
	require.False(t, p.Price2Cumulative.IsZero())

	p, err = e.Divest(p, amt(1000), amt(4000), p.TotalShares, ownerA)
	require.NoError(t, err)
	require.NoError(t, p.EnsureLaunch())

	relaunched, _, err := e.Initialize(amt(500), amt(500), ownerB, 1_200)
	require.NoError(t, err)
	require.True(t, relaunched.Price1Cumulative.IsZero())
	require.True(t, relaunched.Price2Cumulative.IsZero())
	require.Equal(t, uint64(1_200), relaunched.LastUpdateTime)
}

func TestUpdatePools(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 4000)

	next, err := e.UpdatePools(p, amt(1100), amt(3700), 1_010)
	require.NoError(t, err)
	// floor(1100/3700) * 10 = 0, floor(3700/1100) * 10 = 30
	require.True(t, next.Price1Cumulative.IsZero())
	require.Equal(t, amt(30), next.Price2Cumulative)
	require.Equal(t, uint64(1_010), next.LastUpdateTime)
	require.Equal(t, amt(4_070_000), next.Invariant)
	require.Equal(t, amt(1100), next.FirstReserve)

	// Same timestamp adds nothing.
	same, err := e.UpdatePools(next, amt(1100), amt(3700), 1_010)
	require.NoError(t, err)
	require.Equal(t, next.Price2Cumulative, same.Price2Cumulative)
}

func TestUpdatePoolsErrors(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 4000)
	before := p.Clone()

	_, err := e.UpdatePools(p, amt(1000), amt(4000), 999)
	require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)

	_, err = e.UpdatePools(p, amt(1000), amt(0), 1_001)
	require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)

	_, err = e.UpdatePools(p, amt(0), amt(1000), 1_001)
	require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)

	require.Equal(t, before, p)
}

func TestAveragePrice(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 4000)
	older := p.Observe()

	p, err := e.UpdatePools(p, amt(1000), amt(4000), 1_010)
	require.NoError(t, err)
	p, err = e.UpdatePools(p, amt(2000), amt(4000), 1_020)
	require.NoError(t, err)

	price1, price2, err := AveragePrice(numeric.Width64, older, p.Observe())
	require.NoError(t, err)
	require.True(t, price1.IsZero())
	// (4*10 + 2*10) / 20
	require.Equal(t, amt(3), price2)

	_, _, err = AveragePrice(numeric.Width64, p.Observe(), older)
	require.ErrorIs(t, err, ErrInvalidWindow)

	relaunched := Observation{Timestamp: 2_000}
	_, _, err = AveragePrice(numeric.Width64, p.Observe(), relaunched)
	require.ErrorIs(t, err, ErrUnderflowOrOverflowOccured)
}

func TestGuards(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 2000)

	require.ErrorIs(t, EnsureNonZeroAmount(numeric.Zero()), ErrAmountShouldBeGreaterThanZero)
	require.NoError(t, EnsureNonZeroAmount(amt(1)))

	require.ErrorIs(t, p.EnsureSufficientSharesForBurn(ownerA, numeric.Zero()), ErrInvalidShares)
	require.ErrorIs(t, p.EnsureSufficientSharesForBurn(ownerB, amt(1)), ErrDoesNotOwnShare)
	require.ErrorIs(t, p.EnsureSufficientSharesForBurn(ownerA, amt(1414)), ErrInsufficientShares)
	require.NoError(t, p.EnsureSufficientSharesForBurn(ownerA, amt(1413)))

	require.NoError(t, p.EnsureOutputAmountAcceptable(FirstToSecond, amt(2000), amt(2000)))
	require.ErrorIs(t, p.EnsureOutputAmountAcceptable(FirstToSecond, amt(10), amt(11)), ErrSecondAssetAmountBelowExpectation)
	require.ErrorIs(t, p.EnsureOutputAmountAcceptable(SecondToFirst, amt(10), amt(11)), ErrSecondAssetAmountBelowExpectation)
	require.ErrorIs(t, p.EnsureOutputAmountAcceptable(FirstToSecond, amt(2001), amt(0)), ErrInsufficientPool)
	require.ErrorIs(t, p.EnsureOutputAmountAcceptable(SecondToFirst, amt(1001), amt(0)), ErrInsufficientPool)
	require.NoError(t, p.EnsureFirstAssetAmount(amt(1000), amt(1)))
	require.NoError(t, p.EnsureSecondAssetAmount(amt(1500), amt(1)))
}

func TestNewFeePolicy(t *testing.T) {
	_, err := NewFeePolicy(numeric.Width64, amt(3), amt(0), nil)
	require.ErrorIs(t, err, ErrInvalidFeePolicy)

	_, err = NewFeePolicy(numeric.Width64, amt(3), amt(2), nil)
	require.ErrorIs(t, err, ErrInvalidFeePolicy)

	_, err = NewFeePolicy(numeric.Width(32), amt(3), amt(1<<40), nil)
	require.ErrorIs(t, err, ErrInvalidFeePolicy)

	_, err = NewFeePolicy(numeric.Width64, amt(3), amt(1000), &TreasuryPolicy{Nominator: amt(1), Denominator: amt(0)})
	require.ErrorIs(t, err, ErrInvalidFeePolicy)

	cut := &TreasuryPolicy{Nominator: amt(1), Denominator: amt(2), Recipient: treasury}
	policy, err := NewFeePolicy(numeric.Width64, amt(3), amt(1000), cut)
	require.NoError(t, err)
	cut.Nominator = amt(2)
	require.Equal(t, amt(1), policy.Treasury.Nominator, "policy keeps its own copy")
}

func TestValidate(t *testing.T) {
	e := newTestEngine(t, numeric.Width64, 3, 1000, nil)
	p := launch(t, e, 1000, 1000)
	require.NoError(t, p.Validate(numeric.Width64))

	broken := p.Clone()
	broken.TotalShares = amt(1)
	require.ErrorIs(t, broken.Validate(numeric.Width64), ErrInvalidShares)

	broken = p.Clone()
	broken.Invariant = amt(5)
	require.ErrorIs(t, broken.Validate(numeric.Width64), ErrUnderflowOrOverflowOccured)

	require.NoError(t, Pool{}.Validate(numeric.Width64))
	require.ErrorIs(t, Pool{Invariant: amt(1)}.Validate(numeric.Width64), ErrInvariantNotNull)
}

func TestIsEngineError(t *testing.T) {
	require.True(t, IsEngineError(ErrInsufficientPool))
	require.False(t, IsEngineError(nil))
	require.False(t, IsEngineError(fmt.Errorf("plain")))

	wrapped := fmt.Errorf("swap DOT/KSM: %w", errorsmod.Wrap(ErrInsufficientPool, "empty"))
	require.True(t, IsEngineError(wrapped))
	codespace, code, ok := ErrorCode(wrapped)
	require.True(t, ok)
	require.Equal(t, Codespace, codespace)
	require.Equal(t, uint32(6), code)
}
