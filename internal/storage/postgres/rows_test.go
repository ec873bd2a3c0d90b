package postgres

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

func TestPoolRowRoundTrip(t *testing.T) {
	engine := pool.NewEngine(numeric.Width128, pool.FeePolicy{Nominator: numeric.NewAmount(3), Denominator: numeric.NewAmount(1000)})
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	other := common.HexToAddress("0x0000000000000000000000000000000000000042")

	p, _, err := engine.Initialize(numeric.MustParse("1000000000000000000000"), numeric.NewAmount(4_000_000), owner, 1_700_000_000)
	require.NoError(t, err)
	p, err = engine.Invest(p, numeric.NewAmount(10), numeric.NewAmount(10), numeric.NewAmount(7), other)
	require.NoError(t, err)

	p.Version = 7

	row := encodePool(p)
	require.Equal(t, int64(7), row.Version)
	require.Len(t, row.Shares, 2)
	require.Equal(t, other.Hex(), row.Shares[0].Owner)

	got, err := row.decode()
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestPoolRowDecodeRejectsGarbage(t *testing.T) {
	row := encodePool(pool.Pool{})
	row.Invariant = "-5"
	_, err := row.decode()
	require.ErrorContains(t, err, "invariant")

	row = encodePool(pool.Pool{})
	row.Shares = []shareRow{{Owner: "nobody", Shares: "1"}}
	_, err = row.decode()
	require.ErrorContains(t, err, "share owner")
}

func TestLockOrder(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	require.Equal(t, []common.Address{a, b}, lockOrder(b, a))
	require.Equal(t, []common.Address{a, b}, lockOrder(a, b))
	require.Equal(t, []common.Address{a}, lockOrder(a, a))
}
