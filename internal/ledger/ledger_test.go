package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"subdex/internal/numeric"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob   = common.HexToAddress("0x0b0b000000000000000000000000000000000000")
)

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	l := New(numeric.Width64)
	require.NoError(t, l.Deposit(ctx, alice, "DOT", numeric.NewAmount(100)))

	require.NoError(t, l.Transfer(ctx, alice, bob, "DOT", numeric.NewAmount(40)))

	got, err := l.Balance(ctx, alice, "DOT")
	require.NoError(t, err)
	require.Equal(t, numeric.NewAmount(60), got)
	got, err = l.Balance(ctx, bob, "DOT")
	require.NoError(t, err)
	require.Equal(t, numeric.NewAmount(40), got)

	err = l.Transfer(ctx, alice, bob, "DOT", numeric.NewAmount(61))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	got, _ = l.Balance(ctx, alice, "DOT")
	require.Equal(t, numeric.NewAmount(60), got)

	require.ErrorIs(t, l.Transfer(ctx, alice, bob, "", numeric.NewAmount(1)), ErrInvalidAsset)
	require.NoError(t, l.Transfer(ctx, bob, alice, "KSM", numeric.Zero()))
}

func TestTransferOverflowLeavesBalances(t *testing.T) {
	ctx := context.Background()
	l := New(numeric.Width64)
	require.NoError(t, l.Deposit(ctx, alice, "DOT", numeric.Width64.Max()))
	require.NoError(t, l.Deposit(ctx, bob, "DOT", numeric.NewAmount(1)))

	err := l.Transfer(ctx, bob, alice, "DOT", numeric.NewAmount(1))
	require.ErrorIs(t, err, ErrBalanceOverflow)

	got, _ := l.Balance(ctx, bob, "DOT")
	require.Equal(t, numeric.NewAmount(1), got)
	require.ErrorIs(t, l.Deposit(ctx, alice, "DOT", numeric.NewAmount(1)), ErrBalanceOverflow)
}

func TestSnapshotPrunesEmptyBalances(t *testing.T) {
	ctx := context.Background()
	l := New(numeric.Width64)
	require.NoError(t, l.Deposit(ctx, alice, "DOT", numeric.NewAmount(5)))
	require.NoError(t, l.Transfer(ctx, alice, bob, "DOT", numeric.NewAmount(5)))

	snap := l.Snapshot()
	require.NotContains(t, snap, alice)
	require.Equal(t, numeric.NewAmount(5), snap[bob]["DOT"])
	require.Equal(t, []common.Address{bob}, l.Accounts())

	// The snapshot is detached from the ledger.
	snap[bob]["DOT"] = numeric.NewAmount(99)
	got, _ := l.Balance(ctx, bob, "DOT")
	require.Equal(t, numeric.NewAmount(5), got)

	restored := New(numeric.Width64)
	restored.Restore(snap)
	got, _ = restored.Balance(ctx, bob, "DOT")
	require.Equal(t, numeric.NewAmount(99), got)
}
