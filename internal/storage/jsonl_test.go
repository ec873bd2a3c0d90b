package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"subdex/internal/market"
	"subdex/internal/numeric"
	"subdex/internal/pool"
)

func TestJsonlJournalAppendAndRead(t *testing.T) {
	ctx := context.Background()
	journal := NewJsonlJournal(filepath.Join(t.TempDir(), "out", "events.jsonl"))

	first := market.Event{
		Kind:      market.EventSwap,
		Pair:      pair,
		Account:   trader,
		Timestamp: 10,
		Direction: pool.FirstToSecond.String(),
		AssetIn:   "DOT",
		AssetOut:  "KSM",
		AmountIn:  numeric.MustParse("340282366920938463463374607431768211455"),
		AmountOut: numeric.NewAmount(91),
		Treasury:  &pool.TreasuryCut{Amount: numeric.NewAmount(1), Recipient: owner},
	}
	second := market.Event{Kind: market.EventInvest, Pair: pair, Account: owner, Timestamp: 11, Shares: numeric.NewAmount(5)}

	require.NoError(t, journal.Append(ctx, []market.Event{first}))
	require.NoError(t, journal.Append(ctx, []market.Event{second}))
	require.NoError(t, journal.Append(ctx, nil))

	events, err := ReadEvents(journal.Path())
	require.NoError(t, err)
	require.Equal(t, []market.Event{first, second}, events)
}

func TestScanEventsReportsLine(t *testing.T) {
	input := "{\"kind\":\"swap\"}\n\nnot json\n"
	var seen int
	err := ScanEvents(strings.NewReader(input), func(market.Event) error {
		seen++
		return nil
	})
	require.ErrorContains(t, err, "line 3")
	require.Equal(t, 1, seen)
}
