package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type scriptedHeads struct {
	times  []uint64
	fails  int
	calls  int
	onCall func()
}

func (s *scriptedHeads) LatestHeader(context.Context) (*types.Header, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	if s.fails > 0 {
		s.fails--
		return nil, errors.New("connection refused")
	}
	ts := s.times[0]
	if len(s.times) > 1 {
		s.times = s.times[1:]
	}
	return &types.Header{Number: big.NewInt(int64(s.calls)), Time: ts}, nil
}

func TestBlockClockMonotonic(t *testing.T) {
	heads := &scriptedHeads{times: []uint64{100, 105, 103, 110}}
	clock := NewBlockClock(heads, 0, time.Millisecond, nil)
	ctx := context.Background()

	var got []uint64
	for i := 0; i < 4; i++ {
		now, err := clock.Now(ctx)
		require.NoError(t, err)
		got = append(got, now)
	}
	require.Equal(t, []uint64{100, 105, 105, 110}, got)
}

func TestBlockClockRetries(t *testing.T) {
	heads := &scriptedHeads{times: []uint64{42}, fails: 2}
	clock := NewBlockClock(heads, 3, time.Millisecond, nil)

	now, err := clock.Now(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), now)
	require.Equal(t, 3, heads.calls)
}

func TestBlockClockGivesUp(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	heads := &scriptedHeads{times: []uint64{42}, fails: 5}
	clock := NewBlockClock(heads, 1, time.Millisecond, zap.New(core))

	_, err := clock.Now(context.Background())
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, 2, heads.calls)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "fetch head header failed", entries[0].Message)
	require.Equal(t, int64(1), entries[0].ContextMap()["attempt"])
	require.Equal(t, "head header unavailable", entries[1].Message)
	require.Equal(t, int64(2), entries[1].ContextMap()["attempts"])
}

func TestBlockClockStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	heads := &scriptedHeads{times: []uint64{42}, fails: 5, onCall: cancel}
	clock := NewBlockClock(heads, 5, time.Hour, nil)

	_, err := clock.Now(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, heads.calls)
}

type canceledHeads struct{ calls int }

func (c *canceledHeads) LatestHeader(context.Context) (*types.Header, error) {
	c.calls++
	return nil, context.DeadlineExceeded
}

func TestBlockClockDoesNotRetryContextErrors(t *testing.T) {
	heads := &canceledHeads{}
	clock := NewBlockClock(heads, 5, time.Hour, nil)

	_, err := clock.Now(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, heads.calls)
}
