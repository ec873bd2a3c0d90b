package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// HeaderSource yields the chain head. *Client implements it.
type HeaderSource interface {
	LatestHeader(ctx context.Context) (*types.Header, error)
}

// BlockClock reports the head block timestamp as the current time. It never
// moves backwards: a head older than one already seen (a reorg or a lagging
// node behind a load balancer) yields the last seen timestamp.
type BlockClock struct {
	source     HeaderSource
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger

	mu   sync.Mutex
	last uint64
}

func NewBlockClock(source HeaderSource, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *BlockClock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlockClock{
		source:     source,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

func (c *BlockClock) Now(ctx context.Context) (uint64, error) {
	header, err := c.head(ctx)
	if err != nil {
		return 0, fmt.Errorf("block clock: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if header.Time < c.last {
		c.logger.Warn("head timestamp went backwards",
			zap.Uint64("head", header.Time),
			zap.Uint64("last", c.last),
		)
		return c.last, nil
	}
	c.last = header.Time
	return c.last, nil
}

// maxRetryDelay caps the doubling backoff between head fetches.
const maxRetryDelay = 5 * time.Second

// head fetches the chain head, retrying failed fetches with exponential
// backoff. Cancellation of ctx ends the loop at once.
func (c *BlockClock) head(ctx context.Context) (*types.Header, error) {
	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		h, err := c.source.LatestHeader(ctx)
		if err == nil && h == nil {
			err = errors.New("empty head header")
		}
		if err == nil {
			return h, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempt > retries {
			c.logger.Error("head header unavailable",
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return nil, err
		}
		c.logger.Warn("fetch head header failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}
