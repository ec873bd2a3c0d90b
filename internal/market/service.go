package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// Config selects the balance width and fee policy for every pool the
// service hosts.
type Config struct {
	Width numeric.Width
	Fee   pool.FeePolicy
}

// Service hosts pools on top of a repository and a custody ledger.
// Operations on the same pair are serialized within the process; across
// processes the repository rejects saves of a snapshot that went stale.
type Service struct {
	engine  *pool.Engine
	repo    Repository
	custody Custody
	clock   Clock
	journal Journal
	metrics *Metrics
	logger  *zap.Logger

	locksMu sync.Mutex
	locks   map[pool.PairKey]*sync.Mutex
}

// NewService wires the collaborators. journal and metrics may be nil.
func NewService(cfg Config, repo Repository, custody Custody, clock Clock, journal Journal, metrics *Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		engine:  pool.NewEngine(cfg.Width, cfg.Fee),
		repo:    repo,
		custody: custody,
		clock:   clock,
		journal: journal,
		metrics: metrics,
		logger:  logger,
		locks:   make(map[pool.PairKey]*sync.Mutex),
	}
}

func (s *Service) Engine() *pool.Engine { return s.engine }

// SwapRequest describes a swap of AmountIn of the direction's input asset.
type SwapRequest struct {
	Pair         pool.PairKey
	Direction    pool.Direction
	Sender       common.Address
	AmountIn     numeric.Amount
	MinAmountOut numeric.Amount
}

type SwapResult struct {
	Quote pool.SwapQuote `json:"quote"`
	Pool  pool.Pool      `json:"pool"`
}

// LiquidityResult reports the amounts moved by an invest or divest.
type LiquidityResult struct {
	First  numeric.Amount `json:"first"`
	Second numeric.Amount `json:"second"`
	Shares numeric.Amount `json:"shares"`
	Pool   pool.Pool      `json:"pool"`
}

// CreatePool launches pair with the owner's initial liquidity and returns
// the shares minted.
func (s *Service) CreatePool(ctx context.Context, pair pool.PairKey, owner common.Address, first, second numeric.Amount) (shares numeric.Amount, err error) {
	defer func() { s.metrics.observeOp(EventCreate, err) }()

	if err := pair.Validate(); err != nil {
		return shares, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.EnsureNonZeroAmount(first); err != nil {
		return shares, fmt.Errorf("create pool: first amount: %w", err)
	}
	if err := pool.EnsureNonZeroAmount(second); err != nil {
		return shares, fmt.Errorf("create pool: second amount: %w", err)
	}

	unlock := s.lock(pair)
	defer unlock()

	current, err := s.repo.LoadPool(ctx, pair)
	if err != nil {
		return shares, fmt.Errorf("load pool %s: %w", pair, err)
	}
	if err := current.EnsureLaunch(); err != nil {
		return shares, fmt.Errorf("create pool %s: %w", pair, err)
	}
	now, err := s.clock.Now(ctx)
	if err != nil {
		return shares, fmt.Errorf("read clock: %w", err)
	}

	next, shares, err := s.engine.Initialize(first, second, owner, now)
	if err != nil {
		return shares, fmt.Errorf("create pool %s: %w", pair, err)
	}
	next.Version = current.Version

	account := pair.Account()
	err = s.commit(ctx, pair, &next, []transfer{
		{from: owner, to: account, asset: pair.First, amount: first},
		{from: owner, to: account, asset: pair.Second, amount: second},
	})
	if err != nil {
		return shares, err
	}

	s.record(ctx, Event{
		Kind:          EventCreate,
		Pair:          pair,
		Account:       owner,
		Timestamp:     now,
		FirstAmount:   first,
		SecondAmount:  second,
		Shares:        shares,
		FirstReserve:  next.FirstReserve,
		SecondReserve: next.SecondReserve,
	})
	s.metrics.observeReserves(pair, next)
	s.logger.Info("pool created",
		zap.String("pair", pair.String()),
		zap.String("owner", owner.Hex()),
		zap.Stringer("shares", shares),
	)
	return shares, nil
}

// Quote computes a swap against the current pool without committing it.
func (s *Service) Quote(ctx context.Context, pair pool.PairKey, dir pool.Direction, amountIn numeric.Amount) (pool.SwapQuote, error) {
	if err := pool.EnsureNonZeroAmount(amountIn); err != nil {
		return pool.SwapQuote{}, fmt.Errorf("quote: %w", err)
	}
	p, err := s.launchedPool(ctx, pair)
	if err != nil {
		return pool.SwapQuote{}, err
	}
	quote, err := s.engine.QuoteSwap(p, dir, amountIn)
	if err != nil {
		return pool.SwapQuote{}, fmt.Errorf("quote %s %s: %w", pair, dir, err)
	}
	return quote, nil
}

// Swap trades req.AmountIn for the other asset. The whole input stays in
// the pool; the sender pays the treasury cut on top of it.
func (s *Service) Swap(ctx context.Context, req SwapRequest) (res SwapResult, err error) {
	defer func() { s.metrics.observeOp(EventSwap, err) }()

	pair := req.Pair
	if err := pair.Validate(); err != nil {
		return res, fmt.Errorf("swap: %w", err)
	}
	if err := pool.EnsureNonZeroAmount(req.AmountIn); err != nil {
		return res, fmt.Errorf("swap: %w", err)
	}

	unlock := s.lock(pair)
	defer unlock()

	p, err := s.launchedPool(ctx, pair)
	if err != nil {
		return res, err
	}
	quote, err := s.engine.QuoteSwap(p, req.Direction, req.AmountIn)
	if err != nil {
		return res, fmt.Errorf("swap %s %s: %w", pair, req.Direction, err)
	}
	if err := p.EnsureOutputAmountAcceptable(req.Direction, quote.Delta.Amount, req.MinAmountOut); err != nil {
		return res, fmt.Errorf("swap %s %s: %w", pair, req.Direction, err)
	}

	now, err := s.clock.Now(ctx)
	if err != nil {
		return res, fmt.Errorf("read clock: %w", err)
	}
	next, err := s.engine.UpdatePools(p, quote.Delta.FirstReserve, quote.Delta.SecondReserve, now)
	if err != nil {
		return res, fmt.Errorf("swap %s: update pool: %w", pair, err)
	}

	account := pair.Account()
	assetIn, assetOut := req.Direction.InputAsset(pair), req.Direction.OutputAsset(pair)
	transfers := []transfer{{from: req.Sender, to: account, asset: assetIn, amount: req.AmountIn}}
	if quote.Treasury != nil && !quote.Treasury.Amount.IsZero() {
		transfers = append(transfers, transfer{from: req.Sender, to: quote.Treasury.Recipient, asset: assetIn, amount: quote.Treasury.Amount})
	}
	transfers = append(transfers, transfer{from: account, to: req.Sender, asset: assetOut, amount: quote.Delta.Amount})

	if err := s.commit(ctx, pair, &next, transfers); err != nil {
		return res, err
	}

	s.record(ctx, Event{
		Kind:          EventSwap,
		Pair:          pair,
		Account:       req.Sender,
		Timestamp:     now,
		Direction:     req.Direction.String(),
		AssetIn:       assetIn,
		AssetOut:      assetOut,
		AmountIn:      req.AmountIn,
		AmountOut:     quote.Delta.Amount,
		Fee:           quote.Fee,
		Treasury:      quote.Treasury,
		FirstReserve:  next.FirstReserve,
		SecondReserve: next.SecondReserve,
	})
	s.metrics.observeSwap(pair, assetIn, req.AmountIn, quote.Treasury)
	s.metrics.observeReserves(pair, next)
	s.logger.Debug("swap",
		zap.String("pair", pair.String()),
		zap.Stringer("direction", req.Direction),
		zap.Stringer("amount_in", req.AmountIn),
		zap.Stringer("amount_out", quote.Delta.Amount),
	)
	return SwapResult{Quote: quote, Pool: next}, nil
}

// Invest mints shares to owner against the proportional reserve amounts.
func (s *Service) Invest(ctx context.Context, pair pool.PairKey, owner common.Address, shares numeric.Amount) (res LiquidityResult, err error) {
	defer func() { s.metrics.observeOp(EventInvest, err) }()

	if err := pool.EnsureNonZeroAmount(shares); err != nil {
		return res, fmt.Errorf("invest: %w", err)
	}

	unlock := s.lock(pair)
	defer unlock()

	p, err := s.launchedPool(ctx, pair)
	if err != nil {
		return res, err
	}
	first, second, err := s.engine.Costs(p, shares)
	if err != nil {
		return res, fmt.Errorf("invest %s: costs: %w", pair, err)
	}
	// Shares must always be paid for on both sides.
	if first.IsZero() || second.IsZero() {
		return res, fmt.Errorf("invest %s: %s shares cost nothing: %w", pair, shares, pool.ErrAmountShouldBeGreaterThanZero)
	}

	next, err := s.engine.Invest(p, first, second, shares, owner)
	if err != nil {
		return res, fmt.Errorf("invest %s: %w", pair, err)
	}
	now, err := s.clock.Now(ctx)
	if err != nil {
		return res, fmt.Errorf("read clock: %w", err)
	}

	account := pair.Account()
	err = s.commit(ctx, pair, &next, []transfer{
		{from: owner, to: account, asset: pair.First, amount: first},
		{from: owner, to: account, asset: pair.Second, amount: second},
	})
	if err != nil {
		return res, err
	}

	s.recordLiquidity(ctx, EventInvest, pair, owner, now, first, second, shares, next)
	return LiquidityResult{First: first, Second: second, Shares: shares, Pool: next}, nil
}

// Divest burns owner's shares and pays out the proportional reserves.
func (s *Service) Divest(ctx context.Context, pair pool.PairKey, owner common.Address, shares, minFirst, minSecond numeric.Amount) (res LiquidityResult, err error) {
	defer func() { s.metrics.observeOp(EventDivest, err) }()

	if err := pair.Validate(); err != nil {
		return res, fmt.Errorf("divest: %w", err)
	}

	unlock := s.lock(pair)
	defer unlock()

	p, err := s.repo.LoadPool(ctx, pair)
	if err != nil {
		return res, fmt.Errorf("load pool %s: %w", pair, err)
	}
	if err := p.EnsureSufficientSharesForBurn(owner, shares); err != nil {
		return res, fmt.Errorf("divest %s: %w", pair, err)
	}
	first, second, err := s.engine.Costs(p, shares)
	if err != nil {
		return res, fmt.Errorf("divest %s: costs: %w", pair, err)
	}
	if err := p.EnsureFirstAssetAmount(first, minFirst); err != nil {
		return res, fmt.Errorf("divest %s: first asset: %w", pair, err)
	}
	if err := p.EnsureSecondAssetAmount(second, minSecond); err != nil {
		return res, fmt.Errorf("divest %s: second asset: %w", pair, err)
	}

	next, err := s.engine.Divest(p, first, second, shares, owner)
	if err != nil {
		return res, fmt.Errorf("divest %s: %w", pair, err)
	}
	now, err := s.clock.Now(ctx)
	if err != nil {
		return res, fmt.Errorf("read clock: %w", err)
	}

	account := pair.Account()
	err = s.commit(ctx, pair, &next, []transfer{
		{from: account, to: owner, asset: pair.First, amount: first},
		{from: account, to: owner, asset: pair.Second, amount: second},
	})
	if err != nil {
		return res, err
	}

	s.recordLiquidity(ctx, EventDivest, pair, owner, now, first, second, shares, next)
	if !next.Launched() {
		s.logger.Info("pool drained", zap.String("pair", pair.String()))
	}
	return LiquidityResult{First: first, Second: second, Shares: shares, Pool: next}, nil
}

// Pool returns a snapshot of the pair's pool.
func (s *Service) Pool(ctx context.Context, pair pool.PairKey) (pool.Pool, error) {
	if err := pair.Validate(); err != nil {
		return pool.Pool{}, err
	}
	p, err := s.repo.LoadPool(ctx, pair)
	if err != nil {
		return pool.Pool{}, fmt.Errorf("load pool %s: %w", pair, err)
	}
	return p, nil
}

func (s *Service) Pools(ctx context.Context) ([]pool.PairKey, error) {
	pairs, err := s.repo.ListPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pairs, nil
}

// Observe returns the pair's price accumulators.
func (s *Service) Observe(ctx context.Context, pair pool.PairKey) (pool.Observation, error) {
	p, err := s.launchedPool(ctx, pair)
	if err != nil {
		return pool.Observation{}, err
	}
	return p.Observe(), nil
}

func (s *Service) launchedPool(ctx context.Context, pair pool.PairKey) (pool.Pool, error) {
	if err := pair.Validate(); err != nil {
		return pool.Pool{}, err
	}
	p, err := s.repo.LoadPool(ctx, pair)
	if err != nil {
		return pool.Pool{}, fmt.Errorf("load pool %s: %w", pair, err)
	}
	if !p.Launched() {
		return pool.Pool{}, fmt.Errorf("pool %s not launched: %w", pair, pool.ErrInsufficientPool)
	}
	return p, nil
}

func (s *Service) lock(pair pool.PairKey) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[pair]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[pair] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

type transfer struct {
	from, to common.Address
	asset    string
	amount   numeric.Amount
}

// commit runs the transfers then saves the pool. Any failure, including a
// save rejected because another process committed the pair first, reverses
// the transfers already applied. On success next carries the saved version.
func (s *Service) commit(ctx context.Context, pair pool.PairKey, next *pool.Pool, transfers []transfer) error {
	done := make([]transfer, 0, len(transfers))
	for _, t := range transfers {
		if err := s.custody.Transfer(ctx, t.from, t.to, t.asset, t.amount); err != nil {
			s.rollback(ctx, pair, done)
			return fmt.Errorf("transfer %s %s: %w", t.amount, t.asset, err)
		}
		done = append(done, t)
	}
	if err := s.repo.SavePool(ctx, pair, *next); err != nil {
		s.rollback(ctx, pair, done)
		return fmt.Errorf("save pool %s: %w", pair, err)
	}
	next.Version++
	return nil
}

func (s *Service) rollback(ctx context.Context, pair pool.PairKey, done []transfer) {
	for i := len(done) - 1; i >= 0; i-- {
		t := done[i]
		if err := s.custody.Transfer(ctx, t.to, t.from, t.asset, t.amount); err != nil {
			s.logger.Error("rollback transfer failed",
				zap.String("pair", pair.String()),
				zap.String("asset", t.asset),
				zap.Stringer("amount", t.amount),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) recordLiquidity(ctx context.Context, kind EventKind, pair pool.PairKey, owner common.Address, now uint64, first, second, shares numeric.Amount, next pool.Pool) {
	s.record(ctx, Event{
		Kind:          kind,
		Pair:          pair,
		Account:       owner,
		Timestamp:     now,
		FirstAmount:   first,
		SecondAmount:  second,
		Shares:        shares,
		FirstReserve:  next.FirstReserve,
		SecondReserve: next.SecondReserve,
	})
	s.metrics.observeReserves(pair, next)
}

// record appends to the journal. The operation is already committed, so a
// journal failure is logged and not returned.
func (s *Service) record(ctx context.Context, event Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, []Event{event}); err != nil {
		s.logger.Error("journal append failed",
			zap.String("pair", event.Pair.String()),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}
