package report

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"subdex/internal/market"
	"subdex/internal/model"
	"subdex/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator folds journal events into per-pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator

	startTs uint64
	maxTs   uint64
	batch   []model.PoolWindowMetrics
	stats   runStats
}

type runStats struct {
	total, windows, skipped, failed int
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates a JSONL journal file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if err := a.begin(ctx); err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	if err := storage.ScanEvents(file, func(ev market.Event) error {
		return a.consume(ctx, ev)
	}); err != nil {
		return err
	}
	return a.finish(ctx)
}

// RunEvents aggregates events that were already loaded, for example from
// the pool_events table.
func (a *Aggregator) RunEvents(ctx context.Context, events []market.Event) error {
	if err := a.begin(ctx); err != nil {
		return err
	}
	for _, ev := range events {
		if err := a.consume(ctx, ev); err != nil {
			return err
		}
	}
	return a.finish(ctx)
}

// StartTimestamp reports the timestamp after which events are aggregated.
func (a *Aggregator) StartTimestamp(ctx context.Context) (uint64, error) {
	return a.loadStartTimestamp(ctx)
}

func (a *Aggregator) begin(ctx context.Context) error {
	if a.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}
	a.startTs = startTs
	a.maxTs = startTs
	a.batch = make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	a.accumulators = make(map[string]*Accumulator)
	a.stats = runStats{}
	return nil
}

func (a *Aggregator) consume(ctx context.Context, ev market.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.stats.total++

	if ev.Timestamp <= a.startTs {
		a.stats.skipped++
		return nil
	}
	if err := ev.Pair.Validate(); err != nil {
		a.stats.failed++
		a.logger.Warn("aggregate event", zap.Error(err))
		return nil
	}

	start := windowStart(ev.Timestamp, a.cfg.WindowSeconds)
	end := start + a.cfg.WindowSeconds

	key := ev.Pair.String()
	acc := a.accumulators[key]
	if acc == nil {
		acc = NewAccumulator(ev, start, end)
		a.accumulators[key] = acc
	} else if acc.WindowStart != start {
		a.batch = append(a.batch, a.flushAccumulator(acc))
		acc = NewAccumulator(ev, start, end)
		a.accumulators[key] = acc
	}

	if err := acc.AddEvent(ev); err != nil {
		a.stats.failed++
		a.logger.Warn("aggregate event", zap.Error(err), zap.String("pair", key), zap.String("kind", string(ev.Kind)))
		return nil
	}

	if ev.Timestamp > a.maxTs {
		a.maxTs = ev.Timestamp
	}

	if len(a.batch) >= a.cfg.BatchSize {
		if err := a.flushBatch(ctx); err != nil {
			return err
		}
		if err := a.saveState(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) finish(ctx context.Context) error {
	keys := make([]string, 0, len(a.accumulators))
	for key := range a.accumulators {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		a.batch = append(a.batch, a.flushAccumulator(a.accumulators[key]))
	}
	a.accumulators = make(map[string]*Accumulator)

	if err := a.flushBatch(ctx); err != nil {
		return err
	}

	a.cfg.RecomputeFrom = a.maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("report complete",
		zap.Int("total", a.stats.total),
		zap.Int("windows", a.stats.windows),
		zap.Int("skipped", a.stats.skipped),
		zap.Int("failed", a.stats.failed),
	)
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	// Open windows are recomputed on the next run.
	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatch(ctx context.Context) error {
	if len(a.batch) == 0 {
		return nil
	}
	if err := a.sink.UpsertWindowMetrics(ctx, a.batch); err != nil {
		return err
	}
	a.stats.windows += len(a.batch)
	a.batch = a.batch[:0]
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) model.PoolWindowMetrics {
	poolFeeFirst, poolFeeSecond := acc.PoolFees()
	feeRateFirst, feeRateSecond := computeFeeRates(poolFeeFirst, poolFeeSecond, acc.ReserveFirst, acc.ReserveSecond)
	apr := computeAPR(feeRateFirst, feeRateSecond, a.cfg.WindowSeconds)

	return model.PoolWindowMetrics{
		Pair:           acc.Pair.String(),
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		InvestCount:    acc.InvestCount,
		DivestCount:    acc.DivestCount,
		VolumeFirst:    acc.VolumeFirst.String(),
		VolumeSecond:   acc.VolumeSecond.String(),
		FeeFirst:       acc.FeeFirst.String(),
		FeeSecond:      acc.FeeSecond.String(),
		TreasuryFirst:  acc.TreasuryFirst.String(),
		TreasurySecond: acc.TreasurySecond.String(),
		ReserveFirst:   acc.ReserveFirst.String(),
		ReserveSecond:  acc.ReserveSecond.String(),
		FeeRateFirst:   feeRateFirst,
		FeeRateSecond:  feeRateSecond,
		APR:            apr,
	}
}
