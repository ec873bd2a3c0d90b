package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"subdex/internal/chain"
	"subdex/internal/config"
	"subdex/internal/market"
	"subdex/internal/numeric"
	"subdex/internal/storage"
	"subdex/internal/storage/postgres"
)

// custody is implemented by both storage backends.
type custody interface {
	market.Custody
	Deposit(ctx context.Context, account common.Address, asset string, amount numeric.Amount) error
}

type backend struct {
	svc      *market.Service
	custody  custody
	registry *prometheus.Registry
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend selects Postgres when a DSN is configured and the local state
// file otherwise. A configured RPC URL replaces the wall clock with the
// latest block timestamp.
func openBackend(ctx context.Context, cfg config.PoolConfig, logger *zap.Logger) (*backend, error) {
	width, err := cfg.Width()
	if err != nil {
		return nil, err
	}
	fee, err := cfg.FeePolicy()
	if err != nil {
		return nil, err
	}

	b := &backend{registry: prometheus.NewRegistry()}

	var repo market.Repository
	var journal market.Journal
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN, width)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		repo, journal, b.custody = store, store, store
	} else {
		store := storage.NewFileStore(cfg.StateFile, width)
		repo, b.custody = store, store
		if cfg.Journal != "" {
			journal = storage.NewJsonlJournal(cfg.Journal)
		}
	}

	var clock market.Clock = market.SystemClock{}
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		chainID, err := client.GetChainID(ctx)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		logger.Info("block clock", zap.String("rpc", cfg.RPCURL), zap.String("chain_id", chainID.String()))
		clock = chain.NewBlockClock(client, cfg.MaxRetries, cfg.RetryBackoff, logger)
	}

	b.svc = market.NewService(market.Config{Width: width, Fee: fee}, repo, b.custody, clock, journal, market.NewMetrics(b.registry), logger)

	logger.Debug("backend ready",
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("state_file", cfg.StateFile),
		zap.String("rpc", cfg.RPCURL),
		zap.Int("balance_bits", cfg.BalanceBits),
	)
	return b, nil
}
