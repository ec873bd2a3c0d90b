package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"subdex/internal/config"
	"subdex/internal/market"
	"subdex/internal/numeric"
	"subdex/internal/pool"
)

func newPoolCmd() *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Manage pools",
	}
	addBackendFlags(poolCmd.PersistentFlags())

	createCmd := &cobra.Command{
		Use:   "create FIRST/SECOND",
		Short: "Launch a pool with initial liquidity",
		Args:  cobra.ExactArgs(1),
		RunE:  withService(runCreate),
	}
	createCmd.Flags().String("owner", "", "liquidity provider address")
	createCmd.Flags().String("first", "", "first asset amount")
	createCmd.Flags().String("second", "", "second asset amount")

	swapCmd := &cobra.Command{
		Use:   "swap FIRST/SECOND",
		Short: "Swap against a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  withService(runSwap),
	}
	swapCmd.Flags().String("sender", "", "trader address")
	swapCmd.Flags().String("direction", "first_to_second", "first_to_second or second_to_first")
	swapCmd.Flags().String("amount", "", "input amount")
	swapCmd.Flags().String("min-out", "0", "minimum acceptable output")

	quoteCmd := &cobra.Command{
		Use:   "quote FIRST/SECOND",
		Short: "Price a swap without executing it",
		Args:  cobra.ExactArgs(1),
		RunE:  withService(runQuote),
	}
	quoteCmd.Flags().String("direction", "first_to_second", "first_to_second or second_to_first")
	quoteCmd.Flags().String("amount", "", "input amount")

	investCmd := &cobra.Command{
		Use:   "invest FIRST/SECOND",
		Short: "Buy pool shares",
		Args:  cobra.ExactArgs(1),
		RunE:  withService(runInvest),
	}
	investCmd.Flags().String("owner", "", "liquidity provider address")
	investCmd.Flags().String("shares", "", "shares to buy")

	divestCmd := &cobra.Command{
		Use:   "divest FIRST/SECOND",
		Short: "Burn pool shares",
		Args:  cobra.ExactArgs(1),
		RunE:  withService(runDivest),
	}
	divestCmd.Flags().String("owner", "", "liquidity provider address")
	divestCmd.Flags().String("shares", "", "shares to burn")
	divestCmd.Flags().String("min-first", "0", "minimum first asset received")
	divestCmd.Flags().String("min-second", "0", "minimum second asset received")

	showCmd := &cobra.Command{
		Use:   "show FIRST/SECOND",
		Short: "Print a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  withService(runShow),
	}

	observeCmd := &cobra.Command{
		Use:   "observe FIRST/SECOND",
		Short: "Print the price accumulators",
		Args:  cobra.ExactArgs(1),
		RunE:  withService(runObserve),
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List launched pairs",
		Args:  cobra.NoArgs,
		RunE:  withService(runList),
	}

	poolCmd.AddCommand(createCmd, swapCmd, quoteCmd, investCmd, divestCmd, showCmd, observeCmd, listCmd)
	return poolCmd
}

type serviceRun func(ctx context.Context, cmd *cobra.Command, args []string, b *backend, logger *zap.Logger) error

// withService loads the pool config, opens the backend and hands it to run.
func withService(run serviceRun) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadPool(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := openBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		return run(ctx, cmd, args, b, logger)
	}
}

func runCreate(ctx context.Context, cmd *cobra.Command, args []string, b *backend, logger *zap.Logger) error {
	pair, err := pool.ParsePairKey(args[0])
	if err != nil {
		return err
	}
	owner, err := addressFlag(cmd, "owner")
	if err != nil {
		return err
	}
	first, err := amountFlag(cmd, "first")
	if err != nil {
		return err
	}
	second, err := amountFlag(cmd, "second")
	if err != nil {
		return err
	}

	shares, err := b.svc.CreatePool(ctx, pair, owner, first, second)
	if err != nil {
		return err
	}
	logger.Info("pool created", zap.String("pair", pair.String()), zap.Stringer("shares", shares))
	return printJSON(cmd, map[string]interface{}{"pair": pair, "account": pair.Account(), "shares": shares})
}

func runSwap(ctx context.Context, cmd *cobra.Command, args []string, b *backend, logger *zap.Logger) error {
	pair, err := pool.ParsePairKey(args[0])
	if err != nil {
		return err
	}
	sender, err := addressFlag(cmd, "sender")
	if err != nil {
		return err
	}
	dir, err := directionFlag(cmd)
	if err != nil {
		return err
	}
	amount, err := amountFlag(cmd, "amount")
	if err != nil {
		return err
	}
	minOut, err := amountFlag(cmd, "min-out")
	if err != nil {
		return err
	}

	res, err := b.svc.Swap(ctx, market.SwapRequest{
		Pair:         pair,
		Direction:    dir,
		Sender:       sender,
		AmountIn:     amount,
		MinAmountOut: minOut,
	})
	if err != nil {
		return err
	}
	logger.Info("swap",
		zap.String("pair", pair.String()),
		zap.Stringer("direction", dir),
		zap.Stringer("amount_in", amount),
		zap.Stringer("amount_out", res.Quote.Delta.Amount),
	)
	return printJSON(cmd, res)
}

func runQuote(ctx context.Context, cmd *cobra.Command, args []string, b *backend, _ *zap.Logger) error {
	pair, err := pool.ParsePairKey(args[0])
	if err != nil {
		return err
	}
	dir, err := directionFlag(cmd)
	if err != nil {
		return err
	}
	amount, err := amountFlag(cmd, "amount")
	if err != nil {
		return err
	}

	quote, err := b.svc.Quote(ctx, pair, dir, amount)
	if err != nil {
		return err
	}
	return printJSON(cmd, quote)
}

func runInvest(ctx context.Context, cmd *cobra.Command, args []string, b *backend, logger *zap.Logger) error {
	pair, err := pool.ParsePairKey(args[0])
	if err != nil {
		return err
	}
	owner, err := addressFlag(cmd, "owner")
	if err != nil {
		return err
	}
	shares, err := amountFlag(cmd, "shares")
	if err != nil {
		return err
	}

	res, err := b.svc.Invest(ctx, pair, owner, shares)
	if err != nil {
		return err
	}
	logger.Info("invest", zap.String("pair", pair.String()), zap.Stringer("shares", shares))
	return printJSON(cmd, res)
}

func runDivest(ctx context.Context, cmd *cobra.Command, args []string, b *backend, logger *zap.Logger) error {
	pair, err := pool.ParsePairKey(args[0])
	if err != nil {
		return err
	}
	owner, err := addressFlag(cmd, "owner")
	if err != nil {
		return err
	}
	shares, err := amountFlag(cmd, "shares")
	if err != nil {
		return err
	}
	minFirst, err := amountFlag(cmd, "min-first")
	if err != nil {
		return err
	}
	minSecond, err := amountFlag(cmd, "min-second")
	if err != nil {
		return err
	}

	res, err := b.svc.Divest(ctx, pair, owner, shares, minFirst, minSecond)
	if err != nil {
		return err
	}
	logger.Info("divest", zap.String("pair", pair.String()), zap.Stringer("shares", shares))
	return printJSON(cmd, res)
}

func runShow(ctx context.Context, cmd *cobra.Command, args []string, b *backend, _ *zap.Logger) error {
	pair, err := pool.ParsePairKey(args[0])
	if err != nil {
		return err
	}
	p, err := b.svc.Pool(ctx, pair)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]interface{}{"pair": pair, "account": pair.Account(), "pool": p})
}

func runObserve(ctx context.Context, cmd *cobra.Command, args []string, b *backend, _ *zap.Logger) error {
	pair, err := pool.ParsePairKey(args[0])
	if err != nil {
		return err
	}
	obs, err := b.svc.Observe(ctx, pair)
	if err != nil {
		return err
	}
	return printJSON(cmd, obs)
}

func runList(ctx context.Context, cmd *cobra.Command, _ []string, b *backend, _ *zap.Logger) error {
	pairs, err := b.svc.Pools(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		names = append(names, pair.String())
	}
	return printJSON(cmd, names)
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	return parseAddress(name, raw)
}

func parseAddress(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func amountFlag(cmd *cobra.Command, name string) (numeric.Amount, error) {
	raw, _ := cmd.Flags().GetString(name)
	amount, err := numeric.Parse(raw)
	if err != nil {
		return numeric.Amount{}, fmt.Errorf("--%s: %w", name, err)
	}
	return amount, nil
}

func directionFlag(cmd *cobra.Command) (pool.Direction, error) {
	raw, _ := cmd.Flags().GetString("direction")
	return pool.ParseDirection(raw)
}
