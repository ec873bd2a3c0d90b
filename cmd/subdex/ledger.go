package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"subdex/internal/numeric"
)

func newLedgerCmd() *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage asset balances",
	}
	addBackendFlags(ledgerCmd.PersistentFlags())

	depositCmd := &cobra.Command{
		Use:   "deposit ACCOUNT ASSET AMOUNT",
		Short: "Credit an account",
		Args:  cobra.ExactArgs(3),
		RunE:  withService(runDeposit),
	}

	balanceCmd := &cobra.Command{
		Use:   "balance ACCOUNT ASSET",
		Short: "Print an account balance",
		Args:  cobra.ExactArgs(2),
		RunE:  withService(runBalance),
	}

	ledgerCmd.AddCommand(depositCmd, balanceCmd)
	return ledgerCmd
}

func runDeposit(ctx context.Context, cmd *cobra.Command, args []string, b *backend, logger *zap.Logger) error {
	account, err := parseAddress("account", args[0])
	if err != nil {
		return err
	}
	amount, err := numeric.Parse(args[2])
	if err != nil {
		return err
	}

	if err := b.custody.Deposit(ctx, account, args[1], amount); err != nil {
		return err
	}
	balance, err := b.custody.Balance(ctx, account, args[1])
	if err != nil {
		return err
	}
	logger.Info("deposit", zap.Stringer("account", account), zap.String("asset", args[1]), zap.Stringer("amount", amount))
	return printJSON(cmd, map[string]interface{}{"account": account, "asset": args[1], "balance": balance})
}

func runBalance(ctx context.Context, cmd *cobra.Command, args []string, b *backend, _ *zap.Logger) error {
	account, err := parseAddress("account", args[0])
	if err != nil {
		return err
	}
	balance, err := b.custody.Balance(ctx, account, args[1])
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]interface{}{"account": account, "asset": args[1], "balance": balance})
}
