package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "subdex",
		Short:        "Constant-product asset pools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newPoolCmd())
	root.AddCommand(newLedgerCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newServeCmd())
	return root
}

// addBackendFlags registers the flags read by config.LoadPool.
func addBackendFlags(fs *pflag.FlagSet) {
	fs.String("state-file", "./data/subdex.json", "local JSON state file (used when pg-dsn is empty)")
	fs.String("journal", "./data/events.jsonl", "event journal JSONL (used when pg-dsn is empty)")
	fs.String("pg-dsn", "", "Postgres DSN")
	fs.String("rpc", "", "EVM RPC URL used as the clock (latest block timestamp)")
	fs.Int("balance-bits", 64, "balance width in bits")
	fs.String("fee-nominator", "3", "swap fee nominator")
	fs.String("fee-denominator", "1000", "swap fee denominator")
	fs.String("treasury-account", "", "treasury recipient address, enables the treasury fee split")
	fs.String("treasury-nominator", "", "treasury share of the swap fee, nominator")
	fs.String("treasury-denominator", "", "treasury share of the swap fee, denominator")
	fs.Int("max-retries", 5, "maximum RPC retry attempts")
	fs.Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
