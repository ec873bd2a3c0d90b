package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

func poolFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("pool", pflag.ContinueOnError)
	flags.String("state-file", "./data/subdex.json", "")
	flags.String("fee-nominator", "3", "")
	flags.String("fee-denominator", "1000", "")
	flags.String("treasury-account", "", "")
	flags.Int("balance-bits", 64, "")
	return flags
}

func TestLoadPoolDefaults(t *testing.T) {
	cfg, err := LoadPool("", nil)
	require.NoError(t, err)
	require.Equal(t, "./data/subdex.json", cfg.StateFile)
	require.Equal(t, "./data/events.jsonl", cfg.Journal)
	require.Equal(t, 64, cfg.BalanceBits)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)

	fee, err := cfg.FeePolicy()
	require.NoError(t, err)
	require.Equal(t, numeric.NewAmount(3), fee.Nominator)
	require.Equal(t, numeric.NewAmount(1000), fee.Denominator)
	require.Nil(t, fee.Treasury)
}

func TestLoadPoolPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "subdex.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("fee-nominator: \"5\"\nbalance-bits: 128\njournal: /tmp/file.jsonl\n"), 0o644))

	t.Setenv("SUBDEX_FEE_DENOMINATOR", "2000")
	t.Setenv("SUBDEX_JOURNAL", "/tmp/env.jsonl")

	flags := poolFlags()
	require.NoError(t, flags.Parse([]string{"--fee-nominator=7"}))

	cfg, err := LoadPool(cfgFile, flags)
	require.NoError(t, err)
	require.Equal(t, "7", cfg.FeeNominator)
	require.Equal(t, "2000", cfg.FeeDenominator)
	require.Equal(t, "/tmp/env.jsonl", cfg.Journal)
	require.Equal(t, 128, cfg.BalanceBits)
}

func TestFeePolicyTreasury(t *testing.T) {
	cfg := PoolConfig{
		BalanceBits:         64,
		FeeNominator:        "3",
		FeeDenominator:      "1000",
		TreasuryAccount:     "0x7ea5000000000000000000000000000000000000",
		TreasuryNominator:   "1",
		TreasuryDenominator: "6",
	}
	fee, err := cfg.FeePolicy()
	require.NoError(t, err)
	require.NotNil(t, fee.Treasury)
	require.Equal(t, numeric.NewAmount(6), fee.Treasury.Denominator)
	require.Equal(t, common.HexToAddress(cfg.TreasuryAccount), fee.Treasury.Recipient)

	cfg.TreasuryDenominator = ""
	_, err = cfg.FeePolicy()
	require.ErrorContains(t, err, "treasury-denominator is required")

	cfg.TreasuryAccount = "treasury"
	_, err = cfg.FeePolicy()
	require.ErrorContains(t, err, "invalid treasury account")
}

func TestFeePolicyRejectsBadFraction(t *testing.T) {
	cfg := PoolConfig{BalanceBits: 64, FeeNominator: "3", FeeDenominator: "0"}
	_, err := cfg.FeePolicy()
	require.ErrorIs(t, err, pool.ErrInvalidFeePolicy)

	cfg = PoolConfig{BalanceBits: 12, FeeNominator: "3", FeeDenominator: "1000"}
	_, err = cfg.FeePolicy()
	require.Error(t, err)
}

func TestLoadServeCORS(t *testing.T) {
	flags := poolFlags()
	flags.String("listen", ":8080", "")
	flags.StringSlice("cors-origin", nil, "")
	require.NoError(t, flags.Parse([]string{"--listen=127.0.0.1:9000", "--cors-origin=https://a.example, https://b.example"}))

	cfg, err := LoadServe("", flags)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Listen)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 64, cfg.BalanceBits)
}

func TestLoadReportDefaults(t *testing.T) {
	cfg, err := LoadReport("", nil)
	require.NoError(t, err)
	require.Equal(t, "5m", cfg.Window)
	require.Equal(t, 1000, cfg.BatchSize)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	require.Zero(t, ts)

	ts, err = ParseTimestamp("1700000000")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), ts)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}
