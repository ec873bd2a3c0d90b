package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// PoolConfig holds the backend and fee settings shared by the pool, ledger
// and serve commands.
type PoolConfig struct {
	StateFile           string
	Journal             string
	PGDSN               string
	RPCURL              string
	BalanceBits         int
	FeeNominator        string
	FeeDenominator      string
	TreasuryNominator   string
	TreasuryDenominator string
	TreasuryAccount     string
	MaxRetries          int
	RetryBackoff        time.Duration
	LogLevel            string
}

func poolDefaults() map[string]interface{} {
	return map[string]interface{}{
		"state-file":      "./data/subdex.json",
		"journal":         "./data/events.jsonl",
		"balance-bits":    64,
		"fee-nominator":   "3",
		"fee-denominator": "1000",
		"max-retries":     5,
		"retry-backoff":   500 * time.Millisecond,
		"log-level":       "info",
	}
}

// LoadPool merges config file, environment variables, and flags into PoolConfig.
func LoadPool(cfgFile string, flags *pflag.FlagSet) (PoolConfig, error) {
	v, err := newViper(cfgFile, flags, poolDefaults())
	if err != nil {
		return PoolConfig{}, err
	}
	return PoolConfig{
		StateFile:           v.GetString("state-file"),
		Journal:             v.GetString("journal"),
		PGDSN:               v.GetString("pg-dsn"),
		RPCURL:              v.GetString("rpc"),
		BalanceBits:         v.GetInt("balance-bits"),
		FeeNominator:        v.GetString("fee-nominator"),
		FeeDenominator:      v.GetString("fee-denominator"),
		TreasuryNominator:   v.GetString("treasury-nominator"),
		TreasuryDenominator: v.GetString("treasury-denominator"),
		TreasuryAccount:     v.GetString("treasury-account"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		LogLevel:            v.GetString("log-level"),
	}, nil
}

func (c PoolConfig) Width() (numeric.Width, error) {
	return numeric.NewWidth(c.BalanceBits)
}

// FeePolicy builds the swap fee policy. The treasury split is enabled when
// a treasury account is configured.
func (c PoolConfig) FeePolicy() (pool.FeePolicy, error) {
	width, err := c.Width()
	if err != nil {
		return pool.FeePolicy{}, err
	}

	nominator, err := parseAmount("fee-nominator", c.FeeNominator)
	if err != nil {
		return pool.FeePolicy{}, err
	}
	denominator, err := parseAmount("fee-denominator", c.FeeDenominator)
	if err != nil {
		return pool.FeePolicy{}, err
	}

	var treasury *pool.TreasuryPolicy
	if c.TreasuryAccount != "" {
		if !common.IsHexAddress(c.TreasuryAccount) {
			return pool.FeePolicy{}, fmt.Errorf("invalid treasury account: %s", c.TreasuryAccount)
		}
		tNom, err := parseAmount("treasury-nominator", c.TreasuryNominator)
		if err != nil {
			return pool.FeePolicy{}, err
		}
		tDen, err := parseAmount("treasury-denominator", c.TreasuryDenominator)
		if err != nil {
			return pool.FeePolicy{}, err
		}
		treasury = &pool.TreasuryPolicy{
			Nominator:   tNom,
			Denominator: tDen,
			Recipient:   common.HexToAddress(c.TreasuryAccount),
		}
	}

	return pool.NewFeePolicy(width, nominator, denominator, treasury)
}

func parseAmount(key, value string) (numeric.Amount, error) {
	if value == "" {
		return numeric.Amount{}, fmt.Errorf("%s is required", key)
	}
	amt, err := numeric.Parse(value)
	if err != nil {
		return numeric.Amount{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return amt, nil
}
