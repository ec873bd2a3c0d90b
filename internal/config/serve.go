package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the HTTP server.
type ServeConfig struct {
	PoolConfig
	Listen          string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	defaults := poolDefaults()
	defaults["listen"] = ":8080"
	defaults["shutdown-timeout"] = 10 * time.Second

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ServeConfig{}, err
	}
	poolCfg, err := LoadPool(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}

	return ServeConfig{
		PoolConfig:      poolCfg,
		Listen:          v.GetString("listen"),
		CORSOrigins:     getStringSlice(v, "cors-origin"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
	}, nil
}
