package model

import "time"

// PoolWindowMetrics stores aggregated journal activity for a pool window.
// Amounts are decimal strings in base units.
type PoolWindowMetrics struct {
	Pair           string    `json:"pair"`
	WindowSizeSecs int64     `json:"window_size_seconds"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	SwapCount      uint64    `json:"swap_count"`
	InvestCount    uint64    `json:"invest_count"`
	DivestCount    uint64    `json:"divest_count"`
	VolumeFirst    string    `json:"volume_first"`
	VolumeSecond   string    `json:"volume_second"`
	FeeFirst       string    `json:"fee_first"`
	FeeSecond      string    `json:"fee_second"`
	TreasuryFirst  string    `json:"treasury_first"`
	TreasurySecond string    `json:"treasury_second"`
	ReserveFirst   string    `json:"reserve_first"`
	ReserveSecond  string    `json:"reserve_second"`
	FeeRateFirst   *string   `json:"fee_rate_first,omitempty"`
	FeeRateSecond  *string   `json:"fee_rate_second,omitempty"`
	APR            *string   `json:"apr,omitempty"`
}
