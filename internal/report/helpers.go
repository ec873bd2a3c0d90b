package report

import (
	"math/big"
	"time"
)

const ratioScale = 18

func computeFeeRates(feeFirst, feeSecond, reserveFirst, reserveSecond *big.Int) (*string, *string) {
	var rateFirst *string
	var rateSecond *string

	if rate := computeRateFromInt(feeFirst, reserveFirst); rate != "" {
		rateFirst = &rate
	}
	if rate := computeRateFromInt(feeSecond, reserveSecond); rate != "" {
		rateSecond = &rate
	}
	return rateFirst, rateSecond
}

func computeRateFromInt(fee *big.Int, reserve *big.Int) string {
	if fee == nil || fee.Sign() == 0 || reserve == nil || reserve.Sign() == 0 {
		return ""
	}
	rat := new(big.Rat).SetFrac(fee, reserve)
	return rat.FloatString(ratioScale)
}

// computeAPR annualizes the window fee yield. Both reserves of a
// constant-product pool carry equal value, so the pool yield is the mean of
// the per-side rates.
func computeAPR(rateFirst *string, rateSecond *string, windowSeconds uint64) *string {
	if windowSeconds == 0 || (rateFirst == nil && rateSecond == nil) {
		return nil
	}

	sum := new(big.Rat)
	for _, rate := range []*string{rateFirst, rateSecond} {
		if rate == nil {
			continue
		}
		rat, ok := new(big.Rat).SetString(*rate)
		if !ok {
			return nil
		}
		sum.Add(sum, rat)
	}
	sum.Quo(sum, big.NewRat(2, 1))

	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Mul(sum, yearSeconds)
	apr.Quo(apr, window)
	val := apr.FloatString(ratioScale)
	return &val
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
