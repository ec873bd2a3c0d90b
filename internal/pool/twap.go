package pool

import (
	errorsmod "cosmossdk.io/errors"

	"subdex/internal/numeric"
)

// AveragePrice derives the time-weighted prices between two observations of
// the same pool: (cumulative_newer - cumulative_older) / elapsed.
func AveragePrice(width numeric.Width, older, newer Observation) (price1, price2 numeric.Amount, err error) {
	if newer.Timestamp <= older.Timestamp {
		return price1, price2, errorsmod.Wrapf(ErrInvalidWindow, "observation at %d is not after %d", newer.Timestamp, older.Timestamp)
	}
	elapsed := numeric.NewAmount(newer.Timestamp - older.Timestamp)

	// A decrease means the pool was relaunched between the observations.
	delta1, ok := width.Sub(newer.Price1Cumulative, older.Price1Cumulative)
	if !ok {
		return price1, price2, errorsmod.Wrap(ErrUnderflowOrOverflowOccured, "price1 accumulator decreased")
	}
	delta2, ok := width.Sub(newer.Price2Cumulative, older.Price2Cumulative)
	if !ok {
		return price1, price2, errorsmod.Wrap(ErrUnderflowOrOverflowOccured, "price2 accumulator decreased")
	}

	price1, _ = width.Div(delta1, elapsed)
	price2, _ = width.Div(delta2, elapsed)
	return price1, price2, nil
}
