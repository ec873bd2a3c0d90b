package market

import (
	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

type EventKind string

const (
	EventCreate EventKind = "create"
	EventSwap   EventKind = "swap"
	EventInvest EventKind = "invest"
	EventDivest EventKind = "divest"
)

// Event is one committed pool operation. Swaps fill the In/Out fields,
// liquidity operations fill First/Second and Shares.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Pair      pool.PairKey   `json:"pair"`
	Account   common.Address `json:"account"`
	Timestamp uint64         `json:"timestamp"`

	Direction string         `json:"direction,omitempty"`
	AssetIn   string         `json:"asset_in,omitempty"`
	AssetOut  string         `json:"asset_out,omitempty"`
	AmountIn  numeric.Amount `json:"amount_in"`
	AmountOut numeric.Amount `json:"amount_out"`
	Fee       numeric.Amount `json:"fee"`

	Treasury *pool.TreasuryCut `json:"treasury,omitempty"`

	FirstAmount  numeric.Amount `json:"first_amount"`
	SecondAmount numeric.Amount `json:"second_amount"`
	Shares       numeric.Amount `json:"shares"`

	FirstReserve  numeric.Amount `json:"first_reserve"`
	SecondReserve numeric.Amount `json:"second_reserve"`
}
