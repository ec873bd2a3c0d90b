package postgres

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// poolRow is a pool with every amount in decimal text, as stored in
// NUMERIC columns.
type poolRow struct {
	FirstReserve     string
	SecondReserve    string
	Invariant        string
	TotalShares      string
	LastUpdateTime   int64
	Price1Cumulative string
	Price2Cumulative string
	Version          int64
	Shares           []shareRow
}

type shareRow struct {
	Owner  string
	Shares string
}

func encodePool(p pool.Pool) poolRow {
	row := poolRow{
		FirstReserve:     p.FirstReserve.String(),
		SecondReserve:    p.SecondReserve.String(),
		Invariant:        p.Invariant.String(),
		TotalShares:      p.TotalShares.String(),
		LastUpdateTime:   int64(p.LastUpdateTime),
		Price1Cumulative: p.Price1Cumulative.String(),
		Price2Cumulative: p.Price2Cumulative.String(),
		Version:          int64(p.Version),
	}
	for _, owner := range p.Owners() {
		row.Shares = append(row.Shares, shareRow{Owner: owner.Hex(), Shares: p.Shares[owner].String()})
	}
	return row
}

func (r poolRow) decode() (pool.Pool, error) {
	if r.LastUpdateTime < 0 {
		return pool.Pool{}, fmt.Errorf("negative last_update_time %d", r.LastUpdateTime)
	}
	if r.Version < 0 {
		return pool.Pool{}, fmt.Errorf("negative version %d", r.Version)
	}
	p := pool.Pool{
		LastUpdateTime: uint64(r.LastUpdateTime),
		Version:        uint64(r.Version),
		Shares:         make(map[common.Address]numeric.Amount, len(r.Shares)),
	}

	fields := []struct {
		name string
		text string
		dst  *numeric.Amount
	}{
		{"first_reserve", r.FirstReserve, &p.FirstReserve},
		{"second_reserve", r.SecondReserve, &p.SecondReserve},
		{"invariant", r.Invariant, &p.Invariant},
		{"total_shares", r.TotalShares, &p.TotalShares},
		{"price1_cumulative", r.Price1Cumulative, &p.Price1Cumulative},
		{"price2_cumulative", r.Price2Cumulative, &p.Price2Cumulative},
	}
	for _, f := range fields {
		amount, err := numeric.Parse(f.text)
		if err != nil {
			return pool.Pool{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = amount
	}

	for _, share := range r.Shares {
		if !common.IsHexAddress(share.Owner) {
			return pool.Pool{}, fmt.Errorf("invalid share owner %q", share.Owner)
		}
		amount, err := numeric.Parse(share.Shares)
		if err != nil {
			return pool.Pool{}, fmt.Errorf("shares of %s: %w", share.Owner, err)
		}
		p.Shares[common.HexToAddress(share.Owner)] = amount
	}
	return p, nil
}
