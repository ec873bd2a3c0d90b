package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// Metrics holds the Prometheus collectors updated by Service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Operations   *prometheus.CounterVec
	SwapVolume   *prometheus.CounterVec
	TreasuryFees *prometheus.CounterVec
	PoolReserve  *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subdex",
				Name:      "operations_total",
				Help:      "Pool operations by kind and outcome",
			},
			[]string{"op", "status"},
		),
		SwapVolume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subdex",
				Name:      "swap_volume_total",
				Help:      "Swap input volume in base units",
			},
			[]string{"pair", "asset"},
		),
		TreasuryFees: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "subdex",
				Name:      "treasury_fees_total",
				Help:      "Swap fees routed to the treasury",
			},
			[]string{"pair", "asset"},
		),
		PoolReserve: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "subdex",
				Name:      "pool_reserve",
				Help:      "Current pool reserve per asset",
			},
			[]string{"pair", "asset"},
		),
	}
}

func (m *Metrics) observeOp(op EventKind, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(string(op), status).Inc()
}

func (m *Metrics) observeSwap(pair pool.PairKey, asset string, amountIn numeric.Amount, cut *pool.TreasuryCut) {
	if m == nil {
		return
	}
	m.SwapVolume.WithLabelValues(pair.String(), asset).Add(amountIn.Float64())
	if cut != nil && !cut.Amount.IsZero() {
		m.TreasuryFees.WithLabelValues(pair.String(), asset).Add(cut.Amount.Float64())
	}
}

func (m *Metrics) observeReserves(pair pool.PairKey, p pool.Pool) {
	if m == nil {
		return
	}
	m.PoolReserve.WithLabelValues(pair.String(), pair.First).Set(p.FirstReserve.Float64())
	m.PoolReserve.WithLabelValues(pair.String(), pair.Second).Set(p.SecondReserve.Float64())
}
