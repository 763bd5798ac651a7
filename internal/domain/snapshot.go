package domain

// MetricSnapshot is one rolling performance sample produced by the external
// metrics feed. Immutable once recorded.
type MetricSnapshot struct {
	Timestamp   int64   `json:"timestamp"` // unix ms
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	WinRate     float64 `json:"win_rate"`
	TradeCount  int     `json:"trade_count"`
	DrawdownBps float64 `json:"drawdown_bps"`
}

// PromotionMetrics is the input to a single promotion gate evaluation.
// Computed per evaluation, consumed once, not persisted.
type PromotionMetrics struct {
	HoursObserved float64
	Trades        int
	WinRate       float64   // observed win rate over Trades
	PnLSamples    []float64 // per-trade PnL used for the bootstrap interval
	Sortino       float64
	Sharpe        float64
	SlippageBps   float64
}
