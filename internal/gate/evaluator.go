// Package gate implements the promotion gate evaluator: a pure function from
// observed performance to a promote/hold decision with per-gate fail reasons.
package gate

import (
	"fmt"
	"math/rand"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/stats"
)

// Thresholds configures the promotion gates.
type Thresholds struct {
	RequiredHours  float64
	RequiredTrades int

	// Wilson lower bound must exceed BaselineWinRate by at least WilsonMargin.
	BaselineWinRate float64
	WilsonMargin    float64
	WilsonZ         float64 // 0 defaults to stats.Z95

	BootstrapResamples int     // 0 defaults to stats.DefaultResamples
	BootstrapAlpha     float64 // 0 defaults to 0.05

	MinSortino     float64
	MinSharpe      float64
	MaxSlippageBps float64
}

// Decision is the outcome of one gate evaluation. Promote is true iff every
// gate passed; FailReasons carries one human-readable code per failing gate.
type Decision struct {
	Promote     bool
	FailReasons []string
}

// Evaluator evaluates promotion gates. Stateless; the rng seed is fixed per
// evaluator so bootstrap results are reproducible.
type Evaluator struct {
	thresholds Thresholds
	seed       int64
}

// NewEvaluator creates a promotion gate evaluator.
func NewEvaluator(thresholds Thresholds, seed int64) *Evaluator {
	if thresholds.WilsonZ == 0 {
		thresholds.WilsonZ = stats.Z95
	}
	if thresholds.BootstrapResamples == 0 {
		thresholds.BootstrapResamples = stats.DefaultResamples
	}
	if thresholds.BootstrapAlpha == 0 {
		thresholds.BootstrapAlpha = 0.05
	}
	return &Evaluator{thresholds: thresholds, seed: seed}
}

// Evaluate applies every gate independently and collects all failures.
// No side effects.
func (e *Evaluator) Evaluate(m domain.PromotionMetrics) Decision {
	t := e.thresholds
	var reasons []string

	// 1. Observation window
	if m.HoursObserved < t.RequiredHours {
		reasons = append(reasons, fmt.Sprintf("hours_fail:%.1f<%.1f", m.HoursObserved, t.RequiredHours))
	}

	// 2. Sample size
	if m.Trades < t.RequiredTrades {
		reasons = append(reasons, fmt.Sprintf("trades_fail:%d<%d", m.Trades, t.RequiredTrades))
	}

	// 3. Wilson lower bound of win rate vs baseline + margin
	successes := float64(m.Trades) * m.WinRate
	lb := stats.Wilson(successes, float64(m.Trades), t.WilsonZ).Lower
	edge := lb - t.BaselineWinRate
	if edge < t.WilsonMargin {
		reasons = append(reasons, fmt.Sprintf("wilson_lb_fail:%.3f<%.3f", edge, t.WilsonMargin))
	}

	// 4. Bootstrap CI of mean PnL must exclude zero (either sign)
	rng := rand.New(rand.NewSource(e.seed))
	ci := stats.BootstrapMeanCI(m.PnLSamples, t.BootstrapResamples, t.BootstrapAlpha, rng)
	if !ci.ExcludesZero() {
		reasons = append(reasons, fmt.Sprintf("pnl_ci_fail:[%.4f,%.4f] includes 0", ci.Low, ci.High))
	}

	// 5. Risk-adjusted return floors
	if m.Sortino < t.MinSortino {
		reasons = append(reasons, fmt.Sprintf("sortino_fail:%.2f<%.2f", m.Sortino, t.MinSortino))
	}
	if m.Sharpe < t.MinSharpe {
		reasons = append(reasons, fmt.Sprintf("sharpe_fail:%.2f<%.2f", m.Sharpe, t.MinSharpe))
	}

	// 6. Slippage cap
	if m.SlippageBps > t.MaxSlippageBps {
		reasons = append(reasons, fmt.Sprintf("slippage_fail:%.1f>%.1f", m.SlippageBps, t.MaxSlippageBps))
	}

	return Decision{
		Promote:     len(reasons) == 0,
		FailReasons: reasons,
	}
}
