package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/ports"
)

// Aggregator combines per-module results into one Analysis under the symbol's
// weighting-and-thresholding policy.
type Aggregator struct {
	logger ports.Logger
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(logger ports.Logger) (*Aggregator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for aggregator")
	}
	return &Aggregator{logger: logger}, nil
}

// Aggregate combines the module results of one evaluation cycle.
//
// A module contributes when it is present (non-nil) and its strength meets its
// configured threshold. Contributing modules with a directional signal add
// weight*strength to that side's accumulator; NEUTRAL contributors count
// toward coverage and minModules but move neither score. The decision degrades
// to NO_TRADE when gating fails (minModules, requiredModules, avoided
// volatility regime, side-bias ambiguity, or the winning side missing its
// minimum score).
func (g *Aggregator) Aggregate(ctx context.Context, cfg *domain.CoinConfig, at time.Time, results map[domain.ModuleName]*domain.ModuleResult) *domain.Analysis {
	ac := cfg.Analysis

	var scores domain.Scores
	contributing := 0
	modules := make(map[domain.ModuleName]*domain.ModuleResult, len(results))

	for _, name := range domain.AllModules() {
		res := results[name]
		modules[name] = res
		if res == nil {
			continue
		}
		threshold := ac.ModuleThresholds[name]
		if res.Strength < threshold {
			continue
		}
		contributing++
		weighted := ac.Weights[name] * res.Strength
		switch res.Signal {
		case domain.SignalLong:
			scores.Long += weighted
		case domain.SignalShort:
			scores.Short += weighted
		}
	}

	total := len(domain.AllModules())
	coverage := float64(contributing) / float64(total)

	a := &domain.Analysis{
		Time:      at,
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Modules:   modules,
		Scores:    scores,
		Coverage:  coverage,
		Bias:      domain.SignalNeutral,
		Decision:  domain.DecisionNoTrade,
	}

	if reason, ok := g.rejected(cfg, results, contributing); ok {
		g.logger.Debug(ctx, "Aggregation gated to NO_TRADE", map[string]interface{}{
			"symbol": cfg.Symbol,
			"reason": reason,
		})
		return a
	}

	// Side-bias tie-breaking: the gap must strictly exceed the tolerance to
	// pick a side; a gap equal to the tolerance is still ambiguous.
	gap := math.Abs(scores.Long - scores.Short)
	if gap <= ac.SideBiasTolerance || (scores.Long == 0 && scores.Short == 0) {
		return a
	}

	bias := domain.SignalLong
	side := domain.SideLong
	if scores.Short > scores.Long {
		bias = domain.SignalShort
		side = domain.SideShort
	}
	a.Bias = bias

	// Entry-score gating: the winning side's score must clear its minimum.
	winning := a.SideScore(side)
	if minScore, ok := cfg.Strategy.Entry.MinScore[side]; ok && winning < minScore {
		g.logger.Debug(ctx, "Bias below minimum entry score", map[string]interface{}{
			"symbol":   cfg.Symbol,
			"bias":     bias,
			"score":    winning,
			"minScore": minScore,
		})
		return a
	}

	a.Decision = domain.Decision(bias)
	return a
}

// rejected applies the hard gates that force a NEUTRAL decision.
func (g *Aggregator) rejected(cfg *domain.CoinConfig, results map[domain.ModuleName]*domain.ModuleResult, contributing int) (string, bool) {
	ac := cfg.Analysis

	if contributing < ac.MinModules {
		return fmt.Sprintf("contributing modules %d below minModules %d", contributing, ac.MinModules), true
	}

	for _, name := range ac.RequiredModules {
		res := results[name]
		if res == nil {
			return fmt.Sprintf("required module %q unavailable", name), true
		}
		if res.Strength < ac.ModuleThresholds[name] {
			return fmt.Sprintf("required module %q below threshold", name), true
		}
	}

	if regime, ok := marketRegime(results); ok {
		for _, avoided := range cfg.Strategy.Entry.AvoidWhen.Volatility {
			if regime == avoided {
				return fmt.Sprintf("volatility regime %s is avoided", regime), true
			}
		}
	}

	return "", false
}

// marketRegime extracts the volatility regime of the cycle, when known.
func marketRegime(results map[domain.ModuleName]*domain.ModuleResult) (domain.Regime, bool) {
	res := results[domain.ModuleVolatility]
	if res == nil {
		return "", false
	}
	meta, ok := res.Meta.(domain.VolatilityMeta)
	if !ok {
		return "", false
	}
	return meta.Regime, true
}
