// Package analysis contains the independent market scorers and the aggregator
// that combines their votes into one per-symbol trading decision.
package analysis

import (
	"context"

	"cryptoBiasBot/internal/domain"
)

// Module is one independent analysis scorer. Evaluate is a pure function of
// the snapshot: no shared state, safe to run concurrently with other modules.
//
// A (nil, nil) return means the module is unavailable this cycle (insufficient
// history or a missing feed). That is a normal outcome, not an error; it
// reduces coverage and the module contributes nothing to the scores.
type Module interface {
	Name() domain.ModuleName
	Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error)
}

// Build constructs the full module set for a symbol from its config, in the
// fixed module order.
func Build(cfg *domain.CoinConfig) []Module {
	ac := cfg.Analysis
	return []Module{
		&Trend{Params: ac.Trend},
		&Volatility{Params: ac.Volatility},
		&TrendRegime{Params: ac.TrendRegime},
		&Liquidity{Params: ac.Liquidity},
		&Liquidations{Params: ac.Liquidations},
		&OpenInterest{Params: ac.OpenInterest},
		&LongShort{Params: ac.LongShort},
		&HigherMA{Params: ac.HigherMA},
		&Composite{Params: ac.Composite},
	}
}
