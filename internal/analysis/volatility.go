package analysis

import (
	"context"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// Volatility classifies the ATR percentage into a regime: DEAD below
// deadBelow, EXTREME above extremeAbove, NORMAL in between. The module is
// directionless (always NEUTRAL); its regime feeds the entry policy's
// avoidWhen filter, and its strength expresses how far into the tradeable
// band the market sits.
type Volatility struct {
	Params domain.VolatilityParams
}

func (m *Volatility) Name() domain.ModuleName { return domain.ModuleVolatility }

func (m *Volatility) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	if len(snap.Candles) < m.Params.ATRPeriod+1 {
		return nil, nil
	}

	atrPct, err := indicators.ATRPct(snap.Candles, m.Params.ATRPeriod)
	if err != nil {
		return nil, err
	}

	regime := domain.RegimeNormal
	strength := 0.0
	switch {
	case atrPct < m.Params.DeadBelow:
		regime = domain.RegimeDead
	case atrPct > m.Params.ExtremeAbove:
		regime = domain.RegimeExtreme
	default:
		band := m.Params.ExtremeAbove - m.Params.DeadBelow
		if band > 0 {
			strength = indicators.Clamp((atrPct-m.Params.DeadBelow)/band*100, 0, 100)
		}
	}

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   domain.SignalNeutral,
		Strength: strength,
		Meta: domain.VolatilityMeta{
			ATRPct: atrPct,
			Regime: regime,
		},
	}, nil
}
