package analysis

import (
	"context"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// Trend scores the fast/slow EMA gap confirmed by RSI: LONG strength scales
// with a positive gap while RSI is above 50, SHORT symmetric.
type Trend struct {
	Params domain.TrendParams
}

func (m *Trend) Name() domain.ModuleName { return domain.ModuleTrend }

func (m *Trend) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	required := m.Params.SlowEMA
	if m.Params.RSIPeriod+1 > required {
		required = m.Params.RSIPeriod + 1
	}
	if len(snap.Candles) < required {
		return nil, nil
	}

	closes := indicators.Closes(snap.Candles)

	fast, err := indicators.EMA(closes, m.Params.FastEMA, domain.SeedSMA)
	if err != nil {
		return nil, err
	}
	slow, err := indicators.EMA(closes, m.Params.SlowEMA, domain.SeedSMA)
	if err != nil {
		return nil, err
	}
	rsi, err := indicators.RSI(closes, m.Params.RSIPeriod)
	if err != nil {
		return nil, err
	}

	gapPct := 0.0
	if slow != 0 {
		gapPct = (fast - slow) / slow * 100
	}

	signal := domain.SignalNeutral
	strength := 0.0
	switch {
	case gapPct > 0 && rsi > 50:
		signal = domain.SignalLong
		strength = indicators.ScaleStrength(gapPct, m.Params.GapScale)
	case gapPct < 0 && rsi < 50:
		signal = domain.SignalShort
		strength = indicators.ScaleStrength(gapPct, m.Params.GapScale)
	}

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta: domain.TrendMeta{
			FastEMA: fast,
			SlowEMA: slow,
			GapPct:  gapPct,
			RSI:     rsi,
		},
	}, nil
}
