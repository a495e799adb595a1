package analysis

import (
	"context"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// HigherMA is the macro-trend gate: an EMA cross on a higher timeframe
// (e.g. daily). strength = min(100, |deltaPct| * scale). The EMA seeding mode
// is part of the config because it changes warm-up values.
type HigherMA struct {
	Params domain.HigherMAParams
}

func (m *HigherMA) Name() domain.ModuleName { return domain.ModuleHigherMA }

func (m *HigherMA) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	if len(snap.HigherCandles) < m.Params.SlowPeriod {
		return nil, nil
	}

	closes := indicators.Closes(snap.HigherCandles)

	fast, err := indicators.EMA(closes, m.Params.FastPeriod, m.Params.EMASeed)
	if err != nil {
		return nil, err
	}
	slow, err := indicators.EMA(closes, m.Params.SlowPeriod, m.Params.EMASeed)
	if err != nil {
		return nil, err
	}

	deltaPct := 0.0
	if slow != 0 {
		deltaPct = (fast - slow) / slow * 100
	}

	signal := domain.SignalNeutral
	if deltaPct > 0 {
		signal = domain.SignalLong
	} else if deltaPct < 0 {
		signal = domain.SignalShort
	}
	strength := indicators.ScaleStrength(deltaPct, m.Params.Scale)

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta: domain.HigherMAMeta{
			FastMA:    fast,
			SlowMA:    slow,
			DeltaPct:  deltaPct,
			Timeframe: m.Params.Timeframe,
		},
	}, nil
}
