package analysis

import (
	"context"
	"math"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// TrendRegime scores trend strength via ADX once the +DI/-DI separation
// exceeds adxSignalMin: direction from the sign of (+DI - -DI), strength from
// ADX scaled against adxMaxForScale.
type TrendRegime struct {
	Params domain.TrendRegimeParams
}

func (m *TrendRegime) Name() domain.ModuleName { return domain.ModuleTrendRegime }

func (m *TrendRegime) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	if len(snap.Candles) < 2*m.Params.ADXPeriod+1 {
		return nil, nil
	}

	di, err := indicators.ADX(snap.Candles, m.Params.ADXPeriod)
	if err != nil {
		return nil, err
	}

	signal := domain.SignalNeutral
	strength := 0.0
	if math.Abs(di.PlusDI-di.MinusDI) > m.Params.ADXSignalMin && m.Params.ADXMaxForScale > 0 {
		if di.PlusDI > di.MinusDI {
			signal = domain.SignalLong
		} else {
			signal = domain.SignalShort
		}
		strength = indicators.Clamp(di.ADX/m.Params.ADXMaxForScale*100, 0, 100)
	}

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta: domain.TrendRegimeMeta{
			ADX:     di.ADX,
			PlusDI:  di.PlusDI,
			MinusDI: di.MinusDI,
		},
	}, nil
}
