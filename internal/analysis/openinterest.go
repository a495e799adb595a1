package analysis

import (
	"context"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// Strength contributed per 1% of OI/price divergence.
const oiDivergenceScale = 10.0

// OpenInterest compares the percentage change in open-interest value with the
// percentage change in price over the window. Rising OI into a flat or falling
// price signals accumulation (LONG); falling OI into a flat or rising price
// signals distribution (SHORT).
type OpenInterest struct {
	Params domain.OpenInterestParams
}

func (m *OpenInterest) Name() domain.ModuleName { return domain.ModuleOpenInterest }

func (m *OpenInterest) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	window := m.Params.Window
	if window < 2 {
		window = 2
	}
	if len(snap.OpenInterest) < window {
		return nil, nil
	}

	points := snap.OpenInterest[len(snap.OpenInterest)-window:]
	first := points[0]
	last := points[len(points)-1]
	if first.Value <= 0 || first.Price <= 0 || last.Price <= 0 {
		return nil, nil
	}

	oiChangePct := (last.Value - first.Value) / first.Value * 100
	priceChangePct := (last.Price - first.Price) / first.Price * 100

	signal := domain.SignalNeutral
	strength := 0.0
	switch {
	case oiChangePct > 0 && priceChangePct <= 0:
		signal = domain.SignalLong
		strength = indicators.ScaleStrength(oiChangePct-priceChangePct, oiDivergenceScale)
	case oiChangePct < 0 && priceChangePct >= 0:
		signal = domain.SignalShort
		strength = indicators.ScaleStrength(priceChangePct-oiChangePct, oiDivergenceScale)
	}

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta: domain.OpenInterestMeta{
			OIChangePct:    oiChangePct,
			PriceChangePct: priceChangePct,
			Points:         len(points),
		},
	}, nil
}
