package analysis

import (
	"context"
	"time"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// Liquidations scores the buy-vs-sell liquidation value ratio over a short
// window. Buy liquidations are shorts being forced out (upward pressure),
// sell liquidations are longs being forced out.
type Liquidations struct {
	Params domain.LiquidationsParams
}

func (m *Liquidations) Name() domain.ModuleName { return domain.ModuleLiquidations }

func (m *Liquidations) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	if len(snap.Liquidations) == 0 {
		return nil, nil
	}

	cutoff := snap.Time.Add(-time.Duration(m.Params.WindowMin) * time.Minute)

	var buyValue, sellValue float64
	events := 0
	for _, ev := range snap.Liquidations {
		if ev.Time.Before(cutoff) {
			continue
		}
		events++
		if ev.Side == domain.Buy {
			buyValue += ev.Value()
		} else {
			sellValue += ev.Value()
		}
	}

	total := buyValue + sellValue
	if events == 0 || total == 0 {
		return nil, nil
	}

	signal := domain.SignalNeutral
	dominant := buyValue
	if buyValue > sellValue {
		signal = domain.SignalLong
	} else if sellValue > buyValue {
		signal = domain.SignalShort
		dominant = sellValue
	}

	// Share of 0.5 means balanced flow (strength 0); share of 1.0 means
	// one-sided flow (strength 100).
	strength := indicators.Clamp((dominant/total-0.5)*200, 0, 100)

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta: domain.LiquidationsMeta{
			BuyValue:  buyValue,
			SellValue: sellValue,
			Events:    events,
		},
	}, nil
}
