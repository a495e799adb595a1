package analysis

import (
	"context"
	"math"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// A long/short percentage difference at or below this is noise.
const longShortDeadZone = 5.0

// LongShort averages the exchange-reported long/short account percentages
// over the configured number of 5-minute points. The signal fires only when
// the averaged difference exceeds the dead zone; strength is the difference.
type LongShort struct {
	Params domain.LongShortParams
}

func (m *LongShort) Name() domain.ModuleName { return domain.ModuleLongShort }

func (m *LongShort) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	window := m.Params.Window
	if window <= 0 {
		window = 1
	}
	if len(snap.LongShort) < window {
		return nil, nil
	}

	points := snap.LongShort[len(snap.LongShort)-window:]
	var longSum, shortSum float64
	for _, p := range points {
		longSum += p.LongPct
		shortSum += p.ShortPct
	}
	avgLong := longSum / float64(len(points))
	avgShort := shortSum / float64(len(points))
	diff := math.Abs(avgLong - avgShort)

	signal := domain.SignalNeutral
	strength := 0.0
	if diff > longShortDeadZone {
		if avgLong > avgShort {
			signal = domain.SignalLong
		} else {
			signal = domain.SignalShort
		}
		strength = indicators.Clamp(diff, 0, 100)
	}

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta: domain.LongShortMeta{
			AvgLongPct:  avgLong,
			AvgShortPct: avgShort,
			Diff:        diff,
			Points:      len(points),
		},
	}, nil
}
