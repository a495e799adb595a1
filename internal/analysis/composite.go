package analysis

import (
	"context"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

const (
	// RSI readings beyond these bounds veto the signal entirely: the zone is
	// treated as a safety stop, not a scoring input.
	compositeRSIUpper = 70.0
	compositeRSILower = 30.0

	// Winning side must beat the other by more than this, else NEUTRAL.
	compositeDeadZone = 5.0
)

// checksStrength maps the number of passed checks onto a strength.
var checksStrength = [4]float64{0, 33, 66, 100}

// Composite is the RSI+volume+trend scorer: Wilder RSI with a long warm-up,
// a short/long SMA cross, and volume against its lookback average. It counts
// how many of the three checks align per side and maps {0,1,2,3} onto
// {0,33,66,100}.
type Composite struct {
	Params domain.CompositeParams
}

func (m *Composite) Name() domain.ModuleName { return domain.ModuleComposite }

// NeedBars returns the minimum number of candles the module requires.
func (m *Composite) NeedBars() int {
	p := m.Params
	a := p.RSIWarmup + p.RSIPeriod + 5
	b := p.MALong + p.VolLookback + 5
	if a > b {
		return a
	}
	return b
}

func (m *Composite) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	needBars := m.NeedBars()
	used := len(snap.Candles)

	// Insufficient history is reported as an explicit zero/neutral result
	// rather than plain unavailability: the meta documents how far off the
	// warm-up is.
	if used < needBars {
		return &domain.ModuleResult{
			Module:   m.Name(),
			Symbol:   snap.Symbol,
			Signal:   domain.SignalNeutral,
			Strength: 0,
			Meta: domain.CompositeMeta{
				CandlesUsed:  used,
				RequiredBars: needBars,
			},
		}, nil
	}

	closes := indicators.Closes(snap.Candles)

	rsi, err := indicators.RSI(closes, m.Params.RSIPeriod)
	if err != nil {
		return nil, err
	}
	maShort, err := indicators.SMA(closes, m.Params.MAShort)
	if err != nil {
		return nil, err
	}
	maLong, err := indicators.SMA(closes, m.Params.MALong)
	if err != nil {
		return nil, err
	}

	// Last volume against the average of the preceding lookback bars.
	lastVol := snap.Candles[used-1].Volume
	var volSum float64
	for i := used - 1 - m.Params.VolLookback; i < used-1; i++ {
		volSum += snap.Candles[i].Volume
	}
	avgVol := volSum / float64(m.Params.VolLookback)
	volAbove := avgVol > 0 && lastVol > avgVol
	volumeRatio := 0.0
	if avgVol > 0 {
		volumeRatio = lastVol / avgVol
	}

	meta := domain.CompositeMeta{
		RSI:          rsi,
		MAShort:      maShort,
		MALong:       maLong,
		VolumeRatio:  volumeRatio,
		CandlesUsed:  used,
		RequiredBars: needBars,
	}

	// Extreme-RSI veto: suppress the signal regardless of the other checks.
	if rsi > compositeRSIUpper || rsi < compositeRSILower {
		meta.ExtremeVeto = true
		return &domain.ModuleResult{
			Module:   m.Name(),
			Symbol:   snap.Symbol,
			Signal:   domain.SignalNeutral,
			Strength: 0,
			Meta:     meta,
		}, nil
	}

	longChecks := 0
	if maShort > maLong {
		longChecks++
	}
	if volAbove {
		longChecks++
	}
	if rsi > 50 {
		longChecks++
	}

	shortChecks := 0
	if maShort < maLong {
		shortChecks++
	}
	if volAbove {
		shortChecks++
	}
	if rsi < 50 {
		shortChecks++
	}

	longStrength := checksStrength[longChecks]
	shortStrength := checksStrength[shortChecks]
	meta.LongStrength = longStrength
	meta.ShortStrength = shortStrength

	signal := domain.SignalNeutral
	strength := 0.0
	diff := longStrength - shortStrength
	if diff > compositeDeadZone {
		signal = domain.SignalLong
		strength = longStrength
		meta.ChecksPassed = longChecks
	} else if -diff > compositeDeadZone {
		signal = domain.SignalShort
		strength = shortStrength
		meta.ChecksPassed = shortChecks
	}

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta:     meta,
	}, nil
}
