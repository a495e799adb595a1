package analysis

import (
	"context"
	"testing"
	"time"

	"cryptoBiasBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// candles builds a finalized ascending kline series from closes and volumes.
// Volumes may be shorter than closes; missing entries default to 100.
func candles(closes []float64, volumes []float64) []*domain.Kline {
	klines := make([]*domain.Kline, len(closes))
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		vol := 100.0
		if i < len(volumes) {
			vol = volumes[i]
		}
		klines[i] = &domain.Kline{
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    vol,
			IsFinal:   true,
		}
	}
	return klines
}

// zigzag builds n closes from start alternating up/down deltas, netting in the
// up direction per pair. Keeps Wilder RSI away from the extreme bounds.
func zigzag(start float64, n int, up, down float64) []float64 {
	closes := make([]float64, n)
	closes[0] = start
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			closes[i] = closes[i-1] + up
		} else {
			closes[i] = closes[i-1] - down
		}
	}
	return closes
}

func compositeParams() domain.CompositeParams {
	return domain.CompositeParams{
		RSIPeriod:   14,
		RSIWarmup:   0,
		MAShort:     3,
		MALong:      5,
		VolLookback: 3,
	}
}

func TestComposite_NeedBars(t *testing.T) {
	m := &Composite{Params: domain.CompositeParams{
		RSIPeriod: 50, RSIWarmup: 100, MAShort: 7, MALong: 25, VolLookback: 10,
	}}
	assert.Equal(t, 155, m.NeedBars()) // 100+50+5 beats 25+10+5

	m = &Composite{Params: compositeParams()}
	assert.Equal(t, 19, m.NeedBars())
}

func TestComposite_InsufficientHistoryIsExplicitNeutral(t *testing.T) {
	m := &Composite{Params: compositeParams()}
	snap := &domain.Snapshot{
		Symbol:  "ETHUSDT",
		Candles: candles(zigzag(100, 18, 2, 1), nil),
	}

	res, err := m.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.SignalNeutral, res.Signal)
	assert.Equal(t, 0.0, res.Strength)
	meta, ok := res.Meta.(domain.CompositeMeta)
	require.True(t, ok)
	assert.Equal(t, 18, meta.CandlesUsed)
	assert.Equal(t, 19, meta.RequiredBars)
}

func TestComposite_AllChecksLong(t *testing.T) {
	m := &Composite{Params: compositeParams()}
	closes := zigzag(100, 19, 2, 1) // Net rising, RSI around 67
	volumes := make([]float64, 19)
	for i := range volumes {
		volumes[i] = 100
	}
	volumes[18] = 200 // Last bar spikes above its lookback average
	snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(closes, volumes)}

	res, err := m.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.SignalLong, res.Signal)
	assert.Equal(t, 100.0, res.Strength)

	meta, ok := res.Meta.(domain.CompositeMeta)
	require.True(t, ok)
	assert.Equal(t, 3, meta.ChecksPassed)
	assert.False(t, meta.ExtremeVeto)
	assert.Greater(t, meta.RSI, 50.0)
	assert.Less(t, meta.RSI, 70.0)
	assert.Greater(t, meta.MAShort, meta.MALong)
	assert.Greater(t, meta.VolumeRatio, 1.0)
}

func TestComposite_ExtremeRSIVetoes(t *testing.T) {
	m := &Composite{Params: compositeParams()}
	closes := make([]float64, 19) // Monotonic rise drives RSI to 100
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}
	snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(closes, nil)}

	res, err := m.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.SignalNeutral, res.Signal)
	assert.Equal(t, 0.0, res.Strength)
	meta, ok := res.Meta.(domain.CompositeMeta)
	require.True(t, ok)
	assert.True(t, meta.ExtremeVeto)
}

func TestComposite_ShortWithoutVolume(t *testing.T) {
	m := &Composite{Params: compositeParams()}
	closes := zigzag(200, 19, -2, -1) // Net falling, RSI around 33
	snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(closes, nil)}

	res, err := m.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, res)

	// MA cross and RSI agree short, flat volume does not: two of three checks.
	assert.Equal(t, domain.SignalShort, res.Signal)
	assert.Equal(t, 66.0, res.Strength)
	meta, ok := res.Meta.(domain.CompositeMeta)
	require.True(t, ok)
	assert.Equal(t, 2, meta.ChecksPassed)
	assert.Greater(t, meta.RSI, 30.0)
	assert.Less(t, meta.RSI, 50.0)
}
