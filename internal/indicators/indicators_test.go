package indicators

import (
	"testing"
	"time"

	"cryptoBiasBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeKlines(t *testing.T, ohlc [][4]float64) []*domain.Kline {
	t.Helper()
	klines := make([]*domain.Kline, len(ohlc))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range ohlc {
		klines[i] = &domain.Kline{
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      c[0],
			High:      c[1],
			Low:       c[2],
			Close:     c[3],
			Volume:    100,
			IsFinal:   true,
		}
	}
	return klines
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		period  int
		want    float64
		wantErr bool
	}{
		{name: "full window", values: []float64{1, 2, 3, 4, 5}, period: 5, want: 3},
		{name: "last values only", values: []float64{1, 2, 3, 4, 5, 6}, period: 3, want: 5},
		{name: "single value", values: []float64{42}, period: 1, want: 42},
		{name: "not enough data", values: []float64{1, 2}, period: 3, wantErr: true},
		{name: "zero period", values: []float64{1, 2, 3}, period: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SMA(tt.values, tt.period)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEMA(t *testing.T) {
	t.Run("constant series equals the constant for both seeds", func(t *testing.T) {
		values := []float64{10, 10, 10, 10, 10}

		sma, err := EMA(values, 3, domain.SeedSMA)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, sma, 1e-9)

		first, err := EMA(values, 3, domain.SeedFirst)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, first, 1e-9)
	})

	t.Run("seed modes produce different warm-up values", func(t *testing.T) {
		// period 2, multiplier 2/3.
		// SeedSMA: seed = (1+2)/2 = 1.5, then 1.5 + 2/3*(3-1.5) = 2.5
		// SeedFirst: seed = 1, then 1+2/3*(2-1) = 5/3, then 5/3 + 2/3*(3-5/3) = 23/9
		values := []float64{1, 2, 3}

		sma, err := EMA(values, 2, domain.SeedSMA)
		require.NoError(t, err)
		assert.InDelta(t, 2.5, sma, 1e-9)

		first, err := EMA(values, 2, domain.SeedFirst)
		require.NoError(t, err)
		assert.InDelta(t, 23.0/9.0, first, 1e-9)

		assert.NotEqual(t, sma, first)
	})

	t.Run("not enough data", func(t *testing.T) {
		_, err := EMA([]float64{1, 2}, 3, domain.SeedSMA)
		assert.Error(t, err)
	})
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name    string
		closes  []float64
		period  int
		want    float64
		wantErr bool
	}{
		{name: "only gains", closes: []float64{1, 2, 3, 4, 5, 6}, period: 5, want: 100},
		{name: "only losses", closes: []float64{6, 5, 4, 3, 2, 1}, period: 5, want: 0},
		{name: "flat series is neutral", closes: []float64{5, 5, 5, 5, 5, 5}, period: 5, want: 50},
		{name: "not enough data", closes: []float64{1, 2, 3}, period: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(tt.closes, tt.period)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	t.Run("mixed series stays within bounds", func(t *testing.T) {
		closes := []float64{44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28}
		got, err := RSI(closes, 14)
		require.NoError(t, err)
		assert.Greater(t, got, 50.0) // Net gains over the window
		assert.LessOrEqual(t, got, 100.0)
	})
}

func TestATR(t *testing.T) {
	t.Run("constant range", func(t *testing.T) {
		// Every candle spans 90-110 and closes at 100: TR is always 20.
		ohlc := make([][4]float64, 20)
		for i := range ohlc {
			ohlc[i] = [4]float64{100, 110, 90, 100}
		}
		klines := makeKlines(t, ohlc)

		atr, err := ATR(klines, 14)
		require.NoError(t, err)
		assert.InDelta(t, 20.0, atr, 1e-9)

		atrPct, err := ATRPct(klines, 14)
		require.NoError(t, err)
		assert.InDelta(t, 20.0, atrPct, 1e-9)
	})

	t.Run("not enough data", func(t *testing.T) {
		klines := makeKlines(t, [][4]float64{{100, 110, 90, 100}})
		_, err := ATR(klines, 14)
		assert.Error(t, err)
	})
}

func TestADX(t *testing.T) {
	t.Run("uptrend has positive directional dominance", func(t *testing.T) {
		ohlc := make([][4]float64, 15)
		for i := range ohlc {
			base := 100 + float64(i)*2
			ohlc[i] = [4]float64{base, base + 2, base - 1, base + 1}
		}
		klines := makeKlines(t, ohlc)

		di, err := ADX(klines, 3)
		require.NoError(t, err)
		assert.Greater(t, di.PlusDI, di.MinusDI)
		assert.Greater(t, di.ADX, 0.0)
		assert.LessOrEqual(t, di.ADX, 100.0)
	})

	t.Run("not enough data", func(t *testing.T) {
		klines := makeKlines(t, [][4]float64{{100, 110, 90, 100}, {100, 110, 90, 100}})
		_, err := ADX(klines, 3)
		assert.Error(t, err)
	})
}

func TestScaleStrength(t *testing.T) {
	assert.Equal(t, 50.0, ScaleStrength(1.0, 50))
	assert.Equal(t, 50.0, ScaleStrength(-1.0, 50)) // Absolute gap
	assert.Equal(t, 100.0, ScaleStrength(4.0, 50)) // Clamped
	assert.Equal(t, 0.0, ScaleStrength(0, 50))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(5, 0, 10))
	assert.Equal(t, 0.0, Clamp(-3, 0, 10))
	assert.Equal(t, 10.0, Clamp(30, 0, 10))
}
