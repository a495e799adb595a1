package analysis

import (
	"context"
	"testing"
	"time"

	"cryptoBiasBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_CoversFixedModuleSet(t *testing.T) {
	modules := Build(&domain.CoinConfig{Symbol: "ETHUSDT"})
	require.Len(t, modules, len(domain.AllModules()))
	for i, name := range domain.AllModules() {
		assert.Equal(t, name, modules[i].Name())
	}
}

func TestTrend_Evaluate(t *testing.T) {
	m := &Trend{Params: domain.TrendParams{FastEMA: 3, SlowEMA: 8, RSIPeriod: 5, GapScale: 50}}

	t.Run("insufficient history is unavailable", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(zigzag(100, 5, 2, 1), nil)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("rising market signals long", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(zigzag(100, 20, 3, 1), nil)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalLong, res.Signal)
		assert.Greater(t, res.Strength, 0.0)
		meta, ok := res.Meta.(domain.TrendMeta)
		require.True(t, ok)
		assert.Greater(t, meta.FastEMA, meta.SlowEMA)
		assert.Greater(t, meta.RSI, 50.0)
	})

	t.Run("falling market signals short", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(zigzag(200, 20, -3, -1), nil)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalShort, res.Signal)
		assert.Greater(t, res.Strength, 0.0)
	})

	t.Run("flat market stays neutral", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100
		}
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(closes, nil)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalNeutral, res.Signal)
		assert.Equal(t, 0.0, res.Strength)
	})
}

func TestVolatility_Evaluate(t *testing.T) {
	m := &Volatility{Params: domain.VolatilityParams{ATRPeriod: 5, DeadBelow: 0.5, ExtremeAbove: 10}}

	rangeCandles := func(spread float64) []*domain.Kline {
		ks := candles(zigzag(100, 10, 0.0, 0.0), nil)
		for _, k := range ks {
			k.High = k.Close + spread/2
			k.Low = k.Close - spread/2
		}
		return ks
	}

	tests := []struct {
		name       string
		spread     float64
		wantRegime domain.Regime
	}{
		// ATR% equals the spread on a flat 100-priced series.
		{name: "dead market", spread: 0.2, wantRegime: domain.RegimeDead},
		{name: "normal market", spread: 5, wantRegime: domain.RegimeNormal},
		{name: "extreme market", spread: 20, wantRegime: domain.RegimeExtreme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: rangeCandles(tt.spread)}
			res, err := m.Evaluate(context.Background(), snap)
			require.NoError(t, err)
			require.NotNil(t, res)

			// The module never takes a side.
			assert.Equal(t, domain.SignalNeutral, res.Signal)
			meta, ok := res.Meta.(domain.VolatilityMeta)
			require.True(t, ok)
			assert.Equal(t, tt.wantRegime, meta.Regime)
			if tt.wantRegime == domain.RegimeNormal {
				assert.Greater(t, res.Strength, 0.0)
			} else {
				assert.Equal(t, 0.0, res.Strength)
			}
		})
	}
}

func TestTrendRegime_Evaluate(t *testing.T) {
	m := &TrendRegime{Params: domain.TrendRegimeParams{ADXPeriod: 3, ADXSignalMin: 5, ADXMaxForScale: 50}}

	t.Run("insufficient history is unavailable", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: candles(zigzag(100, 6, 2, 1), nil)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("steady uptrend signals long", func(t *testing.T) {
		closes := make([]float64, 15)
		for i := range closes {
			closes[i] = 100 + float64(i)*2
		}
		ks := candles(closes, nil)
		for _, k := range ks {
			k.High = k.Close + 2
			k.Low = k.Close - 1
		}
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Candles: ks}

		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalLong, res.Signal)
		assert.Greater(t, res.Strength, 0.0)
		meta, ok := res.Meta.(domain.TrendRegimeMeta)
		require.True(t, ok)
		assert.Greater(t, meta.PlusDI, meta.MinusDI)
	})
}

func TestLiquidity_Evaluate(t *testing.T) {
	m := &Liquidity{Params: domain.LiquidityParams{Window: 3}}

	t.Run("no book is unavailable", func(t *testing.T) {
		res, err := m.Evaluate(context.Background(), &domain.Snapshot{Symbol: "ETHUSDT"})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("warming window is unavailable", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Book: &domain.BookWindow{
			Symbol: "ETHUSDT", AvgImbalance: 0.4, AvgSpreadAbs: 0.5, MidPrice: 2000, Snapshots: 2,
		}}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("bid-heavy book signals long", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Book: &domain.BookWindow{
			Symbol: "ETHUSDT", AvgImbalance: 0.4, AvgSpreadAbs: 0.5, MidPrice: 2000, Snapshots: 3,
		}}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalLong, res.Signal)
		assert.InDelta(t, 40.0, res.Strength, 1e-9)
		meta, ok := res.Meta.(domain.LiquidityMeta)
		require.True(t, ok)
		assert.InDelta(t, 0.025, meta.SpreadPct, 1e-9) // 0.5/2000*100
		assert.Equal(t, 3, meta.Snapshots)
	})

	t.Run("ask-heavy book signals short", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Book: &domain.BookWindow{
			Symbol: "ETHUSDT", AvgImbalance: -0.25, AvgSpreadAbs: 0.5, MidPrice: 2000, Snapshots: 5,
		}}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalShort, res.Signal)
		assert.InDelta(t, 25.0, res.Strength, 1e-9)
	})
}

func TestLiquidations_Evaluate(t *testing.T) {
	m := &Liquidations{Params: domain.LiquidationsParams{WindowMin: 30}}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no events is unavailable", func(t *testing.T) {
		res, err := m.Evaluate(context.Background(), &domain.Snapshot{Symbol: "ETHUSDT", Time: at})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("events outside the window are ignored", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Time: at, Liquidations: []domain.LiquidationEvent{
			{Time: at.Add(-2 * time.Hour), Side: domain.Buy, Price: 2000, Qty: 10},
		}}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("buy-dominated flow signals long", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Time: at, Liquidations: []domain.LiquidationEvent{
			{Time: at.Add(-10 * time.Minute), Side: domain.Buy, Price: 2000, Qty: 9},  // 18000
			{Time: at.Add(-5 * time.Minute), Side: domain.Sell, Price: 2000, Qty: 1}, // 2000
		}}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalLong, res.Signal)
		// Buy share 0.9 maps to strength 80.
		assert.InDelta(t, 80.0, res.Strength, 1e-9)
		meta, ok := res.Meta.(domain.LiquidationsMeta)
		require.True(t, ok)
		assert.InDelta(t, 18000.0, meta.BuyValue, 1e-9)
		assert.InDelta(t, 2000.0, meta.SellValue, 1e-9)
		assert.Equal(t, 2, meta.Events)
	})

	t.Run("balanced flow stays neutral", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", Time: at, Liquidations: []domain.LiquidationEvent{
			{Time: at.Add(-10 * time.Minute), Side: domain.Buy, Price: 2000, Qty: 5},
			{Time: at.Add(-5 * time.Minute), Side: domain.Sell, Price: 2000, Qty: 5},
		}}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalNeutral, res.Signal)
		assert.Equal(t, 0.0, res.Strength)
	})
}

func TestOpenInterest_Evaluate(t *testing.T) {
	m := &OpenInterest{Params: domain.OpenInterestParams{Window: 3}}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	points := func(values, prices []float64) []domain.OpenInterestPoint {
		ps := make([]domain.OpenInterestPoint, len(values))
		for i := range values {
			ps[i] = domain.OpenInterestPoint{
				Time:  at.Add(time.Duration(i) * 5 * time.Minute),
				Value: values[i],
				Price: prices[i],
			}
		}
		return ps
	}

	t.Run("too few points is unavailable", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", OpenInterest: points([]float64{100, 110}, []float64{2000, 2000})}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("rising oi into flat price signals long", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", OpenInterest: points(
			[]float64{100, 105, 105}, []float64{2000, 2000, 2000},
		)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalLong, res.Signal)
		// 5% OI divergence at scale 10.
		assert.InDelta(t, 50.0, res.Strength, 1e-9)
		meta, ok := res.Meta.(domain.OpenInterestMeta)
		require.True(t, ok)
		assert.InDelta(t, 5.0, meta.OIChangePct, 1e-9)
		assert.InDelta(t, 0.0, meta.PriceChangePct, 1e-9)
	})

	t.Run("falling oi into rising price signals short", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", OpenInterest: points(
			[]float64{100, 95, 90}, []float64{2000, 2010, 2020},
		)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalShort, res.Signal)
		assert.Greater(t, res.Strength, 0.0)
	})

	t.Run("confirming oi and price stays neutral", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", OpenInterest: points(
			[]float64{100, 105, 110}, []float64{2000, 2010, 2020},
		)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalNeutral, res.Signal)
		assert.Equal(t, 0.0, res.Strength)
	})
}

func TestLongShort_Evaluate(t *testing.T) {
	m := &LongShort{Params: domain.LongShortParams{Window: 2}}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	points := func(longs, shorts []float64) []domain.LongShortPoint {
		ps := make([]domain.LongShortPoint, len(longs))
		for i := range longs {
			ps[i] = domain.LongShortPoint{
				Time:     at.Add(time.Duration(i) * 5 * time.Minute),
				LongPct:  longs[i],
				ShortPct: shorts[i],
			}
		}
		return ps
	}

	t.Run("too few points is unavailable", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", LongShort: points([]float64{60}, []float64{40})}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("long-skewed accounts signal long", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", LongShort: points(
			[]float64{58, 62}, []float64{42, 38},
		)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalLong, res.Signal)
		assert.InDelta(t, 20.0, res.Strength, 1e-9) // 60 vs 40 averaged
		meta, ok := res.Meta.(domain.LongShortMeta)
		require.True(t, ok)
		assert.InDelta(t, 60.0, meta.AvgLongPct, 1e-9)
		assert.InDelta(t, 40.0, meta.AvgShortPct, 1e-9)
	})

	t.Run("difference inside dead zone stays neutral", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", LongShort: points(
			[]float64{52, 52}, []float64{48, 48},
		)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalNeutral, res.Signal)
		assert.Equal(t, 0.0, res.Strength)
	})
}

func TestHigherMA_Evaluate(t *testing.T) {
	m := &HigherMA{Params: domain.HigherMAParams{
		Timeframe: "1d", FastPeriod: 3, SlowPeriod: 8, Scale: 25, EMASeed: domain.SeedSMA,
	}}

	t.Run("insufficient higher history is unavailable", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", HigherCandles: candles(zigzag(100, 5, 2, 1), nil)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("daily uptrend signals long", func(t *testing.T) {
		snap := &domain.Snapshot{Symbol: "ETHUSDT", HigherCandles: candles(zigzag(100, 20, 3, 1), nil)}
		res, err := m.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, domain.SignalLong, res.Signal)
		assert.Greater(t, res.Strength, 0.0)
		meta, ok := res.Meta.(domain.HigherMAMeta)
		require.True(t, ok)
		assert.Equal(t, "1d", meta.Timeframe)
		assert.Greater(t, meta.FastMA, meta.SlowMA)
	})
}
