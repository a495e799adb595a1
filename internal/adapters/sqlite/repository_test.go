package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "bias_bot_test_*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tempDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		repo.Close()
		os.RemoveAll(tempDir)
	})
	return repo
}

func testCoinConfig(symbol string) *domain.CoinConfig {
	weights := make(map[domain.ModuleName]float64, len(domain.AllModules()))
	thresholds := make(map[domain.ModuleName]float64, len(domain.AllModules()))
	for _, name := range domain.AllModules() {
		weights[name] = 0.1
		thresholds[name] = 20
	}
	return &domain.CoinConfig{
		Symbol:    symbol,
		Timeframe: "1h",
		Enabled:   true,
		Analysis: domain.AnalysisConfig{
			Weights:           weights,
			ModuleThresholds:  thresholds,
			MinModules:        4,
			RequiredModules:   []domain.ModuleName{domain.ModuleTrend},
			SideBiasTolerance: 10,
		},
		Strategy: domain.StrategyConfig{
			Name: "test",
			Entry: domain.EntryConfig{
				MinScore:               map[domain.Side]float64{domain.SideLong: 65},
				MaxConcurrentPositions: 3,
			},
			Capital: domain.CapitalConfig{RiskPerTradePct: 1, Leverage: 4},
			Exit: domain.ExitConfig{
				TPGridPct:     []float64{1, 2},
				TPGridSizePct: []float64{50, 50},
				Stop:          domain.StopConfig{Type: domain.StopHard, HardPct: 2},
			},
		},
	}
}

func TestCoinConfigRepo(t *testing.T) {
	repo := setupTestDB(t)
	configs := repo.Configs()
	ctx := context.Background()

	t.Run("find missing symbol returns nil", func(t *testing.T) {
		cfg, err := configs.FindBySymbol(ctx, "NOPEUSDT")
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("upsert and find roundtrip", func(t *testing.T) {
		want := testCoinConfig("ETHUSDT")
		require.NoError(t, configs.Upsert(ctx, want))

		got, err := configs.FindBySymbol(ctx, "ETHUSDT")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Symbol, got.Symbol)
		assert.Equal(t, want.Timeframe, got.Timeframe)
		assert.Equal(t, want.Analysis.Weights, got.Analysis.Weights)
		assert.Equal(t, want.Analysis.RequiredModules, got.Analysis.RequiredModules)
		assert.Equal(t, want.Strategy.Exit.TPGridPct, got.Strategy.Exit.TPGridPct)
	})

	t.Run("upsert replaces the stored document", func(t *testing.T) {
		cfg := testCoinConfig("ETHUSDT")
		cfg.Timeframe = "4h"
		cfg.Enabled = false
		require.NoError(t, configs.Upsert(ctx, cfg))

		got, err := configs.FindBySymbol(ctx, "ETHUSDT")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "4h", got.Timeframe)
		assert.False(t, got.Enabled)
	})

	t.Run("find enabled skips disabled symbols", func(t *testing.T) {
		require.NoError(t, configs.Upsert(ctx, testCoinConfig("BTCUSDT")))
		require.NoError(t, configs.Upsert(ctx, testCoinConfig("SOLUSDT")))
		// ETHUSDT was disabled by the previous subtest.

		enabled, err := configs.FindEnabled(ctx)
		require.NoError(t, err)
		require.Len(t, enabled, 2)
		assert.Equal(t, "BTCUSDT", enabled[0].Symbol)
		assert.Equal(t, "SOLUSDT", enabled[1].Symbol)
	})
}

func testAnalysis(symbol string, at time.Time) *domain.Analysis {
	return &domain.Analysis{
		Time:      at,
		Symbol:    symbol,
		Timeframe: "1h",
		Modules: map[domain.ModuleName]*domain.ModuleResult{
			domain.ModuleTrend: {
				Module:   domain.ModuleTrend,
				Symbol:   symbol,
				Signal:   domain.SignalLong,
				Strength: 80,
				Meta:     domain.TrendMeta{FastEMA: 2010, SlowEMA: 1990, GapPct: 1.0, RSI: 62},
			},
			domain.ModuleComposite: {
				Module:   domain.ModuleComposite,
				Symbol:   symbol,
				Signal:   domain.SignalLong,
				Strength: 66,
				Meta:     domain.CompositeMeta{RSI: 58, ChecksPassed: 2, CandlesUsed: 300, RequiredBars: 155},
			},
			domain.ModuleLiquidity: nil, // Unavailable this cycle
		},
		Scores:   domain.Scores{Long: 72.4},
		Coverage: 2.0 / 9.0,
		Bias:     domain.SignalLong,
		Decision: domain.DecisionLong,
	}
}

func TestAnalysisRepo(t *testing.T) {
	repo := setupTestDB(t)
	analyses := repo.Analyses()
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create assigns an id", func(t *testing.T) {
		a := testAnalysis("ETHUSDT", at)
		id, err := analyses.Create(ctx, a)
		require.NoError(t, err)
		assert.Positive(t, id)
		assert.Equal(t, id, a.ID)
	})

	t.Run("duplicate cycle is rejected", func(t *testing.T) {
		_, err := analyses.Create(ctx, testAnalysis("ETHUSDT", at))
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
	})

	t.Run("same cycle time for another symbol is fine", func(t *testing.T) {
		_, err := analyses.Create(ctx, testAnalysis("BTCUSDT", at))
		require.NoError(t, err)
	})

	t.Run("find recent returns newest first with typed meta", func(t *testing.T) {
		_, err := analyses.Create(ctx, testAnalysis("ETHUSDT", at.Add(time.Hour)))
		require.NoError(t, err)
		_, err = analyses.Create(ctx, testAnalysis("ETHUSDT", at.Add(2*time.Hour)))
		require.NoError(t, err)

		recent, err := analyses.FindRecent(ctx, "ETHUSDT", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.True(t, recent[0].Time.After(recent[1].Time))

		got := recent[0]
		assert.Equal(t, domain.SignalLong, got.Bias)
		assert.Equal(t, domain.DecisionLong, got.Decision)
		assert.InDelta(t, 72.4, got.Scores.Long, 1e-9)

		trend := got.Modules[domain.ModuleTrend]
		require.NotNil(t, trend)
		meta, ok := trend.Meta.(domain.TrendMeta)
		require.True(t, ok)
		assert.InDelta(t, 62.0, meta.RSI, 1e-9)

		// The unavailable module survives the roundtrip as an explicit nil.
		res, present := got.Modules[domain.ModuleLiquidity]
		assert.True(t, present)
		assert.Nil(t, res)
	})
}

func testStoredPosition(symbol string, openedAt time.Time) *domain.Position {
	return &domain.Position{
		Symbol:      symbol,
		Side:        domain.SideLong,
		EntryPrice:  2000,
		Size:        2.5,
		InitialSize: 2.5,
		OpenedAt:    openedAt,
		Status:      domain.StatusOpen,

		StopPrice:        1960,
		InitialStopPrice: 1960,
		StopOrderID:      12345,

		TakeProfits: []*domain.TakeProfit{
			{Price: 2020, SizePct: 50},
			{Price: 2040, SizePct: 50},
		},
		InitialTPs: []*domain.TakeProfit{
			{Price: 2020, SizePct: 50},
			{Price: 2040, SizePct: 50},
		},
		Trailing: domain.Trailing{StartAfterPct: 1.2, TrailStepPct: 0.6},
		Meta: domain.PositionMeta{
			Leverage: 4, RiskPct: 1, StrategyName: "test", OpenedBy: "engine",
		},
		AnalysisID: 7,
	}
}

func TestPositionRepo(t *testing.T) {
	repo := setupTestDB(t)
	positions := repo.Positions()
	ctx := context.Background()
	openedAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create and find roundtrip", func(t *testing.T) {
		pos := testStoredPosition("ETHUSDT", openedAt)
		id, err := positions.Create(ctx, pos)
		require.NoError(t, err)
		assert.Positive(t, id)
		assert.Equal(t, int64(1), pos.Version)

		got, err := positions.FindByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, pos.Symbol, got.Symbol)
		assert.Equal(t, domain.SideLong, got.Side)
		assert.Equal(t, domain.StatusOpen, got.Status)
		assert.InDelta(t, 2000.0, got.EntryPrice, 1e-9)
		assert.InDelta(t, 1960.0, got.StopPrice, 1e-9)
		assert.Equal(t, int64(12345), got.StopOrderID)
		assert.Equal(t, int64(7), got.AnalysisID)
		assert.WithinDuration(t, openedAt, got.OpenedAt, time.Second)

		require.Len(t, got.TakeProfits, 2)
		assert.InDelta(t, 2020.0, got.TakeProfits[0].Price, 1e-9)
		assert.Equal(t, 1.2, got.Trailing.StartAfterPct)
		assert.Equal(t, "test", got.Meta.StrategyName)
		assert.Equal(t, 4, got.Meta.Leverage)
	})

	t.Run("find missing id returns nil", func(t *testing.T) {
		got, err := positions.FindByID(ctx, 99999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update persists mutated state and bumps the version", func(t *testing.T) {
		pos := testStoredPosition("ETHUSDT", openedAt.Add(time.Minute))
		_, err := positions.Create(ctx, pos)
		require.NoError(t, err)

		pos.TakeProfits[0].Filled = true
		pos.TakeProfits[0].Cum = 1.25
		pos.TakeProfits[0].Fills = []domain.Fill{{Qty: 1.25, Price: 2020, Time: openedAt.Add(time.Hour)}}
		pos.Size = 1.25
		pos.StopPrice = 2000
		pos.Append(domain.Adjustment{ID: "a1", Type: domain.AdjustTPFill, Time: openedAt.Add(time.Hour), NewValue: 2020})

		require.NoError(t, positions.Update(ctx, pos))
		assert.Equal(t, int64(2), pos.Version)

		got, err := positions.FindByID(ctx, pos.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(2), got.Version)
		assert.InDelta(t, 1.25, got.Size, 1e-9)
		assert.True(t, got.TakeProfits[0].Filled)
		require.Len(t, got.TakeProfits[0].Fills, 1)
		require.Len(t, got.Adjustments, 1)
		assert.Equal(t, domain.AdjustTPFill, got.Adjustments[0].Type)
	})

	t.Run("stale version is a concurrency conflict", func(t *testing.T) {
		pos := testStoredPosition("ETHUSDT", openedAt.Add(2*time.Minute))
		_, err := positions.Create(ctx, pos)
		require.NoError(t, err)

		stale, err := positions.FindByID(ctx, pos.ID)
		require.NoError(t, err)

		pos.StopPrice = 1980
		require.NoError(t, positions.Update(ctx, pos))

		stale.StopPrice = 1990
		err = positions.Update(ctx, stale)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrConcurrencyConflict)
	})

	t.Run("updating a missing position is not found", func(t *testing.T) {
		pos := testStoredPosition("ETHUSDT", openedAt)
		pos.ID = 99999
		pos.Version = 1
		err := positions.Update(ctx, pos)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("open queries and counters", func(t *testing.T) {
		closedAt := openedAt.Add(3 * time.Hour)

		older := testStoredPosition("BTCUSDT", openedAt)
		_, err := positions.Create(ctx, older)
		require.NoError(t, err)

		newer := testStoredPosition("BTCUSDT", openedAt.Add(time.Hour))
		_, err = positions.Create(ctx, newer)
		require.NoError(t, err)

		done := testStoredPosition("BTCUSDT", openedAt.Add(2*time.Hour))
		_, err = positions.Create(ctx, done)
		require.NoError(t, err)
		require.NoError(t, done.Close(2040, domain.ClosedByTakeProfit, closedAt))
		require.NoError(t, positions.Update(ctx, done))

		open, err := positions.FindOpenBySymbol(ctx, "BTCUSDT")
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, older.ID, open[0].ID) // Oldest first
		assert.Equal(t, newer.ID, open[1].ID)

		count, err := positions.CountOpen(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 2)

		last, err := positions.LastEntryTime(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.WithinDuration(t, done.OpenedAt, last, time.Second)

		none, err := positions.LastEntryTime(ctx, "NOPEUSDT")
		require.NoError(t, err)
		assert.True(t, none.IsZero())
	})

	t.Run("closed state roundtrip", func(t *testing.T) {
		pos := testStoredPosition("SOLUSDT", openedAt)
		_, err := positions.Create(ctx, pos)
		require.NoError(t, err)

		require.NoError(t, pos.Close(1960, domain.ClosedByStopLoss, openedAt.Add(time.Hour)))
		require.NoError(t, positions.Update(ctx, pos))

		got, err := positions.FindByID(ctx, pos.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.StatusClosed, got.Status)
		assert.Equal(t, domain.ClosedByStopLoss, got.ClosedBy)
		assert.WithinDuration(t, pos.ClosedAt, got.ClosedAt, time.Second)
		assert.InDelta(t, pos.FinalPnl, got.FinalPnl, 1e-9)
	})
}
