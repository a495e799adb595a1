package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCoinConfig() *CoinConfig {
	weights := make(map[ModuleName]float64, len(AllModules()))
	thresholds := make(map[ModuleName]float64, len(AllModules()))
	for _, name := range AllModules() {
		weights[name] = 0.1
		thresholds[name] = 20
	}

	return &CoinConfig{
		Symbol:    "ETHUSDT",
		Timeframe: "1h",
		Enabled:   true,
		Analysis: AnalysisConfig{
			Weights:           weights,
			ModuleThresholds:  thresholds,
			MinModules:        4,
			RequiredModules:   []ModuleName{ModuleTrend},
			SideBiasTolerance: 10,
			HigherMA:          HigherMAParams{Timeframe: "1d", FastPeriod: 20, SlowPeriod: 50, Scale: 25, EMASeed: SeedSMA},
		},
		Strategy: StrategyConfig{
			Name: "test",
			Entry: EntryConfig{
				MinScore:               map[Side]float64{SideLong: 65, SideShort: 70},
				CooldownMin:            120,
				MaxSpreadPct:           0.08,
				MaxConcurrentPositions: 3,
			},
			Capital: CapitalConfig{RiskPerTradePct: 1, Leverage: 4, MaxPositionUsd: 5000},
			Exit: ExitConfig{
				TPGridPct:     []float64{1, 2, 3.5},
				TPGridSizePct: []float64{40, 30, 30},
				Stop: StopConfig{
					Type: StopATR, ATRMult: 2.5, ATRPeriod: 14, ATRRecalc: ATRRecalcCycle,
				},
				MaxHoldMin:    1440,
				NoPnLFallback: FallbackBreakeven,
			},
		},
	}
}

func TestCoinConfig_Validate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, validCoinConfig().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(c *CoinConfig)
		wantErr string
	}{
		{
			name:    "missing symbol",
			mutate:  func(c *CoinConfig) { c.Symbol = "" },
			wantErr: "symbol",
		},
		{
			name:    "missing timeframe",
			mutate:  func(c *CoinConfig) { c.Timeframe = "" },
			wantErr: "timeframe",
		},
		{
			name:    "missing module weight",
			mutate:  func(c *CoinConfig) { delete(c.Analysis.Weights, ModuleComposite) },
			wantErr: "weights missing module",
		},
		{
			name:    "unknown module in weights",
			mutate:  func(c *CoinConfig) { c.Analysis.Weights["sentiment"] = 0.5 },
			wantErr: "unknown module",
		},
		{
			name:    "unknown required module",
			mutate:  func(c *CoinConfig) { c.Analysis.RequiredModules = []ModuleName{"sentiment"} },
			wantErr: "requiredModules has unknown module",
		},
		{
			name:    "negative side bias tolerance",
			mutate:  func(c *CoinConfig) { c.Analysis.SideBiasTolerance = -1 },
			wantErr: "sideBiasTolerance",
		},
		{
			name:    "tp grid length mismatch",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.TPGridSizePct = []float64{50, 50} },
			wantErr: "tpGridPct length",
		},
		{
			name:    "tp grid oversubscribed",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.TPGridSizePct = []float64{50, 50, 50} },
			wantErr: "must be <= 100",
		},
		{
			name:    "non-positive tp grid size",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.TPGridSizePct = []float64{40, 0, 30} },
			wantErr: "must be positive",
		},
		{
			name:    "unsupported stop type",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.Stop.Type = "chandelier" },
			wantErr: "stop.type",
		},
		{
			name:    "hard stop without a percentage",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.Stop = StopConfig{Type: StopHard} },
			wantErr: "stop.hardPct",
		},
		{
			name:    "atr stop without a period",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.Stop.ATRPeriod = 0 },
			wantErr: "stop.atrPeriod",
		},
		{
			name:    "atr stop with a bad recalc policy",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.Stop.ATRRecalc = "never" },
			wantErr: "stop.atrRecalc",
		},
		{
			name:    "time exit with a bad fallback",
			mutate:  func(c *CoinConfig) { c.Strategy.Exit.NoPnLFallback = "pray" },
			wantErr: "noPnlFallback",
		},
		{
			name:    "non-positive risk",
			mutate:  func(c *CoinConfig) { c.Strategy.Capital.RiskPerTradePct = 0 },
			wantErr: "riskPerTradePct",
		},
		{
			name:    "non-positive leverage",
			mutate:  func(c *CoinConfig) { c.Strategy.Capital.Leverage = 0 },
			wantErr: "leverage",
		},
		{
			name:    "non-positive position cap count",
			mutate:  func(c *CoinConfig) { c.Strategy.Entry.MaxConcurrentPositions = 0 },
			wantErr: "maxConcurrentPositions",
		},
		{
			name:    "bad ema seed",
			mutate:  func(c *CoinConfig) { c.Analysis.HigherMA.EMASeed = "median" },
			wantErr: "emaSeed",
		},
		{
			name:    "negative price precision",
			mutate:  func(c *CoinConfig) { c.Precision.Price = -1 },
			wantErr: "precision.price",
		},
		{
			name:    "negative quantity precision",
			mutate:  func(c *CoinConfig) { c.Precision.Quantity = -2 },
			wantErr: "precision.quantity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCoinConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllModules(t *testing.T) {
	names := AllModules()
	assert.Len(t, names, 9)
	seen := make(map[ModuleName]bool, len(names))
	for _, n := range names {
		assert.True(t, IsKnownModule(n))
		assert.False(t, seen[n])
		seen[n] = true
	}
	assert.False(t, IsKnownModule("sentiment"))
}
