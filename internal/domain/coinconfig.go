package domain

import (
	"fmt"
	"strings"
)

// EMASeedMode selects how an EMA warm-up is seeded. The two modes produce
// different warm-up values and must not be conflated.
type EMASeedMode string

const (
	SeedSMA   EMASeedMode = "sma"   // Seed with the SMA of the first period values
	SeedFirst EMASeedMode = "first" // Seed with the first value of the series
)

// StopType selects the stop-loss pricing policy.
type StopType string

const (
	StopHard StopType = "hard" // Fixed percentage from entry
	StopATR  StopType = "atr"  // ATR multiple from entry
)

// ATRRecalcPolicy selects when an ATR stop is recomputed.
type ATRRecalcPolicy string

const (
	ATRRecalcEntry ATRRecalcPolicy = "entry" // Fixed at entry
	ATRRecalcCycle ATRRecalcPolicy = "cycle" // Recomputed each cycle, tighten-only
)

// NoPnLFallback selects what the time exit does with a position that has gone
// nowhere.
type NoPnLFallback string

const (
	FallbackNone           NoPnLFallback = "none"
	FallbackBreakeven      NoPnLFallback = "breakeven"
	FallbackCloseSmallLoss NoPnLFallback = "closeSmallLoss"
)

// TrendParams configures the trend module.
type TrendParams struct {
	FastEMA   int     `yaml:"fastEMA"`
	SlowEMA   int     `yaml:"slowEMA"`
	RSIPeriod int     `yaml:"rsiPeriod"`
	GapScale  float64 `yaml:"gapScale"` // Strength per 1% EMA gap
}

// VolatilityParams configures the volatility-regime module.
type VolatilityParams struct {
	ATRPeriod    int     `yaml:"atrPeriod"`
	DeadBelow    float64 `yaml:"deadBelow"`    // ATR% below which the market is DEAD
	ExtremeAbove float64 `yaml:"extremeAbove"` // ATR% above which the market is EXTREME
}

// TrendRegimeParams configures the ADX/DI module.
type TrendRegimeParams struct {
	ADXPeriod      int     `yaml:"adxPeriod"`
	ADXSignalMin   float64 `yaml:"adxSignalMin"`   // Minimum +DI/-DI separation to signal
	ADXMaxForScale float64 `yaml:"adxMaxForScale"` // ADX value mapping to strength 100
}

// LiquidityParams configures the order-book module.
type LiquidityParams struct {
	Window int `yaml:"window"` // Snapshots averaged per cycle
}

// LiquidationsParams configures the liquidation-flow module.
type LiquidationsParams struct {
	WindowMin int `yaml:"windowMin"` // Lookback window in minutes
}

// OpenInterestParams configures the OI-divergence module.
type OpenInterestParams struct {
	Window int `yaml:"window"` // Number of OI points compared
}

// LongShortParams configures the long/short-ratio module.
type LongShortParams struct {
	Window int `yaml:"window"` // Number of 5-minute points averaged
}

// HigherMAParams configures the higher-timeframe MA filter.
type HigherMAParams struct {
	Timeframe  string      `yaml:"timeframe"` // e.g. "1d"
	FastPeriod int         `yaml:"fastPeriod"`
	SlowPeriod int         `yaml:"slowPeriod"`
	Scale      float64     `yaml:"scale"`   // Strength per 1% MA delta
	EMASeed    EMASeedMode `yaml:"emaSeed"` // sma | first
}

// CompositeParams configures the RSI+volume+trend module.
type CompositeParams struct {
	RSIPeriod   int `yaml:"rsiPeriod"`   // Wilder RSI period, typically 50
	RSIWarmup   int `yaml:"rsiWarmup"`   // Extra warm-up bars, typically 100
	MAShort     int `yaml:"maShort"`     // typically 7
	MALong      int `yaml:"maLong"`      // typically 25
	VolLookback int `yaml:"volLookback"` // typically 10
}

// AnalysisConfig is the per-symbol scoring configuration.
type AnalysisConfig struct {
	Weights           map[ModuleName]float64 `yaml:"weights"`
	ModuleThresholds  map[ModuleName]float64 `yaml:"moduleThresholds"`
	MinModules        int                    `yaml:"minModules"`
	RequiredModules   []ModuleName           `yaml:"requiredModules"`
	SideBiasTolerance float64                `yaml:"sideBiasTolerance"`

	Trend        TrendParams        `yaml:"trend"`
	Volatility   VolatilityParams   `yaml:"volatility"`
	TrendRegime  TrendRegimeParams  `yaml:"trendRegime"`
	Liquidity    LiquidityParams    `yaml:"liquidity"`
	Liquidations LiquidationsParams `yaml:"liquidations"`
	OpenInterest OpenInterestParams `yaml:"openInterest"`
	LongShort    LongShortParams    `yaml:"longShort"`
	HigherMA     HigherMAParams     `yaml:"higherMA"`
	Composite    CompositeParams    `yaml:"composite"`
}

// AvoidWhen lists market conditions under which entries are suppressed.
type AvoidWhen struct {
	Volatility []Regime `yaml:"volatility"` // e.g. [DEAD]
}

// EntryConfig gates and parameterizes new entries.
type EntryConfig struct {
	MinScore               map[Side]float64 `yaml:"minScore"`
	CooldownMin            int              `yaml:"cooldownMin"`
	MaxSpreadPct           float64          `yaml:"maxSpreadPct"`
	MaxConcurrentPositions int              `yaml:"maxConcurrentPositions"`
	AvoidWhen              AvoidWhen        `yaml:"avoidWhen"`
}

// CapitalConfig controls sizing.
type CapitalConfig struct {
	RiskPerTradePct float64 `yaml:"riskPerTradePct"`
	Leverage        int     `yaml:"leverage"`
	MaxPositionUsd  float64 `yaml:"maxPositionUsd"` // 0 = uncapped
}

// DCAConfig controls averaging into an adverse move.
type DCAConfig struct {
	MaxAdds             int     `yaml:"maxAdds"`
	AddOnAdverseMovePct float64 `yaml:"addOnAdverseMovePct"`
	AddMultiplier       float64 `yaml:"addMultiplier"`
}

// StopConfig is the stop-loss policy.
type StopConfig struct {
	Type      StopType        `yaml:"type"`
	HardPct   float64         `yaml:"hardPct"`
	ATRMult   float64         `yaml:"atrMult"`
	ATRPeriod int             `yaml:"atrPeriod"`
	ATRRecalc ATRRecalcPolicy `yaml:"atrRecalc"`
}

// TrailingConfig is the trailing-stop policy.
type TrailingConfig struct {
	StartAfterPct float64 `yaml:"startAfterPct"` // PnL% activating the trail, 0 = disabled
	TrailStepPct  float64 `yaml:"trailStepPct"`  // Distance kept behind the best price
}

// FlipIfConfig is the signal-flip exit policy.
type FlipIfConfig struct {
	MinOppScore float64 `yaml:"minOppScore"`
	ScoreGap    float64 `yaml:"scoreGap"`
}

// ModuleFailConfig closes a position when a required module degrades.
type ModuleFailConfig struct {
	Required []ModuleName `yaml:"required"`
}

// ExitConfig is the full exit policy of a strategy.
type ExitConfig struct {
	TPGridPct     []float64        `yaml:"tpGridPct"`
	TPGridSizePct []float64        `yaml:"tpGridSizePct"`
	Stop          StopConfig       `yaml:"stop"`
	MaxHoldMin    int              `yaml:"maxHoldMin"` // 0 = no time exit
	NoPnLFallback NoPnLFallback    `yaml:"noPnlFallback"`
	Trailing      TrailingConfig   `yaml:"trailing"`
	FlipIf        FlipIfConfig     `yaml:"flipIf"`
	ModuleFail    ModuleFailConfig `yaml:"moduleFail"`
	OppositeCount int              `yaml:"oppositeCountExit"` // 0 = disabled
}

// StrategyConfig is the per-symbol trading strategy.
type StrategyConfig struct {
	Name    string        `yaml:"name"`
	Entry   EntryConfig   `yaml:"entry"`
	Capital CapitalConfig `yaml:"capital"`
	DCA     DCAConfig     `yaml:"dca"`
	Exit    ExitConfig    `yaml:"exit"`
}

// PrecisionConfig fixes the decimal precision of outgoing order fields,
// matching the symbol's exchange filters (tickSize/stepSize). Zero falls back
// to the engine defaults.
type PrecisionConfig struct {
	Price    int `yaml:"price"`    // Decimals for prices, e.g. 2 for ETHUSDT, 5 for DOGEUSDT
	Quantity int `yaml:"quantity"` // Decimals for quantities
}

// CoinConfig is the complete per-symbol configuration. It is created and
// updated externally; the engine only reads it, once per evaluation cycle.
type CoinConfig struct {
	Symbol    string          `yaml:"symbol"`
	Timeframe string          `yaml:"timeframe"`
	Enabled   bool            `yaml:"enabled"`
	Precision PrecisionConfig `yaml:"precision"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Strategy  StrategyConfig  `yaml:"strategy"`
}

// Validate checks the structural invariants of the config. A failure rejects
// the symbol's whole evaluation cycle; values are never silently defaulted.
func (c *CoinConfig) Validate() error {
	var errs []string

	if c.Symbol == "" {
		errs = append(errs, "symbol must be set")
	}
	if c.Timeframe == "" {
		errs = append(errs, "timeframe must be set")
	}

	// Weights and thresholds must be keyed by exactly the fixed module set.
	for _, name := range AllModules() {
		if _, ok := c.Analysis.Weights[name]; !ok {
			errs = append(errs, fmt.Sprintf("weights missing module %q", name))
		}
		if _, ok := c.Analysis.ModuleThresholds[name]; !ok {
			errs = append(errs, fmt.Sprintf("moduleThresholds missing module %q", name))
		}
	}
	for name := range c.Analysis.Weights {
		if !IsKnownModule(name) {
			errs = append(errs, fmt.Sprintf("weights has unknown module %q", name))
		}
	}
	for name := range c.Analysis.ModuleThresholds {
		if !IsKnownModule(name) {
			errs = append(errs, fmt.Sprintf("moduleThresholds has unknown module %q", name))
		}
	}
	for _, name := range c.Analysis.RequiredModules {
		if !IsKnownModule(name) {
			errs = append(errs, fmt.Sprintf("requiredModules has unknown module %q", name))
		}
	}
	if c.Analysis.MinModules < 0 {
		errs = append(errs, "minModules cannot be negative")
	}
	if c.Analysis.SideBiasTolerance < 0 {
		errs = append(errs, "sideBiasTolerance cannot be negative")
	}

	exit := c.Strategy.Exit
	if len(exit.TPGridPct) != len(exit.TPGridSizePct) {
		errs = append(errs, fmt.Sprintf("tpGridPct length (%d) must equal tpGridSizePct length (%d)",
			len(exit.TPGridPct), len(exit.TPGridSizePct)))
	}
	var sizeSum float64
	for _, s := range exit.TPGridSizePct {
		if s <= 0 {
			errs = append(errs, "tpGridSizePct entries must be positive")
			break
		}
		sizeSum += s
	}
	if sizeSum > 100 {
		errs = append(errs, fmt.Sprintf("tpGridSizePct sums to %.2f, must be <= 100", sizeSum))
	}

	switch exit.Stop.Type {
	case StopHard:
		if exit.Stop.HardPct <= 0 {
			errs = append(errs, "stop.hardPct must be positive for hard stops")
		}
	case StopATR:
		if exit.Stop.ATRMult <= 0 {
			errs = append(errs, "stop.atrMult must be positive for ATR stops")
		}
		if exit.Stop.ATRPeriod <= 0 {
			errs = append(errs, "stop.atrPeriod must be positive for ATR stops")
		}
		if exit.Stop.ATRRecalc != ATRRecalcEntry && exit.Stop.ATRRecalc != ATRRecalcCycle {
			errs = append(errs, fmt.Sprintf("stop.atrRecalc must be %q or %q", ATRRecalcEntry, ATRRecalcCycle))
		}
	default:
		errs = append(errs, fmt.Sprintf("stop.type must be %q or %q", StopHard, StopATR))
	}

	if exit.MaxHoldMin > 0 {
		switch exit.NoPnLFallback {
		case FallbackNone, FallbackBreakeven, FallbackCloseSmallLoss:
		default:
			errs = append(errs, fmt.Sprintf("noPnlFallback must be one of %q, %q, %q",
				FallbackNone, FallbackBreakeven, FallbackCloseSmallLoss))
		}
	}

	if c.Strategy.Capital.RiskPerTradePct <= 0 {
		errs = append(errs, "riskPerTradePct must be positive")
	}
	if c.Strategy.Capital.Leverage <= 0 {
		errs = append(errs, "leverage must be positive")
	}
	if c.Strategy.Entry.MaxConcurrentPositions <= 0 {
		errs = append(errs, "maxConcurrentPositions must be positive")
	}

	if c.Precision.Price < 0 {
		errs = append(errs, "precision.price cannot be negative")
	}
	if c.Precision.Quantity < 0 {
		errs = append(errs, "precision.quantity cannot be negative")
	}

	if hm := c.Analysis.HigherMA; hm.EMASeed != SeedSMA && hm.EMASeed != SeedFirst {
		errs = append(errs, fmt.Sprintf("higherMA.emaSeed must be %q or %q", SeedSMA, SeedFirst))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid coin config for %q: %s", c.Symbol, strings.Join(errs, "; "))
	}
	return nil
}
