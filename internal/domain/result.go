package domain

// ModuleMeta is the module-specific payload of a ModuleResult. Each analysis
// module has its own meta struct; consumers dispatch on ModuleResult.Module,
// never on field presence.
type ModuleMeta interface {
	moduleMeta()
}

// ModuleResult is the output of one analysis module for one symbol and cycle.
// Strength is always in [0, 100]. Results are immutable once produced.
type ModuleResult struct {
	Module   ModuleName
	Symbol   string
	Signal   Signal
	Strength float64
	Meta     ModuleMeta
}

// TrendMeta carries the EMA gap and RSI behind a trend result.
type TrendMeta struct {
	FastEMA float64
	SlowEMA float64
	GapPct  float64
	RSI     float64
}

// VolatilityMeta carries the ATR percentage and the classified regime.
type VolatilityMeta struct {
	ATRPct float64
	Regime Regime
}

// TrendRegimeMeta carries the directional index readings.
type TrendRegimeMeta struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// LiquidityMeta carries the averaged book statistics.
type LiquidityMeta struct {
	AvgImbalance float64
	SpreadPct    float64
	Snapshots    int
}

// LiquidationsMeta carries the buy/sell liquidation values over the window.
type LiquidationsMeta struct {
	BuyValue  float64
	SellValue float64
	Events    int
}

// OpenInterestMeta carries the OI and price deltas behind a divergence signal.
type OpenInterestMeta struct {
	OIChangePct    float64
	PriceChangePct float64
	Points         int
}

// LongShortMeta carries the averaged account percentages.
type LongShortMeta struct {
	AvgLongPct  float64
	AvgShortPct float64
	Diff        float64
	Points      int
}

// HigherMAMeta carries the higher-timeframe MA cross readings.
type HigherMAMeta struct {
	FastMA    float64
	SlowMA    float64
	DeltaPct  float64
	Timeframe string
}

// CompositeMeta carries the individual checks of the RSI+volume+trend module.
type CompositeMeta struct {
	RSI           float64
	MAShort       float64
	MALong        float64
	VolumeRatio   float64
	ChecksPassed  int
	ExtremeVeto   bool
	CandlesUsed   int
	RequiredBars  int
	LongStrength  float64
	ShortStrength float64
}

func (TrendMeta) moduleMeta()        {}
func (VolatilityMeta) moduleMeta()   {}
func (TrendRegimeMeta) moduleMeta()  {}
func (LiquidityMeta) moduleMeta()    {}
func (LiquidationsMeta) moduleMeta() {}
func (OpenInterestMeta) moduleMeta() {}
func (LongShortMeta) moduleMeta()    {}
func (HigherMAMeta) moduleMeta()     {}
func (CompositeMeta) moduleMeta()    {}
