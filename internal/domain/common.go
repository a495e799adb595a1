package domain

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Signal is the directional vote of an analysis module.
type Signal string

const (
	SignalLong    Signal = "LONG"
	SignalShort   Signal = "SHORT"
	SignalNeutral Signal = "NEUTRAL"
)

// Side is the direction of a held position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OrderSide returns the exchange order side that opens a position on this side.
func (s Side) OrderSide() OrderSide {
	if s == SideShort {
		return Sell
	}
	return Buy
}

// CloseOrderSide returns the exchange order side that closes a position on this side.
func (s Side) CloseOrderSide() OrderSide {
	if s == SideShort {
		return Buy
	}
	return Sell
}

// Opposite returns the other trading side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Decision is the final actionable outcome of an evaluation cycle:
// the bias after minimum-score gating.
type Decision string

const (
	DecisionLong    Decision = "LONG"
	DecisionShort   Decision = "SHORT"
	DecisionNoTrade Decision = "NO_TRADE"
)

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	StatusOpen      PositionStatus = "OPEN"
	StatusClosed    PositionStatus = "CLOSED"
	StatusCancelled PositionStatus = "CANCELLED"
)

// ClosedBy records which rule closed a position.
type ClosedBy string

const (
	ClosedByTakeProfit ClosedBy = "TP"
	ClosedByStopLoss   ClosedBy = "SL"
	ClosedByManual     ClosedBy = "Manually"
	ClosedBySystem     ClosedBy = "SYSTEM"
	ClosedByUnknown    ClosedBy = "UNKNOWN"
)

// Regime classifies market volatility for filtering and module scoring.
type Regime string

const (
	RegimeDead    Regime = "DEAD"
	RegimeNormal  Regime = "NORMAL"
	RegimeExtreme Regime = "EXTREME"
)

// ModuleName identifies an analysis module. The set is fixed: config weights
// and thresholds are keyed by exactly these names.
type ModuleName string

const (
	ModuleTrend        ModuleName = "trend"
	ModuleVolatility   ModuleName = "volatility"
	ModuleTrendRegime  ModuleName = "trendRegime"
	ModuleLiquidity    ModuleName = "liquidity"
	ModuleLiquidations ModuleName = "liquidations"
	ModuleOpenInterest ModuleName = "openInterest"
	ModuleLongShort    ModuleName = "longShort"
	ModuleHigherMA     ModuleName = "higherMA"
	ModuleComposite    ModuleName = "rsiVolumeTrend"
)

// AllModules returns the fixed module-name set in a stable order.
func AllModules() []ModuleName {
	return []ModuleName{
		ModuleTrend,
		ModuleVolatility,
		ModuleTrendRegime,
		ModuleLiquidity,
		ModuleLiquidations,
		ModuleOpenInterest,
		ModuleLongShort,
		ModuleHigherMA,
		ModuleComposite,
	}
}

// IsKnownModule reports whether name belongs to the fixed module set.
func IsKnownModule(name ModuleName) bool {
	for _, m := range AllModules() {
		if m == name {
			return true
		}
	}
	return false
}
