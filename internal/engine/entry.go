package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/ports"
)

// EntryPolicy decides whether and how to open or extend a position once the
// aggregator has produced an actionable decision. It is stateless; the engine
// supplies the per-symbol state (cooldowns, open counts) it gates on.
type EntryPolicy struct {
	logger ports.Logger
}

// NewEntryPolicy creates a new EntryPolicy instance.
func NewEntryPolicy(logger ports.Logger) (*EntryPolicy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for entry policy")
	}
	return &EntryPolicy{logger: logger}, nil
}

// EntryState is the market and engine state the entry gates consume.
type EntryState struct {
	Now           time.Time
	CooldownUntil time.Time
	SpreadPct     float64
	SpreadKnown   bool
	OpenPositions int // Open positions across all symbols
}

// ShouldEnter applies the entry gates to the cycle's decision. Returns the
// side to enter and true when all gates pass; otherwise false with the
// blocking reason.
func (p *EntryPolicy) ShouldEnter(ctx context.Context, cfg *domain.CoinConfig, a *domain.Analysis, state EntryState) (domain.Side, bool, string) {
	var side domain.Side
	switch a.Decision {
	case domain.DecisionLong:
		side = domain.SideLong
	case domain.DecisionShort:
		side = domain.SideShort
	default:
		return "", false, "decision is not actionable"
	}

	if state.Now.Before(state.CooldownUntil) {
		return "", false, fmt.Sprintf("cooldown active until %s", state.CooldownUntil.Format(time.RFC3339))
	}

	if cfg.Strategy.Entry.MaxSpreadPct > 0 {
		if !state.SpreadKnown {
			return "", false, "spread unknown, cannot verify maxSpreadPct"
		}
		if state.SpreadPct > cfg.Strategy.Entry.MaxSpreadPct {
			return "", false, fmt.Sprintf("spread %.4f%% exceeds maxSpreadPct %.4f%%", state.SpreadPct, cfg.Strategy.Entry.MaxSpreadPct)
		}
	}

	if state.OpenPositions >= cfg.Strategy.Entry.MaxConcurrentPositions {
		return "", false, fmt.Sprintf("open positions %d at maxConcurrentPositions %d", state.OpenPositions, cfg.Strategy.Entry.MaxConcurrentPositions)
	}

	return side, true, ""
}

// Size computes the position quantity from risk-percent sizing: the account
// risk allocation divided by the stop distance, capped by leverage-adjusted
// notional and the optional maxPositionUsd cap.
func (p *EntryPolicy) Size(cfg *domain.CoinConfig, balance, entryPrice, stopPrice float64) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("account balance must be positive, got %f", balance)
	}
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %f", entryPrice)
	}
	dist := math.Abs(entryPrice - stopPrice)
	if dist <= 0 {
		return 0, fmt.Errorf("stop distance is zero (entry %f, stop %f)", entryPrice, stopPrice)
	}

	capital := cfg.Strategy.Capital
	riskAmount := balance * capital.RiskPerTradePct / 100
	qty := riskAmount / dist

	// Notional cannot exceed what the leveraged balance supports.
	maxNotional := balance * float64(capital.Leverage)
	if capital.MaxPositionUsd > 0 && capital.MaxPositionUsd < maxNotional {
		maxNotional = capital.MaxPositionUsd
	}
	if qty*entryPrice > maxNotional {
		qty = maxNotional / entryPrice
	}
	if qty <= 0 {
		return 0, fmt.Errorf("computed quantity is zero for balance %f", balance)
	}
	return qty, nil
}

// StopPrice computes the initial stop for a new position: a fixed percentage
// from entry for hard stops, an ATR multiple for ATR stops.
func StopPrice(cfg *domain.CoinConfig, side domain.Side, entryPrice, atr float64) (float64, error) {
	stop := cfg.Strategy.Exit.Stop
	var dist float64
	switch stop.Type {
	case domain.StopHard:
		dist = entryPrice * stop.HardPct / 100
	case domain.StopATR:
		if atr <= 0 {
			return 0, fmt.Errorf("ATR unavailable for ATR stop")
		}
		dist = atr * stop.ATRMult
	default:
		return 0, fmt.Errorf("unsupported stop type %q", stop.Type)
	}
	if side == domain.SideShort {
		return entryPrice + dist, nil
	}
	return entryPrice - dist, nil
}

// BuildPosition assembles a new Position from the entry decision: stop from
// the SL policy, take-profit grid from tpGridPct/tpGridSizePct, trailing
// initialized inactive.
func (p *EntryPolicy) BuildPosition(cfg *domain.CoinConfig, side domain.Side, entryPrice, qty, atr float64, analysisID int64, now time.Time) (*domain.Position, error) {
	stopPrice, err := StopPrice(cfg, side, entryPrice, atr)
	if err != nil {
		return nil, err
	}

	exit := cfg.Strategy.Exit
	tps := make([]*domain.TakeProfit, 0, len(exit.TPGridPct))
	for i, pct := range exit.TPGridPct {
		price := entryPrice * (1 + pct/100)
		if side == domain.SideShort {
			price = entryPrice * (1 - pct/100)
		}
		tps = append(tps, &domain.TakeProfit{
			Price:   price,
			SizePct: exit.TPGridSizePct[i],
		})
	}
	initial := make([]*domain.TakeProfit, len(tps))
	for i, tp := range tps {
		cp := *tp
		initial[i] = &cp
	}

	return &domain.Position{
		Symbol:           cfg.Symbol,
		Side:             side,
		EntryPrice:       entryPrice,
		Size:             qty,
		InitialSize:      qty,
		OpenedAt:         now,
		Status:           domain.StatusOpen,
		StopPrice:        stopPrice,
		InitialStopPrice: stopPrice,
		TakeProfits:      tps,
		InitialTPs:       initial,
		Trailing: domain.Trailing{
			StartAfterPct: exit.Trailing.StartAfterPct,
			TrailStepPct:  exit.Trailing.TrailStepPct,
		},
		Meta: domain.PositionMeta{
			Leverage:       cfg.Strategy.Capital.Leverage,
			RiskPct:        cfg.Strategy.Capital.RiskPerTradePct,
			StrategyName:   cfg.Strategy.Name,
			OpenedBy:       "engine",
			PricePrecision: cfg.Precision.Price,
			QtyPrecision:   cfg.Precision.Quantity,
		},
		AnalysisID: analysisID,
	}, nil
}

// ShouldAdd reports whether an open position qualifies for one more DCA add:
// room under maxAdds and an adverse move beyond addOnAdverseMovePct past the
// last add (or the entry when no add exists yet).
func (p *EntryPolicy) ShouldAdd(cfg *domain.CoinConfig, pos *domain.Position, price float64) bool {
	dca := cfg.Strategy.DCA
	if dca.MaxAdds <= 0 || len(pos.Adds) >= dca.MaxAdds {
		return false
	}

	ref := pos.EntryPrice
	if n := len(pos.Adds); n > 0 {
		ref = pos.Adds[n-1].Price
	}
	if ref <= 0 {
		return false
	}

	movePct := (ref - price) / ref * 100
	if pos.Side == domain.SideShort {
		movePct = (price - ref) / ref * 100
	}
	return movePct >= dca.AddOnAdverseMovePct
}

// AddQty returns the quantity of the next DCA add: a multiple of the current
// notional converted back to base quantity at the add price.
func (p *EntryPolicy) AddQty(cfg *domain.CoinConfig, pos *domain.Position, price float64) float64 {
	if price <= 0 {
		return 0
	}
	notional := pos.Size * pos.EntryPrice * cfg.Strategy.DCA.AddMultiplier
	return notional / price
}

// NewClientOrderID returns a fresh idempotency key for an exchange order.
func NewClientOrderID() string {
	return uuid.NewString()
}
