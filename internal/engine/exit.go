package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/ports"
)

// ExitContext is the market state one exit evaluation consumes.
type ExitContext struct {
	Cfg      *domain.CoinConfig
	Analysis *domain.Analysis   // Current cycle's analysis
	Recent   []*domain.Analysis // Most recent analyses, newest first
	Price    float64            // Current price
	High     float64            // High of the evaluation candle
	Low      float64            // Low of the evaluation candle
	ATR      float64            // Current ATR, 0 when unavailable
	Now      time.Time
}

// ExitOutcome reports what an exit evaluation did to the position.
type ExitOutcome struct {
	Mutated    bool // Any state change that must be persisted
	Closed     bool
	ClosePrice float64
}

// ExitPolicy runs the per-position exit state machine. Rules are evaluated in
// a fixed order and the first rule that closes the position wins; state
// mutations (TP fills, trailing moves) are recorded on the position's
// adjustment log.
type ExitPolicy struct {
	logger ports.Logger
}

// NewExitPolicy creates a new ExitPolicy instance.
func NewExitPolicy(logger ports.Logger) (*ExitPolicy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for exit policy")
	}
	return &ExitPolicy{logger: logger}, nil
}

// Evaluate runs one exit cycle over an open position. The caller must hold
// the position's write serialization (one evaluation in flight per position).
func (x *ExitPolicy) Evaluate(ctx context.Context, pos *domain.Position, ec *ExitContext) (ExitOutcome, error) {
	if !pos.IsOpen() {
		return ExitOutcome{}, fmt.Errorf("position %d is not open", pos.ID)
	}

	out := ExitOutcome{}

	// 1. Take-profit fills. A gap may cross several levels in one candle.
	if closed, err := x.applyTPFills(ctx, pos, ec, &out); err != nil || closed {
		return out, err
	}

	// 2. Stop-loss.
	if x.recalcATRStop(ctx, pos, ec, &out); x.stopHit(pos, ec) {
		return out, x.close(ctx, pos, ec, &out, pos.StopPrice, domain.ClosedByStopLoss, "stop loss hit")
	}

	// 3. Signal-flip exit.
	if x.signalFlipped(pos, ec) {
		pos.Append(domain.Adjustment{
			ID:     uuid.NewString(),
			Type:   domain.AdjustSLUpdate,
			Time:   ec.Now,
			Reason: "FLIP",
		})
		out.Mutated = true
		return out, x.close(ctx, pos, ec, &out, ec.Price, domain.ClosedByStopLoss, "signal flipped")
	}

	// 4. Module-failure exit.
	if name, failed := x.moduleFailed(ec); failed {
		return out, x.close(ctx, pos, ec, &out, ec.Price, domain.ClosedByStopLoss, fmt.Sprintf("required module %q failed", name))
	}

	// 5. Trailing stop activation and ratchet.
	if closed, err := x.applyTrailing(ctx, pos, ec, &out); err != nil || closed {
		return out, err
	}

	// 6. Time-based exit.
	if closed, err := x.applyTimeExit(ctx, pos, ec, &out); err != nil || closed {
		return out, err
	}

	// 7. Opposite-count exit.
	if count := ec.Cfg.Strategy.Exit.OppositeCount; count > 0 && x.oppositeStreak(pos, ec) >= count {
		return out, x.close(ctx, pos, ec, &out, ec.Price, domain.ClosedBySystem, fmt.Sprintf("last %d analyses biased %s", count, pos.Side.Opposite()))
	}

	return out, nil
}

// close transitions the position to CLOSED and records the closing adjustment.
func (x *ExitPolicy) close(ctx context.Context, pos *domain.Position, ec *ExitContext, out *ExitOutcome, price float64, by domain.ClosedBy, reason string) error {
	if err := pos.Close(price, by, ec.Now); err != nil {
		return err
	}
	pos.Append(domain.Adjustment{
		ID:       uuid.NewString(),
		Type:     domain.AdjustClose,
		Time:     ec.Now,
		Reason:   reason,
		NewValue: price,
	})
	out.Mutated = true
	out.Closed = true
	out.ClosePrice = price
	x.logger.Info(ctx, "Position closed", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"closedBy":   by,
		"reason":     reason,
		"price":      price,
		"finalPnl":   pos.FinalPnl,
	})
	return nil
}

// applyTPFills records fills for every unfilled TP level the candle crossed.
// Closes the position once all levels are filled.
func (x *ExitPolicy) applyTPFills(ctx context.Context, pos *domain.Position, ec *ExitContext, out *ExitOutcome) (bool, error) {
	var lastFillPrice float64
	for _, tp := range pos.TakeProfits {
		if tp.Filled || !x.tpCrossed(pos, tp, ec) {
			continue
		}
		qty := tp.Remaining(pos.InitialSize)
		if qty > pos.Size {
			qty = pos.Size // Never over-fill past the remaining position
		}
		if qty <= 0 {
			tp.Filled = true
			continue
		}
		tp.Fills = append(tp.Fills, domain.Fill{Qty: qty, Price: tp.Price, Time: ec.Now})
		tp.Cum += qty
		if tp.Cum >= tp.Allocation(pos.InitialSize) {
			tp.Filled = true
		}
		pos.Size -= qty
		lastFillPrice = tp.Price
		pos.Append(domain.Adjustment{
			ID:       uuid.NewString(),
			Type:     domain.AdjustTPFill,
			Time:     ec.Now,
			Reason:   fmt.Sprintf("tp level %.8g filled %.8g", tp.Price, qty),
			NewValue: tp.Price,
		})
		out.Mutated = true
	}

	if out.Mutated && lastFillPrice > 0 {
		x.logger.Info(ctx, "Take-profit fills recorded", map[string]interface{}{
			"positionID": pos.ID,
			"symbol":     pos.Symbol,
			"remaining":  pos.Size,
		})
	}

	if pos.AllTPsFilled() {
		closeAt := lastFillPrice
		if closeAt == 0 {
			closeAt = ec.Price
		}
		return true, x.close(ctx, pos, ec, out, closeAt, domain.ClosedByTakeProfit, "all take-profit levels filled")
	}
	return false, nil
}

func (x *ExitPolicy) tpCrossed(pos *domain.Position, tp *domain.TakeProfit, ec *ExitContext) bool {
	if pos.Side == domain.SideShort {
		low := ec.Low
		if low == 0 {
			low = ec.Price
		}
		return low <= tp.Price
	}
	high := ec.High
	if high == 0 {
		high = ec.Price
	}
	return high >= tp.Price
}

// recalcATRStop tightens an ATR stop when the policy recomputes each cycle.
// The stop only ever moves in the position's favor.
func (x *ExitPolicy) recalcATRStop(ctx context.Context, pos *domain.Position, ec *ExitContext, out *ExitOutcome) {
	stop := ec.Cfg.Strategy.Exit.Stop
	if stop.Type != domain.StopATR || stop.ATRRecalc != domain.ATRRecalcCycle || ec.ATR <= 0 {
		return
	}

	dist := ec.ATR * stop.ATRMult
	candidate := ec.Price - dist
	favorable := candidate > pos.StopPrice
	if pos.Side == domain.SideShort {
		candidate = ec.Price + dist
		favorable = candidate < pos.StopPrice
	}
	if !favorable {
		return
	}

	old := pos.StopPrice
	pos.StopPrice = candidate
	pos.Append(domain.Adjustment{
		ID:       uuid.NewString(),
		Type:     domain.AdjustSLUpdate,
		Time:     ec.Now,
		Reason:   "ATR_RECALC",
		OldValue: old,
		NewValue: candidate,
	})
	out.Mutated = true
}

func (x *ExitPolicy) stopHit(pos *domain.Position, ec *ExitContext) bool {
	if pos.StopPrice <= 0 {
		return false
	}
	if pos.Side == domain.SideShort {
		high := ec.High
		if high == 0 {
			high = ec.Price
		}
		return high >= pos.StopPrice
	}
	low := ec.Low
	if low == 0 {
		low = ec.Price
	}
	return low <= pos.StopPrice
}

func (x *ExitPolicy) signalFlipped(pos *domain.Position, ec *ExitContext) bool {
	flip := ec.Cfg.Strategy.Exit.FlipIf
	if flip.MinOppScore <= 0 || ec.Analysis == nil {
		return false
	}
	opp := ec.Analysis.SideScore(pos.Side.Opposite())
	held := ec.Analysis.SideScore(pos.Side)
	return opp > flip.MinOppScore && opp-held > flip.ScoreGap
}

func (x *ExitPolicy) moduleFailed(ec *ExitContext) (domain.ModuleName, bool) {
	if ec.Analysis == nil {
		return "", false
	}
	for _, name := range ec.Cfg.Strategy.Exit.ModuleFail.Required {
		res := ec.Analysis.Modules[name]
		if res == nil {
			return name, true
		}
		if res.Strength < ec.Cfg.Analysis.ModuleThresholds[name] {
			return name, true
		}
	}
	return "", false
}

// applyTrailing activates the trail once unrealized PnL reaches startAfterPct,
// ratchets the stop behind the best-seen price, and closes when the price
// retreats through the trailed stop. The ratchet is monotonic: the stop never
// moves against the position.
func (x *ExitPolicy) applyTrailing(ctx context.Context, pos *domain.Position, ec *ExitContext, out *ExitOutcome) (bool, error) {
	tr := &pos.Trailing
	if tr.StartAfterPct <= 0 || tr.TrailStepPct <= 0 {
		return false, nil
	}

	if !tr.Active {
		if pos.PnlPctAt(ec.Price) < tr.StartAfterPct {
			return false, nil
		}
		tr.Active = true
		tr.Anchor = ec.Price
		pos.Append(domain.Adjustment{
			ID:       uuid.NewString(),
			Type:     domain.AdjustTrailingStart,
			Time:     ec.Now,
			Reason:   fmt.Sprintf("pnl reached %.2f%%", tr.StartAfterPct),
			NewValue: ec.Price,
		})
		out.Mutated = true
	}

	// Ratchet the anchor to the best-seen price.
	if (pos.Side == domain.SideLong && ec.Price > tr.Anchor) ||
		(pos.Side == domain.SideShort && ec.Price < tr.Anchor) {
		tr.Anchor = ec.Price
		out.Mutated = true
	}

	trailStop := tr.Anchor * (1 - tr.TrailStepPct/100)
	if pos.Side == domain.SideShort {
		trailStop = tr.Anchor * (1 + tr.TrailStepPct/100)
	}

	// Sync the position stop onto the trail, favorable direction only.
	if (pos.Side == domain.SideLong && trailStop > pos.StopPrice) ||
		(pos.Side == domain.SideShort && trailStop < pos.StopPrice) {
		old := pos.StopPrice
		pos.StopPrice = trailStop
		pos.Append(domain.Adjustment{
			ID:       uuid.NewString(),
			Type:     domain.AdjustTrailingMove,
			Time:     ec.Now,
			OldValue: old,
			NewValue: trailStop,
		})
		out.Mutated = true
	}

	hit := ec.Price <= trailStop
	if pos.Side == domain.SideShort {
		hit = ec.Price >= trailStop
	}
	if !hit {
		return false, nil
	}

	// A close via trailing protects profit when there is any, otherwise it
	// is a stop.
	by := domain.ClosedByStopLoss
	if pos.PnlPctAt(trailStop) > 0 {
		by = domain.ClosedByTakeProfit
	}
	return true, x.close(ctx, pos, ec, out, trailStop, by, "trailing stop hit")
}

// applyTimeExit enforces maxHoldMin with the configured no-PnL fallback.
func (x *ExitPolicy) applyTimeExit(ctx context.Context, pos *domain.Position, ec *ExitContext, out *ExitOutcome) (bool, error) {
	exit := ec.Cfg.Strategy.Exit
	if exit.MaxHoldMin <= 0 {
		return false, nil
	}
	if ec.Now.Sub(pos.OpenedAt) < time.Duration(exit.MaxHoldMin)*time.Minute {
		return false, nil
	}

	switch exit.NoPnLFallback {
	case domain.FallbackBreakeven:
		// Close at entry so the realized PnL is (near) zero.
		return true, x.close(ctx, pos, ec, out, pos.EntryPrice, domain.ClosedBySystem, "max hold time reached, breakeven exit")
	case domain.FallbackCloseSmallLoss:
		return true, x.close(ctx, pos, ec, out, ec.Price, domain.ClosedBySystem, "max hold time reached, force close")
	default:
		return false, nil
	}
}

// oppositeStreak counts consecutive recent analyses (newest first) whose bias
// opposes the held side.
func (x *ExitPolicy) oppositeStreak(pos *domain.Position, ec *ExitContext) int {
	opposite := domain.SignalShort
	if pos.Side == domain.SideShort {
		opposite = domain.SignalLong
	}
	streak := 0
	for _, a := range ec.Recent {
		if a.Bias != opposite {
			break
		}
		streak++
	}
	return streak
}
