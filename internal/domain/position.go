package domain

import (
	"fmt"
	"time"
)

// AdjustmentType classifies an audit-log entry on a position.
type AdjustmentType string

const (
	AdjustSLUpdate      AdjustmentType = "SL_UPDATE"
	AdjustTPFill        AdjustmentType = "TP_FILL"
	AdjustTrailingStart AdjustmentType = "TRAILING_START"
	AdjustTrailingMove  AdjustmentType = "TRAILING_MOVE"
	AdjustAdd           AdjustmentType = "ADD"
	AdjustClose         AdjustmentType = "CLOSE"
)

// Adjustment is one audit record of a position mutation.
type Adjustment struct {
	ID       string
	Type     AdjustmentType
	Time     time.Time
	Reason   string
	OldValue float64
	NewValue float64
}

// Fill records one partial execution against a take-profit level.
type Fill struct {
	Qty   float64
	Price float64
	Time  time.Time
}

// TakeProfit is one level of the take-profit grid. SizePct is a percentage of
// the *initial* position size; Filled becomes true once Cum reaches the
// allocated quantity.
type TakeProfit struct {
	Price   float64
	SizePct float64
	Filled  bool
	Fills   []Fill
	Cum     float64
	OrderID string
}

// Allocation returns the quantity allocated to this level for a given initial
// position size.
func (tp *TakeProfit) Allocation(initialSize float64) float64 {
	return initialSize * tp.SizePct / 100
}

// Remaining returns the unfilled quantity of this level.
func (tp *TakeProfit) Remaining(initialSize float64) float64 {
	rem := tp.Allocation(initialSize) - tp.Cum
	if rem < 0 {
		return 0
	}
	return rem
}

// Trailing holds the trailing-stop state of a position.
type Trailing struct {
	Active        bool
	StartAfterPct float64
	TrailStepPct  float64
	Anchor        float64 // Best price seen since activation
}

// Add records one DCA addition to an open position.
type Add struct {
	Price float64
	Qty   float64
	Time  time.Time
}

// PositionMeta carries descriptive fields stamped at entry.
type PositionMeta struct {
	Leverage       int
	RiskPct        float64
	StrategyName   string
	OpenedBy       string
	PricePrecision int // Decimals for prices on this symbol, 0 = engine default
	QtyPrecision   int // Decimals for quantities on this symbol, 0 = engine default
}

// Position represents one trading position and its full lifecycle state.
// OPEN -> CLOSED and OPEN -> CANCELLED are the only transitions, both terminal.
type Position struct {
	ID      int64
	Version int64 // Optimistic-lock version, bumped on every persisted update

	Symbol      string
	Side        Side
	EntryPrice  float64
	Size        float64 // Current remaining size
	InitialSize float64
	OpenedAt    time.Time
	Status      PositionStatus

	StopPrice        float64
	InitialStopPrice float64
	StopOrderID      int64 // Exchange order ID of the protective stop, 0 when none

	TakeProfits []*TakeProfit
	InitialTPs  []*TakeProfit

	Trailing    Trailing
	Adjustments []Adjustment
	Adds        []Add
	Meta        PositionMeta

	AnalysisID int64 // Analysis that triggered the entry

	ClosedAt time.Time
	ClosedBy ClosedBy
	FinalPnl float64
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// PnlAt returns the unrealized PnL in quote currency at the given price,
// over the current remaining size.
func (p *Position) PnlAt(price float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - price) * p.Size
	}
	return (price - p.EntryPrice) * p.Size
}

// PnlPctAt returns the unrealized PnL as a percentage of the entry price,
// positive when the position is in profit.
func (p *Position) PnlPctAt(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == SideShort {
		pct = -pct
	}
	return pct
}

// AllTPsFilled reports whether every take-profit level is filled.
func (p *Position) AllTPsFilled() bool {
	if len(p.TakeProfits) == 0 {
		return false
	}
	for _, tp := range p.TakeProfits {
		if !tp.Filled {
			return false
		}
	}
	return true
}

// FilledQty returns the total quantity executed across all TP levels.
func (p *Position) FilledQty() float64 {
	var total float64
	for _, tp := range p.TakeProfits {
		total += tp.Cum
	}
	return total
}

// Append records an adjustment on the position's audit log.
func (p *Position) Append(adj Adjustment) {
	p.Adjustments = append(p.Adjustments, adj)
}

// BlendAdd merges a DCA add into the position: records the add, grows the
// size, and moves EntryPrice to the size-weighted average.
func (p *Position) BlendAdd(add Add) {
	total := p.Size + add.Qty
	if total > 0 {
		p.EntryPrice = (p.EntryPrice*p.Size + add.Price*add.Qty) / total
	}
	p.Size = total
	p.InitialSize += add.Qty
	p.Adds = append(p.Adds, add)
}

// Close transitions the position to CLOSED exactly once, stamping the closing
// price into FinalPnl. Closing an already-terminal position is an error so a
// second writer can detect the conflict instead of overwriting the outcome.
func (p *Position) Close(price float64, by ClosedBy, at time.Time) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("position %d is %s, cannot close", p.ID, p.Status)
	}
	p.FinalPnl = p.realizedPnl(price)
	p.Status = StatusClosed
	p.ClosedBy = by
	p.ClosedAt = at
	return nil
}

// Cancel aborts a position that never filled. Terminal, pre-fill only.
func (p *Position) Cancel(at time.Time) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("position %d is %s, cannot cancel", p.ID, p.Status)
	}
	p.Status = StatusCancelled
	p.ClosedAt = at
	return nil
}

// realizedPnl sums the PnL of all recorded TP fills plus the remainder closed
// at the given price.
func (p *Position) realizedPnl(closePrice float64) float64 {
	var pnl float64
	for _, tp := range p.TakeProfits {
		for _, f := range tp.Fills {
			if p.Side == SideShort {
				pnl += (p.EntryPrice - f.Price) * f.Qty
			} else {
				pnl += (f.Price - p.EntryPrice) * f.Qty
			}
		}
	}
	return pnl + p.PnlAt(closePrice)
}
