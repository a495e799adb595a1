package ports

import (
	"context"
	"time"

	"cryptoBiasBot/internal/domain"
)

// PositionClosedEvent is the payload emitted when a position reaches a
// terminal state.
type PositionClosedEvent struct {
	Symbol      string
	Side        domain.Side
	EntryPrice  float64
	Size        float64
	Leverage    int
	StopPrice   float64
	TakeProfits []*domain.TakeProfit
	ClosedBy    domain.ClosedBy
	OpenedAt    time.Time
	ClosedAt    time.Time
	FinalPnl    float64
}

// Notifier delivers user-facing events. Implementations must be safe for
// concurrent use; delivery failures are logged by the caller, never fatal.
type Notifier interface {
	// PositionClosed announces a terminal position transition.
	PositionClosed(ctx context.Context, event PositionClosedEvent) error
	// Alert raises an operator-attention message, e.g. a failed close that
	// leaves financial exposure open.
	Alert(ctx context.Context, symbol, message string) error
}
