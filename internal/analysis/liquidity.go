package analysis

import (
	"context"
	"math"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/indicators"
)

// Liquidity scores the averaged order-book imbalance over the provider's
// window. Degrades to unavailable when no book window exists or the spread
// cannot be computed.
type Liquidity struct {
	Params domain.LiquidityParams
}

func (m *Liquidity) Name() domain.ModuleName { return domain.ModuleLiquidity }

func (m *Liquidity) Evaluate(ctx context.Context, snap *domain.Snapshot) (*domain.ModuleResult, error) {
	book := snap.Book
	if book == nil {
		return nil, nil
	}
	spreadPct, ok := book.SpreadPct()
	if !ok {
		return nil, nil
	}
	if m.Params.Window > 0 && book.Snapshots < m.Params.Window {
		return nil, nil
	}

	signal := domain.SignalNeutral
	if book.AvgImbalance > 0 {
		signal = domain.SignalLong
	} else if book.AvgImbalance < 0 {
		signal = domain.SignalShort
	}
	strength := indicators.Clamp(math.Abs(book.AvgImbalance)*100, 0, 100)

	return &domain.ModuleResult{
		Module:   m.Name(),
		Symbol:   snap.Symbol,
		Signal:   signal,
		Strength: strength,
		Meta: domain.LiquidityMeta{
			AvgImbalance: book.AvgImbalance,
			SpreadPct:    spreadPct,
			Snapshots:    book.Snapshots,
		},
	}, nil
}
