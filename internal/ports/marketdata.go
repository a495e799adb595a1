package ports

import (
	"context"
	"time"

	"cryptoBiasBot/internal/domain"
)

// MarketDataProvider defines the read-only market-data feeds the analysis
// modules consume. Every call carries a bounded timeout via its context; a
// timeout or network failure is returned wrapped in ErrFetchFailed and the
// dependent module degrades to unavailable for the cycle.
type MarketDataProvider interface {
	// GetKlines retrieves the most recent klines for a symbol and interval,
	// ascending by time.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)

	// GetBookWindow retrieves a pre-aggregated order-book window: average
	// imbalance and spread over the provider's recent snapshots.
	// Returns nil, nil when no book data is available for the symbol.
	GetBookWindow(ctx context.Context, symbol string) (*domain.BookWindow, error)

	// GetOpenInterest retrieves the open-interest series for a symbol,
	// ascending by time.
	GetOpenInterest(ctx context.Context, symbol string, points int) ([]domain.OpenInterestPoint, error)

	// GetLiquidations retrieves forced liquidations for a symbol since the
	// given time.
	GetLiquidations(ctx context.Context, symbol string, since time.Time) ([]domain.LiquidationEvent, error)

	// GetLongShortRatio retrieves the long/short account-ratio series at
	// 5-minute granularity, ascending by time.
	GetLongShortRatio(ctx context.Context, symbol string, points int) ([]domain.LongShortPoint, error)

	// GetMarkPrice retrieves the current mark price for a symbol.
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
}
