package ports

import (
	"context"
	"time"

	"cryptoBiasBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (might be 0 for market orders initially)
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string    // Order type (e.g., MARKET, STOP_MARKET)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// ExecutionClient defines the narrow execution surface the engine needs.
// Order routing beyond this (venue selection, smart routing) is out of scope
// and lives with the exchange.
type ExecutionClient interface {
	// GetAccountBalance retrieves the available balance for an asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder places a market order. clientOrderID allows idempotent
	// retries to be correlated on the exchange side.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, clientOrderID string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a stop-market order protecting a position.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)
}
