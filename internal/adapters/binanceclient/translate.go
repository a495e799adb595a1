package binanceclient

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/ports"

	"github.com/adshao/go-binance/v2/futures"
)

// --- Translation Helpers ---

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		AvgPrice:      avgPrice,
		OrigQuantity:  origQty,
		ExecutedQty:   execQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime), // Assuming UpdateTime is relevant timestamp
	}
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,   // Use passed symbol as it's not in futures.Kline
		Interval:  interval, // Use passed interval
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   true, // Historical klines are always final
	}, nil
}

func translateDepth(depth *futures.DepthResponse, symbol string) (*domain.OrderBook, error) {
	if depth == nil {
		return nil, errors.New("received nil depth response")
	}
	book := &domain.OrderBook{
		Symbol: symbol,
		Time:   time.Now(),
		Bids:   make([]domain.BookLevel, 0, len(depth.Bids)),
		Asks:   make([]domain.BookLevel, 0, len(depth.Asks)),
	}
	for _, b := range depth.Bids {
		price, qty, err := b.Parse()
		if err != nil {
			return nil, fmt.Errorf("parsing bid level: %w", err)
		}
		book.Bids = append(book.Bids, domain.BookLevel{Price: price, Quantity: qty})
	}
	for _, a := range depth.Asks {
		price, qty, err := a.Parse()
		if err != nil {
			return nil, fmt.Errorf("parsing ask level: %w", err)
		}
		book.Asks = append(book.Asks, domain.BookLevel{Price: price, Quantity: qty})
	}
	return book, nil
}

func translateLiquidation(event *futures.WsLiquidationOrderEvent) (domain.LiquidationEvent, error) {
	if event == nil {
		return domain.LiquidationEvent{}, errors.New("received nil liquidation event")
	}
	o := event.LiquidationOrder
	price, err := strconv.ParseFloat(o.Price, 64)
	if err != nil {
		return domain.LiquidationEvent{}, fmt.Errorf("parsing liquidation price '%s': %w", o.Price, err)
	}
	qty, err := strconv.ParseFloat(o.LastFilledQty, 64)
	if err != nil {
		return domain.LiquidationEvent{}, fmt.Errorf("parsing liquidation quantity '%s': %w", o.LastFilledQty, err)
	}

	return domain.LiquidationEvent{
		Time:  time.UnixMilli(o.TradeTime),
		Side:  domain.OrderSide(o.Side),
		Price: price,
		Qty:   qty,
	}, nil
}
