package binanceclient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cryptoBiasBot/internal/domain"

	"github.com/adshao/go-binance/v2/futures"
)

// --- MarketDataProvider Implementation ---

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}

	return domainKlines, nil
}

// GetMarkPrice retrieves the current mark price for a given symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetMarkPrice"
	tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := parseFloat(tickers[0].MarkPrice)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].MarkPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetBookWindow fetches a fresh depth snapshot, folds it into the per-symbol
// snapshot ring, and returns the aggregate over the ring. The window warms up
// over the first few cycles; callers see the snapshot count and can require a
// minimum.
func (c *Client) GetBookWindow(ctx context.Context, symbol string) (*domain.BookWindow, error) {
	op := "GetBookWindow"
	depth, err := c.futuresClient.NewDepthService().Symbol(symbol).Limit(c.bookDepthLimit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	book, err := translateDepth(depth, symbol)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("failed to translate depth snapshot: %w", err), op)
	}

	c.bookMu.Lock()
	defer c.bookMu.Unlock()
	ring := append(c.books[symbol], book)
	if len(ring) > c.bookWindowSize {
		ring = ring[len(ring)-c.bookWindowSize:]
	}
	c.books[symbol] = ring

	window := &domain.BookWindow{Symbol: symbol, Snapshots: len(ring)}
	for _, b := range ring {
		window.AvgImbalance += b.Imbalance()
		if len(b.Bids) > 0 && len(b.Asks) > 0 {
			window.AvgSpreadAbs += b.Asks[0].Price - b.Bids[0].Price
		}
	}
	window.AvgImbalance /= float64(len(ring))
	window.AvgSpreadAbs /= float64(len(ring))
	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		window.MidPrice = (book.Bids[0].Price + book.Asks[0].Price) / 2
	}
	return window, nil
}

// GetOpenInterest retrieves the open-interest series for a symbol, ascending
// by time, at 5-minute granularity.
func (c *Client) GetOpenInterest(ctx context.Context, symbol string, points int) ([]domain.OpenInterestPoint, error) {
	op := "GetOpenInterest"
	stats, err := c.futuresClient.NewOpenInterestStatisticsService().
		Symbol(symbol).
		Period("5m").
		Limit(points).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	series := make([]domain.OpenInterestPoint, 0, len(stats))
	for _, s := range stats {
		value, err := parseFloat(s.SumOpenInterestValue)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse open interest value '%s': %w", s.SumOpenInterestValue, err), op)
		}
		series = append(series, domain.OpenInterestPoint{
			Time:  time.UnixMilli(s.Timestamp),
			Value: value,
		})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

// GetLongShortRatio retrieves the long/short account-ratio series at 5-minute
// granularity, ascending by time.
func (c *Client) GetLongShortRatio(ctx context.Context, symbol string, points int) ([]domain.LongShortPoint, error) {
	op := "GetLongShortRatio"
	ratios, err := c.futuresClient.NewLongShortRatioService().
		Symbol(symbol).
		Period("5m").
		Limit(points).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	series := make([]domain.LongShortPoint, 0, len(ratios))
	for _, r := range ratios {
		longFrac, err := parseFloat(r.LongAccount)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse long account '%s': %w", r.LongAccount, err), op)
		}
		shortFrac, err := parseFloat(r.ShortAccount)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse short account '%s': %w", r.ShortAccount, err), op)
		}
		series = append(series, domain.LongShortPoint{
			Time:     time.UnixMilli(r.Timestamp),
			LongPct:  longFrac * 100,
			ShortPct: shortFrac * 100,
		})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

// GetLiquidations returns the cached forced-liquidation events for a symbol
// since the given time. The cache is fed by StartLiquidationStream; Binance no
// longer exposes historical force orders over REST, so without a running
// stream this returns an empty slice.
func (c *Client) GetLiquidations(ctx context.Context, symbol string, since time.Time) ([]domain.LiquidationEvent, error) {
	c.liqMu.Lock()
	defer c.liqMu.Unlock()

	cached := c.liquidations[symbol]
	events := make([]domain.LiquidationEvent, 0, len(cached))
	for _, ev := range cached {
		if !ev.Time.Before(since) {
			events = append(events, ev)
		}
	}
	return events, nil
}

// StartLiquidationStream subscribes to the forced-liquidation WebSocket stream
// for a symbol and feeds the in-memory cache consumed by GetLiquidations.
// The stream reconnects with exponential backoff until ctx is cancelled.
func (c *Client) StartLiquidationStream(ctx context.Context, symbol string) {
	op := "StartLiquidationStream"

	handler := func(event *futures.WsLiquidationOrderEvent) {
		ev, err := translateLiquidation(event)
		if err != nil {
			c.logger.Error(ctx, err, op+": Failed to translate liquidation event", map[string]interface{}{"symbol": symbol})
			return
		}
		c.recordLiquidation(symbol, ev)
	}
	errHandler := func(err error) {
		c.logger.Warn(ctx, op+": WebSocket error reported", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}

	go func() {
		attempt := 0
		for {
			select {
			case <-ctx.Done():
				c.logger.Info(ctx, op+": Context cancelled, stopping connection attempts.", map[string]interface{}{"symbol": symbol})
				return
			default:
			}

			doneCh, stopCh, connectErr := futures.WsLiquidationOrderServe(symbol, handler, errHandler)
			if connectErr != nil {
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(ctx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"symbol": symbol, "maxAttempts": c.maxReconnectAttempts})
					return
				}
				delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
				c.logger.Info(ctx, op+": Connection failed, retrying...", map[string]interface{}{"symbol": symbol, "attempt": attempt + 1, "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return
				}
			}

			c.logger.Info(ctx, op+": WebSocket connection established.", map[string]interface{}{"symbol": symbol})
			attempt = 0

			select {
			case <-doneCh:
				c.logger.Warn(ctx, op+": WebSocket connection closed unexpectedly. Reconnecting...", map[string]interface{}{"symbol": symbol})
			case <-ctx.Done():
				select {
				case stopCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()
}

// recordLiquidation appends an event to the per-symbol cache and drops
// anything older than the retention window.
func (c *Client) recordLiquidation(symbol string, ev domain.LiquidationEvent) {
	cutoff := time.Now().Add(-c.liqRetention)

	c.liqMu.Lock()
	defer c.liqMu.Unlock()
	cached := append(c.liquidations[symbol], ev)
	trimmed := cached[:0]
	for _, e := range cached {
		if e.Time.After(cutoff) {
			trimmed = append(trimmed, e)
		}
	}
	c.liquidations[symbol] = trimmed
}
