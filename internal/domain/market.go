package domain

import "time"

// BookLevel is a single price level of an order book side.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook is a depth snapshot at a point in time.
type OrderBook struct {
	Symbol string
	Time   time.Time
	Bids   []BookLevel // Best bid first
	Asks   []BookLevel // Best ask first
}

// Imbalance returns (bidVolume - askVolume) / (bidVolume + askVolume) in [-1, 1].
// Returns 0 when the book is empty.
func (b *OrderBook) Imbalance() float64 {
	var bidVol, askVol float64
	for _, l := range b.Bids {
		bidVol += l.Quantity
	}
	for _, l := range b.Asks {
		askVol += l.Quantity
	}
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

// SpreadPct returns the best-ask/best-bid spread as a percentage of the mid
// price. The second return value is false when the spread cannot be computed
// (one-sided or empty book).
func (b *OrderBook) SpreadPct() (float64, bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0, false
	}
	bestBid := b.Bids[0].Price
	bestAsk := b.Asks[0].Price
	mid := (bestBid + bestAsk) / 2
	if mid <= 0 {
		return 0, false
	}
	return (bestAsk - bestBid) / mid * 100, true
}

// BookWindow is a pre-aggregated order-book window: average imbalance and
// average absolute spread over the last N snapshots.
type BookWindow struct {
	Symbol       string
	AvgImbalance float64 // Averaged Imbalance() over the window, [-1, 1]
	AvgSpreadAbs float64 // Averaged best-ask minus best-bid in price units
	MidPrice     float64 // Latest mid price, for converting spread to percent
	Snapshots    int     // Number of snapshots aggregated
}

// SpreadPct returns the window's average spread as a percentage of the latest
// mid price. False when no mid price is available.
func (w *BookWindow) SpreadPct() (float64, bool) {
	if w == nil || w.MidPrice <= 0 || w.Snapshots == 0 {
		return 0, false
	}
	return w.AvgSpreadAbs / w.MidPrice * 100, true
}

// OpenInterestPoint is one sample of an open-interest series.
type OpenInterestPoint struct {
	Time  time.Time
	Value float64 // Open interest in quote currency (notional)
	Price float64 // Reference price at sample time, 0 when unknown
}

// LiquidationEvent is a single forced liquidation reported by the exchange.
type LiquidationEvent struct {
	Time  time.Time
	Side  OrderSide // BUY liquidates shorts, SELL liquidates longs
	Price float64
	Qty   float64
}

// Value returns the notional value of the liquidation.
func (l LiquidationEvent) Value() float64 {
	return l.Price * l.Qty
}

// LongShortPoint is one sample of the exchange-reported long/short account
// ratio series at 5-minute granularity.
type LongShortPoint struct {
	Time     time.Time
	LongPct  float64 // Percentage of accounts long, 0-100
	ShortPct float64 // Percentage of accounts short, 0-100
}

// Snapshot is everything the analysis modules of one symbol consume in a single
// evaluation cycle. Feeds that could not be fetched are nil/empty; the modules
// that depend on them degrade to unavailable, they do not fail the cycle.
type Snapshot struct {
	Symbol        string
	Timeframe     string
	Time          time.Time
	Candles       []*Kline // Ascending by time
	HigherCandles []*Kline // Higher-timeframe series for the higherMA module
	Book          *BookWindow
	OpenInterest  []OpenInterestPoint
	Liquidations  []LiquidationEvent
	LongShort     []LongShortPoint
	MarkPrice     float64 // Latest mark price, 0 when unavailable
}

// LastPrice returns the most recent known price: mark price when available,
// otherwise the close of the latest candle.
func (s *Snapshot) LastPrice() float64 {
	if s.MarkPrice > 0 {
		return s.MarkPrice
	}
	if n := len(s.Candles); n > 0 {
		return s.Candles[n-1].Close
	}
	return 0
}
