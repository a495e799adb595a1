package indicators

import (
	"fmt"
	"math"

	"cryptoBiasBot/internal/domain"
)

// ATR computes the Average True Range over klines using Wilder's smoothing
// method. Needs at least period+1 klines.
func ATR(klines []*domain.Kline, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("ATR period must be positive, got %d", period)
	}
	if len(klines) < period+1 {
		return 0, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(klines))
	}

	trueRanges := make([]float64, len(klines))

	// First TR is just the high-low range
	trueRanges[0] = klines[0].High - klines[0].Low

	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close

		// True Range is the greatest of:
		// 1. Current High - Current Low
		// 2. |Current High - Previous Close|
		// 3. |Current Low - Previous Close|
		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)

		trueRanges[i] = math.Max(tr1, math.Max(tr2, tr3))
	}

	// First ATR is the simple average of the first period true ranges
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	// Apply Wilder's smoothing for the remaining periods
	for i := period; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}

	return atr, nil
}

// ATRPct computes ATR as a percentage of the latest close.
func ATRPct(klines []*domain.Kline, period int) (float64, error) {
	atr, err := ATR(klines, period)
	if err != nil {
		return 0, err
	}
	last := klines[len(klines)-1].Close
	if last <= 0 {
		return 0, fmt.Errorf("latest close must be positive, got %f", last)
	}
	return atr / last * 100, nil
}
