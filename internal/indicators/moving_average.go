package indicators

import (
	"fmt"

	"cryptoBiasBot/internal/domain"
)

// Closes extracts the close-price series from klines.
func Closes(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// SMA computes the Simple Moving Average over the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("SMA period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate SMA for period %d", len(values), period)
	}

	total := 0.0
	for i := len(values) - period; i < len(values); i++ {
		total += values[i]
	}
	return total / float64(period), nil
}

// EMA computes the Exponential Moving Average over the whole series.
//
// The seed mode changes the warm-up values and therefore the result:
// SeedSMA seeds with the SMA of the first period values and applies the EMA
// formula from there on; SeedFirst seeds with the first value of the series
// and applies the formula from the second value.
func EMA(values []float64, period int, seed domain.EMASeedMode) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("EMA period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(values), period)
	}

	multiplier := 2.0 / float64(period+1)

	var ema float64
	var start int
	switch seed {
	case domain.SeedFirst:
		ema = values[0]
		start = 1
	default: // SeedSMA
		initial, err := SMA(values[:period], period)
		if err != nil {
			return 0, fmt.Errorf("failed to calculate initial SMA for EMA seed: %w", err)
		}
		ema = initial
		start = period
	}

	for i := start; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
	}
	return ema, nil
}
