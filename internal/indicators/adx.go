package indicators

import (
	"fmt"
	"math"

	"cryptoBiasBot/internal/domain"
)

// DirectionalIndex holds one ADX/DI reading.
type DirectionalIndex struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX computes the Average Directional Index and the directional indicators
// over klines using Wilder's smoothing. Needs at least 2*period+1 klines so
// the DX series has a full period to average over.
func ADX(klines []*domain.Kline, period int) (DirectionalIndex, error) {
	if period <= 0 {
		return DirectionalIndex{}, fmt.Errorf("ADX period must be positive, got %d", period)
	}
	if len(klines) < 2*period+1 {
		return DirectionalIndex{}, fmt.Errorf("not enough data points for ADX calculation: need %d, got %d", 2*period+1, len(klines))
	}

	n := len(klines) - 1
	trs := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevHigh := klines[i-1].High
		prevLow := klines[i-1].Low
		prevClose := klines[i-1].Close

		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)
		trs[i-1] = math.Max(tr1, math.Max(tr2, tr3))

		upMove := high - prevHigh
		downMove := prevLow - low
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
	}

	// Initial sums over the first period, then Wilder smoothing
	var smTR, smPlus, smMinus float64
	for i := 0; i < period; i++ {
		smTR += trs[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	var plusDI, minusDI, adx float64
	var dxCount int

	dx := func() float64 {
		if smTR == 0 {
			return 0
		}
		plusDI = smPlus / smTR * 100
		minusDI = smMinus / smTR * 100
		sum := plusDI + minusDI
		if sum == 0 {
			return 0
		}
		return math.Abs(plusDI-minusDI) / sum * 100
	}

	adx = dx()
	dxCount = 1

	for i := period; i < n; i++ {
		smTR = smTR - smTR/float64(period) + trs[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]

		d := dx()
		dxCount++
		if dxCount <= period {
			// Still accumulating the initial DX average
			adx += d
			if dxCount == period {
				adx /= float64(period)
			}
		} else {
			adx = (adx*float64(period-1) + d) / float64(period)
		}
	}

	if dxCount < period {
		adx /= float64(dxCount)
	}

	return DirectionalIndex{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}, nil
}
