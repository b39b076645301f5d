package indicator

import (
	"errors"
	"math"

	"AegisVault/internal/model"
)

// TradingDaysPerYear is the lookback used for 52-week ranges.
const TradingDaysPerYear = 252

// Range scans the most recent lookback bars and returns the high and low.
func Range(bars []model.Bar, lookback int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	if lookback <= 0 {
		return 0, 0, errors.New("lookback must be positive")
	}
	start := len(bars) - lookback
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars[start:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// Position returns where current sits within [low, high] (0.0~1.0).
func Position(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}

// Volatility is the population standard deviation of close-to-close returns
// over the most recent window bars.
func Volatility(bars []model.Bar, window int) (float64, error) {
	if window < 2 {
		return 0, errors.New("window must be at least 2")
	}
	if len(bars) < 2 {
		return 0, errors.New("not enough data for volatility")
	}
	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	var returns []float64
	for i := start + 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, bars[i].Close/prev-1)
	}
	if len(returns) == 0 {
		return 0, errors.New("no usable returns")
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	return math.Sqrt(variance / float64(len(returns))), nil
}
