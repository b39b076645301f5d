package indicator

import (
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// Compute derives all indicators from daily bars. Readings that cannot be
// computed fall back to neutral values and are logged.
func Compute(bars []model.Bar, currentPrice float64, logger *zap.Logger) *model.MarketIndicators {
	if logger == nil {
		logger = zap.NewNop()
	}
	ind := &model.MarketIndicators{CurrentPrice: currentPrice}
	closes := Closes(bars)

	if ma, err := SMA(closes, 50); err != nil {
		logger.Warn("sma50 unavailable, using current price", zap.Error(err))
		ind.SMA50 = currentPrice
	} else {
		ind.SMA50 = ma
	}

	if ma, err := SMA(closes, 200); err != nil {
		logger.Warn("sma200 unavailable, using current price", zap.Error(err))
		ind.SMA200 = currentPrice
	} else {
		ind.SMA200 = ma
	}

	if rsi, err := RSI(bars, 14); err != nil {
		logger.Warn("rsi unavailable, defaulting to 50", zap.Error(err))
		ind.RSI14 = 50
	} else {
		ind.RSI14 = rsi
	}

	if h, l, err := Range(bars, TradingDaysPerYear); err != nil {
		logger.Warn("52-week range unavailable", zap.Error(err))
		ind.High52w = currentPrice
		ind.Low52w = currentPrice
	} else {
		ind.High52w = h
		ind.Low52w = l
	}

	if pos, err := Position(currentPrice, ind.High52w, ind.Low52w); err != nil {
		logger.Warn("52-week position unavailable", zap.Error(err))
		ind.Position52w = 0.5
	} else {
		ind.Position52w = pos
	}

	if vol, err := Volatility(bars, 30); err != nil {
		logger.Debug("volatility unavailable", zap.Error(err))
	} else {
		ind.Volatility = vol
	}

	return ind
}
