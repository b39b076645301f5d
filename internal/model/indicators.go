package model

// MarketIndicators holds the technical readings the offline advisor scores.
type MarketIndicators struct {
	CurrentPrice float64
	SMA50        float64
	SMA200       float64
	RSI14        float64
	High52w      float64
	Low52w       float64
	Position52w  float64 // 0.0 ~ 1.0
	Volatility   float64 // stddev of daily returns over the last 30 bars
}
