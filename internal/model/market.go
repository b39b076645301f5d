package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents a single daily candlestick of the vault's reference asset.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Price is a quoted asset price carrying the feed's decimal scale.
type Price struct {
	Symbol    string          `json:"symbol"`
	Value     decimal.Decimal `json:"value"`
	Decimals  int32           `json:"decimals"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Scaled returns the price as the integer the feed would report on-chain,
// i.e. Value * 10^Decimals truncated.
func (p Price) Scaled() decimal.Decimal {
	return p.Value.Shift(p.Decimals).Truncate(0)
}
