package pricefeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"AegisVault/internal/model"
)

// StaticFeed returns a fixed price and synthetic bars for development and testing.
type StaticFeed struct {
	Symbol string
	Price  decimal.Decimal
	Daily  []model.Bar
	Err    error
}

// NewStaticFeed parses price as a decimal string.
func NewStaticFeed(symbol, price string) (*StaticFeed, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	return &StaticFeed{Symbol: symbol, Price: p}, nil
}

func (s *StaticFeed) Name() string { return "static" }

func (s *StaticFeed) Latest(_ context.Context) (model.Price, error) {
	if s.Err != nil {
		return model.Price{}, s.Err
	}
	if !s.Price.IsPositive() {
		return model.Price{}, ErrPriceUnavailable
	}
	return model.Price{Symbol: s.Symbol, Value: s.Price, Decimals: PriceDecimals, UpdatedAt: time.Now()}, nil
}

func (s *StaticFeed) Bars(_ context.Context, days int) ([]model.Bar, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Daily != nil {
		return s.Daily, nil
	}
	base, _ := s.Price.Float64()
	return syntheticBars(base, days), nil
}

func syntheticBars(basePrice float64, count int) []model.Bar {
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:   time.Now().AddDate(0, 0, -(count - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
