package pricefeed

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// AssetDecimals is the base-unit scale of vault amounts.
const AssetDecimals = 18

// Valuation is the USD value of an asset amount.
type Valuation struct {
	Scaled sdkmath.Int     `json:"scaled"` // USD with PriceDecimals places
	USD    decimal.Decimal `json:"usd"`
	Price  model.Price     `json:"price"`
}

// Valuer converts vault amounts to USD through a Feed.
type Valuer struct {
	feed   Feed
	logger *zap.Logger
}

func NewValuer(feed Feed, logger *zap.Logger) *Valuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valuer{feed: feed, logger: logger}
}

// ValueInUSD returns amount * price / 10^AssetDecimals. A failing feed yields
// ErrPriceUnavailable and never a partial value.
func (v *Valuer) ValueInUSD(ctx context.Context, amount sdkmath.Int) (Valuation, error) {
	if v == nil || v.feed == nil {
		return Valuation{Scaled: sdkmath.ZeroInt()}, ErrPriceUnavailable
	}
	price, err := v.feed.Latest(ctx)
	if err != nil {
		v.logger.Warn("price feed failed", zap.String("feed", v.feed.Name()), zap.Error(err))
		if !errors.Is(err, ErrPriceUnavailable) {
			err = errors.Join(ErrPriceUnavailable, err)
		}
		return Valuation{Scaled: sdkmath.ZeroInt()}, err
	}
	if amount.IsNil() || amount.IsNegative() {
		amount = sdkmath.ZeroInt()
	}

	product, err := sdkmath.NewIntFromBigInt(price.Scaled().BigInt()).SafeMul(amount)
	if err != nil {
		return Valuation{Scaled: sdkmath.ZeroInt()}, errors.Join(ErrPriceUnavailable, err)
	}
	scaled := product.Quo(sdkmath.NewIntWithDecimal(1, AssetDecimals))
	usd := decimal.NewFromBigInt(scaled.BigInt(), -price.Decimals)
	return Valuation{Scaled: scaled, USD: usd, Price: price}, nil
}
