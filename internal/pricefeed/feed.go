package pricefeed

import (
	"context"
	"errors"

	"AegisVault/internal/model"
)

// PriceDecimals is the scale every feed reports prices in.
const PriceDecimals = 8

// ErrPriceUnavailable is returned when no usable price can be obtained.
var ErrPriceUnavailable = errors.New("price unavailable")

// Feed is a read-only source of reference asset prices.
type Feed interface {
	Latest(ctx context.Context) (model.Price, error)
	Bars(ctx context.Context, days int) ([]model.Bar, error)
	Name() string
}
