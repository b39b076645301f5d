package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"AegisVault/internal/model"
)

const yahooChartBase = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooFeed implements Feed using the Yahoo Finance chart API.
type YahooFeed struct {
	Symbol    string
	ChartBase string
	Client    *http.Client
	SymbolMap map[string]string // maps vault symbol to Yahoo ticker
}

// NewYahooFeed creates a Yahoo feed with optional proxy support.
func NewYahooFeed(symbol, proxyURL string) *YahooFeed {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFeed{
		Symbol:    symbol,
		ChartBase: yahooChartBase,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"ETH":  "ETH-USD",
			"BTC":  "BTC-USD",
			"VNQ":  "VNQ",
			"REIT": "VNQ",
		},
	}
}

func (f *YahooFeed) Name() string { return "yahoo" }

func (f *YahooFeed) ticker() string {
	if mapped, ok := f.SymbolMap[f.Symbol]; ok {
		return mapped
	}
	return f.Symbol
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}

func (f *YahooFeed) chart(ctx context.Context, interval, rng string) ([]model.Bar, error) {
	u := fmt.Sprintf("%s/%s?interval=%s&range=%s", f.ChartBase, url.PathEscape(f.ticker()), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d", resp.StatusCode)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := at(quote.Close, i)
		if c == 0 {
			continue // null bar
		}
		bars = append(bars, model.Bar{
			Time:   time.Unix(ts, 0),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  c,
			Volume: at(quote.Volume, i),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// Latest returns the most recent close.
func (f *YahooFeed) Latest(ctx context.Context) (model.Price, error) {
	bars, err := f.chart(ctx, "1d", "5d")
	if err != nil {
		return model.Price{}, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}
	if len(bars) == 0 {
		return model.Price{}, fmt.Errorf("%w: yahoo returned no closes", ErrPriceUnavailable)
	}
	last := bars[len(bars)-1]
	return model.Price{
		Symbol:    f.Symbol,
		Value:     decimal.NewFromFloat(last.Close),
		Decimals:  PriceDecimals,
		UpdatedAt: last.Time,
	}, nil
}

// Bars returns up to days daily bars.
func (f *YahooFeed) Bars(ctx context.Context, days int) ([]model.Bar, error) {
	rng := "2y"
	switch {
	case days <= 30:
		rng = "1mo"
	case days <= 90:
		rng = "3mo"
	case days <= 180:
		rng = "6mo"
	case days <= 365:
		rng = "1y"
	}
	bars, err := f.chart(ctx, "1d", rng)
	if err != nil {
		return nil, err
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}
