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

// HTTPFeed implements Feed against a REST quote service.
type HTTPFeed struct {
	BaseURL string
	APIKey  string
	Symbol  string
	Client  *http.Client
}

// NewHTTPFeed creates a new feed with optional proxy support.
func NewHTTPFeed(baseURL, apiKey, symbol, proxyURL string) *HTTPFeed {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPFeed{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Symbol:  symbol,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *HTTPFeed) Name() string { return "http" }

// apiBar is the expected JSON shape of a bar.
type apiBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Latest fetches the current quote. Non-positive quotes are rejected.
func (f *HTTPFeed) Latest(ctx context.Context) (model.Price, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s", f.BaseURL, url.QueryEscape(f.Symbol))
	var result struct {
		Price     decimal.Decimal `json:"price"`
		UpdatedAt int64           `json:"updatedAt"`
	}
	if err := f.get(ctx, endpoint, &result); err != nil {
		return model.Price{}, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}
	if !result.Price.IsPositive() {
		return model.Price{}, fmt.Errorf("%w: non-positive quote %s", ErrPriceUnavailable, result.Price)
	}
	updated := time.Now()
	if result.UpdatedAt > 0 {
		updated = time.Unix(result.UpdatedAt, 0)
	}
	return model.Price{
		Symbol:    f.Symbol,
		Value:     result.Price,
		Decimals:  PriceDecimals,
		UpdatedAt: updated,
	}, nil
}

// Bars fetches daily bars in chronological order.
func (f *HTTPFeed) Bars(ctx context.Context, days int) ([]model.Bar, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?symbol=%s&limit=%d", f.BaseURL, url.QueryEscape(f.Symbol), days)
	var raw []apiBar
	if err := f.get(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	bars := make([]model.Bar, len(raw))
	for i, b := range raw {
		bars[i] = model.Bar{
			Time:   time.Unix(b.Timestamp, 0),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func (f *HTTPFeed) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
