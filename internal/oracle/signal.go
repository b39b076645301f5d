package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"AegisVault/internal/indicator"
	"AegisVault/internal/model"
	"AegisVault/internal/pricefeed"
)

// FactorScore is one weighted component of a signal.
type FactorScore struct {
	Name       string
	RawScore   float64 // -2 ~ +2
	Weight     float64
	Weighted   float64
	Commentary string
}

// Signal is the scored outcome of the offline advisor.
type Signal struct {
	Factors        []FactorScore
	TotalScore     float64
	Recommendation model.Recommendation
	Confidence     int
	RiskLevel      model.RiskLevel
}

// SignalAdvisor answers requests offline by scoring technical indicators of
// the reference asset.
type SignalAdvisor struct {
	feed   pricefeed.Feed
	days   int
	logger *zap.Logger
}

func NewSignalAdvisor(feed pricefeed.Feed, logger *zap.Logger) *SignalAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalAdvisor{feed: feed, days: 300, logger: logger}
}

func (a *SignalAdvisor) Name() string { return "signal" }

func (a *SignalAdvisor) Advise(ctx context.Context, req Request) ([]byte, error) {
	price, err := a.feed.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest price: %w", err)
	}
	bars, err := a.feed.Bars(ctx, a.days)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	current, _ := price.Value.Float64()
	ind := indicator.Compute(bars, current, a.logger)
	sig := Evaluate(ind, req.RiskProfile)

	return json.Marshal(struct {
		Recommendation  model.Recommendation `json:"recommendation"`
		Confidence      int                  `json:"confidence"`
		RiskLevel       model.RiskLevel      `json:"riskLevel"`
		Reasoning       string               `json:"reasoning"`
		SuggestedAction string               `json:"suggestedAction"`
	}{
		Recommendation:  sig.Recommendation,
		Confidence:      sig.Confidence,
		RiskLevel:       sig.RiskLevel,
		Reasoning:       sig.reasoning(),
		SuggestedAction: sig.suggestedAction(req.AssetType),
	})
}

// Evaluate scores the indicators and maps the total to a recommendation.
// Conservative profiles need a stronger score to act; aggressive ones less.
func Evaluate(ind *model.MarketIndicators, riskProfile string) Signal {
	f1 := scoreTrendDeviation(ind)
	f2 := scoreRSI(ind)
	f4 := scoreMomentum(ind)
	otherAvg := (f1.RawScore + f2.RawScore + f4.RawScore) / 3.0
	f3 := score52WeekPosition(ind, otherAvg)

	factors := []FactorScore{f1, f2, f3, f4}
	total := 0.0
	for _, f := range factors {
		total += f.Weighted
	}

	threshold := 0.5
	switch strings.ToLower(riskProfile) {
	case "conservative":
		threshold = 0.8
	case "aggressive":
		threshold = 0.3
	}

	rec := model.RecommendationHold
	switch {
	case total >= threshold:
		rec = model.RecommendationBuy
	case total <= -threshold:
		rec = model.RecommendationSell
	}

	confidence := 50 + int(math.Round(math.Abs(total)*20))
	if confidence > 95 {
		confidence = 95
	}

	return Signal{
		Factors:        factors,
		TotalScore:     total,
		Recommendation: rec,
		Confidence:     confidence,
		RiskLevel:      riskFromVolatility(ind.Volatility),
	}
}

func riskFromVolatility(vol float64) model.RiskLevel {
	switch {
	case vol < 0.01:
		return model.RiskLow
	case vol < 0.03:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

func (s Signal) reasoning() string {
	parts := make([]string, 0, len(s.Factors))
	for _, f := range s.Factors {
		parts = append(parts, f.Commentary)
	}
	return strings.Join(parts, "; ")
}

func (s Signal) suggestedAction(assetType string) string {
	if assetType == "" {
		assetType = "the asset"
	}
	switch s.Recommendation {
	case model.RecommendationBuy:
		return fmt.Sprintf("Increase exposure to %s gradually", assetType)
	case model.RecommendationSell:
		return fmt.Sprintf("Reduce exposure to %s and hold reserves", assetType)
	default:
		return fmt.Sprintf("Maintain current %s allocation", assetType)
	}
}

// bucket maps x onto the -2..+2 ladder: at or below edges[i] scores
// 2 - 0.5*i, above every edge scores -2.
func bucket(x float64, edges [8]float64) float64 {
	for i, e := range edges {
		if x <= e {
			return 2.0 - 0.5*float64(i)
		}
	}
	return -2.0
}

// scoreTrendDeviation scores how far the price sits from SMA200.
// Weight: 0.35
func scoreTrendDeviation(ind *model.MarketIndicators) FactorScore {
	if ind.SMA200 == 0 {
		return FactorScore{Name: "sma200_deviation", Weight: 0.35, Commentary: "SMA200 unavailable"}
	}
	deviation := (ind.CurrentPrice - ind.SMA200) / ind.SMA200 * 100
	score := bucket(deviation, [8]float64{-20, -10, -5, 0, 5, 10, 15, 20})
	return FactorScore{
		Name:       "sma200_deviation",
		RawScore:   score,
		Weight:     0.35,
		Weighted:   score * 0.35,
		Commentary: fmt.Sprintf("SMA200 %+.1f%%", deviation),
	}
}

// scoreRSI scores the daily RSI(14).
// Weight: 0.30
func scoreRSI(ind *model.MarketIndicators) FactorScore {
	score := bucket(ind.RSI14, [8]float64{25, 30, 40, 45, 55, 60, 70, 80})
	return FactorScore{
		Name:       "rsi14",
		RawScore:   score,
		Weight:     0.30,
		Weighted:   score * 0.30,
		Commentary: fmt.Sprintf("RSI %.0f", ind.RSI14),
	}
}

// score52WeekPosition scores where the price sits in the 52-week range.
// Weight: 0.15
// Above 95% it only reaches -2 when the other factors average below -1.
func score52WeekPosition(ind *model.MarketIndicators, otherFactorsAvg float64) FactorScore {
	pos := ind.Position52w * 100
	var score float64
	if pos > 95 {
		score = -1.0
		if otherFactorsAvg < -1 {
			score = -2.0
		}
	} else {
		score = bucket(pos, [8]float64{10, 20, 30, 40, 60, 70, 80, 95})
	}
	return FactorScore{
		Name:       "position_52w",
		RawScore:   score,
		Weight:     0.15,
		Weighted:   score * 0.15,
		Commentary: fmt.Sprintf("52w %.0f%%", pos),
	}
}

// scoreMomentum scores moving average alignment.
// Weight: 0.20
// Bull alignment: price > SMA50 > SMA200
// Bear alignment: price < SMA50 < SMA200
func scoreMomentum(ind *model.MarketIndicators) FactorScore {
	bullish := ind.CurrentPrice > ind.SMA50 && ind.SMA50 > ind.SMA200
	bearish := ind.CurrentPrice < ind.SMA50 && ind.SMA50 < ind.SMA200
	nearHigh := ind.High52w > 0 && math.Abs(ind.CurrentPrice-ind.High52w)/ind.High52w < 0.01
	nearLow := ind.Low52w > 0 && math.Abs(ind.CurrentPrice-ind.Low52w)/ind.Low52w < 0.01

	var score float64
	var commentary string
	switch {
	case bullish && nearHigh:
		score, commentary = 1.5, "uptrend at highs"
	case bullish:
		score, commentary = 1.0, "uptrend"
	case bearish && nearLow:
		score, commentary = -1.0, "downtrend at lows"
	case bearish:
		score, commentary = -0.5, "downtrend"
	default:
		commentary = "range-bound"
	}
	return FactorScore{
		Name:       "momentum",
		RawScore:   score,
		Weight:     0.20,
		Weighted:   score * 0.20,
		Commentary: commentary,
	}
}
