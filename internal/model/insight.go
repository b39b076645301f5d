package model

// Recommendation is the advisory verdict recorded against an account.
type Recommendation string

const (
	RecommendationBuy  Recommendation = "BUY"
	RecommendationHold Recommendation = "HOLD"
	RecommendationSell Recommendation = "SELL"
)

// RiskLevel grades the risk attached to a recommendation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// InsightRecord is the last accepted oracle answer for an account.
// Timestamp zero means no insight has ever been recorded.
type InsightRecord struct {
	Timestamp       int64          `json:"timestamp"`
	Recommendation  Recommendation `json:"recommendation,omitempty"`
	Confidence      uint8          `json:"confidence"`
	RiskLevel       RiskLevel      `json:"riskLevel,omitempty"`
	Reasoning       string         `json:"reasoning,omitempty"`
	SuggestedAction string         `json:"suggestedAction,omitempty"`
	ModelID         uint64         `json:"modelId,omitempty"`
}

// OracleResponse is the inbound oracle payload after shape validation and
// before value normalization.
type OracleResponse struct {
	RequestID       string
	Recommendation  string
	Confidence      float64
	RiskLevel       string
	Reasoning       string
	SuggestedAction string
}
