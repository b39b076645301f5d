package oracle

import (
	"context"
	"fmt"
	"time"
)

// Request is what an advisor sees of a pending insight request.
type Request struct {
	RequestID    string
	Account      string
	AssetType    string
	RiskProfile  string
	ModelVersion string
	Balance      string // shares in base units
}

// Advisor produces a raw JSON answer for a request. The payload is parsed
// and normalised by the vault, so advisors may return loosely valid output.
type Advisor interface {
	Name() string
	Advise(ctx context.Context, req Request) ([]byte, error)
}

const systemPromptTemplate = `You are an expert AI investment advisor specialized in Real World Assets (RWA).
Your task is to analyze investment scenarios and provide clear, actionable recommendations.

ANALYSIS CRITERIA:
1. Market conditions for %s
2. User risk profile: %s
3. Investment amount: %s
4. Current market trends and economic indicators

RESPONSE FORMAT (STRICT JSON):
{
  "recommendation": "BUY" | "HOLD" | "SELL",
  "confidence": <number 0-100>,
  "reasoning": "<brief explanation max 100 chars>",
  "riskLevel": "LOW" | "MEDIUM" | "HIGH",
  "suggestedAction": "<specific advice>"
}

RULES:
- Confidence MUST be 0-100
- Recommendation MUST be exactly BUY/HOLD/SELL
- Be conservative with SELL recommendations
- Consider risk profile in analysis`

const userPromptTemplate = `INVESTMENT SCENARIO:
- Asset Class: %s
- Risk Tolerance: %s
- Investment Size: %s
- Timestamp: %d
- AI Model: %s

Please provide your analysis.`

func systemPrompt(req Request) string {
	return fmt.Sprintf(systemPromptTemplate, req.AssetType, req.RiskProfile, req.Balance)
}

func userPrompt(req Request, now time.Time) string {
	return fmt.Sprintf(userPromptTemplate, req.AssetType, req.RiskProfile, req.Balance, now.UnixMilli(), req.ModelVersion)
}
