package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"AegisVault/internal/model"
)

const (
	defaultConfidence = 50
	maxReasoningLen   = 100
	maxSuggestedLen   = 200
)

// ParseResponse decodes an inbound oracle payload. It enforces the shape
// only: the payload must be a single JSON object whose required fields are
// present with the right JSON types. Unknown fields are ignored. Any shape
// violation wraps ErrMalformedResponse.
func ParseResponse(raw []byte) (model.OracleResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return model.OracleResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if fields == nil {
		return model.OracleResponse{}, fmt.Errorf("%w: payload is not an object", ErrMalformedResponse)
	}
	if _, err := dec.Token(); err != io.EOF {
		return model.OracleResponse{}, fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}

	var resp model.OracleResponse
	var err error
	if resp.RequestID, err = requiredString(fields, "requestId"); err != nil {
		return model.OracleResponse{}, err
	}
	if resp.RequestID == "" {
		return model.OracleResponse{}, fmt.Errorf("%w: requestId is empty", ErrMalformedResponse)
	}
	if resp.Recommendation, err = requiredString(fields, "recommendation"); err != nil {
		return model.OracleResponse{}, err
	}
	if resp.RiskLevel, err = requiredString(fields, "riskLevel"); err != nil {
		return model.OracleResponse{}, err
	}
	if resp.Confidence, err = requiredNumber(fields, "confidence"); err != nil {
		return model.OracleResponse{}, err
	}
	if resp.Reasoning, err = optionalString(fields, "reasoning"); err != nil {
		return model.OracleResponse{}, err
	}
	if resp.SuggestedAction, err = optionalString(fields, "suggestedAction"); err != nil {
		return model.OracleResponse{}, err
	}
	return resp, nil
}

func requiredString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", fmt.Errorf("%w: %s is required", ErrMalformedResponse, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedResponse, key)
	}
	return s, nil
}

func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedResponse, key)
	}
	return s, nil
}

func requiredNumber(fields map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("%w: %s is required", ErrMalformedResponse, key)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		return 0, fmt.Errorf("%w: %s must be a number", ErrMalformedResponse, key)
	}
	f, err := n.Float64()
	if err != nil {
		// Out of float64 range; still a number, normalisation will default it.
		return math.Inf(1), nil
	}
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// NormalizeResponse maps oracle values onto the recorded domain. Out of range
// confidence becomes 50, fractional confidence is floored, an unknown
// recommendation becomes HOLD and an unknown risk level becomes MEDIUM.
// Timestamp and ModelID are left for the caller.
func NormalizeResponse(resp model.OracleResponse) model.InsightRecord {
	rec := model.InsightRecord{
		Recommendation:  model.RecommendationHold,
		Confidence:      defaultConfidence,
		RiskLevel:       model.RiskMedium,
		Reasoning:       truncate(resp.Reasoning, maxReasoningLen),
		SuggestedAction: truncate(resp.SuggestedAction, maxSuggestedLen),
	}
	switch r := model.Recommendation(resp.Recommendation); r {
	case model.RecommendationBuy, model.RecommendationHold, model.RecommendationSell:
		rec.Recommendation = r
	}
	switch l := model.RiskLevel(resp.RiskLevel); l {
	case model.RiskLow, model.RiskMedium, model.RiskHigh:
		rec.RiskLevel = l
	}
	if c := resp.Confidence; !math.IsNaN(c) && c >= 0 && c <= 100 {
		rec.Confidence = uint8(math.Floor(c))
	}
	return rec
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
