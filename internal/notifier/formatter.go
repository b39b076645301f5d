package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"AegisVault/internal/model"
)

// VaultStatus is the operator view rendered by FormatVaultStatus.
type VaultStatus struct {
	Ledger       model.LedgerState
	NAVPerShare  sdkmath.Int
	Pending      int
	Upkeep       model.UpkeepState
	UpkeepNeeded bool
	ActiveModel  *model.AdvisoryModel
	ValueUSD     string // empty when the price feed is unavailable
	Symbol       string
	Decimals     int32
	At           time.Time
}

// FormatAmount renders a base-unit amount in whole units.
func FormatAmount(v sdkmath.Int, decimals int32) string {
	if v.IsNil() {
		return "0"
	}
	return decimal.NewFromBigInt(v.BigInt(), -decimals).String()
}

func shortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

// FormatObservation renders an operator-relevant observation.
func FormatObservation(obs model.Observation, symbol string, decimals int32) string {
	var b strings.Builder
	switch obs.Kind {
	case model.ObservationEmergencyPaused:
		b.WriteString("🚨 <b>Vault paused</b>\n")
		fmt.Fprintf(&b, "By: <code>%s</code>\n", obs.Actor.Hex())
		if obs.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", html.EscapeString(obs.Reason))
		}
	case model.ObservationResumed:
		b.WriteString("✅ <b>Vault resumed</b>\n")
		fmt.Fprintf(&b, "By: <code>%s</code>\n", obs.Actor.Hex())
	case model.ObservationOwnershipTransferred:
		b.WriteString("🔑 <b>Ownership transferred</b>\n")
		fmt.Fprintf(&b, "From: <code>%s</code>\nTo: <code>%s</code>\n", obs.Actor.Hex(), obs.Account.Hex())
	case model.ObservationModelUpdated:
		b.WriteString("🧠 <b>Advisory model activated</b>\n")
		fmt.Fprintf(&b, "Model #%d %s\n", obs.ModelID, html.EscapeString(obs.Version))
	case model.ObservationAnalysisTriggered:
		b.WriteString("⏰ <b>Scheduled analysis triggered</b>\n")
		fmt.Fprintf(&b, "TVL: %s %s\n", FormatAmount(obs.TVL, decimals), symbol)
	case model.ObservationAIRequestFailed:
		b.WriteString("⚠️ <b>Oracle request failed</b>\n")
		fmt.Fprintf(&b, "Request: <code>%s</code>\nAccount: %s\n", obs.RequestID, shortAddr(obs.Account))
		if obs.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", html.EscapeString(obs.Reason))
		}
	default:
		fmt.Fprintf(&b, "<b>%s</b>\n", obs.Kind)
	}
	fmt.Fprintf(&b, "<i>#%d · %s</i>", obs.Seq, obs.At.UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}

// FormatVaultStatus formats the current vault state for display.
func FormatVaultStatus(s VaultStatus) string {
	var b strings.Builder
	b.WriteString("🏦 <b>AegisVault status</b>\n\n")
	fmt.Fprintf(&b, "Total assets: %s %s\n", FormatAmount(s.Ledger.TotalAssets, s.Decimals), s.Symbol)
	fmt.Fprintf(&b, "Total shares: %s\n", FormatAmount(s.Ledger.TotalShares, s.Decimals))
	fmt.Fprintf(&b, "NAV/share: %s\n", FormatAmount(s.NAVPerShare, 6))
	if s.ValueUSD != "" {
		fmt.Fprintf(&b, "Value: $%s\n", s.ValueUSD)
	} else {
		b.WriteString("Value: price unavailable\n")
	}
	if s.Ledger.Paused {
		fmt.Fprintf(&b, "State: ⛔ paused (%s)\n", html.EscapeString(s.Ledger.PauseReason))
	} else {
		b.WriteString("State: ✅ active\n")
	}
	fmt.Fprintf(&b, "Pending requests: %d\n", s.Pending)
	if s.ActiveModel != nil {
		fmt.Fprintf(&b, "Active model: #%d %s (%d%%)\n", s.ActiveModel.ID, html.EscapeString(s.ActiveModel.Version), s.ActiveModel.Accuracy)
	} else {
		b.WriteString("Active model: none\n")
	}
	fmt.Fprintf(&b, "Owner: <code>%s</code>\n", s.Ledger.Owner.Hex())
	fmt.Fprintf(&b, "\nUpdated: %s", s.At.UTC().Format("2006-01-02 15:04"))
	return b.String()
}

// FormatModels lists registered models, newest first.
func FormatModels(models []model.AdvisoryModel) string {
	var b strings.Builder
	b.WriteString("🧠 <b>Advisory models</b>\n\n")
	for i := len(models) - 1; i >= 0; i-- {
		m := models[i]
		marker := "  "
		if m.Active {
			marker = "▶️"
		}
		fmt.Fprintf(&b, "%s #%d %s · accuracy %d%% · %s\n", marker, m.ID, html.EscapeString(m.Version), m.Accuracy,
			time.Unix(m.CreatedAt, 0).UTC().Format("2006-01-02"))
	}
	return b.String()
}

// FormatUpkeep reports the scheduler gate.
func FormatUpkeep(state model.UpkeepState, needed bool, symbol string, decimals int32, now time.Time) string {
	var b strings.Builder
	b.WriteString("⏰ <b>Upkeep</b>\n\n")
	interval := time.Duration(state.AnalysisInterval) * time.Second
	last := time.Unix(state.LastAnalysisTime, 0)
	fmt.Fprintf(&b, "Interval: %s\n", interval)
	fmt.Fprintf(&b, "Last analysis: %s\n", last.UTC().Format("2006-01-02 15:04"))
	if next := last.Add(interval); next.After(now) {
		fmt.Fprintf(&b, "Next due in: %s\n", next.Sub(now).Truncate(time.Minute))
	} else {
		b.WriteString("Next due: now\n")
	}
	fmt.Fprintf(&b, "Min TVL: %s %s\n", FormatAmount(state.MinTVLToAnalyze, decimals), symbol)
	fmt.Fprintf(&b, "Needed: %v\n", needed)
	return b.String()
}
