package model

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// LedgerState is the singleton aggregate of the pooled asset.
type LedgerState struct {
	TotalAssets sdkmath.Int    `json:"totalAssets"`
	TotalShares sdkmath.Int    `json:"totalShares"`
	Paused      bool           `json:"paused"`
	PauseReason string         `json:"pauseReason,omitempty"`
	Owner       common.Address `json:"owner"`
}

// Account is a depositor's claim on the pool plus its advisory state.
type Account struct {
	Address        common.Address `json:"address"`
	Shares         sdkmath.Int    `json:"shares"`
	PendingRequest string         `json:"pendingRequest,omitempty"` // empty when idle
	Insight        InsightRecord  `json:"insight"`
}

// Pending reports whether the account has an outstanding insight request.
func (a Account) Pending() bool { return a.PendingRequest != "" }

// NewAccount returns an idle account with zero shares.
func NewAccount(addr common.Address) Account {
	return Account{Address: addr, Shares: sdkmath.ZeroInt()}
}

// AdvisoryModel describes one registered analysis model.
type AdvisoryModel struct {
	ID        uint64 `json:"id"`
	Version   string `json:"version"`
	Accuracy  uint8  `json:"accuracy"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"createdAt"`
}

// UpkeepState gates scheduled advisory refreshes.
type UpkeepState struct {
	LastAnalysisTime int64       `json:"lastAnalysisTime"`
	AnalysisInterval int64       `json:"analysisInterval"` // seconds
	MinTVLToAnalyze  sdkmath.Int `json:"minTVLToAnalyze"`
}

// UpkeepPayload is the snapshot checkUpkeep hands to performUpkeep.
type UpkeepPayload struct {
	TotalAssets sdkmath.Int `json:"totalAssets"`
	Timestamp   int64       `json:"timestamp"`
}

// PendingRequest is an admitted insight request awaiting its oracle answer.
type PendingRequest struct {
	RequestID    string         `json:"requestId"`
	Account      common.Address `json:"account"`
	IssuedAt     int64          `json:"issuedAt"`
	ModelID      uint64         `json:"modelId"`
	ModelVersion string         `json:"modelVersion"`
	AssetType    string         `json:"assetType"`
	RiskProfile  string         `json:"riskProfile"`
}

// Snapshot is the full persisted vault state.
type Snapshot struct {
	Ledger        LedgerState      `json:"ledger"`
	Accounts      []Account        `json:"accounts"`
	Models        []AdvisoryModel  `json:"models"`
	ActiveModelID uint64           `json:"activeModelId"`
	Upkeep        UpkeepState      `json:"upkeep"`
	Pending       []PendingRequest `json:"pending"`
}

// Mutation is the delta a single vault operation persists. Nil or empty
// fields leave the stored value untouched.
type Mutation struct {
	Ledger        *LedgerState
	Accounts      []Account
	Models        []AdvisoryModel
	ActiveModelID uint64
	Upkeep        *UpkeepState
	PutPending    []PendingRequest
	DeletePending []string
}
