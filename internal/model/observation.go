package model

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// ObservationKind names a vault state transition.
type ObservationKind string

const (
	ObservationDeposit              ObservationKind = "Deposit"
	ObservationWithdraw             ObservationKind = "Withdraw"
	ObservationEmergencyPaused      ObservationKind = "EmergencyPaused"
	ObservationResumed              ObservationKind = "Resumed"
	ObservationOwnershipTransferred ObservationKind = "OwnershipTransferred"
	ObservationModelUpdated         ObservationKind = "ModelUpdated"
	ObservationAIRequested          ObservationKind = "AIRequested"
	ObservationAIResponseReceived   ObservationKind = "AIResponseReceived"
	ObservationAIRequestExpired     ObservationKind = "AIRequestExpired"
	ObservationAIRequestFailed      ObservationKind = "AIRequestFailed"
	ObservationAnalysisTriggered    ObservationKind = "AnalysisTriggered"
	ObservationIntervalUpdated      ObservationKind = "IntervalUpdated"
	ObservationMinTVLUpdated        ObservationKind = "MinTVLUpdated"
)

// Observation is an immutable record of one committed transition. Seq is
// strictly increasing within a process and reflects commit order.
type Observation struct {
	Seq            uint64          `json:"seq"`
	Kind           ObservationKind `json:"kind"`
	At             time.Time       `json:"at"`
	Account        common.Address  `json:"account"`
	Actor          common.Address  `json:"actor"`
	Amount         sdkmath.Int     `json:"amount"`
	Shares         sdkmath.Int     `json:"shares"`
	TVL            sdkmath.Int     `json:"tvl"`
	RequestID      string          `json:"requestId,omitempty"`
	ModelID        uint64          `json:"modelId,omitempty"`
	Version        string          `json:"version,omitempty"`
	Recommendation Recommendation  `json:"recommendation,omitempty"`
	Confidence     uint8           `json:"confidence,omitempty"`
	RiskLevel      RiskLevel       `json:"riskLevel,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Interval       int64           `json:"interval,omitempty"`
}

// NewObservation returns an observation of the given kind with every amount
// initialised to zero.
func NewObservation(kind ObservationKind, at time.Time) Observation {
	return Observation{
		Kind:   kind,
		At:     at,
		Amount: sdkmath.ZeroInt(),
		Shares: sdkmath.ZeroInt(),
		TVL:    sdkmath.ZeroInt(),
	}
}
