package notifier

import (
	"context"

	"AegisVault/internal/model"
)

var operatorKinds = map[model.ObservationKind]bool{
	model.ObservationEmergencyPaused:      true,
	model.ObservationResumed:             true,
	model.ObservationOwnershipTransferred: true,
	model.ObservationModelUpdated:         true,
	model.ObservationAnalysisTriggered:    true,
	model.ObservationAIRequestFailed:      true,
}

// Sink forwards operator-relevant observations to Telegram.
type Sink struct {
	Notifier   *TelegramNotifier
	Symbol     string
	Decimals   int32
	MaxRetries int
}

func (s Sink) Name() string { return "telegram" }

func (s Sink) Handle(ctx context.Context, obs model.Observation) error {
	if !operatorKinds[obs.Kind] {
		return nil
	}
	return s.Notifier.SendWithRetry(ctx, FormatObservation(obs, s.Symbol, s.Decimals), s.MaxRetries)
}
