package recorder

import (
	"context"

	"AegisVault/internal/model"
)

// JournalEntry is one persisted observation.
type JournalEntry struct {
	ID          int64             `json:"id"`
	Observation model.Observation `json:"observation"`
}

// Recorder persists observations for later inspection.
type Recorder interface {
	RecordObservation(obs *model.Observation) error
	Recent(limit int) ([]JournalEntry, error)
	Close() error
}

// Sink adapts a Recorder to the observation bus.
type Sink struct {
	Recorder Recorder
}

func (s Sink) Name() string { return "journal" }

func (s Sink) Handle(_ context.Context, obs model.Observation) error {
	return s.Recorder.RecordObservation(&obs)
}
