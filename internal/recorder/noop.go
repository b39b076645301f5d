package recorder

import "AegisVault/internal/model"

// NoopRecorder is a no-op implementation used when the journal is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordObservation(_ *model.Observation) error { return nil }
func (n *NoopRecorder) Recent(_ int) ([]JournalEntry, error)         { return nil, nil }
func (n *NoopRecorder) Close() error                                 { return nil }
