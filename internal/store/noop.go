package store

import (
	"context"

	"AegisVault/internal/model"
)

// NoopStore keeps nothing; the vault lives only in memory.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) Load(_ context.Context) (*model.Snapshot, error) { return nil, nil }
func (n *NoopStore) Apply(_ context.Context, _ model.Mutation) error { return nil }
func (n *NoopStore) Close() error                                    { return nil }
