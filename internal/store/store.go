package store

import (
	"context"
	"sort"

	"AegisVault/internal/model"
)

// Store persists vault state. Load returns nil when nothing has been stored
// yet. Apply must be all-or-nothing.
type Store interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	Apply(ctx context.Context, m model.Mutation) error
	Close() error
}

// merge folds m into snap in place.
func merge(snap *model.Snapshot, m model.Mutation) {
	if m.Ledger != nil {
		snap.Ledger = *m.Ledger
	}
	for _, a := range m.Accounts {
		replaced := false
		for i := range snap.Accounts {
			if snap.Accounts[i].Address == a.Address {
				snap.Accounts[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			snap.Accounts = append(snap.Accounts, a)
		}
	}
	for _, md := range m.Models {
		replaced := false
		for i := range snap.Models {
			if snap.Models[i].ID == md.ID {
				snap.Models[i] = md
				replaced = true
				break
			}
		}
		if !replaced {
			snap.Models = append(snap.Models, md)
		}
	}
	sort.Slice(snap.Models, func(i, j int) bool { return snap.Models[i].ID < snap.Models[j].ID })
	if m.ActiveModelID != 0 {
		snap.ActiveModelID = m.ActiveModelID
	}
	if m.Upkeep != nil {
		snap.Upkeep = *m.Upkeep
	}
	if len(m.DeletePending) > 0 {
		drop := make(map[string]bool, len(m.DeletePending))
		for _, id := range m.DeletePending {
			drop[id] = true
		}
		kept := snap.Pending[:0]
		for _, p := range snap.Pending {
			if !drop[p.RequestID] {
				kept = append(kept, p)
			}
		}
		snap.Pending = kept
	}
	snap.Pending = append(snap.Pending, m.PutPending...)
}
