package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// Owner returns the current owner principal.
func (v *Vault) Owner() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.Owner
}

// IsOwner reports whether p is the current owner.
func (v *Vault) IsOwner(p common.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isOwnerLocked(p)
}

// RequireOwner fails with ErrUnauthorized unless p is the current owner.
func (v *Vault) RequireOwner(p common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.requireOwnerLocked(p)
}

// IsPaused reports whether the kill-switch is engaged.
func (v *Vault) IsPaused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.Paused
}

func (v *Vault) isOwnerLocked(p common.Address) bool {
	return p != (common.Address{}) && p == v.ledger.Owner
}

func (v *Vault) requireOwnerLocked(p common.Address) error {
	if !v.isOwnerLocked(p) {
		return ErrUnauthorized
	}
	return nil
}

// TransferOwnership hands the owner capability to next.
func (v *Vault) TransferOwnership(ctx context.Context, caller, next common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return ErrInvalidOwner
	}

	ledger := v.ledger
	ledger.Owner = next

	obs := v.observation(model.ObservationOwnershipTransferred)
	obs.Actor = caller
	obs.Account = next

	if err := v.commit(ctx, model.Mutation{Ledger: &ledger}, obs); err != nil {
		return err
	}
	v.logger.Info("vault: ownership transferred",
		zap.String("from", caller.Hex()),
		zap.String("to", next.Hex()))
	return nil
}
