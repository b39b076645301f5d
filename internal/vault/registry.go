package vault

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// AddModel registers a new advisory model and makes it the only active one.
func (v *Vault) AddModel(ctx context.Context, caller common.Address, version string, accuracy int) (model.AdvisoryModel, error) {
	version = strings.TrimSpace(version)

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwnerLocked(caller); err != nil {
		return model.AdvisoryModel{}, err
	}
	if version == "" || accuracy < 0 || accuracy > 100 {
		return model.AdvisoryModel{}, ErrInvalidModel
	}

	next := model.AdvisoryModel{
		ID:        uint64(len(v.models)) + 1,
		Version:   version,
		Accuracy:  uint8(accuracy),
		Active:    true,
		CreatedAt: v.now().Unix(),
	}

	var changed []model.AdvisoryModel
	for _, m := range v.models {
		if m.Active {
			m.Active = false
			changed = append(changed, m)
		}
	}
	changed = append(changed, next)

	obs := v.observation(model.ObservationModelUpdated)
	obs.Actor = caller
	obs.ModelID = next.ID
	obs.Version = next.Version

	mut := model.Mutation{Models: changed, ActiveModelID: next.ID}
	if err := v.commit(ctx, mut, obs); err != nil {
		return model.AdvisoryModel{}, err
	}
	v.logger.Info("vault: model activated",
		zap.Uint64("id", next.ID),
		zap.String("version", next.Version),
		zap.Uint8("accuracy", next.Accuracy))
	return next, nil
}

// ActiveModel returns the single active model.
func (v *Vault) ActiveModel() (model.AdvisoryModel, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activeModelLocked()
}

func (v *Vault) activeModelLocked() (model.AdvisoryModel, error) {
	idx := int(v.activeModelID) - 1
	if idx < 0 || idx >= len(v.models) || !v.models[idx].Active {
		return model.AdvisoryModel{}, ErrNoActiveModel
	}
	return v.models[idx], nil
}

// ModelCount returns how many models have ever been registered, the seed
// included.
func (v *Vault) ModelCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.models)
}

// Model looks up a model by id.
func (v *Vault) Model(id uint64) (model.AdvisoryModel, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id == 0 || id > uint64(len(v.models)) {
		return model.AdvisoryModel{}, false
	}
	return v.models[id-1], true
}

// Models returns every registered model ordered by id.
func (v *Vault) Models() []model.AdvisoryModel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.AdvisoryModel(nil), v.models...)
}
