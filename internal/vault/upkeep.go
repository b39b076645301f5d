package vault

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// CheckUpkeep reports whether an advisory refresh is due: a full interval has
// elapsed since the last analysis and the pool holds at least the TVL
// threshold. The payload snapshots the inputs for PerformUpkeep.
func (v *Vault) CheckUpkeep() (bool, model.UpkeepPayload) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now().Unix()
	payload := model.UpkeepPayload{TotalAssets: v.ledger.TotalAssets, Timestamp: now}
	due := now-v.upkeep.LastAnalysisTime >= v.upkeep.AnalysisInterval
	funded := v.ledger.TotalAssets.GTE(v.upkeep.MinTVLToAnalyze)
	return due && funded, payload
}

// PerformUpkeep marks an analysis as triggered. Elapsed time is re-checked
// here rather than trusted from payload, so a second trigger racing the
// first fails with ErrTooSoon.
func (v *Vault) PerformUpkeep(ctx context.Context, payload model.UpkeepPayload) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now().Unix()
	if now-v.upkeep.LastAnalysisTime < v.upkeep.AnalysisInterval {
		return ErrTooSoon
	}

	tvl := payload.TotalAssets
	if tvl.IsNil() {
		tvl = v.ledger.TotalAssets
	}

	upkeep := v.upkeep
	upkeep.LastAnalysisTime = now

	obs := v.observation(model.ObservationAnalysisTriggered)
	obs.TVL = tvl

	if err := v.commit(ctx, model.Mutation{Upkeep: &upkeep}, obs); err != nil {
		return err
	}
	v.logger.Info("vault: analysis triggered", zap.String("tvl", tvl.String()))
	return nil
}

// SetAnalysisInterval changes how often upkeep may fire.
func (v *Vault) SetAnalysisInterval(ctx context.Context, caller common.Address, interval time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if interval < v.limits.MinInterval {
		return ErrIntervalTooShort
	}
	if interval > v.limits.MaxInterval {
		return ErrIntervalTooLong
	}

	upkeep := v.upkeep
	upkeep.AnalysisInterval = int64(interval / time.Second)

	obs := v.observation(model.ObservationIntervalUpdated)
	obs.Actor = caller
	obs.Interval = upkeep.AnalysisInterval

	return v.commit(ctx, model.Mutation{Upkeep: &upkeep}, obs)
}

// SetMinTVL changes the asset threshold below which upkeep never fires.
func (v *Vault) SetMinTVL(ctx context.Context, caller common.Address, amount sdkmath.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}

	upkeep := v.upkeep
	upkeep.MinTVLToAnalyze = amount

	obs := v.observation(model.ObservationMinTVLUpdated)
	obs.Actor = caller
	obs.Amount = amount

	return v.commit(ctx, model.Mutation{Upkeep: &upkeep}, obs)
}

// UpkeepState returns a copy of the upkeep gate.
func (v *Vault) UpkeepState() model.UpkeepState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.upkeep
}
