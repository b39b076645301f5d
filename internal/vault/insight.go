package vault

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// RequestInsight admits a new advisory request for account, bound to the
// model active at this moment. It returns the request id the oracle must
// echo back.
func (v *Vault) RequestInsight(ctx context.Context, account common.Address, assetType, riskProfile string) (model.PendingRequest, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	acct := v.accountLocked(account)
	if acct.Pending() {
		return model.PendingRequest{}, ErrAlreadyPending
	}
	if v.ledger.Paused {
		return model.PendingRequest{}, ErrPaused
	}
	active, err := v.activeModelLocked()
	if err != nil {
		return model.PendingRequest{}, err
	}

	req := model.PendingRequest{
		RequestID:    uuid.NewString(),
		Account:      account,
		IssuedAt:     v.now().Unix(),
		ModelID:      active.ID,
		ModelVersion: active.Version,
		AssetType:    assetType,
		RiskProfile:  riskProfile,
	}
	acct.PendingRequest = req.RequestID

	obs := v.observation(model.ObservationAIRequested)
	obs.Account = account
	obs.RequestID = req.RequestID
	obs.ModelID = active.ID
	obs.Version = active.Version
	obs.Shares = acct.Shares

	mut := model.Mutation{Accounts: []model.Account{acct}, PutPending: []model.PendingRequest{req}}
	if err := v.commit(ctx, mut, obs); err != nil {
		return model.PendingRequest{}, err
	}
	v.logger.Debug("vault: insight requested",
		zap.String("account", account.Hex()),
		zap.String("request_id", req.RequestID),
		zap.Uint64("model_id", active.ID))
	return req, nil
}

// SubmitResponse commits an oracle answer for a pending request. Values are
// normalised rather than rejected; only an unknown request id fails.
func (v *Vault) SubmitResponse(ctx context.Context, resp model.OracleResponse) (model.InsightRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	req, ok := v.pending[resp.RequestID]
	if !ok {
		return model.InsightRecord{}, ErrUnknownRequest
	}

	record := NormalizeResponse(resp)
	record.Timestamp = v.now().Unix()
	record.ModelID = req.ModelID

	acct := v.accountLocked(req.Account)
	acct.Insight = record
	acct.PendingRequest = ""

	obs := v.observation(model.ObservationAIResponseReceived)
	obs.Account = req.Account
	obs.RequestID = req.RequestID
	obs.ModelID = req.ModelID
	obs.Recommendation = record.Recommendation
	obs.Confidence = record.Confidence
	obs.RiskLevel = record.RiskLevel

	mut := model.Mutation{Accounts: []model.Account{acct}, DeletePending: []string{req.RequestID}}
	if err := v.commit(ctx, mut, obs); err != nil {
		return model.InsightRecord{}, err
	}
	v.logger.Debug("vault: insight recorded",
		zap.String("account", req.Account.Hex()),
		zap.String("request_id", req.RequestID),
		zap.String("recommendation", string(record.Recommendation)),
		zap.Uint8("confidence", record.Confidence))
	return record, nil
}

// CancelOrExpire clears a pending request once it is older than timeout.
// An unknown id, or a request still within its timeout, is a no-op. It
// reports whether the request was cleared.
func (v *Vault) CancelOrExpire(ctx context.Context, requestID string, timeout time.Duration) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	req, ok := v.pending[requestID]
	if !ok || !v.expiredLocked(req, timeout) {
		return false, nil
	}
	if err := v.expireLocked(ctx, []model.PendingRequest{req}); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireStale clears every pending request older than timeout in a single
// operation and returns how many were cleared.
func (v *Vault) ExpireStale(ctx context.Context, timeout time.Duration) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var stale []model.PendingRequest
	for _, req := range v.pending {
		if v.expiredLocked(req, timeout) {
			stale = append(stale, req)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].IssuedAt == stale[j].IssuedAt {
			return stale[i].RequestID < stale[j].RequestID
		}
		return stale[i].IssuedAt < stale[j].IssuedAt
	})
	if err := v.expireLocked(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (v *Vault) expiredLocked(req model.PendingRequest, timeout time.Duration) bool {
	return v.now().Unix()-req.IssuedAt > int64(timeout/time.Second)
}

func (v *Vault) expireLocked(ctx context.Context, reqs []model.PendingRequest) error {
	mut := model.Mutation{}
	obs := make([]model.Observation, 0, len(reqs))
	for _, req := range reqs {
		acct := v.accountLocked(req.Account)
		acct.PendingRequest = ""
		mut.Accounts = append(mut.Accounts, acct)
		mut.DeletePending = append(mut.DeletePending, req.RequestID)

		o := v.observation(model.ObservationAIRequestExpired)
		o.Account = req.Account
		o.RequestID = req.RequestID
		o.ModelID = req.ModelID
		obs = append(obs, o)
	}
	if err := v.commit(ctx, mut, obs...); err != nil {
		return err
	}
	for _, req := range reqs {
		v.logger.Info("vault: insight request expired",
			zap.String("account", req.Account.Hex()),
			zap.String("request_id", req.RequestID))
	}
	return nil
}

// ReportFailure records that the oracle could not answer a request. The
// request stays pending until it is expired. It reports whether the request
// was known.
func (v *Vault) ReportFailure(requestID, reason string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	req, ok := v.pending[requestID]
	if !ok {
		return false
	}
	obs := v.observation(model.ObservationAIRequestFailed)
	obs.Account = req.Account
	obs.RequestID = requestID
	obs.ModelID = req.ModelID
	obs.Reason = reason
	v.emit(obs)

	v.logger.Warn("vault: oracle request failed",
		zap.String("request_id", requestID),
		zap.String("reason", reason))
	return true
}

// RequestStatus returns the pending request with the given id, if any.
func (v *Vault) RequestStatus(requestID string) (model.PendingRequest, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	req, ok := v.pending[requestID]
	return req, ok
}

// PendingCount returns how many requests await an oracle answer.
func (v *Vault) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}
