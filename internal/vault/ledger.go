package vault

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// navScale is the fixed-point scale of NAVPerShare.
var navScale = sdkmath.NewInt(1_000_000)

// Deposit pulls amount from the account's wallet and mints shares 1:1.
// It returns the number of shares minted.
func (v *Vault) Deposit(ctx context.Context, account common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ledger.Paused {
		return sdkmath.ZeroInt(), ErrPaused
	}

	shares := amount
	acct := v.accountLocked(account)
	acct.Shares = acct.Shares.Add(shares)

	ledger := v.ledger
	ledger.TotalAssets = ledger.TotalAssets.Add(amount)
	ledger.TotalShares = ledger.TotalShares.Add(shares)

	if err := v.custodian.Pull(ctx, account, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	obs := v.observation(model.ObservationDeposit)
	obs.Account = account
	obs.Amount = amount
	obs.Shares = shares
	obs.TVL = ledger.TotalAssets

	mut := model.Mutation{Ledger: &ledger, Accounts: []model.Account{acct}}
	if err := v.commit(ctx, mut, obs); err != nil {
		if rerr := v.custodian.Push(ctx, account, amount); rerr != nil {
			v.logger.Error("vault: refund after failed deposit", zap.String("account", account.Hex()), zap.Error(rerr))
		}
		return sdkmath.ZeroInt(), err
	}

	v.logger.Debug("vault: deposit accepted",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
		zap.String("total_assets", ledger.TotalAssets.String()))
	return shares, nil
}

// Withdraw burns shareAmount and releases the same amount of the asset.
// It returns the asset amount released.
func (v *Vault) Withdraw(ctx context.Context, account common.Address, shareAmount sdkmath.Int) (sdkmath.Int, error) {
	if shareAmount.IsNil() || !shareAmount.IsPositive() {
		return sdkmath.ZeroInt(), ErrInsufficientShares
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ledger.Paused {
		return sdkmath.ZeroInt(), ErrPaused
	}

	acct := v.accountLocked(account)
	if shareAmount.GT(acct.Shares) {
		return sdkmath.ZeroInt(), ErrInsufficientShares
	}

	amount := shareAmount
	acct.Shares = acct.Shares.Sub(shareAmount)

	ledger := v.ledger
	ledger.TotalAssets = ledger.TotalAssets.Sub(amount)
	ledger.TotalShares = ledger.TotalShares.Sub(shareAmount)

	if err := v.custodian.Push(ctx, account, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	obs := v.observation(model.ObservationWithdraw)
	obs.Account = account
	obs.Amount = amount
	obs.Shares = shareAmount
	obs.TVL = ledger.TotalAssets

	mut := model.Mutation{Ledger: &ledger, Accounts: []model.Account{acct}}
	if err := v.commit(ctx, mut, obs); err != nil {
		if rerr := v.custodian.Pull(ctx, account, amount); rerr != nil {
			v.logger.Error("vault: reclaim after failed withdraw", zap.String("account", account.Hex()), zap.Error(rerr))
		}
		return sdkmath.ZeroInt(), err
	}

	v.logger.Debug("vault: withdraw accepted",
		zap.String("account", account.Hex()),
		zap.String("shares", shareAmount.String()),
		zap.String("total_assets", ledger.TotalAssets.String()))
	return amount, nil
}

// Pause engages the kill-switch. Only the owner may call it.
func (v *Vault) Pause(ctx context.Context, caller common.Address, reason string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}

	ledger := v.ledger
	ledger.Paused = true
	ledger.PauseReason = reason

	obs := v.observation(model.ObservationEmergencyPaused)
	obs.Actor = caller
	obs.Reason = reason

	if err := v.commit(ctx, model.Mutation{Ledger: &ledger}, obs); err != nil {
		return err
	}
	v.logger.Warn("vault: paused", zap.String("reason", reason))
	return nil
}

// Resume releases the kill-switch. Only the owner may call it.
func (v *Vault) Resume(ctx context.Context, caller common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}

	ledger := v.ledger
	ledger.Paused = false
	ledger.PauseReason = ""

	obs := v.observation(model.ObservationResumed)
	obs.Actor = caller

	if err := v.commit(ctx, model.Mutation{Ledger: &ledger}, obs); err != nil {
		return err
	}
	v.logger.Info("vault: resumed")
	return nil
}

// Ledger returns a copy of the aggregate ledger state.
func (v *Vault) Ledger() model.LedgerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger
}

// TotalAssets returns the pooled asset balance.
func (v *Vault) TotalAssets() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.TotalAssets
}

// TotalShares returns the sum of all account shares.
func (v *Vault) TotalShares() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.TotalShares
}

// Account returns a copy of the account, or an idle zero-share account if
// it has never deposited.
func (v *Vault) Account(addr common.Address) model.Account {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accountLocked(addr)
}

// SharesOf returns the account's share balance.
func (v *Vault) SharesOf(addr common.Address) sdkmath.Int {
	return v.Account(addr).Shares
}

// NAVPerShare returns assets per share scaled by 1e6. An empty vault
// reports 1e6.
func (v *Vault) NAVPerShare() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ledger.TotalShares.IsZero() {
		return navScale
	}
	return v.ledger.TotalAssets.Mul(navScale).Quo(v.ledger.TotalShares)
}
