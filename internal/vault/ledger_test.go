package vault

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"AegisVault/internal/model"
)

func TestDeposit_MintsOneToOne(t *testing.T) {
	h := newHarness(t)
	shares, err := h.v.Deposit(context.Background(), alice, amt(100))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !shares.Equal(amt(100)) {
		t.Errorf("minted %s, want 100", shares)
	}
	if !h.v.TotalAssets().Equal(amt(100)) || !h.v.TotalShares().Equal(amt(100)) {
		t.Errorf("totals = %s/%s", h.v.TotalAssets(), h.v.TotalShares())
	}
	if !h.cust.pulled.Equal(amt(100)) {
		t.Errorf("custodian pulled %s", h.cust.pulled)
	}
	obs := h.pub.last()
	if obs.Kind != model.ObservationDeposit || obs.Account != alice || !obs.Amount.Equal(amt(100)) || !obs.Shares.Equal(amt(100)) {
		t.Errorf("unexpected observation %+v", obs)
	}
	checkConservation(t, h.v)
}

func TestDeposit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		amount  sdkmath.Int
		wantErr error
	}{
		{"zero amount", nil, amt(0), ErrInvalidAmount},
		{"negative amount", nil, amt(-5), ErrInvalidAmount},
		{"nil amount", nil, sdkmath.Int{}, ErrInvalidAmount},
		{"paused", func(h *harness) {
			if err := h.v.Pause(context.Background(), owner, "incident"); err != nil {
				t.Fatal(err)
			}
		}, amt(10), ErrPaused},
		{"custodian refuses", func(h *harness) { h.cust.failPull = true }, amt(10), ErrTransferFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			before := len(h.pub.obs)
			if _, err := h.v.Deposit(context.Background(), alice, tt.amount); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !h.v.TotalAssets().IsZero() || !h.v.SharesOf(alice).IsZero() {
				t.Errorf("state changed after rejected deposit")
			}
			if len(h.pub.obs) != before {
				t.Errorf("rejected deposit emitted %v", h.pub.kinds()[before:])
			}
		})
	}
}

func TestDeposit_PersistFailureRefunds(t *testing.T) {
	h := newHarness(t)
	h.store.fail = true
	if _, err := h.v.Deposit(context.Background(), alice, amt(50)); err == nil {
		t.Fatal("expected persistence error")
	}
	if !h.v.TotalAssets().IsZero() {
		t.Errorf("total assets = %s after failed persist", h.v.TotalAssets())
	}
	if !h.cust.pushed.Equal(amt(50)) {
		t.Errorf("expected refund of 50, custodian pushed %s", h.cust.pushed)
	}
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.v.Deposit(ctx, alice, amt(100)); err != nil {
		t.Fatal(err)
	}

	released, err := h.v.Withdraw(ctx, alice, amt(50))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !released.Equal(amt(50)) {
		t.Errorf("released %s, want 50", released)
	}
	if !h.v.TotalAssets().Equal(amt(50)) || !h.v.SharesOf(alice).Equal(amt(50)) {
		t.Errorf("after withdraw: assets %s shares %s", h.v.TotalAssets(), h.v.SharesOf(alice))
	}
	if obs := h.pub.last(); obs.Kind != model.ObservationWithdraw || !obs.Shares.Equal(amt(50)) {
		t.Errorf("unexpected observation %+v", obs)
	}
	checkConservation(t, h.v)
}

func TestWithdraw_FullBalanceLeavesNoDust(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.v.Deposit(ctx, alice, amt(777)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.v.Withdraw(ctx, alice, amt(777)); err != nil {
		t.Fatal(err)
	}
	if !h.v.SharesOf(alice).IsZero() || !h.v.TotalAssets().IsZero() || !h.v.TotalShares().IsZero() {
		t.Errorf("residual balance after full withdraw")
	}
	checkConservation(t, h.v)
}

func TestWithdraw_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		shares  sdkmath.Int
		wantErr error
	}{
		{"more than held", nil, amt(101), ErrInsufficientShares},
		{"zero", nil, amt(0), ErrInsufficientShares},
		{"negative", nil, amt(-1), ErrInsufficientShares},
		{"paused", func(h *harness) {
			if err := h.v.Pause(context.Background(), owner, "incident"); err != nil {
				t.Fatal(err)
			}
		}, amt(10), ErrPaused},
		{"custodian refuses", func(h *harness) { h.cust.failPush = true }, amt(10), ErrTransferFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if _, err := h.v.Deposit(context.Background(), alice, amt(100)); err != nil {
				t.Fatal(err)
			}
			if tt.setup != nil {
				tt.setup(h)
			}
			if _, err := h.v.Withdraw(context.Background(), alice, tt.shares); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !h.v.SharesOf(alice).Equal(amt(100)) || !h.v.TotalAssets().Equal(amt(100)) {
				t.Errorf("balances changed after rejected withdraw")
			}
			checkConservation(t, h.v)
		})
	}
}

func TestDepositWithdraw_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.v.Deposit(ctx, alice, amt(30)); err != nil {
		t.Fatal(err)
	}
	before := h.v.SharesOf(alice)

	minted, err := h.v.Deposit(ctx, alice, amt(1234))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.v.Withdraw(ctx, alice, minted); err != nil {
		t.Fatal(err)
	}
	if !h.v.SharesOf(alice).Equal(before) {
		t.Errorf("round trip left %s shares, want %s", h.v.SharesOf(alice), before)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.v.Pause(ctx, alice, "not mine"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.v.Pause(ctx, owner, "oracle outage"); err != nil {
		t.Fatal(err)
	}
	if !h.v.IsPaused() {
		t.Fatal("expected paused")
	}
	if obs := h.pub.last(); obs.Kind != model.ObservationEmergencyPaused || obs.Reason != "oracle outage" || obs.Actor != owner {
		t.Errorf("unexpected pause observation %+v", obs)
	}
	if _, err := h.v.Deposit(ctx, alice, amt(10)); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}

	if err := h.v.Resume(ctx, alice); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.v.Resume(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := h.v.Deposit(ctx, alice, amt(10)); err != nil {
		t.Fatalf("deposit after resume: %v", err)
	}
}

func TestNAVPerShare(t *testing.T) {
	h := newHarness(t)
	if got := h.v.NAVPerShare(); !got.Equal(amt(1_000_000)) {
		t.Errorf("empty NAV = %s", got)
	}
	if _, err := h.v.Deposit(context.Background(), alice, amt(5)); err != nil {
		t.Fatal(err)
	}
	if got := h.v.NAVPerShare(); !got.Equal(amt(1_000_000)) {
		t.Errorf("NAV = %s, want 1e6 under 1:1 issuance", got)
	}
}

func TestLedger_ConcurrentAccounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	accounts := make([]common.Address, 8)
	for i := range accounts {
		accounts[i] = common.BigToAddress(sdkmath.NewInt(int64(1000 + i)).BigInt())
	}

	var wg sync.WaitGroup
	for _, a := range accounts {
		wg.Add(1)
		go func(a common.Address) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := h.v.Deposit(ctx, a, amt(3)); err != nil {
					t.Errorf("deposit: %v", err)
					return
				}
				if _, err := h.v.Withdraw(ctx, a, amt(1)); err != nil {
					t.Errorf("withdraw: %v", err)
					return
				}
			}
		}(a)
	}
	wg.Wait()

	want := amt(int64(len(accounts) * 50 * 2))
	if !h.v.TotalAssets().Equal(want) {
		t.Errorf("total assets = %s, want %s", h.v.TotalAssets(), want)
	}
	checkConservation(t, h.v)
}
