package custody

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var wallet = common.HexToAddress("0x00000000000000000000000000000000000000d4")

func TestBook_PullRequiresBalance(t *testing.T) {
	b := NewBook(false)
	ctx := context.Background()
	if err := b.Pull(ctx, wallet, sdkmath.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := b.Credit(wallet, sdkmath.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	if err := b.Pull(ctx, wallet, sdkmath.NewInt(7)); err != nil {
		t.Fatal(err)
	}
	if err := b.Push(ctx, wallet, sdkmath.NewInt(2)); err != nil {
		t.Fatal(err)
	}
	if got := b.BalanceOf(wallet); !got.Equal(sdkmath.NewInt(5)) {
		t.Errorf("balance = %s, want 5", got)
	}
}

func TestBook_Unlimited(t *testing.T) {
	b := NewBook(true)
	if err := b.Pull(context.Background(), wallet, sdkmath.NewInt(1_000)); err != nil {
		t.Fatalf("unlimited pull: %v", err)
	}
	if got := b.BalanceOf(wallet); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestBook_CreditRejectsNonPositive(t *testing.T) {
	b := NewBook(false)
	if err := b.Credit(wallet, sdkmath.ZeroInt()); err == nil {
		t.Error("expected zero credit to fail")
	}
}
