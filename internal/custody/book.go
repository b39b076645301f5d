package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// Book tracks external wallet balances of the vault asset. In unlimited mode
// pulls never fail, which suits demos where wallets are not modelled.
type Book struct {
	mu        sync.Mutex
	balances  map[common.Address]sdkmath.Int
	unlimited bool
}

func NewBook(unlimited bool) *Book {
	return &Book{balances: make(map[common.Address]sdkmath.Int), unlimited: unlimited}
}

// Credit adds amount to a wallet.
func (b *Book) Credit(addr common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = b.balanceLocked(addr).Add(amount)
	return nil
}

// BalanceOf returns the wallet's external balance.
func (b *Book) BalanceOf(addr common.Address) sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(addr)
}

// Pull debits a wallet for a deposit.
func (b *Book) Pull(_ context.Context, from common.Address, amount sdkmath.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balanceLocked(from)
	if amount.GT(bal) {
		if !b.unlimited {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
		}
		bal = amount
	}
	b.balances[from] = bal.Sub(amount)
	return nil
}

// Push credits a wallet for a withdrawal.
func (b *Book) Push(_ context.Context, to common.Address, amount sdkmath.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[to] = b.balanceLocked(to).Add(amount)
	return nil
}

func (b *Book) balanceLocked(addr common.Address) sdkmath.Int {
	if v, ok := b.balances[addr]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}
