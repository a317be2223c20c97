// Package memory provides an in-process token ledger for devnets and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/token"
	"github.com/xraph/subhub/types"
)

var _ token.Ledger = (*Ledger)(nil)

type balanceKey struct {
	asset, account common.Address
}

type allowanceKey struct {
	asset, owner, spender common.Address
}

// Ledger is a thread-safe multi-asset ledger.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[balanceKey]types.Amount
	allowances map[allowanceKey]types.Amount
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]types.Amount),
		allowances: make(map[allowanceKey]types.Amount),
	}
}

// Mint credits amount of asset to account.
func (l *Ledger) Mint(asset, account common.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{asset, account}
	next, err := l.balances[k].Add(amount)
	if err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	l.balances[k] = next
	return nil
}

// Approve sets the allowance owner grants spender, replacing any prior value.
func (l *Ledger) Approve(asset, owner, spender common.Address, amount types.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{asset, owner, spender}] = amount
}

func (l *Ledger) BalanceOf(_ context.Context, asset, account common.Address) (types.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{asset, account}], nil
}

func (l *Ledger) Allowance(_ context.Context, asset, owner, spender common.Address) (types.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[allowanceKey{asset, owner, spender}], nil
}

func (l *Ledger) TransferFrom(_ context.Context, asset, spender, from, to common.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ak := allowanceKey{asset, from, spender}
	remaining, err := l.allowances[ak].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s allowed %s", token.ErrInsufficientAllowance, from.Hex(), l.allowances[ak])
	}
	if err := l.move(asset, from, to, amount); err != nil {
		return err
	}
	l.allowances[ak] = remaining
	return nil
}

func (l *Ledger) Transfer(_ context.Context, asset, from, to common.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(asset, from, to, amount)
}

func (l *Ledger) move(asset, from, to common.Address, amount types.Amount) error {
	fk, tk := balanceKey{asset, from}, balanceKey{asset, to}

	debited, err := l.balances[fk].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s", token.ErrInsufficientBalance, from.Hex(), l.balances[fk])
	}
	l.balances[fk] = debited

	credited, err := l.balances[tk].Add(amount)
	if err != nil {
		return fmt.Errorf("token: credit: %w", err)
	}
	l.balances[tk] = credited
	return nil
}
