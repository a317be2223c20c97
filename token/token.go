// Package token is the boundary to the external fungible-asset ledger that
// holds balances and allowances. The hub never owns balances; it only calls
// into a Ledger.
package token

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/types"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// IsFundsError reports whether err means the payer could not cover a debit.
func IsFundsError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrInsufficientAllowance)
}

// Ledger is an ERC-20 style asset ledger spanning many assets.
type Ledger interface {
	BalanceOf(ctx context.Context, asset, account common.Address) (types.Amount, error)
	Allowance(ctx context.Context, asset, owner, spender common.Address) (types.Amount, error)
	// TransferFrom pulls amount from `from` to `to` against the allowance
	// `from` granted `spender`.
	TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount types.Amount) error
	// Transfer moves amount out of from's own balance.
	Transfer(ctx context.Context, asset, from, to common.Address, amount types.Amount) error
}
