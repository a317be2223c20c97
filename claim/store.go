package claim

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/types"
)

type Store interface {
	GetBalance(ctx context.Context, serviceID service.ID) (types.Amount, error)
	CreditBalance(ctx context.Context, serviceID service.ID, amount types.Amount) error
	// DebitBalance subtracts amount, failing with types.ErrAmountUnderflow
	// if the balance holds less.
	DebitBalance(ctx context.Context, serviceID service.ID, amount types.Amount) error
	// ClearBalance zeroes the balance and returns what it held.
	ClearBalance(ctx context.Context, serviceID service.ID) (types.Amount, error)

	GetFees(ctx context.Context, asset common.Address) (types.Amount, error)
	CreditFees(ctx context.Context, asset common.Address, amount types.Amount) error
	DebitFees(ctx context.Context, asset common.Address, amount types.Amount) error
	ClearFees(ctx context.Context, asset common.Address) (types.Amount, error)

	RecordSettlement(ctx context.Context, s *Settlement) error
	ListSettlements(ctx context.Context, serviceID service.ID, opts ListOpts) ([]*Settlement, error)
	RecordPayout(ctx context.Context, p *Payout) error
	ListPayouts(ctx context.Context, serviceID service.ID, opts ListOpts) ([]*Payout, error)
}
