// Package claim tracks settled-but-unclaimed proceeds per service, the
// protocol fee treasury per asset, and the receipts behind both.
package claim

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/id"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/types"
)

// Settlement is the receipt of one successful charge.
type Settlement struct {
	ID         id.ID          `json:"id"`
	Subscriber common.Address `json:"subscriber"`
	ServiceID  service.ID     `json:"service_id"`
	Version    uint64         `json:"version"`
	Asset      common.Address `json:"asset"`
	Amount     types.Amount   `json:"amount"`
	Fee        types.Amount   `json:"fee"`
	Net        types.Amount   `json:"net"`
	Time       uint64         `json:"time"`
	SettledAt  time.Time      `json:"settled_at"`
}

// Split divides a charge into the retained fee and the service's share.
// The fee is truncated toward zero.
func Split(amount types.Amount, feePercentage uint64) (fee, net types.Amount) {
	fee = amount.Percent(feePercentage)
	net, _ = amount.Sub(fee) //nolint:errcheck // fee <= amount for feePercentage <= 100
	return fee, net
}

type PayoutKind string

const (
	PayoutClaim      PayoutKind = "claim"
	PayoutAutoClaim  PayoutKind = "auto_claim"
	PayoutWithdrawal PayoutKind = "fee_withdrawal"
)

// Payout records funds leaving custody. Fee withdrawals carry a zero
// ServiceID.
type Payout struct {
	ID        id.ID          `json:"id"`
	Kind      PayoutKind     `json:"kind"`
	ServiceID service.ID     `json:"service_id"`
	Asset     common.Address `json:"asset"`
	To        common.Address `json:"to"`
	Amount    types.Amount   `json:"amount"`
	Time      uint64         `json:"time"`
	PaidAt    time.Time      `json:"paid_at"`
}

type ListOpts struct {
	Limit  int
	Offset int
}
