package subhub

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/id"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/types"
)

// ──────────────────────────────────────────────────
// Claim ledger
// ──────────────────────────────────────────────────

// Claim pays the service's full unclaimed balance to its receiver. Only
// the proposer may claim.
func (h *Hub) Claim(ctx context.Context, serviceID service.ID) (types.Amount, error) {
	caller, err := h.sender(ctx)
	if err != nil {
		return types.Zero, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	svc, err := h.store.GetService(ctx, serviceID)
	if err != nil {
		return types.Zero, err
	}
	if svc.Proposer != caller {
		return types.Zero, ErrUnauthorized
	}

	payout, err := h.payOut(ctx, svc, claim.PayoutClaim)
	if err != nil {
		return types.Zero, err
	}
	if payout == nil {
		return types.Zero, ErrNothingToClaim
	}
	return payout.Amount, nil
}

// payOut moves the unclaimed balance of svc to its receiver. It returns a
// nil payout when there is nothing to move. Callers hold h.mu.
func (h *Hub) payOut(ctx context.Context, svc *service.Service, kind claim.PayoutKind) (*claim.Payout, error) {
	amount, err := h.store.GetBalance(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, nil //nolint:nilnil // nothing to pay out
	}

	if err := h.ledger.Transfer(ctx, svc.Asset, h.cfg.Custody, svc.Receiver, amount); err != nil {
		return nil, fmt.Errorf("subhub: pay out %s: %w", svc.ID.Hex(), err)
	}
	if _, err := h.store.ClearBalance(ctx, svc.ID); err != nil {
		return nil, fmt.Errorf("subhub: clear balance: %w", err)
	}

	payout := &claim.Payout{
		ID:        id.NewClaimID(),
		Kind:      kind,
		ServiceID: svc.ID,
		Asset:     svc.Asset,
		To:        svc.Receiver,
		Amount:    amount,
		Time:      h.clock.Now(),
		PaidAt:    time.Now().UTC(),
	}
	if err := h.store.RecordPayout(ctx, payout); err != nil {
		h.logger.Error("failed to record payout", "service_id", svc.ID.Hex(), "error", err)
	}

	h.plugins.EmitClaimed(ctx, payout)

	h.logger.Info("proceeds paid out",
		"service_id", svc.ID.Hex(),
		"receiver", svc.Receiver.Hex(),
		"amount", amount.String(),
		"kind", string(kind),
	)

	return payout, nil
}

// UnclaimedAmount returns the settled proceeds awaiting claim.
func (h *Hub) UnclaimedAmount(ctx context.Context, serviceID service.ID) (types.Amount, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.GetBalance(ctx, serviceID)
}

// ──────────────────────────────────────────────────
// Protocol fee treasury
// ──────────────────────────────────────────────────

// FeeBalance returns the retained protocol fees held for asset.
func (h *Hub) FeeBalance(ctx context.Context, asset common.Address) (types.Amount, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.GetFees(ctx, asset)
}

// WithdrawFees sends all retained fees for asset to the fee collector.
func (h *Hub) WithdrawFees(ctx context.Context, asset common.Address) (types.Amount, error) {
	caller, err := h.sender(ctx)
	if err != nil {
		return types.Zero, err
	}
	if h.cfg.FeeCollector == (common.Address{}) || caller != h.cfg.FeeCollector {
		return types.Zero, ErrUnauthorized
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	amount, err := h.store.GetFees(ctx, asset)
	if err != nil {
		return types.Zero, err
	}
	if amount.IsZero() {
		return types.Zero, ErrNothingToClaim
	}

	if err := h.ledger.Transfer(ctx, asset, h.cfg.Custody, h.cfg.FeeCollector, amount); err != nil {
		return types.Zero, fmt.Errorf("subhub: withdraw fees: %w", err)
	}
	if _, err := h.store.ClearFees(ctx, asset); err != nil {
		return types.Zero, fmt.Errorf("subhub: clear fees: %w", err)
	}

	payout := &claim.Payout{
		ID:     id.NewWithdrawalID(),
		Kind:   claim.PayoutWithdrawal,
		Asset:  asset,
		To:     h.cfg.FeeCollector,
		Amount: amount,
		Time:   h.clock.Now(),
		PaidAt: time.Now().UTC(),
	}
	if err := h.store.RecordPayout(ctx, payout); err != nil {
		h.logger.Error("failed to record fee withdrawal", "asset", asset.Hex(), "error", err)
	}

	h.plugins.EmitFeesWithdrawn(ctx, asset, amount)

	h.logger.Info("fees withdrawn",
		"asset", asset.Hex(),
		"amount", amount.String(),
	)

	return amount, nil
}

// Settlements lists the settlement receipts of a service.
func (h *Hub) Settlements(ctx context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Settlement, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.ListSettlements(ctx, serviceID, opts)
}

// Payouts lists the payouts of a service. The zero service id lists fee
// withdrawals.
func (h *Hub) Payouts(ctx context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Payout, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.ListPayouts(ctx, serviceID, opts)
}
