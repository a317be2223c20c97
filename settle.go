package subhub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/id"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/token"
)

// errCredit marks a charge that was collected but could not be booked. The
// pull has been reversed, so the entry is retried rather than ended.
var errCredit = errors.New("subhub: credit")

// charge pulls one period's amount from subscriber into custody and splits
// it between the fee treasury and the service's unclaimed balance. Nothing
// stays credited unless the whole charge succeeds: a failed credit undoes
// the ones before it and refunds the pull. Callers hold h.mu.
func (h *Hub) charge(ctx context.Context, subscriber common.Address, svc *service.Service, version, now uint64) (*claim.Settlement, error) {
	if err := h.ledger.TransferFrom(ctx, svc.Asset, h.cfg.Custody, subscriber, h.cfg.Custody, svc.Amount); err != nil {
		if token.IsFundsError(err) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return nil, fmt.Errorf("subhub: collect charge: %w", err)
	}

	fee, net := claim.Split(svc.Amount, h.cfg.FeePercentage)
	receipt := &claim.Settlement{
		ID:         id.NewSettlementID(),
		Subscriber: subscriber,
		ServiceID:  svc.ID,
		Version:    version,
		Asset:      svc.Asset,
		Amount:     svc.Amount,
		Fee:        fee,
		Net:        net,
		Time:       now,
		SettledAt:  time.Now().UTC(),
	}

	if err := h.store.CreditBalance(ctx, svc.ID, net); err != nil {
		h.reverse(ctx, receipt, false, false)
		return nil, fmt.Errorf("%w service: %w", errCredit, err)
	}
	if err := h.store.CreditFees(ctx, svc.Asset, fee); err != nil {
		h.reverse(ctx, receipt, true, false)
		return nil, fmt.Errorf("%w fees: %w", errCredit, err)
	}

	if err := h.store.RecordSettlement(ctx, receipt); err != nil {
		h.logger.Error("failed to record settlement receipt",
			"service_id", svc.ID.Hex(),
			"subscriber", subscriber.Hex(),
			"error", err,
		)
	}

	h.plugins.EmitCharged(ctx, receipt)

	return receipt, nil
}

// reverse takes back the credited shares of a collected charge and returns
// the full amount to the subscriber. If a share cannot be taken back the
// refund is skipped, so custody never holds less than it owes; every
// failure is logged with the receipt for manual reconciliation.
func (h *Hub) reverse(ctx context.Context, r *claim.Settlement, netCredited, feeCredited bool) {
	fail := func(step string, err error) {
		h.logger.Error("charge reversal incomplete",
			"step", step,
			"settlement_id", r.ID.String(),
			"service_id", r.ServiceID.Hex(),
			"subscriber", r.Subscriber.Hex(),
			"asset", r.Asset.Hex(),
			"amount", r.Amount.String(),
			"error", err,
		)
	}

	if feeCredited {
		if err := h.store.DebitFees(ctx, r.Asset, r.Fee); err != nil {
			fail("debit fees", err)
			return
		}
	}
	if netCredited {
		if err := h.store.DebitBalance(ctx, r.ServiceID, r.Net); err != nil {
			fail("debit service", err)
			return
		}
	}
	if err := h.ledger.Transfer(ctx, r.Asset, h.cfg.Custody, r.Subscriber, r.Amount); err != nil {
		fail("refund", err)
		return
	}

	h.logger.Warn("charge reversed",
		"settlement_id", r.ID.String(),
		"service_id", r.ServiceID.Hex(),
		"subscriber", r.Subscriber.Hex(),
		"amount", r.Amount.String(),
	)
}

// requeue puts a taken entry back in its bucket so a later Process retries
// it.
func (h *Hub) requeue(ctx context.Context, e schedule.Entry) {
	if err := h.store.AddEntry(ctx, e.Due, e.Subscriber, e.ServiceID); err != nil {
		h.logger.Error("failed to requeue entry",
			"bucket", e.Due,
			"service_id", e.ServiceID.Hex(),
			"subscriber", e.Subscriber.Hex(),
			"error", err,
		)
	}
}

// settle applies the due-time transition to one entry already removed from
// its bucket. Per-entry failures are recorded on res and never abort the
// batch. Callers hold h.mu.
func (h *Hub) settle(ctx context.Context, e schedule.Entry, now uint64, res *ProcessResult) {
	sub, err := h.store.GetSubscription(ctx, e.Subscriber, e.ServiceID)
	if err != nil {
		if IsNotFound(err) {
			res.Dropped++
			return
		}
		h.requeue(ctx, e)
		res.fail(fmt.Errorf("subhub: load subscription %s/%s: %w", e.Subscriber.Hex(), e.ServiceID.Hex(), err))
		return
	}
	if sub.NextChargeTime != e.Due {
		// The record was rescheduled after this entry was taken.
		res.Dropped++
		return
	}

	svc, err := h.store.GetService(ctx, e.ServiceID)
	if err := ignoreNotFound(err); err != nil {
		h.requeue(ctx, e)
		res.fail(fmt.Errorf("subhub: load service %s: %w", e.ServiceID.Hex(), err))
		return
	}

	switch {
	case !sub.ValidFor(svc):
		h.end(ctx, sub, subscription.EndInvalidService, res)
		res.Dropped++
		return
	case !sub.WillRenew:
		h.end(ctx, sub, subscription.EndExpired, res)
		res.Expired++
		return
	}

	receipt, err := h.charge(ctx, sub.Subscriber, svc, sub.BoundVersion, now)
	if errors.Is(err, errCredit) {
		h.requeue(ctx, e)
		res.fail(fmt.Errorf("subhub: charge %s/%s: %w", sub.Subscriber.Hex(), sub.ServiceID.Hex(), err))
		return
	}
	if err != nil {
		reason := subscription.EndChargeFailed
		if IsSettlementError(err) {
			reason = subscription.EndInsufficientFunds
		}
		h.logger.Warn("charge failed, subscription removed",
			"service_id", sub.ServiceID.Hex(),
			"subscriber", sub.Subscriber.Hex(),
			"error", err,
		)
		h.plugins.EmitChargeFailed(ctx, sub, err)
		h.end(ctx, sub, reason, res)
		res.Failed++
		res.fail(fmt.Errorf("subhub: charge %s/%s: %w", sub.Subscriber.Hex(), sub.ServiceID.Hex(), err))
		return
	}

	// A renewal that cannot be stored is undone and left due at e.Due.
	sub.NextChargeTime = now + h.cfg.PaymentInterval
	sub.Touch()
	if err := h.store.SaveSubscription(ctx, sub); err != nil {
		h.reverse(ctx, receipt, true, true)
		h.requeue(ctx, e)
		res.fail(fmt.Errorf("subhub: renew %s/%s: %w", sub.Subscriber.Hex(), sub.ServiceID.Hex(), err))
		return
	}
	if err := h.store.AddEntry(ctx, sub.NextChargeTime, sub.Subscriber, sub.ServiceID); err != nil {
		h.reverse(ctx, receipt, true, true)
		sub.NextChargeTime = e.Due
		if serr := h.store.SaveSubscription(ctx, sub); serr != nil {
			h.logger.Error("failed to restore subscription",
				"service_id", sub.ServiceID.Hex(),
				"subscriber", sub.Subscriber.Hex(),
				"error", serr,
			)
		}
		h.requeue(ctx, e)
		res.fail(fmt.Errorf("subhub: reschedule %s/%s: %w", sub.Subscriber.Hex(), sub.ServiceID.Hex(), err))
		return
	}
	res.Charged++
}

// end removes a subscription at settlement time.
func (h *Hub) end(ctx context.Context, sub *subscription.Subscription, reason subscription.EndReason, res *ProcessResult) {
	if err := h.store.DeleteSubscription(ctx, sub.Subscriber, sub.ServiceID); err != nil && !IsNotFound(err) {
		res.fail(fmt.Errorf("subhub: remove %s/%s: %w", sub.Subscriber.Hex(), sub.ServiceID.Hex(), err))
		return
	}

	h.plugins.EmitSubscriptionEnded(ctx, sub, reason)

	h.logger.Debug("subscription ended",
		"service_id", sub.ServiceID.Hex(),
		"subscriber", sub.Subscriber.Hex(),
		"reason", string(reason),
	)
}
