package subhub

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/auth"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// ──────────────────────────────────────────────────
// Subscription lifecycle
// ──────────────────────────────────────────────────

// Subscribe binds the calling subscriber to the current version of a
// service. sig must be the subscriber's consent to (service, version).
//
// A new binding pays for its first period immediately and comes due again
// one PaymentInterval later. Subscribing again to the same version while
// the paid period is still running only restores the renewal intent: the
// due time is unchanged and nothing is charged.
func (h *Hub) Subscribe(ctx context.Context, serviceID service.ID, renew bool, sig []byte) error {
	subscriber, err := h.sender(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	svc, err := h.store.GetService(ctx, serviceID)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("%w: %s is not registered", ErrInvalidService, serviceID.Hex())
		}
		return err
	}
	if !svc.Active {
		return fmt.Errorf("%w: %s is not active", ErrInvalidService, serviceID.Hex())
	}
	version := svc.Version

	if err := auth.Verify(subscriber, serviceID, version, sig); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	now := h.clock.Now()

	existing, err := h.store.GetSubscription(ctx, subscriber, serviceID)
	if err := ignoreNotFound(err); err != nil {
		return err
	}

	if existing != nil && existing.BoundVersion == version && existing.NextChargeTime > now {
		existing.WillRenew = renew
		existing.Touch()
		if err := h.store.SaveSubscription(ctx, existing); err != nil {
			return fmt.Errorf("subhub: save subscription: %w", err)
		}
		h.plugins.EmitSubscribed(ctx, existing, true)
		h.logger.Debug("subscription restored",
			"service_id", serviceID.Hex(),
			"subscriber", subscriber.Hex(),
			"will_renew", renew,
		)
		return nil
	}

	receipt, err := h.charge(ctx, subscriber, svc, version, now)
	if err != nil {
		return err
	}

	sub := &subscription.Subscription{
		Entity:         types.NewEntity(),
		Subscriber:     subscriber,
		ServiceID:      serviceID,
		BoundVersion:   version,
		WillRenew:      renew,
		NextChargeTime: now + h.cfg.PaymentInterval,
	}
	if existing != nil {
		sub.CreatedAt = existing.CreatedAt
	}

	// AddEntry moves any entry the previous record left behind. When either
	// write fails the charge is undone and the previous record restored.
	if err := h.store.SaveSubscription(ctx, sub); err != nil {
		h.reverse(ctx, receipt, true, true)
		return fmt.Errorf("subhub: save subscription: %w", err)
	}
	if err := h.store.AddEntry(ctx, sub.NextChargeTime, subscriber, serviceID); err != nil {
		h.reverse(ctx, receipt, true, true)
		h.restore(ctx, existing, sub)
		return fmt.Errorf("subhub: schedule: %w", err)
	}

	h.plugins.EmitSubscribed(ctx, sub, false)

	h.logger.Info("subscribed",
		"service_id", serviceID.Hex(),
		"subscriber", subscriber.Hex(),
		"version", version,
		"next_charge_time", sub.NextChargeTime,
	)

	return nil
}

// restore puts back the record a failed Subscribe overwrote, or deletes
// the new one and anything it scheduled if there was none.
func (h *Hub) restore(ctx context.Context, prev, written *subscription.Subscription) {
	var err error
	if prev != nil {
		err = h.store.SaveSubscription(ctx, prev)
	} else {
		err = errors.Join(
			h.store.DeleteSubscription(ctx, written.Subscriber, written.ServiceID),
			h.store.RemoveEntry(ctx, written.NextChargeTime, written.Subscriber, written.ServiceID),
		)
	}
	if err != nil {
		h.logger.Error("failed to restore subscription",
			"service_id", written.ServiceID.Hex(),
			"subscriber", written.Subscriber.Hex(),
			"error", err,
		)
	}
}

// Unsubscribe turns renewal off. The subscription stays valid until its
// scheduled due time, when settlement removes it without charging.
func (h *Hub) Unsubscribe(ctx context.Context, serviceID service.ID, sig []byte) error {
	subscriber, err := h.sender(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub, svc, err := h.lookup(ctx, subscriber, serviceID)
	if err != nil {
		return err
	}
	if !sub.ValidFor(svc) {
		return ErrNotSubscribed
	}

	if err := auth.Verify(subscriber, serviceID, sub.BoundVersion, sig); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	sub.WillRenew = false
	sub.Touch()
	if err := h.store.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("subhub: save subscription: %w", err)
	}

	h.plugins.EmitUnsubscribed(ctx, sub)

	h.logger.Info("unsubscribed",
		"service_id", serviceID.Hex(),
		"subscriber", subscriber.Hex(),
		"ends_at", sub.NextChargeTime,
	)

	return nil
}

// lookup loads a subscription and its service. A missing record is
// ErrNotSubscribed; a missing service yields a nil service.
func (h *Hub) lookup(ctx context.Context, subscriber common.Address, serviceID service.ID) (*subscription.Subscription, *service.Service, error) {
	sub, err := h.store.GetSubscription(ctx, subscriber, serviceID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, ErrNotSubscribed
		}
		return nil, nil, err
	}
	svc, err := h.store.GetService(ctx, serviceID)
	if err := ignoreNotFound(err); err != nil {
		return nil, nil, err
	}
	return sub, svc, nil
}

// ──────────────────────────────────────────────────
// Subscription queries
// ──────────────────────────────────────────────────

// IsSubscribed reports whether account holds a subscription bound to
// version that the service still honors.
func (h *Hub) IsSubscribed(ctx context.Context, account common.Address, serviceID service.ID, version uint64) (bool, error) {
	sub, err := h.validSubscription(ctx, account, serviceID, version)
	return sub != nil, err
}

// WillRenew reports whether the subscription is valid and set to renew.
func (h *Hub) WillRenew(ctx context.Context, account common.Address, serviceID service.ID, version uint64) (bool, error) {
	sub, err := h.validSubscription(ctx, account, serviceID, version)
	return sub != nil && sub.WillRenew, err
}

func (h *Hub) validSubscription(ctx context.Context, account common.Address, serviceID service.ID, version uint64) (*subscription.Subscription, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sub, svc, err := h.lookup(ctx, account, serviceID)
	if err != nil {
		if errors.Is(err, ErrNotSubscribed) {
			return nil, nil
		}
		return nil, err
	}
	if sub.BoundVersion != version || !sub.ValidFor(svc) {
		return nil, nil
	}
	return sub, nil
}

// NextChargeTime returns the time unit at which the subscription next
// comes due.
func (h *Hub) NextChargeTime(ctx context.Context, account common.Address, serviceID service.ID) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sub, svc, err := h.lookup(ctx, account, serviceID)
	if err != nil {
		return 0, err
	}
	if !sub.ValidFor(svc) {
		return 0, ErrNotSubscribed
	}
	return sub.NextChargeTime, nil
}

// ListSubscriptions returns the account's subscription records. Records
// whose service was unregistered or re-registered are listed with
// Valid=false until settlement sweeps them.
func (h *Hub) ListSubscriptions(ctx context.Context, account common.Address) ([]subscription.Ref, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, err := h.store.ListSubscriptions(ctx, account)
	if err != nil {
		return nil, err
	}

	refs := make([]subscription.Ref, 0, len(subs))
	for _, sub := range subs {
		svc, err := h.store.GetService(ctx, sub.ServiceID)
		if err := ignoreNotFound(err); err != nil {
			return nil, err
		}
		refs = append(refs, subscription.Ref{
			ServiceID: sub.ServiceID,
			Version:   sub.BoundVersion,
			Valid:     sub.ValidFor(svc),
		})
	}
	return refs, nil
}

// PendingCount returns the number of entries due at time t.
func (h *Hub) PendingCount(ctx context.Context, t uint64) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.CountEntries(ctx, t)
}

// SubscriptionCount returns the number of subscription records.
func (h *Hub) SubscriptionCount(ctx context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.CountSubscriptions(ctx)
}

// ServiceSubscriptionCount returns the number of subscription records for
// one service.
func (h *Hub) ServiceSubscriptionCount(ctx context.Context, serviceID service.ID) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.CountServiceSubscriptions(ctx, serviceID)
}
