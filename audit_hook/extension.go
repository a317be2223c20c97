// Package audithook bridges SubHub lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit backend. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/plugin"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnServiceRegistered   = (*Extension)(nil)
	_ plugin.OnServiceUnregistered = (*Extension)(nil)
	_ plugin.OnSubscribed          = (*Extension)(nil)
	_ plugin.OnUnsubscribed        = (*Extension)(nil)
	_ plugin.OnSubscriptionEnded   = (*Extension)(nil)
	_ plugin.OnCharged             = (*Extension)(nil)
	_ plugin.OnChargeFailed        = (*Extension)(nil)
	_ plugin.OnClaimed             = (*Extension)(nil)
	_ plugin.OnFeesWithdrawn       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges SubHub lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnServiceRegistered implements plugin.OnServiceRegistered.
func (e *Extension) OnServiceRegistered(ctx context.Context, svc *service.Service, reg *service.Registration) error {
	action := ActionServiceRegistered
	if reg.Version > 1 {
		action = ActionServiceReregistered
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceService, svc.ID.Hex(), CategoryRegistry, nil,
		"proposer", svc.Proposer.Hex(),
		"receiver", svc.Receiver.Hex(),
		"asset", svc.Asset.Hex(),
		"amount", svc.Amount.String(),
		"version", svc.Version,
		"registration_id", reg.ID.String(),
	)
}

// OnServiceUnregistered implements plugin.OnServiceUnregistered.
func (e *Extension) OnServiceUnregistered(ctx context.Context, svc *service.Service) error {
	return e.record(ctx, ActionServiceUnregistered, SeverityInfo, OutcomeSuccess,
		ResourceService, svc.ID.Hex(), CategoryRegistry, nil,
		"proposer", svc.Proposer.Hex(),
		"version", svc.Version,
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, sub *subscription.Subscription, restored bool) error {
	action := ActionSubscribed
	if restored {
		action = ActionSubscriptionRestored
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subscriptionID(sub), CategorySubscription, nil,
		"version", sub.BoundVersion,
		"will_renew", sub.WillRenew,
		"next_charge_time", sub.NextChargeTime,
	)
}

// OnUnsubscribed implements plugin.OnUnsubscribed.
func (e *Extension) OnUnsubscribed(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionUnsubscribed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subscriptionID(sub), CategorySubscription, nil,
		"ends_at", sub.NextChargeTime,
	)
}

// OnSubscriptionEnded implements plugin.OnSubscriptionEnded.
func (e *Extension) OnSubscriptionEnded(ctx context.Context, sub *subscription.Subscription, reason subscription.EndReason) error {
	severity := SeverityInfo
	if reason == subscription.EndInsufficientFunds || reason == subscription.EndChargeFailed {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionSubscriptionEnded, severity, OutcomeSuccess,
		ResourceSubscription, subscriptionID(sub), CategorySubscription, nil,
		"reason", string(reason),
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (e *Extension) OnCharged(ctx context.Context, receipt *claim.Settlement) error {
	return e.record(ctx, ActionChargeSettled, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, receipt.ID.String(), CategoryPayment, nil,
		"subscriber", receipt.Subscriber.Hex(),
		"service_id", receipt.ServiceID.Hex(),
		"amount", receipt.Amount.String(),
		"fee", receipt.Fee.String(),
		"time", receipt.Time,
	)
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (e *Extension) OnChargeFailed(ctx context.Context, sub *subscription.Subscription, err error) error {
	return e.record(ctx, ActionChargeFailed, SeverityError, OutcomeFailure,
		ResourceSubscription, subscriptionID(sub), CategoryPayment, err,
		"version", sub.BoundVersion,
	)
}

// OnClaimed implements plugin.OnClaimed.
func (e *Extension) OnClaimed(ctx context.Context, payout *claim.Payout) error {
	return e.record(ctx, ActionClaimed, SeverityInfo, OutcomeSuccess,
		ResourcePayout, payout.ID.String(), CategoryPayment, nil,
		"kind", string(payout.Kind),
		"service_id", payout.ServiceID.Hex(),
		"to", payout.To.Hex(),
		"amount", payout.Amount.String(),
	)
}

// OnFeesWithdrawn implements plugin.OnFeesWithdrawn.
func (e *Extension) OnFeesWithdrawn(ctx context.Context, asset common.Address, amount types.Amount) error {
	return e.record(ctx, ActionFeesWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceTreasury, asset.Hex(), CategoryPayment, nil,
		"amount", amount.String(),
	)
}

func subscriptionID(sub *subscription.Subscription) string {
	return sub.Subscriber.Hex() + "/" + sub.ServiceID.Hex()
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
