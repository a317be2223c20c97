// Package observability provides a metrics extension for SubHub that records
// registry, subscription and settlement event counts via a MetricFactory.
package observability

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/plugin"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/token"
	"github.com/xraph/subhub/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnServiceRegistered   = (*MetricsExtension)(nil)
	_ plugin.OnServiceUnregistered = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed          = (*MetricsExtension)(nil)
	_ plugin.OnUnsubscribed        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionEnded   = (*MetricsExtension)(nil)
	_ plugin.OnCharged             = (*MetricsExtension)(nil)
	_ plugin.OnChargeFailed        = (*MetricsExtension)(nil)
	_ plugin.OnClaimed             = (*MetricsExtension)(nil)
	_ plugin.OnFeesWithdrawn       = (*MetricsExtension)(nil)
	_ plugin.OnUpkeepPerformed     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a SubHub plugin to automatically track settlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	ServiceRegistered   Counter
	ServiceReregistered Counter
	ServiceUnregistered Counter

	// Subscription metrics
	Subscribed           Counter
	SubscriptionRestored Counter
	Unsubscribed         Counter
	SubscriptionExpired  Counter
	SubscriptionDropped  Counter

	// Settlement metrics
	ChargesSettled      Counter
	ChargesFailed       Counter
	ChargesUnfunded     Counter
	ChargeAmount        Histogram
	UpkeepCalls         Counter
	UpkeepBatchSize     Histogram
	UpkeepBacklog       Histogram
	ProceedsClaimed     Counter
	ProceedsAutoClaimed Counter
	FeesWithdrawn       Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions or NewPrometheusFactory elsewhere.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Registry metrics
		ServiceRegistered:   factory.Counter("subhub.service.registered"),
		ServiceReregistered: factory.Counter("subhub.service.reregistered"),
		ServiceUnregistered: factory.Counter("subhub.service.unregistered"),

		// Subscription metrics
		Subscribed:           factory.Counter("subhub.subscription.created"),
		SubscriptionRestored: factory.Counter("subhub.subscription.restored"),
		Unsubscribed:         factory.Counter("subhub.subscription.unsubscribed"),
		SubscriptionExpired:  factory.Counter("subhub.subscription.expired"),
		SubscriptionDropped:  factory.Counter("subhub.subscription.dropped"),

		// Settlement metrics
		ChargesSettled:      factory.Counter("subhub.charge.settled"),
		ChargesFailed:       factory.Counter("subhub.charge.failed"),
		ChargesUnfunded:     factory.Counter("subhub.charge.unfunded"),
		ChargeAmount:        factory.Histogram("subhub.charge.amount_units"),
		UpkeepCalls:         factory.Counter("subhub.upkeep.calls"),
		UpkeepBatchSize:     factory.Histogram("subhub.upkeep.batch.size"),
		UpkeepBacklog:       factory.Histogram("subhub.upkeep.backlog"),
		ProceedsClaimed:     factory.Counter("subhub.claim.manual"),
		ProceedsAutoClaimed: factory.Counter("subhub.claim.auto"),
		FeesWithdrawn:       factory.Counter("subhub.fees.withdrawn"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnServiceRegistered implements plugin.OnServiceRegistered.
func (m *MetricsExtension) OnServiceRegistered(_ context.Context, _ *service.Service, reg *service.Registration) error {
	if reg.Version > 1 {
		m.ServiceReregistered.Inc()
	} else {
		m.ServiceRegistered.Inc()
	}
	return nil
}

// OnServiceUnregistered implements plugin.OnServiceUnregistered.
func (m *MetricsExtension) OnServiceUnregistered(_ context.Context, _ *service.Service) error {
	m.ServiceUnregistered.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ *subscription.Subscription, restored bool) error {
	if restored {
		m.SubscriptionRestored.Inc()
	} else {
		m.Subscribed.Inc()
	}
	return nil
}

// OnUnsubscribed implements plugin.OnUnsubscribed.
func (m *MetricsExtension) OnUnsubscribed(_ context.Context, _ *subscription.Subscription) error {
	m.Unsubscribed.Inc()
	return nil
}

// OnSubscriptionEnded implements plugin.OnSubscriptionEnded.
func (m *MetricsExtension) OnSubscriptionEnded(_ context.Context, _ *subscription.Subscription, reason subscription.EndReason) error {
	switch reason {
	case subscription.EndExpired:
		m.SubscriptionExpired.Inc()
	case subscription.EndInvalidService:
		m.SubscriptionDropped.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (m *MetricsExtension) OnCharged(_ context.Context, receipt *claim.Settlement) error {
	m.ChargesSettled.Inc()
	m.ChargeAmount.Observe(units(receipt.Amount))
	return nil
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (m *MetricsExtension) OnChargeFailed(_ context.Context, _ *subscription.Subscription, err error) error {
	if token.IsFundsError(err) {
		m.ChargesUnfunded.Inc()
		return nil
	}
	m.ChargesFailed.Inc()
	return nil
}

// OnClaimed implements plugin.OnClaimed.
func (m *MetricsExtension) OnClaimed(_ context.Context, payout *claim.Payout) error {
	if payout.Kind == claim.PayoutAutoClaim {
		m.ProceedsAutoClaimed.Inc()
	} else {
		m.ProceedsClaimed.Inc()
	}
	return nil
}

// OnFeesWithdrawn implements plugin.OnFeesWithdrawn.
func (m *MetricsExtension) OnFeesWithdrawn(_ context.Context, _ common.Address, _ types.Amount) error {
	m.FeesWithdrawn.Inc()
	return nil
}

// OnUpkeepPerformed implements plugin.OnUpkeepPerformed.
func (m *MetricsExtension) OnUpkeepPerformed(_ context.Context, _ uint64, processed, remaining int) error {
	m.UpkeepCalls.Inc()
	m.UpkeepBatchSize.Observe(float64(processed))
	m.UpkeepBacklog.Observe(float64(remaining))
	return nil
}

// units converts an 18-decimal amount to a float for histogram buckets.
func units(a types.Amount) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(a.Big()), big.NewFloat(1e18)).Float64()
	return f
}
