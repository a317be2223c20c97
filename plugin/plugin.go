// Package plugin provides an extensible plugin system for SubHub.
// Plugins can hook into registry, subscription and settlement events.
package plugin

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the hub starts. hub is the *subhub.Hub.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, hub interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnServiceRegistered is called after every registration, including
// re-registrations that bump the version.
type OnServiceRegistered interface {
	Plugin
	OnServiceRegistered(ctx context.Context, svc *service.Service, reg *service.Registration) error
}

// OnServiceUnregistered is called when a proposer unregisters a service.
type OnServiceUnregistered interface {
	Plugin
	OnServiceUnregistered(ctx context.Context, svc *service.Service) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called after a subscribe call. restored is true when an
// unexpired subscription had its renewal intent restored without a charge.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, sub *subscription.Subscription, restored bool) error
}

// OnUnsubscribed is called when a subscriber turns renewal off.
type OnUnsubscribed interface {
	Plugin
	OnUnsubscribed(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionEnded is called when settlement removes a subscription.
type OnSubscriptionEnded interface {
	Plugin
	OnSubscriptionEnded(ctx context.Context, sub *subscription.Subscription, reason subscription.EndReason) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnCharged is called for every successful charge.
type OnCharged interface {
	Plugin
	OnCharged(ctx context.Context, receipt *claim.Settlement) error
}

// OnChargeFailed is called when a due charge could not be collected.
type OnChargeFailed interface {
	Plugin
	OnChargeFailed(ctx context.Context, sub *subscription.Subscription, err error) error
}

// OnClaimed is called when unclaimed proceeds are paid to a receiver.
type OnClaimed interface {
	Plugin
	OnClaimed(ctx context.Context, payout *claim.Payout) error
}

// OnFeesWithdrawn is called when the fee collector withdraws an asset.
type OnFeesWithdrawn interface {
	Plugin
	OnFeesWithdrawn(ctx context.Context, asset common.Address, amount types.Amount) error
}

// OnUpkeepPerformed is called after every Process call that touched a bucket.
type OnUpkeepPerformed interface {
	Plugin
	OnUpkeepPerformed(ctx context.Context, bucket uint64, processed, remaining int) error
}
