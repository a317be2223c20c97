package store

import (
	"context"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
)

// Store is the unified storage interface for all SubHub state: the service
// table, the subscription table, the due-bucket schedule and the claim
// ledger. The hub takes one explicitly, so independent hubs never share
// state.
type Store interface {
	service.Store
	subscription.Store
	schedule.Store
	claim.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
