package subhub

import (
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// Re-export common types for convenience so users don't have to import the
// types and domain packages for everyday calls.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// ServiceID is re-exported from service package.
type ServiceID = service.ID

// SubscriptionRef is re-exported from subscription package.
type SubscriptionRef = subscription.Ref

// Re-export Amount constructors
var (
	NewAmount   = types.NewAmount
	ParseAmount = types.ParseAmount
	ParseUnits  = types.ParseUnits
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
