// Package subscription holds per-subscriber bindings to a service version.
package subscription

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/types"
)

// Key identifies a subscription record. A subscriber holds at most one
// record per service.
type Key struct {
	Subscriber common.Address `json:"subscriber"`
	ServiceID  service.ID     `json:"service_id"`
}

type Subscription struct {
	types.Entity
	Subscriber     common.Address `json:"subscriber"`
	ServiceID      service.ID     `json:"service_id"`
	BoundVersion   uint64         `json:"bound_version"`
	WillRenew      bool           `json:"will_renew"`
	NextChargeTime uint64         `json:"next_charge_time"`
}

// Key returns the record key.
func (s *Subscription) Key() Key {
	return Key{Subscriber: s.Subscriber, ServiceID: s.ServiceID}
}

// ValidFor reports whether the record is honored by svc.
func (s *Subscription) ValidFor(svc *service.Service) bool {
	return s != nil && svc.IsValid(s.BoundVersion)
}

// Ref is a listing entry. Valid is false for records whose bound version was
// superseded or whose service was unregistered but that have not yet been
// swept by settlement.
type Ref struct {
	ServiceID service.ID `json:"service_id"`
	Version   uint64     `json:"version"`
	Valid     bool       `json:"valid"`
}

// EndReason explains why settlement removed a subscription.
type EndReason string

const (
	EndExpired           EndReason = "expired"
	EndInvalidService    EndReason = "invalid_service"
	EndInsufficientFunds EndReason = "insufficient_funds"
	EndChargeFailed      EndReason = "charge_failed"
)
