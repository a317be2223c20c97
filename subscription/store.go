package subscription

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/service"
)

type Store interface {
	// SaveSubscription inserts or replaces the record for s.Key().
	SaveSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subscriber common.Address, serviceID service.ID) (*Subscription, error)
	DeleteSubscription(ctx context.Context, subscriber common.Address, serviceID service.ID) error
	ListSubscriptions(ctx context.Context, subscriber common.Address) ([]*Subscription, error)
	CountSubscriptions(ctx context.Context) (int, error)
	CountServiceSubscriptions(ctx context.Context, serviceID service.ID) (int, error)
}
