package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type Store interface {
	SaveService(ctx context.Context, s *Service) error
	GetService(ctx context.Context, serviceID ID) (*Service, error)
	// ListServices returns every service the proposer ever registered,
	// ordered by slot.
	ListServices(ctx context.Context, proposer common.Address) ([]*Service, error)
	CountServices(ctx context.Context) (int, error)
	AppendRegistration(ctx context.Context, r *Registration) error
	ListRegistrations(ctx context.Context, serviceID ID) ([]*Registration, error)
}
