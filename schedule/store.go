package schedule

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/service"
)

type Store interface {
	// AddEntry places (subscriber, serviceID) in the bucket for due,
	// moving it out of any other bucket.
	AddEntry(ctx context.Context, due uint64, subscriber common.Address, serviceID service.ID) error
	// RemoveEntry deletes the entry if it is in the bucket for due.
	RemoveEntry(ctx context.Context, due uint64, subscriber common.Address, serviceID service.ID) error
	// PopEntries atomically removes and returns the entries of one bucket
	// selected by limits. An entry is returned by at most one call.
	PopEntries(ctx context.Context, due uint64, limits Limits) ([]Entry, error)
	CountEntries(ctx context.Context, due uint64) (int, error)
	// EarliestDue returns the lowest non-empty bucket at or before upTo.
	EarliestDue(ctx context.Context, upTo uint64) (uint64, bool, error)
}
