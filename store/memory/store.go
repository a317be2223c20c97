// Package memory implements store.Store in process memory. It is the store
// used by tests and by the devnet node.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/store"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

var _ store.Store = (*Store)(nil)

// Store keeps value copies so callers can never mutate stored state
// without going through a Save call.
type Store struct {
	mu     sync.RWMutex
	closed bool

	// Service registry
	services      map[service.ID]service.Service
	registrations map[service.ID][]service.Registration

	// Subscriptions
	subscriptions map[subscription.Key]subscription.Subscription

	// Schedule: entry per key plus a bucket index
	entries map[subscription.Key]schedule.Entry
	buckets map[uint64]map[subscription.Key]struct{}
	seq     uint64

	// Claim ledger
	balances    map[service.ID]types.Amount
	fees        map[common.Address]types.Amount
	settlements []claim.Settlement
	payouts     []claim.Payout
}

func New() *Store {
	return &Store{
		services:      make(map[service.ID]service.Service),
		registrations: make(map[service.ID][]service.Registration),
		subscriptions: make(map[subscription.Key]subscription.Subscription),
		entries:       make(map[subscription.Key]schedule.Entry),
		buckets:       make(map[uint64]map[subscription.Key]struct{}),
		balances:      make(map[service.ID]types.Amount),
		fees:          make(map[common.Address]types.Amount),
	}
}

// ──────────────────────────────────────────────────
// Service Store implementation
// ──────────────────────────────────────────────────

func (s *Store) SaveService(_ context.Context, svc *service.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = *svc
	return nil
}

func (s *Store) GetService(_ context.Context, serviceID service.ID) (*service.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if svc, ok := s.services[serviceID]; ok {
		return &svc, nil
	}
	return nil, subhub.ErrServiceNotFound
}

func (s *Store) ListServices(_ context.Context, proposer common.Address) ([]*service.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*service.Service, 0)
	for _, svc := range s.services {
		if svc.Proposer == proposer {
			cp := svc
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slot < result[j].Slot })
	return result, nil
}

func (s *Store) CountServices(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, svc := range s.services {
		if svc.Active {
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendRegistration(_ context.Context, r *service.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations[r.ServiceID] = append(s.registrations[r.ServiceID], *r)
	return nil
}

func (s *Store) ListRegistrations(_ context.Context, serviceID service.ID) ([]*service.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regs := s.registrations[serviceID]
	result := make([]*service.Registration, len(regs))
	for i := range regs {
		cp := regs[i]
		result[i] = &cp
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Subscription Store implementation
// ──────────────────────────────────────────────────

func (s *Store) SaveSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.Key()] = *sub
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subscriber common.Address, serviceID service.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subscription.Key{Subscriber: subscriber, ServiceID: serviceID}]; ok {
		return &sub, nil
	}
	return nil, subhub.ErrSubscriptionNotFound
}

func (s *Store) DeleteSubscription(_ context.Context, subscriber common.Address, serviceID service.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := subscription.Key{Subscriber: subscriber, ServiceID: serviceID}
	if _, ok := s.subscriptions[k]; !ok {
		return subhub.ErrSubscriptionNotFound
	}
	delete(s.subscriptions, k)
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, subscriber common.Address) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.Subscriber == subscriber {
			cp := sub
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ServiceID.Cmp(result[j].ServiceID) < 0
	})
	return result, nil
}

func (s *Store) CountSubscriptions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions), nil
}

func (s *Store) CountServiceSubscriptions(_ context.Context, serviceID service.ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.subscriptions {
		if k.ServiceID == serviceID {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Schedule Store implementation
// ──────────────────────────────────────────────────

func (s *Store) AddEntry(_ context.Context, due uint64, subscriber common.Address, serviceID service.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := subscription.Key{Subscriber: subscriber, ServiceID: serviceID}
	s.unlinkLocked(k)

	s.seq++
	s.entries[k] = schedule.Entry{Due: due, Subscriber: subscriber, ServiceID: serviceID, Seq: s.seq}
	bucket, ok := s.buckets[due]
	if !ok {
		bucket = make(map[subscription.Key]struct{})
		s.buckets[due] = bucket
	}
	bucket[k] = struct{}{}
	return nil
}

func (s *Store) RemoveEntry(_ context.Context, due uint64, subscriber common.Address, serviceID service.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := subscription.Key{Subscriber: subscriber, ServiceID: serviceID}
	if e, ok := s.entries[k]; ok && e.Due == due {
		s.unlinkLocked(k)
	}
	return nil
}

func (s *Store) PopEntries(_ context.Context, due uint64, limits schedule.Limits) ([]schedule.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.buckets[due]
	pending := make([]schedule.Entry, 0, len(bucket))
	for k := range bucket {
		pending = append(pending, s.entries[k])
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })

	taken := limits.Take(pending)
	for _, e := range taken {
		s.unlinkLocked(subscription.Key{Subscriber: e.Subscriber, ServiceID: e.ServiceID})
	}
	return taken, nil
}

func (s *Store) CountEntries(_ context.Context, due uint64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[due]), nil
}

func (s *Store) EarliestDue(_ context.Context, upTo uint64) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		earliest uint64
		found    bool
	)
	for due, bucket := range s.buckets {
		if due > upTo || len(bucket) == 0 {
			continue
		}
		if !found || due < earliest {
			earliest, found = due, true
		}
	}
	return earliest, found, nil
}

// unlinkLocked drops k from the schedule. Callers hold s.mu.
func (s *Store) unlinkLocked(k subscription.Key) {
	e, ok := s.entries[k]
	if !ok {
		return
	}
	delete(s.entries, k)
	if bucket := s.buckets[e.Due]; bucket != nil {
		delete(bucket, k)
		if len(bucket) == 0 {
			delete(s.buckets, e.Due)
		}
	}
}

// ──────────────────────────────────────────────────
// Claim Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetBalance(_ context.Context, serviceID service.ID) (types.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[serviceID], nil
}

func (s *Store) CreditBalance(_ context.Context, serviceID service.ID, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.balances[serviceID].Add(amount)
	if err != nil {
		return err
	}
	s.balances[serviceID] = next
	return nil
}

func (s *Store) DebitBalance(_ context.Context, serviceID service.ID, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.balances[serviceID].Sub(amount)
	if err != nil {
		return err
	}
	s.balances[serviceID] = next
	return nil
}

func (s *Store) ClearBalance(_ context.Context, serviceID service.ID) (types.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.balances[serviceID]
	delete(s.balances, serviceID)
	return prior, nil
}

func (s *Store) GetFees(_ context.Context, asset common.Address) (types.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fees[asset], nil
}

func (s *Store) CreditFees(_ context.Context, asset common.Address, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.fees[asset].Add(amount)
	if err != nil {
		return err
	}
	s.fees[asset] = next
	return nil
}

func (s *Store) DebitFees(_ context.Context, asset common.Address, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.fees[asset].Sub(amount)
	if err != nil {
		return err
	}
	s.fees[asset] = next
	return nil
}

func (s *Store) ClearFees(_ context.Context, asset common.Address) (types.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.fees[asset]
	delete(s.fees, asset)
	return prior, nil
}

func (s *Store) RecordSettlement(_ context.Context, st *claim.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, *st)
	return nil
}

func (s *Store) ListSettlements(_ context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*claim.Settlement, 0)
	for i := range s.settlements {
		if s.settlements[i].ServiceID == serviceID {
			cp := s.settlements[i]
			result = append(result, &cp)
		}
	}
	return paginate(result, opts), nil
}

func (s *Store) RecordPayout(_ context.Context, p *claim.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts = append(s.payouts, *p)
	return nil
}

func (s *Store) ListPayouts(_ context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*claim.Payout, 0)
	for i := range s.payouts {
		if s.payouts[i].ServiceID == serviceID {
			cp := s.payouts[i]
			result = append(result, &cp)
		}
	}
	return paginate(result, opts), nil
}

func paginate[T any](items []T, opts claim.ListOpts) []T {
	start := opts.Offset
	if start > len(items) {
		start = len(items)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return subhub.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
