package subhub_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/store/memory"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

var errStoreDown = errors.New("store down")

// faultyStore fails the named methods until cleared.
type faultyStore struct {
	*memory.Store

	mu     sync.Mutex
	faults map[string]bool
}

func (s *faultyStore) failOn(methods ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults == nil {
		s.faults = make(map[string]bool)
	}
	for _, m := range methods {
		s.faults[m] = true
	}
}

func (s *faultyStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

func (s *faultyStore) fault(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults[method] {
		return errStoreDown
	}
	return nil
}

func (s *faultyStore) SaveSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if err := s.fault("SaveSubscription"); err != nil {
		return err
	}
	return s.Store.SaveSubscription(ctx, sub)
}

func (s *faultyStore) GetSubscription(ctx context.Context, subscriber common.Address, serviceID service.ID) (*subscription.Subscription, error) {
	if err := s.fault("GetSubscription"); err != nil {
		return nil, err
	}
	return s.Store.GetSubscription(ctx, subscriber, serviceID)
}

func (s *faultyStore) AddEntry(ctx context.Context, due uint64, subscriber common.Address, serviceID service.ID) error {
	if err := s.fault("AddEntry"); err != nil {
		return err
	}
	return s.Store.AddEntry(ctx, due, subscriber, serviceID)
}

func (s *faultyStore) CreditBalance(ctx context.Context, serviceID service.ID, amount types.Amount) error {
	if err := s.fault("CreditBalance"); err != nil {
		return err
	}
	return s.Store.CreditBalance(ctx, serviceID, amount)
}

func (s *faultyStore) CreditFees(ctx context.Context, asset common.Address, amount types.Amount) error {
	if err := s.fault("CreditFees"); err != nil {
		return err
	}
	return s.Store.CreditFees(ctx, asset, amount)
}

// assertSettled checks that custody holds exactly what the ledger owes.
func (f *fixture) assertSettled(serviceID service.ID) {
	f.t.Helper()
	fees, err := f.hub.FeeBalance(context.Background(), asset)
	if err != nil {
		f.t.Fatal(err)
	}
	owed, _ := f.unclaimed(serviceID).Add(fees)
	if got := f.balance(custody); !got.Equal(owed) {
		f.t.Errorf("custody holds %s, ledger owes %s", got, owed)
	}
}

func TestSubscribeUndoesChargeOnStoreFailure(t *testing.T) {
	tests := []struct {
		name   string
		faults []string
	}{
		{"service credit", []string{"CreditBalance"}},
		{"fee credit", []string{"CreditFees"}},
		{"save subscription", []string{"SaveSubscription"}},
		{"schedule", []string{"AddEntry"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			r := f.register()
			s := f.newSubscriber(10, 10)

			f.store.failOn(tt.faults...)
			if err := f.subscribe(s, r, true); !errors.Is(err, errStoreDown) {
				t.Fatalf("subscribe error = %v, want store failure", err)
			}
			f.store.heal()

			if got := f.balance(s.addr); !got.Equal(times(chargeAmount, 10)) {
				t.Errorf("subscriber holds %s, want %s", got, times(chargeAmount, 10))
			}
			if got := f.unclaimed(r.ServiceID); !got.IsZero() {
				t.Errorf("unclaimed = %s, want 0", got)
			}
			f.assertSettled(r.ServiceID)

			if ok, _ := f.hub.IsSubscribed(ctx, s.addr, r.ServiceID, r.Version); ok {
				t.Error("failed subscribe left a valid subscription")
			}
			if n, _ := f.hub.SubscriptionCount(ctx); n != 0 {
				t.Errorf("subscription count = %d, want 0", n)
			}
			if n, _ := f.hub.PendingCount(ctx, genesis+interval); n != 0 {
				t.Errorf("pending at due time = %d, want 0", n)
			}

			// The subscriber can retry once the store recovers.
			if err := f.subscribe(s, r, true); err != nil {
				t.Fatalf("retry: %v", err)
			}
			if got := f.balance(s.addr); !got.Equal(times(chargeAmount, 9)) {
				t.Errorf("after retry subscriber holds %s", got)
			}
			f.assertSettled(r.ServiceID)
		})
	}
}

func TestSettleRequeuesOnStoreFailure(t *testing.T) {
	tests := []struct {
		name   string
		faults []string
	}{
		{"load subscription", []string{"GetSubscription"}},
		{"service credit", []string{"CreditBalance"}},
		{"fee credit", []string{"CreditFees"}},
		{"save renewal", []string{"SaveSubscription"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			r := f.register()
			s := f.newSubscriber(10, 10)
			if err := f.subscribe(s, r, true); err != nil {
				t.Fatal(err)
			}
			due := uint64(genesis + interval)
			f.clock.Advance(interval)

			f.store.failOn(tt.faults...)
			res, err := f.hub.Process(ctx, nil)
			if err != nil {
				t.Fatal(err)
			}
			f.store.heal()

			if res.Charged != 0 || !res.Failures.HasErrors() {
				t.Errorf("charged=%d failures=%v, want a failed entry", res.Charged, res.Failures.Errors)
			}
			if res.Remaining != 1 {
				t.Errorf("remaining = %d, want the entry back in its bucket", res.Remaining)
			}
			if n, _ := f.hub.PendingCount(ctx, due); n != 1 {
				t.Errorf("pending at %d = %d, want 1", due, n)
			}
			if got := f.balance(s.addr); !got.Equal(times(chargeAmount, 9)) {
				t.Errorf("subscriber holds %s, want one charge taken", got)
			}
			f.assertSettled(r.ServiceID)

			// A transient failure ending the subscription would be wrong.
			if ok, _ := f.hub.IsSubscribed(ctx, s.addr, r.ServiceID, r.Version); !ok {
				t.Error("subscription lost after a store failure")
			}

			res, err = f.hub.Process(ctx, nil)
			if err != nil {
				t.Fatal(err)
			}
			if res.Charged != 1 {
				t.Fatalf("retry charged %d, want 1", res.Charged)
			}
			if got := f.balance(s.addr); !got.Equal(times(chargeAmount, 8)) {
				t.Errorf("after retry subscriber holds %s", got)
			}
			next, _ := f.hub.NextChargeTime(ctx, s.addr, r.ServiceID)
			if next != f.clock.Now()+interval {
				t.Errorf("next charge time = %d, want %d", next, f.clock.Now()+interval)
			}
			f.assertSettled(r.ServiceID)
		})
	}
}
