// Package storetest runs one behavioral suite against any store.Store, so
// every backend is held to the semantics the hub relies on.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/store"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"AddEntryMovesBucket", testAddEntryMovesBucket},
		{"RemoveEntryWrongBucket", testRemoveEntryWrongBucket},
		{"PopEntriesOrderAndCaps", testPopEntriesOrderAndCaps},
		{"PopEntriesConcurrent", testPopEntriesConcurrent},
		{"EarliestDue", testEarliestDue},
		{"Balances", testBalances},
		{"Fees", testFees},
		{"Debits", testDebits},
		{"ConcurrentCredits", testConcurrentCredits},
		{"Subscriptions", testSubscriptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func addr(b byte) common.Address { return common.BytesToAddress([]byte{b}) }
func svcID(b byte) service.ID    { return common.BytesToHash([]byte{b}) }

func count(t *testing.T, s store.Store, due uint64) int {
	t.Helper()
	n, err := s.CountEntries(context.Background(), due)
	if err != nil {
		t.Fatalf("CountEntries(%d): %v", due, err)
	}
	return n
}

func testAddEntryMovesBucket(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.AddEntry(ctx, 100, addr(1), svcID(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntry(ctx, 200, addr(1), svcID(1)); err != nil {
		t.Fatal(err)
	}

	if n := count(t, s, 100); n != 0 {
		t.Errorf("old bucket holds %d entries, want 0", n)
	}
	if n := count(t, s, 200); n != 1 {
		t.Errorf("new bucket holds %d entries, want 1", n)
	}

	// A re-add to the same bucket keeps one entry.
	if err := s.AddEntry(ctx, 200, addr(1), svcID(1)); err != nil {
		t.Fatal(err)
	}
	if n := count(t, s, 200); n != 1 {
		t.Errorf("re-added bucket holds %d entries, want 1", n)
	}
}

func testRemoveEntryWrongBucket(t *testing.T, s store.Store) {
	ctx := context.Background()
	_ = s.AddEntry(ctx, 200, addr(1), svcID(1))

	if err := s.RemoveEntry(ctx, 100, addr(1), svcID(1)); err != nil {
		t.Fatal(err)
	}
	if n := count(t, s, 200); n != 1 {
		t.Error("RemoveEntry touched another bucket")
	}
	if err := s.RemoveEntry(ctx, 200, addr(1), svcID(1)); err != nil {
		t.Fatal(err)
	}
	if n := count(t, s, 200); n != 0 {
		t.Error("RemoveEntry left the entry in place")
	}
}

func testPopEntriesOrderAndCaps(t *testing.T, s store.Store) {
	ctx := context.Background()

	// Bucket 50 in insertion order: (1,A) (2,B) (3,A) (4,C) (5,A).
	services := []byte{0xA, 0xB, 0xA, 0xC, 0xA}
	for i, svc := range services {
		if err := s.AddEntry(ctx, 50, addr(byte(i+1)), svcID(svc)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		limits schedule.Limits
		want   []byte
	}{
		{"service cap skips new services", schedule.Limits{MaxServices: 2, MaxEntries: 3}, []byte{1, 2, 3}},
		{"service cap keeps known services", schedule.Limits{MaxServices: 1}, []byte{4}},
		{"no caps drains the rest", schedule.Limits{}, []byte{5}},
		{"drained", schedule.Limits{MaxEntries: 10}, nil},
	}
	for _, tt := range tests {
		got, err := s.PopEntries(ctx, 50, tt.limits)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: popped %d entries, want %d", tt.name, len(got), len(tt.want))
		}
		for i, e := range got {
			if e.Subscriber != addr(tt.want[i]) {
				t.Errorf("%s: entry %d = %s, want subscriber %d", tt.name, i, e.Subscriber.Hex(), tt.want[i])
			}
			if e.Due != 50 {
				t.Errorf("%s: entry %d due = %d", tt.name, i, e.Due)
			}
		}
	}
}

func testPopEntriesConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const entries = 20
	for i := 1; i <= entries; i++ {
		if err := s.AddEntry(ctx, 70, addr(byte(i)), svcID(1)); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[common.Address]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := s.PopEntries(ctx, 70, schedule.Limits{MaxEntries: 3})
				if err != nil {
					t.Error(err)
					return
				}
				if len(got) == 0 {
					return
				}
				mu.Lock()
				for _, e := range got {
					seen[e.Subscriber]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != entries {
		t.Errorf("popped %d distinct entries, want %d", len(seen), entries)
	}
	for a, n := range seen {
		if n != 1 {
			t.Errorf("entry %s popped %d times", a.Hex(), n)
		}
	}
}

func testEarliestDue(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, ok, err := s.EarliestDue(ctx, 1000); err != nil || ok {
		t.Fatalf("empty schedule: ok=%v err=%v", ok, err)
	}

	_ = s.AddEntry(ctx, 30, addr(1), svcID(1))
	_ = s.AddEntry(ctx, 10, addr(2), svcID(1))
	_ = s.AddEntry(ctx, 20, addr(3), svcID(1))

	tests := []struct {
		upTo    uint64
		want    uint64
		wantHit bool
	}{
		{5, 0, false},
		{10, 10, true},
		{25, 10, true},
		{1000, 10, true},
	}
	for _, tt := range tests {
		got, ok, err := s.EarliestDue(ctx, tt.upTo)
		if err != nil {
			t.Fatal(err)
		}
		if ok != tt.wantHit || (ok && got != tt.want) {
			t.Errorf("EarliestDue(%d) = %d,%v want %d,%v", tt.upTo, got, ok, tt.want, tt.wantHit)
		}
	}

	// Moving the earliest entry later exposes the next bucket.
	_ = s.AddEntry(ctx, 40, addr(2), svcID(1))
	if got, ok, _ := s.EarliestDue(ctx, 1000); !ok || got != 20 {
		t.Errorf("after move EarliestDue = %d,%v want 20,true", got, ok)
	}
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()

	if b, err := s.GetBalance(ctx, svcID(1)); err != nil || !b.IsZero() {
		t.Fatalf("fresh balance = %s, %v", b, err)
	}
	if prior, err := s.ClearBalance(ctx, svcID(1)); err != nil || !prior.IsZero() {
		t.Fatalf("clearing empty balance = %s, %v", prior, err)
	}

	for _, v := range []uint64{75, 75} {
		if err := s.CreditBalance(ctx, svcID(1), types.NewAmount(v)); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.CreditBalance(ctx, svcID(2), types.NewAmount(9))

	if b, _ := s.GetBalance(ctx, svcID(1)); !b.Equal(types.NewAmount(150)) {
		t.Errorf("balance = %s, want 150", b)
	}
	prior, err := s.ClearBalance(ctx, svcID(1))
	if err != nil {
		t.Fatal(err)
	}
	if !prior.Equal(types.NewAmount(150)) {
		t.Errorf("cleared %s, want 150", prior)
	}
	if b, _ := s.GetBalance(ctx, svcID(1)); !b.IsZero() {
		t.Errorf("balance after clear = %s", b)
	}
	if b, _ := s.GetBalance(ctx, svcID(2)); !b.Equal(types.NewAmount(9)) {
		t.Errorf("other balance = %s, want 9", b)
	}

	// Large values survive the decimal round trip.
	big := types.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639934")
	_ = s.CreditBalance(ctx, svcID(3), big)
	_ = s.CreditBalance(ctx, svcID(3), types.NewAmount(1))
	if b, _ := s.GetBalance(ctx, svcID(3)); !b.Equal(types.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")) {
		t.Errorf("large balance = %s", b)
	}
}

func testFees(t *testing.T, s store.Store) {
	ctx := context.Background()
	asset := addr(7)

	_ = s.CreditFees(ctx, asset, types.NewAmount(25))
	_ = s.CreditFees(ctx, asset, types.NewAmount(5))
	if f, _ := s.GetFees(ctx, asset); !f.Equal(types.NewAmount(30)) {
		t.Errorf("fees = %s, want 30", f)
	}
	prior, err := s.ClearFees(ctx, asset)
	if err != nil {
		t.Fatal(err)
	}
	if !prior.Equal(types.NewAmount(30)) {
		t.Errorf("cleared %s, want 30", prior)
	}
	if f, _ := s.GetFees(ctx, asset); !f.IsZero() {
		t.Errorf("fees after clear = %s", f)
	}
}

func testDebits(t *testing.T, s store.Store) {
	ctx := context.Background()
	asset := addr(7)

	_ = s.CreditBalance(ctx, svcID(1), types.NewAmount(100))
	_ = s.CreditFees(ctx, asset, types.NewAmount(30))

	if err := s.DebitBalance(ctx, svcID(1), types.NewAmount(40)); err != nil {
		t.Fatal(err)
	}
	if err := s.DebitFees(ctx, asset, types.NewAmount(30)); err != nil {
		t.Fatal(err)
	}
	if b, _ := s.GetBalance(ctx, svcID(1)); !b.Equal(types.NewAmount(60)) {
		t.Errorf("balance = %s, want 60", b)
	}
	if f, _ := s.GetFees(ctx, asset); !f.IsZero() {
		t.Errorf("fees = %s, want 0", f)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"balance below zero", func() error { return s.DebitBalance(ctx, svcID(1), types.NewAmount(61)) }},
		{"missing balance", func() error { return s.DebitBalance(ctx, svcID(2), types.NewAmount(1)) }},
		{"missing fees", func() error { return s.DebitFees(ctx, addr(8), types.NewAmount(1)) }},
	}
	for _, tt := range tests {
		if err := tt.fn(); !errors.Is(err, types.ErrAmountUnderflow) {
			t.Errorf("%s: got %v, want underflow", tt.name, err)
		}
	}
	if b, _ := s.GetBalance(ctx, svcID(1)); !b.Equal(types.NewAmount(60)) {
		t.Errorf("failed debit changed balance to %s", b)
	}
}

func testConcurrentCredits(t *testing.T, s store.Store) {
	ctx := context.Background()
	const (
		workers = 4
		credits = 5
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < credits; i++ {
				if err := s.CreditBalance(ctx, svcID(1), types.NewAmount(1)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if b, _ := s.GetBalance(ctx, svcID(1)); !b.Equal(types.NewAmount(workers * credits)) {
		t.Errorf("balance = %s, want %d", b, workers*credits)
	}
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()

	sub := &subscription.Subscription{
		Entity:         types.NewEntity(),
		Subscriber:     addr(1),
		ServiceID:      svcID(9),
		BoundVersion:   2,
		WillRenew:      true,
		NextChargeTime: 118,
	}
	if err := s.SaveSubscription(ctx, sub); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSubscription(ctx, addr(1), svcID(9))
	if err != nil {
		t.Fatal(err)
	}
	if got.BoundVersion != 2 || !got.WillRenew || got.NextChargeTime != 118 {
		t.Errorf("got %+v", got)
	}

	if err := s.DeleteSubscription(ctx, addr(1), svcID(9)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSubscription(ctx, addr(1), svcID(9)); !subhub.IsNotFound(err) {
		t.Errorf("get after delete: %v", err)
	}
	if err := s.DeleteSubscription(ctx, addr(1), svcID(9)); !subhub.IsNotFound(err) {
		t.Errorf("second delete: %v", err)
	}
}
