package memory_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/store/memory"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

func addr(b byte) common.Address { return common.BytesToAddress([]byte{b}) }
func svcID(b byte) service.ID    { return common.BytesToHash([]byte{b}) }

func TestScheduleMovesEntries(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.AddEntry(ctx, 100, addr(1), svcID(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntry(ctx, 200, addr(1), svcID(1)); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.CountEntries(ctx, 100); n != 0 {
		t.Errorf("old bucket still holds %d entries", n)
	}
	if n, _ := s.CountEntries(ctx, 200); n != 1 {
		t.Errorf("new bucket holds %d entries, want 1", n)
	}

	// Removing from the wrong bucket is a no-op.
	_ = s.RemoveEntry(ctx, 100, addr(1), svcID(1))
	if n, _ := s.CountEntries(ctx, 200); n != 1 {
		t.Error("RemoveEntry touched another bucket")
	}
	_ = s.RemoveEntry(ctx, 200, addr(1), svcID(1))
	if n, _ := s.CountEntries(ctx, 200); n != 0 {
		t.Error("RemoveEntry left the entry in place")
	}
}

func TestPopEntriesIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := byte(1); i <= 5; i++ {
		_ = s.AddEntry(ctx, 50, addr(i), svcID(1))
	}

	first, err := s.PopEntries(ctx, 50, schedule.Limits{MaxEntries: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 {
		t.Fatalf("popped %d, want 3", len(first))
	}
	for i, e := range first {
		if e.Subscriber != addr(byte(i+1)) {
			t.Errorf("entry %d out of insertion order: %s", i, e.Subscriber.Hex())
		}
	}

	rest, _ := s.PopEntries(ctx, 50, schedule.Limits{MaxEntries: 3})
	if len(rest) != 2 {
		t.Fatalf("second pop returned %d, want 2", len(rest))
	}
	again, _ := s.PopEntries(ctx, 50, schedule.Limits{MaxEntries: 3})
	if len(again) != 0 {
		t.Errorf("drained bucket returned %d entries", len(again))
	}
}

func TestEarliestDue(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, ok, _ := s.EarliestDue(ctx, 1000); ok {
		t.Fatal("empty schedule reported a due bucket")
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
}

func TestSubscriptionCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sub := &subscription.Subscription{Subscriber: addr(1), ServiceID: svcID(9), BoundVersion: 1, WillRenew: true}
	_ = s.SaveSubscription(ctx, sub)
	sub.WillRenew = false

	got, err := s.GetSubscription(ctx, addr(1), svcID(9))
	if err != nil {
		t.Fatal(err)
	}
	if !got.WillRenew {
		t.Error("store aliased the caller's struct")
	}

	if n, _ := s.CountServiceSubscriptions(ctx, svcID(9)); n != 1 {
		t.Errorf("service count = %d", n)
	}
	if err := s.DeleteSubscription(ctx, addr(1), svcID(9)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSubscription(ctx, addr(1), svcID(9)); !subhub.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	_ = s.CreditBalance(ctx, svcID(1), types.NewAmount(75))
	_ = s.CreditBalance(ctx, svcID(1), types.NewAmount(75))
	_ = s.CreditFees(ctx, addr(7), types.NewAmount(25))

	if b, _ := s.GetBalance(ctx, svcID(1)); !b.Equal(types.NewAmount(150)) {
		t.Errorf("balance = %s", b)
	}
	prior, _ := s.ClearBalance(ctx, svcID(1))
	if !prior.Equal(types.NewAmount(150)) {
		t.Errorf("cleared %s", prior)
	}
	if b, _ := s.GetBalance(ctx, svcID(1)); !b.IsZero() {
		t.Errorf("balance after clear = %s", b)
	}
	if f, _ := s.GetFees(ctx, addr(7)); !f.Equal(types.NewAmount(25)) {
		t.Errorf("fees = %s", f)
	}
}
