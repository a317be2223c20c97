package subhub_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/auth"
)

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	s := f.newSubscriber(10, 10)

	if err := f.subscribe(s, reg, true); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if ok, _ := f.hub.IsSubscribed(ctx, s.addr, reg.ServiceID, reg.Version); !ok {
		t.Error("IsSubscribed = false")
	}
	if ok, _ := f.hub.WillRenew(ctx, s.addr, reg.ServiceID, reg.Version); !ok {
		t.Error("WillRenew = false")
	}

	next, err := f.hub.NextChargeTime(ctx, s.addr, reg.ServiceID)
	if err != nil {
		t.Fatal(err)
	}
	if next-f.clock.Now() != interval {
		t.Errorf("next charge in %d units, want %d", next-f.clock.Now(), interval)
	}

	refs, _ := f.hub.ListSubscriptions(ctx, s.addr)
	if len(refs) != 1 || refs[0].ServiceID != reg.ServiceID || refs[0].Version != reg.Version || !refs[0].Valid {
		t.Errorf("ListSubscriptions = %+v", refs)
	}

	if n, _ := f.hub.SubscriptionCount(ctx); n != 1 {
		t.Errorf("SubscriptionCount = %d", n)
	}
	if n, _ := f.hub.ServiceSubscriptionCount(ctx, reg.ServiceID); n != 1 {
		t.Errorf("ServiceSubscriptionCount = %d", n)
	}

	// The first period is paid up front.
	if got := f.unclaimed(reg.ServiceID); !got.Equal(net(chargeAmount)) {
		t.Errorf("unclaimed after subscribe = %s", got)
	}
	if got := f.balance(custody); !got.Equal(chargeAmount) {
		t.Errorf("custody balance = %s", got)
	}
}

func TestSubscribeRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	s := f.newSubscriber(10, 10)
	other := f.newSubscriber(10, 10)

	tests := []struct {
		name string
		ctx  context.Context
		sig  []byte
		want error
	}{
		{"no caller", context.Background(), f.sign(s, reg.ServiceID, reg.Version), subhub.ErrNoCaller},
		{"someone else's consent", as(s.addr), f.sign(other, reg.ServiceID, reg.Version), subhub.ErrInvalidSignature},
		{"wrong version", as(s.addr), f.sign(s, reg.ServiceID, reg.Version+1), subhub.ErrInvalidSignature},
		{"garbage", as(s.addr), []byte{1, 2, 3}, subhub.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.hub.Subscribe(tt.ctx, reg.ServiceID, true, tt.sig)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if n, _ := f.hub.SubscriptionCount(ctx); n != 0 {
		t.Errorf("rejected subscribes left %d records", n)
	}
	if !f.unclaimed(reg.ServiceID).IsZero() {
		t.Error("rejected subscribes moved funds")
	}

	missing := reg.ServiceID
	missing[0] ^= 0xff
	if err := f.hub.Subscribe(as(s.addr), missing, true, f.sign(s, missing, 1)); !errors.Is(err, subhub.ErrInvalidService) {
		t.Errorf("unknown service: got %v", err)
	}
}

func TestSubscribeWithoutFundsIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	broke := f.newSubscriber(0, 10)

	err := f.subscribe(broke, reg, true)
	if !errors.Is(err, subhub.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if n, _ := f.hub.SubscriptionCount(ctx); n != 0 {
		t.Error("failed subscribe created a record")
	}
	if n, _ := f.hub.PendingCount(ctx, f.clock.Now()+interval); n != 0 {
		t.Error("failed subscribe scheduled an entry")
	}
}

func TestReplayAgainstNewVersionFails(t *testing.T) {
	f := newFixture(t)
	reg := f.register()
	s := f.newSubscriber(10, 10)
	oldSig := f.sign(s, reg.ServiceID, reg.Version)

	if _, err := f.hub.Reregister(as(proposer), reg.ServiceID, receiver, asset, chargeAmount); err != nil {
		t.Fatal(err)
	}
	if err := f.hub.Subscribe(as(s.addr), reg.ServiceID, true, oldSig); !errors.Is(err, subhub.ErrInvalidSignature) {
		t.Errorf("old-version signature accepted: %v", err)
	}
}

func TestReregistrationInvalidatesSubscribers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	s := f.newSubscriber(10, 10)
	if err := f.subscribe(s, reg, true); err != nil {
		t.Fatal(err)
	}

	next, err := f.hub.Reregister(as(proposer), reg.ServiceID, receiver, asset, chargeAmount)
	if err != nil {
		t.Fatal(err)
	}

	if ok, _ := f.hub.IsSubscribed(ctx, s.addr, reg.ServiceID, reg.Version); ok {
		t.Error("binding to the superseded version still honored")
	}
	if ok, _ := f.hub.IsSubscribed(ctx, s.addr, reg.ServiceID, next.Version); ok {
		t.Error("subscriber silently reauthorized for the new version")
	}

	// Subscribing to the new version replaces the stale record.
	if err := f.subscribe(s, next, true); err != nil {
		t.Fatal(err)
	}
	refs, _ := f.hub.ListSubscriptions(ctx, s.addr)
	if len(refs) != 1 || refs[0].Version != next.Version || !refs[0].Valid {
		t.Errorf("ListSubscriptions = %+v", refs)
	}
	if n, _ := f.hub.PendingCount(ctx, f.clock.Now()+interval); n != 1 {
		t.Errorf("pending after resubscribe = %d, want 1", n)
	}
}

func TestUnsubscribeAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	s := f.newSubscriber(10, 10)
	if err := f.subscribe(s, reg, true); err != nil {
		t.Fatal(err)
	}
	f.idle(10)

	before, _ := f.hub.NextChargeTime(ctx, s.addr, reg.ServiceID)
	paid := f.balance(custody)

	sig := f.sign(s, reg.ServiceID, reg.Version)
	if err := f.hub.Unsubscribe(as(s.addr), reg.ServiceID, sig); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if ok, _ := f.hub.IsSubscribed(ctx, s.addr, reg.ServiceID, reg.Version); !ok {
		t.Error("subscription must stay valid until its due time")
	}
	if ok, _ := f.hub.WillRenew(ctx, s.addr, reg.ServiceID, reg.Version); ok {
		t.Error("WillRenew still true after unsubscribe")
	}

	if err := f.hub.Subscribe(as(s.addr), reg.ServiceID, true, sig); err != nil {
		t.Fatalf("restore: %v", err)
	}
	after, _ := f.hub.NextChargeTime(ctx, s.addr, reg.ServiceID)
	if after != before {
		t.Errorf("restore moved the due time %d -> %d", before, after)
	}
	if ok, _ := f.hub.WillRenew(ctx, s.addr, reg.ServiceID, reg.Version); !ok {
		t.Error("WillRenew not restored")
	}
	if !f.balance(custody).Equal(paid) {
		t.Error("restore charged the subscriber")
	}
	if n, _ := f.hub.PendingCount(ctx, before); n != 1 {
		t.Errorf("pending at due time = %d, want exactly 1", n)
	}
}

func TestUnsubscribeRejects(t *testing.T) {
	f := newFixture(t)
	reg := f.register()
	s := f.newSubscriber(10, 10)

	if err := f.hub.Unsubscribe(as(s.addr), reg.ServiceID, f.sign(s, reg.ServiceID, reg.Version)); !errors.Is(err, subhub.ErrNotSubscribed) {
		t.Errorf("never subscribed: got %v", err)
	}

	if err := f.subscribe(s, reg, true); err != nil {
		t.Fatal(err)
	}
	other := f.newSubscriber(1, 1)
	if err := f.hub.Unsubscribe(as(s.addr), reg.ServiceID, f.sign(other, reg.ServiceID, reg.Version)); !errors.Is(err, subhub.ErrInvalidSignature) {
		t.Errorf("foreign signature: got %v", err)
	}

	if err := f.hub.Unregister(as(proposer), reg.ServiceID); err != nil {
		t.Fatal(err)
	}
	if err := f.hub.Unsubscribe(as(s.addr), reg.ServiceID, f.sign(s, reg.ServiceID, reg.Version)); !errors.Is(err, subhub.ErrNotSubscribed) {
		t.Errorf("invalidated subscription: got %v", err)
	}
}

func TestRelayedSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	s := f.newSubscriber(10, 10)
	sig := f.sign(s, reg.ServiceID, reg.Version)

	untrusted := auth.WithRelayedCaller(ctx, stranger, s.addr)
	if err := f.hub.Subscribe(untrusted, reg.ServiceID, true, sig); !errors.Is(err, subhub.ErrInvalidSignature) {
		t.Fatalf("untrusted relayer: got %v", err)
	}

	relayed := auth.WithRelayedCaller(ctx, relayer, s.addr)
	if err := f.hub.Subscribe(relayed, reg.ServiceID, true, sig); err != nil {
		t.Fatalf("trusted relayer: %v", err)
	}
	if ok, _ := f.hub.IsSubscribed(ctx, s.addr, reg.ServiceID, reg.Version); !ok {
		t.Error("relayed subscription not attributed to the subscriber")
	}
	if ok, _ := f.hub.IsSubscribed(ctx, relayer, reg.ServiceID, reg.Version); ok {
		t.Error("relayed subscription attributed to the relayer")
	}

	if err := f.hub.Unsubscribe(relayed, reg.ServiceID, sig); err != nil {
		t.Fatalf("relayed unsubscribe: %v", err)
	}
	if ok, _ := f.hub.WillRenew(ctx, s.addr, reg.ServiceID, reg.Version); ok {
		t.Error("relayed unsubscribe had no effect")
	}
}
