package subhub_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

func TestClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	s := f.newSubscriber(10, 10)
	_ = f.subscribe(s, reg, true)
	f.runUntilCharged(s, reg.ServiceID)

	want := times(net(chargeAmount), 2)

	if _, err := f.hub.Claim(as(stranger), reg.ServiceID); !errors.Is(err, subhub.ErrUnauthorized) {
		t.Errorf("stranger claim: got %v", err)
	}
	if _, err := f.hub.Claim(as(receiver), reg.ServiceID); !errors.Is(err, subhub.ErrUnauthorized) {
		t.Errorf("receiver claim: got %v", err)
	}
	if _, err := f.hub.Claim(context.Background(), reg.ServiceID); !errors.Is(err, subhub.ErrNoCaller) {
		t.Errorf("anonymous claim: got %v", err)
	}

	paid, err := f.hub.Claim(as(proposer), reg.ServiceID)
	if err != nil {
		t.Fatal(err)
	}
	if !paid.Equal(want) {
		t.Errorf("claimed %s, want %s", paid, want)
	}
	if !f.balance(receiver).Equal(want) {
		t.Errorf("receiver holds %s, want %s", f.balance(receiver), want)
	}
	if !f.unclaimed(reg.ServiceID).IsZero() {
		t.Error("unclaimed not reset")
	}

	// Custody keeps exactly the fee share.
	if got, want := f.balance(custody), times(chargeAmount, 2).Percent(feePercentage); !got.Equal(want) {
		t.Errorf("custody holds %s, want %s", got, want)
	}

	if _, err := f.hub.Claim(as(proposer), reg.ServiceID); !errors.Is(err, subhub.ErrNothingToClaim) {
		t.Errorf("second claim: got %v", err)
	}

	payouts, _ := f.hub.Payouts(ctx, reg.ServiceID, claim.ListOpts{})
	if len(payouts) != 1 || payouts[0].Kind != claim.PayoutClaim || payouts[0].To != receiver {
		t.Errorf("payouts = %+v", payouts)
	}
}

func TestClaimUnknownService(t *testing.T) {
	f := newFixture(t)
	var missing service.ID
	missing[31] = 1
	if _, err := f.hub.Claim(as(proposer), missing); !subhub.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestClaimAfterUnregister(t *testing.T) {
	f := newFixture(t)
	reg := f.register()
	s := f.newSubscriber(10, 10)
	_ = f.subscribe(s, reg, true)

	if err := f.hub.Unregister(as(proposer), reg.ServiceID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.hub.Claim(as(proposer), reg.ServiceID); !errors.Is(err, subhub.ErrNothingToClaim) {
		t.Errorf("got %v, want ErrNothingToClaim", err)
	}

	payouts, _ := f.hub.Payouts(context.Background(), reg.ServiceID, claim.ListOpts{})
	if len(payouts) != 1 || payouts[0].Kind != claim.PayoutAutoClaim {
		t.Errorf("payouts = %+v", payouts)
	}
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register()
	for i := 0; i < 4; i++ {
		s := f.newSubscriber(10, 10)
		_ = f.subscribe(s, reg, true)
	}

	fees := times(chargeAmount, 4).Percent(feePercentage)
	if got, _ := f.hub.FeeBalance(ctx, asset); !got.Equal(fees) {
		t.Fatalf("fee balance = %s, want %s", got, fees)
	}

	for _, who := range []common.Address{proposer, receiver, stranger} {
		if _, err := f.hub.WithdrawFees(as(who), asset); !errors.Is(err, subhub.ErrUnauthorized) {
			t.Errorf("withdraw by %s: got %v", who.Hex(), err)
		}
	}

	got, err := f.hub.WithdrawFees(as(collector), asset)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(fees) || !f.balance(collector).Equal(fees) {
		t.Errorf("withdrew %s, collector holds %s, want %s", got, f.balance(collector), fees)
	}
	if left, _ := f.hub.FeeBalance(ctx, asset); !left.IsZero() {
		t.Errorf("fee balance after withdraw = %s", left)
	}
	if _, err := f.hub.WithdrawFees(as(collector), asset); !errors.Is(err, subhub.ErrNothingToClaim) {
		t.Errorf("second withdraw: got %v", err)
	}

	// Service proceeds are untouched by fee withdrawal.
	if !f.unclaimed(reg.ServiceID).Equal(times(net(chargeAmount), 4)) {
		t.Error("fee withdrawal touched service proceeds")
	}
}

func TestWithdrawFeesWithoutCollector(t *testing.T) {
	f := newFixture(t, func(c *subhub.Config) { c.FeeCollector = common.Address{} })
	r := f.register()
	s := f.newSubscriber(10, 10)
	if err := f.subscribe(s, r, true); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		caller common.Address
	}{
		{"stranger", stranger},
		{"former collector", collector},
		{"proposer", proposer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.hub.WithdrawFees(as(tt.caller), asset); !errors.Is(err, subhub.ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}

	if fees, _ := f.hub.FeeBalance(context.Background(), asset); fees.IsZero() {
		t.Error("fees were not retained")
	}
}

func TestCustodyConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register()
	b := f.register()

	for i := 0; i < 3; i++ {
		s := f.newSubscriber(10, 10)
		_ = f.subscribe(s, a, true)
		_ = f.subscribe(s, b, i%2 == 0)
	}
	f.idle(3 * interval)

	ua := f.unclaimed(a.ServiceID)
	ub := f.unclaimed(b.ServiceID)
	fees, _ := f.hub.FeeBalance(ctx, asset)

	sum, _ := ua.Add(ub)
	sum, _ = sum.Add(fees)
	if !f.balance(custody).Equal(sum) {
		t.Errorf("custody %s != unclaimed %s + %s + fees %s", f.balance(custody), ua, ub, fees)
	}
	if _, err := f.hub.Claim(as(proposer), a.ServiceID); err != nil {
		t.Fatal(err)
	}
	rest, _ := ub.Add(fees)
	if !f.balance(custody).Equal(rest) {
		t.Errorf("custody after claim = %s, want %s", f.balance(custody), rest)
	}
}

type eventLog struct {
	mu         sync.Mutex
	subscribed []bool
	charged    []types.Amount
	ended      []subscription.EndReason
	claimed    []claim.PayoutKind
	upkeeps    int
}

func (l *eventLog) Name() string { return "event-log" }

func (l *eventLog) OnSubscribed(_ context.Context, _ *subscription.Subscription, restored bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribed = append(l.subscribed, restored)
	return nil
}

func (l *eventLog) OnCharged(_ context.Context, r *claim.Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.charged = append(l.charged, r.Net)
	return nil
}

func (l *eventLog) OnSubscriptionEnded(_ context.Context, _ *subscription.Subscription, reason subscription.EndReason) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended = append(l.ended, reason)
	return nil
}

func (l *eventLog) OnClaimed(_ context.Context, p *claim.Payout) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claimed = append(l.claimed, p.Kind)
	return nil
}

func (l *eventLog) OnUpkeepPerformed(context.Context, uint64, int, int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upkeeps++
	return nil
}

func TestPluginEvents(t *testing.T) {
	f := newFixture(t)
	log := &eventLog{}
	if err := f.hub.Plugins().Register(log); err != nil {
		t.Fatal(err)
	}

	reg := f.register()
	s := f.newSubscriber(10, 10)
	_ = f.subscribe(s, reg, true)
	_ = f.hub.Unsubscribe(as(s.addr), reg.ServiceID, f.sign(s, reg.ServiceID, reg.Version))
	_ = f.subscribe(s, reg, true) // restore
	f.runUntilCharged(s, reg.ServiceID)
	_ = f.hub.Unsubscribe(as(s.addr), reg.ServiceID, f.sign(s, reg.ServiceID, reg.Version))
	f.runUntilCharged(s, reg.ServiceID)
	if _, err := f.hub.Claim(as(proposer), reg.ServiceID); err != nil {
		t.Fatal(err)
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	if len(log.subscribed) != 2 || log.subscribed[0] || !log.subscribed[1] {
		t.Errorf("subscribed events = %v", log.subscribed)
	}
	if len(log.charged) != 2 {
		t.Errorf("charged events = %d, want 2", len(log.charged))
	}
	if len(log.ended) != 1 || log.ended[0] != subscription.EndExpired {
		t.Errorf("ended events = %v", log.ended)
	}
	if len(log.claimed) != 1 || log.claimed[0] != claim.PayoutClaim {
		t.Errorf("claimed events = %v", log.claimed)
	}
	if log.upkeeps != 2 {
		t.Errorf("upkeep events = %d, want 2", log.upkeeps)
	}
}
