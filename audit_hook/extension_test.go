package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	audithook "github.com/xraph/subhub/audit_hook"
	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/id"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func TestRegistrationActions(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	ctx := context.Background()

	svc := &service.Service{ID: common.HexToHash("0x01"), Version: 1}
	_ = ext.OnServiceRegistered(ctx, svc, &service.Registration{ID: id.NewRegistrationID(), Version: 1})
	svc.Version = 2
	_ = ext.OnServiceRegistered(ctx, svc, &service.Registration{ID: id.NewRegistrationID(), Version: 2})

	if len(rec.events) != 2 {
		t.Fatalf("got %d events", len(rec.events))
	}
	if rec.events[0].Action != audithook.ActionServiceRegistered || rec.events[1].Action != audithook.ActionServiceReregistered {
		t.Errorf("actions = %s, %s", rec.events[0].Action, rec.events[1].Action)
	}
	if rec.events[0].ResourceID != svc.ID.Hex() {
		t.Errorf("resource id = %s", rec.events[0].ResourceID)
	}
}

func TestChargeFailedCarriesReason(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	sub := &subscription.Subscription{Subscriber: common.HexToAddress("0x0a"), ServiceID: common.HexToHash("0x0b")}
	_ = ext.OnChargeFailed(context.Background(), sub, errors.New("allowance exhausted"))

	evt := rec.events[0]
	if evt.Outcome != audithook.OutcomeFailure || evt.Severity != audithook.SeverityError {
		t.Errorf("outcome/severity = %s/%s", evt.Outcome, evt.Severity)
	}
	if evt.Reason != "allowance exhausted" {
		t.Errorf("reason = %q", evt.Reason)
	}
}

func TestEnabledActionsFilter(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionClaimed))
	ctx := context.Background()

	_ = ext.OnSubscribed(ctx, &subscription.Subscription{}, false)
	_ = ext.OnClaimed(ctx, &claim.Payout{ID: id.NewClaimID(), Kind: claim.PayoutClaim})

	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionClaimed {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestDisabledActionsFilter(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionSubscriptionEnded))
	ctx := context.Background()

	sub := &subscription.Subscription{}
	_ = ext.OnSubscriptionEnded(ctx, sub, subscription.EndExpired)
	_ = ext.OnUnsubscribed(ctx, sub)

	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionUnsubscribed {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := ext.OnUnsubscribed(context.Background(), &subscription.Subscription{}); err != nil {
		t.Errorf("hook returned %v", err)
	}
}
