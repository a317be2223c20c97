package observability_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/observability"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/token"
	"github.com/xraph/subhub/types"
)

func TestMetricsExtensionCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()

	_ = m.OnServiceRegistered(ctx, &service.Service{}, &service.Registration{Version: 1})
	_ = m.OnServiceRegistered(ctx, &service.Service{}, &service.Registration{Version: 2})
	_ = m.OnSubscribed(ctx, &subscription.Subscription{}, false)
	_ = m.OnSubscribed(ctx, &subscription.Subscription{}, true)
	_ = m.OnSubscriptionEnded(ctx, &subscription.Subscription{}, subscription.EndExpired)
	_ = m.OnSubscriptionEnded(ctx, &subscription.Subscription{}, subscription.EndInvalidService)
	_ = m.OnCharged(ctx, &claim.Settlement{Amount: types.NewAmount(1e18)})
	_ = m.OnChargeFailed(ctx, &subscription.Subscription{}, fmt.Errorf("pull: %w", token.ErrInsufficientAllowance))
	_ = m.OnChargeFailed(ctx, &subscription.Subscription{}, errors.New("rpc down"))
	_ = m.OnClaimed(ctx, &claim.Payout{Kind: claim.PayoutAutoClaim})
	_ = m.OnUpkeepPerformed(ctx, 1100, 3, 1)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"registered", m.ServiceRegistered.(prometheus.Counter), 1},
		{"reregistered", m.ServiceReregistered.(prometheus.Counter), 1},
		{"subscribed", m.Subscribed.(prometheus.Counter), 1},
		{"restored", m.SubscriptionRestored.(prometheus.Counter), 1},
		{"expired", m.SubscriptionExpired.(prometheus.Counter), 1},
		{"dropped", m.SubscriptionDropped.(prometheus.Counter), 1},
		{"settled", m.ChargesSettled.(prometheus.Counter), 1},
		{"unfunded", m.ChargesUnfunded.(prometheus.Counter), 1},
		{"failed", m.ChargesFailed.(prometheus.Counter), 1},
		{"auto claimed", m.ProceedsAutoClaimed.(prometheus.Counter), 1},
		{"manual claimed", m.ProceedsClaimed.(prometheus.Counter), 0},
		{"upkeep", m.UpkeepCalls.(prometheus.Counter), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrometheusFactoryNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("subhub.charge.settled")
	b := f.Counter("subhub.charge.settled")
	if a != b {
		t.Error("expected the same collector for a repeated name")
	}
	a.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 1 || families[0].GetName() != "subhub_charge_settled" {
		t.Errorf("unexpected families: %v", families)
	}
}
