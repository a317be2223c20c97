package keeper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/auth"
	"github.com/xraph/subhub/clock"
	"github.com/xraph/subhub/keeper"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/store/memory"
	tokenmem "github.com/xraph/subhub/token/memory"
	"github.com/xraph/subhub/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeHub reports `backlog` due batches, then nothing.
type fakeHub struct {
	backlog  int
	calls    int
	checkErr error
	empty    bool
}

func (f *fakeHub) CheckDue(context.Context) (bool, []byte, error) {
	if f.checkErr != nil {
		return false, nil, f.checkErr
	}
	return f.backlog > 0, schedule.EncodeHint(7), nil
}

func (f *fakeHub) Process(_ context.Context, hint []byte) (*subhub.ProcessResult, error) {
	f.calls++
	due, err := schedule.DecodeHint(hint)
	if err != nil {
		return nil, err
	}
	if f.empty {
		return &subhub.ProcessResult{Bucket: due}, nil
	}
	f.backlog--
	return &subhub.ProcessResult{Bucket: due, Processed: 1, Charged: 1, Remaining: f.backlog}, nil
}

func TestTick(t *testing.T) {
	tests := []struct {
		name      string
		hub       *fakeHub
		maxCalls  int
		wantCalls int
		wantErr   bool
	}{
		{name: "idle", hub: &fakeHub{}, maxCalls: 10, wantCalls: 0},
		{name: "drains backlog", hub: &fakeHub{backlog: 3}, maxCalls: 10, wantCalls: 3},
		{name: "budget", hub: &fakeHub{backlog: 5}, maxCalls: 2, wantCalls: 2},
		{name: "nothing popped", hub: &fakeHub{backlog: 3, empty: true}, maxCalls: 10, wantCalls: 1},
		{name: "probe error", hub: &fakeHub{checkErr: errors.New("store down")}, maxCalls: 10, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := keeper.New(tt.hub, keeper.WithLogger(quiet), keeper.WithMaxCallsPerTick(tt.maxCalls))
			calls, err := k.Tick(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if got := k.Stats().Calls; got != uint64(tt.wantCalls) {
				t.Errorf("stats calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	hub := &fakeHub{backlog: 2}
	k := keeper.New(hub, keeper.WithLogger(quiet), keeper.WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for k.Stats().Charged < 2 {
		select {
		case <-deadline:
			t.Fatal("keeper never drained the backlog")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestTickSettlesHub(t *testing.T) {
	ctx := context.Background()
	custody := common.HexToAddress("0xc057")
	proposer := common.HexToAddress("0x01")
	asset := common.HexToAddress("0xe2")
	amount := types.NewAmount(1000)

	cfg := subhub.DefaultConfig()
	cfg.Custody = custody
	cfg.MaxPaymentsPerBucket = 1

	tokens := tokenmem.New()
	clk := clock.NewManual(10)
	hub, err := subhub.New(cfg, memory.New(), tokens, subhub.WithClock(clk), subhub.WithLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}
	if err := hub.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = hub.Stop() }()

	reg, err := hub.Register(auth.WithCaller(ctx, proposer), proposer, asset, amount)
	if err != nil {
		t.Fatal(err)
	}

	const subscribers = 3
	for i := 0; i < subscribers; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatal(err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if err := tokens.Mint(asset, addr, types.NewAmount(2000)); err != nil {
			t.Fatal(err)
		}
		tokens.Approve(asset, addr, custody, types.NewAmount(2000))

		sig, err := auth.Sign(key, reg.ServiceID, reg.Version)
		if err != nil {
			t.Fatal(err)
		}
		if err := hub.Subscribe(auth.WithCaller(ctx, addr), reg.ServiceID, true, sig); err != nil {
			t.Fatal(err)
		}
	}

	k := keeper.New(hub, keeper.WithLogger(quiet))

	if calls, err := k.Tick(ctx); err != nil || calls != 0 {
		t.Fatalf("early tick: calls=%d err=%v", calls, err)
	}

	clk.Advance(cfg.PaymentInterval)
	calls, err := k.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if calls != subscribers {
		t.Errorf("calls = %d, want %d", calls, subscribers)
	}
	if got := k.Stats().Charged; got != subscribers {
		t.Errorf("charged = %d, want %d", got, subscribers)
	}
	if due, _, _ := hub.CheckDue(ctx); due {
		t.Error("bucket still due after tick")
	}
}
