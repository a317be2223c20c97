package subhub_test

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/auth"
	"github.com/xraph/subhub/clock"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/store/memory"
	tokenmem "github.com/xraph/subhub/token/memory"
	"github.com/xraph/subhub/types"
)

const (
	feePercentage = 25
	interval      = 100
	genesis       = 1000
)

var (
	custody   = common.HexToAddress("0x000000000000000000000000000000000000c057")
	proposer  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	receiver  = common.HexToAddress("0x0000000000000000000000000000000000000003")
	relayer   = common.HexToAddress("0x0000000000000000000000000000000000000004")
	collector = common.HexToAddress("0x0000000000000000000000000000000000000005")
	stranger  = common.HexToAddress("0x0000000000000000000000000000000000000006")
	asset     = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

var chargeAmount = mustUnits("0.01")

func mustUnits(s string) types.Amount {
	a, err := types.ParseUnits(s, 18)
	if err != nil {
		panic(err)
	}
	return a
}

type fixture struct {
	t      *testing.T
	hub    *subhub.Hub
	store  *faultyStore
	tokens *tokenmem.Ledger
	clock  *clock.Manual
}

func newFixture(t *testing.T, mutate ...func(*subhub.Config)) *fixture {
	t.Helper()

	cfg := subhub.DefaultConfig()
	cfg.FeePercentage = feePercentage
	cfg.PaymentInterval = interval
	cfg.Custody = custody
	cfg.TrustedRelayer = relayer
	cfg.FeeCollector = collector
	for _, m := range mutate {
		m(&cfg)
	}

	f := &fixture{
		t:      t,
		store:  &faultyStore{Store: memory.New()},
		tokens: tokenmem.New(),
		clock:  clock.NewManual(genesis),
	}

	hub, err := subhub.New(cfg, f.store, f.tokens,
		subhub.WithClock(f.clock),
		subhub.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = hub.Stop() })

	f.hub = hub
	return f
}

func as(account common.Address) context.Context {
	return auth.WithCaller(context.Background(), account)
}

type subscriber struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// newSubscriber creates a subscriber funded with `periods` charges and an
// allowance for `allowed` charges.
func (f *fixture) newSubscriber(periods, allowed uint64) subscriber {
	f.t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		f.t.Fatal(err)
	}
	s := subscriber{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}

	bal, _ := chargeAmount.Mul(periods)
	allowance, _ := chargeAmount.Mul(allowed)
	if err := f.tokens.Mint(asset, s.addr, bal); err != nil {
		f.t.Fatal(err)
	}
	f.tokens.Approve(asset, s.addr, custody, allowance)
	return s
}

func (f *fixture) register() *service.Registration {
	f.t.Helper()
	reg, err := f.hub.Register(as(proposer), receiver, asset, chargeAmount)
	if err != nil {
		f.t.Fatalf("register: %v", err)
	}
	return reg
}

func (f *fixture) sign(s subscriber, serviceID service.ID, version uint64) []byte {
	f.t.Helper()
	sig, err := auth.Sign(s.key, serviceID, version)
	if err != nil {
		f.t.Fatal(err)
	}
	return sig
}

func (f *fixture) subscribe(s subscriber, reg *service.Registration, renew bool) error {
	return f.hub.Subscribe(as(s.addr), reg.ServiceID, renew, f.sign(s, reg.ServiceID, reg.Version))
}

// step runs one keeper iteration the way a block-producing network sees it:
// the probe reads the current time, the processing call lands one unit
// later, and the step itself consumes one more unit.
func (f *fixture) step() {
	f.t.Helper()
	ctx := context.Background()

	needed, hint, err := f.hub.CheckDue(ctx)
	if err != nil {
		f.t.Fatalf("check due: %v", err)
	}
	if needed {
		f.clock.Advance(1)
		if _, err := f.hub.Process(ctx, hint); err != nil {
			f.t.Fatalf("process: %v", err)
		}
	}
	f.clock.Advance(1)
}

// runUntilCharged steps until the subscription's due time, asserting that
// nothing is pending before it, then runs the settling step.
func (f *fixture) runUntilCharged(s subscriber, serviceID service.ID) {
	f.t.Helper()
	ctx := context.Background()

	next, err := f.hub.NextChargeTime(ctx, s.addr, serviceID)
	if err != nil {
		f.t.Fatalf("next charge time: %v", err)
	}
	for f.clock.Now() < next {
		if n, _ := f.hub.PendingCount(ctx, f.clock.Now()); n != 0 {
			f.t.Fatalf("pending count at %d = %d before due time %d", f.clock.Now(), n, next)
		}
		f.step()
	}
	f.step()
}

// idle runs n keeper steps.
func (f *fixture) idle(n int) {
	for i := 0; i < n; i++ {
		f.step()
	}
}

func (f *fixture) balance(account common.Address) types.Amount {
	f.t.Helper()
	b, err := f.tokens.BalanceOf(context.Background(), asset, account)
	if err != nil {
		f.t.Fatal(err)
	}
	return b
}

func (f *fixture) unclaimed(serviceID service.ID) types.Amount {
	f.t.Helper()
	a, err := f.hub.UnclaimedAmount(context.Background(), serviceID)
	if err != nil {
		f.t.Fatal(err)
	}
	return a
}

func times(a types.Amount, n uint64) types.Amount {
	out, err := a.Mul(n)
	if err != nil {
		panic(err)
	}
	return out
}

func net(a types.Amount) types.Amount {
	return a.Percent(100 - feePercentage)
}
