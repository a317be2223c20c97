package subhub_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/auth"
	"github.com/xraph/subhub/clock"
	"github.com/xraph/subhub/store/memory"
	tokenmem "github.com/xraph/subhub/token/memory"
	"github.com/xraph/subhub/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation run as written.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()

		cfg := subhub.DefaultConfig()
		cfg.Custody = custody
		cfg.TrustedRelayer = relayer

		// Memory backends for demo, use the postgres or sqlite store in production.
		tokens := tokenmem.New()
		hub, err := subhub.New(cfg, memory.New(), tokens,
			subhub.WithLogger(slog.Default()),
			subhub.WithClock(clock.NewManual(genesis)),
		)
		if err != nil {
			t.Fatal(err)
		}
		if err := hub.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer hub.Stop()

		// A proposer registers a charge of 0.01 tokens per period.
		amount, _ := types.ParseUnits("0.01", 18)
		reg, err := hub.Register(auth.WithCaller(ctx, proposer), receiver, asset, amount)
		if err != nil {
			t.Fatal(err)
		}

		// The subscriber funds and approves custody, then signs consent.
		key, _ := crypto.GenerateKey()
		subscriberAddr := crypto.PubkeyToAddress(key.PublicKey)
		funds, _ := amount.Mul(12)
		_ = tokens.Mint(asset, subscriberAddr, funds)
		tokens.Approve(asset, subscriberAddr, custody, funds)

		sig, err := auth.Sign(key, reg.ServiceID, reg.Version)
		if err != nil {
			t.Fatal(err)
		}

		// Relayed on the subscriber's behalf by the trusted relayer.
		relayed := auth.WithRelayedCaller(ctx, cfg.TrustedRelayer, subscriberAddr)
		if err := hub.Subscribe(relayed, reg.ServiceID, true, sig); err != nil {
			t.Fatal(err)
		}

		// A keeper probes and processes.
		if needed, hint, err := hub.CheckDue(ctx); err != nil {
			t.Fatal(err)
		} else if needed {
			res, err := hub.Process(ctx, hint)
			if err != nil {
				t.Fatal(err)
			}
			log.Printf("bucket %d: %d charged\n", res.Bucket, res.Charged)
		}

		owed, _ := hub.UnclaimedAmount(ctx, reg.ServiceID)
		log.Printf("unclaimed: %s\n", owed.FormatUnits(18))
	})

	t.Run("AmountExamples", func(t *testing.T) {
		a := types.NewAmount(100)
		b, _ := types.ParseAmount("200")
		sum, _ := a.Add(b)
		_, _ = a.Sub(b) // underflow error
		_ = sum.Percent(75)

		if a.LessThan(b) {
			// a is less than b
		}

		units, _ := types.ParseUnits("1.5", 18)
		if got := units.FormatUnits(18); got != "1.5" {
			t.Errorf("FormatUnits = %q", got)
		}
	})
}
