// Package subhub provides a recurring-payment scheduling and settlement
// engine.
//
// Service owners register a charge (receiver, asset, amount). Subscribers
// authorize recurring pulls by signing a consent message, and an external,
// permissionless keeper drives settlement by probing CheckDue each time step
// and calling Process while work is due. No component runs a scheduler of
// its own: the hub only reacts to calls.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/subhub"
//	    "github.com/xraph/subhub/auth"
//	    "github.com/xraph/subhub/store/memory"
//	    tokenmem "github.com/xraph/subhub/token/memory"
//	)
//
//	cfg := subhub.DefaultConfig()
//	cfg.Custody = custodyAddress
//
//	hub, err := subhub.New(cfg, memory.New(), tokenmem.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := hub.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer hub.Stop()
//
// # Callers
//
// Mutating entrypoints read the caller from the context:
//
//	ctx = auth.WithCaller(ctx, proposer)
//	reg, err := hub.Register(ctx, receiver, asset, amount)
//
// A caller equal to Config.TrustedRelayer may act for another account:
//
//	ctx = auth.WithRelayedCaller(ctx, relayer, subscriber)
//	err = hub.Subscribe(ctx, reg.ServiceID, true, sig)
//
// The subscriber's signature, not the submitter, proves consent, so relayed
// and direct calls are verified the same way.
//
// # Versions
//
// Every registration of a service id bumps its version. A subscription is
// honored only while its bound version is current and the service is
// active; nothing is deleted eagerly when a service changes, and stale
// subscriptions are swept when they come due.
//
// # Settlement
//
// Due entries live in buckets keyed by time unit. Process drains one bucket
// at a time under the configured batch caps, re-checking funds and service
// validity for each entry. A failed charge removes only that subscription.
// Retained fees accrue per asset in a treasury withdrawn by
// Config.FeeCollector; the remainder accrues to the service until its
// proposer claims it.
//
// Package keeper provides a polling actor that drives CheckDue and Process
// on a fixed interval; cmd/subhubd runs one against an in-process devnet.
package subhub
