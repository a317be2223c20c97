// Package keeper runs the automation actor that settles due subscriptions.
//
// On every step it asks the hub whether any bucket is due and keeps calling
// Process with the returned hint until the backlog at or before the current
// time is drained or the per-tick call budget is spent.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xraph/subhub"
)

// Upkeeper is the part of the hub a keeper drives.
type Upkeeper interface {
	CheckDue(ctx context.Context) (bool, []byte, error)
	Process(ctx context.Context, hint []byte) (*subhub.ProcessResult, error)
}

// Stats accumulates totals over the keeper's lifetime.
type Stats struct {
	Ticks   uint64 `json:"ticks"`
	Calls   uint64 `json:"calls"`
	Charged uint64 `json:"charged"`
	Expired uint64 `json:"expired"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Keeper polls an Upkeeper on a fixed interval.
type Keeper struct {
	hub      Upkeeper
	interval time.Duration
	maxCalls int
	logger   *slog.Logger

	ticks   atomic.Uint64
	calls   atomic.Uint64
	charged atomic.Uint64
	expired atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// WithInterval sets the polling interval (default: 1s).
func WithInterval(d time.Duration) Option {
	return func(k *Keeper) {
		if d > 0 {
			k.interval = d
		}
	}
}

// WithMaxCallsPerTick bounds how many Process calls a single tick may make
// (default: 64).
func WithMaxCallsPerTick(n int) Option {
	return func(k *Keeper) {
		if n > 0 {
			k.maxCalls = n
		}
	}
}

// New creates a Keeper for hub.
func New(hub Upkeeper, opts ...Option) *Keeper {
	k := &Keeper{
		hub:      hub,
		interval: time.Second,
		maxCalls: 64,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Run ticks until ctx is cancelled. It returns nil on cancellation.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.logger.Info("keeper started", "interval", k.interval.String(), "max_calls_per_tick", k.maxCalls)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("keeper stopped", "ticks", k.ticks.Load(), "calls", k.calls.Load())
			return nil
		case <-ticker.C:
			if _, err := k.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				k.logger.Warn("keeper tick failed", "error", err)
			}
		}
	}
}

// Tick drains due buckets once and returns the number of Process calls made.
func (k *Keeper) Tick(ctx context.Context) (int, error) {
	k.ticks.Add(1)

	calls := 0
	for calls < k.maxCalls {
		if err := ctx.Err(); err != nil {
			return calls, err
		}

		due, hint, err := k.hub.CheckDue(ctx)
		if err != nil {
			return calls, err
		}
		if !due {
			return calls, nil
		}

		res, err := k.hub.Process(ctx, hint)
		if err != nil {
			return calls, err
		}
		calls++
		k.record(res)

		if res.Failures.HasErrors() {
			k.logger.Warn("settlement failures",
				"bucket", res.Bucket,
				"failed", res.Failed,
				"error", res.Failures.First(),
			)
		}
		k.logger.Debug("bucket processed",
			"bucket", res.Bucket,
			"processed", res.Processed,
			"charged", res.Charged,
			"remaining", res.Remaining,
		)

		if res.Processed == 0 {
			// Nothing left to pop; another keeper got there first.
			return calls, nil
		}
	}
	return calls, nil
}

// Stats returns a snapshot of the lifetime totals.
func (k *Keeper) Stats() Stats {
	return Stats{
		Ticks:   k.ticks.Load(),
		Calls:   k.calls.Load(),
		Charged: k.charged.Load(),
		Expired: k.expired.Load(),
		Dropped: k.dropped.Load(),
		Failed:  k.failed.Load(),
	}
}

func (k *Keeper) record(res *subhub.ProcessResult) {
	k.calls.Add(1)
	k.charged.Add(uint64(res.Charged))
	k.expired.Add(uint64(res.Expired))
	k.dropped.Add(uint64(res.Dropped))
	k.failed.Add(uint64(res.Failed))
}
