package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onServiceRegistered   []OnServiceRegistered
	onServiceUnregistered []OnServiceUnregistered
	onSubscribed          []OnSubscribed
	onUnsubscribed        []OnUnsubscribed
	onSubscriptionEnded   []OnSubscriptionEnded
	onCharged             []OnCharged
	onChargeFailed        []OnChargeFailed
	onClaimed             []OnClaimed
	onFeesWithdrawn       []OnFeesWithdrawn
	onUpkeepPerformed     []OnUpkeepPerformed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnServiceRegistered); ok {
		r.onServiceRegistered = append(r.onServiceRegistered, v)
	}
	if v, ok := p.(OnServiceUnregistered); ok {
		r.onServiceUnregistered = append(r.onServiceUnregistered, v)
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
	}
	if v, ok := p.(OnUnsubscribed); ok {
		r.onUnsubscribed = append(r.onUnsubscribed, v)
	}
	if v, ok := p.(OnSubscriptionEnded); ok {
		r.onSubscriptionEnded = append(r.onSubscriptionEnded, v)
	}
	if v, ok := p.(OnCharged); ok {
		r.onCharged = append(r.onCharged, v)
	}
	if v, ok := p.(OnChargeFailed); ok {
		r.onChargeFailed = append(r.onChargeFailed, v)
	}
	if v, ok := p.(OnClaimed); ok {
		r.onClaimed = append(r.onClaimed, v)
	}
	if v, ok := p.(OnFeesWithdrawn); ok {
		r.onFeesWithdrawn = append(r.onFeesWithdrawn, v)
	}
	if v, ok := p.(OnUpkeepPerformed); ok {
		r.onUpkeepPerformed = append(r.onUpkeepPerformed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnServiceRegistered", reflect.TypeOf((*OnServiceRegistered)(nil)).Elem()},
	{"OnServiceUnregistered", reflect.TypeOf((*OnServiceUnregistered)(nil)).Elem()},
	{"OnSubscribed", reflect.TypeOf((*OnSubscribed)(nil)).Elem()},
	{"OnUnsubscribed", reflect.TypeOf((*OnUnsubscribed)(nil)).Elem()},
	{"OnSubscriptionEnded", reflect.TypeOf((*OnSubscriptionEnded)(nil)).Elem()},
	{"OnCharged", reflect.TypeOf((*OnCharged)(nil)).Elem()},
	{"OnChargeFailed", reflect.TypeOf((*OnChargeFailed)(nil)).Elem()},
	{"OnClaimed", reflect.TypeOf((*OnClaimed)(nil)).Elem()},
	{"OnFeesWithdrawn", reflect.TypeOf((*OnFeesWithdrawn)(nil)).Elem()},
	{"OnUpkeepPerformed", reflect.TypeOf((*OnUpkeepPerformed)(nil)).Elem()},
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, hub interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, hub)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitServiceRegistered calls OnServiceRegistered for all plugins that implement it.
func (r *Registry) EmitServiceRegistered(ctx context.Context, svc *service.Service, reg *service.Registration) {
	r.mu.RLock()
	plugins := r.onServiceRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnServiceRegistered(ctx, svc, reg)
		}); err != nil {
			r.logger.Warn("plugin OnServiceRegistered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitServiceUnregistered calls OnServiceUnregistered for all plugins that implement it.
func (r *Registry) EmitServiceUnregistered(ctx context.Context, svc *service.Service) {
	r.mu.RLock()
	plugins := r.onServiceUnregistered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnServiceUnregistered(ctx, svc)
		}); err != nil {
			r.logger.Warn("plugin OnServiceUnregistered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscribed calls OnSubscribed for all plugins that implement it.
func (r *Registry) EmitSubscribed(ctx context.Context, sub *subscription.Subscription, restored bool) {
	r.mu.RLock()
	plugins := r.onSubscribed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscribed(ctx, sub, restored)
		}); err != nil {
			r.logger.Warn("plugin OnSubscribed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUnsubscribed calls OnUnsubscribed for all plugins that implement it.
func (r *Registry) EmitUnsubscribed(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onUnsubscribed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUnsubscribed(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnUnsubscribed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionEnded calls OnSubscriptionEnded for all plugins that implement it.
func (r *Registry) EmitSubscriptionEnded(ctx context.Context, sub *subscription.Subscription, reason subscription.EndReason) {
	r.mu.RLock()
	plugins := r.onSubscriptionEnded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionEnded(ctx, sub, reason)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionEnded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCharged calls OnCharged for all plugins that implement it.
func (r *Registry) EmitCharged(ctx context.Context, receipt *claim.Settlement) {
	r.mu.RLock()
	plugins := r.onCharged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCharged(ctx, receipt)
		}); err != nil {
			r.logger.Warn("plugin OnCharged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitChargeFailed calls OnChargeFailed for all plugins that implement it.
func (r *Registry) EmitChargeFailed(ctx context.Context, sub *subscription.Subscription, cause error) {
	r.mu.RLock()
	plugins := r.onChargeFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChargeFailed(ctx, sub, cause)
		}); err != nil {
			r.logger.Warn("plugin OnChargeFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitClaimed calls OnClaimed for all plugins that implement it.
func (r *Registry) EmitClaimed(ctx context.Context, payout *claim.Payout) {
	r.mu.RLock()
	plugins := r.onClaimed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnClaimed(ctx, payout)
		}); err != nil {
			r.logger.Warn("plugin OnClaimed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitFeesWithdrawn calls OnFeesWithdrawn for all plugins that implement it.
func (r *Registry) EmitFeesWithdrawn(ctx context.Context, asset common.Address, amount types.Amount) {
	r.mu.RLock()
	plugins := r.onFeesWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnFeesWithdrawn(ctx, asset, amount)
		}); err != nil {
			r.logger.Warn("plugin OnFeesWithdrawn failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUpkeepPerformed calls OnUpkeepPerformed for all plugins that implement it.
func (r *Registry) EmitUpkeepPerformed(ctx context.Context, bucket uint64, processed, remaining int) {
	r.mu.RLock()
	plugins := r.onUpkeepPerformed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUpkeepPerformed(ctx, bucket, processed, remaining)
		}); err != nil {
			r.logger.Warn("plugin OnUpkeepPerformed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block settlement.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
