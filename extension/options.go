package extension

import (
	"time"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/clock"
	"github.com/xraph/subhub/plugin"
	"github.com/xraph/subhub/store"
	"github.com/xraph/subhub/token"
)

// Option configures the SubHub Forge extension.
type Option func(*Extension)

// WithStore sets the store for the hub.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTokenLedger sets the token ledger charges are pulled from.
func WithTokenLedger(l token.Ledger) Option {
	return func(e *Extension) {
		e.tokens = l
	}
}

// WithClock overrides the wall clock derived from TimeStep.
func WithClock(c clock.Clock) Option {
	return func(e *Extension) {
		e.clock = c
	}
}

// WithHubOption passes a subhub.Option through to the underlying hub.
func WithHubOption(opt subhub.Option) Option {
	return func(e *Extension) {
		e.hubOpts = append(e.hubOpts, opt)
	}
}

// WithPlugin registers a hub plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.hubOpts = append(e.hubOpts, subhub.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithCustody sets the hub's custody account.
func WithCustody(addr string) Option {
	return func(e *Extension) { e.config.Custody = addr }
}

// WithFeeCollector sets the account allowed to withdraw protocol fees.
func WithFeeCollector(addr string) Option {
	return func(e *Extension) { e.config.FeeCollector = addr }
}

// WithDisableKeeper stops the extension from running its keeper loop.
func WithDisableKeeper() Option {
	return func(e *Extension) { e.config.DisableKeeper = true }
}

// WithKeeperInterval sets the keeper polling interval.
func WithKeeperInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.KeeperInterval = d }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
