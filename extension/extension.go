// Package extension provides the Forge extension adapter for SubHub.
//
// It implements the forge.Extension interface to integrate the hub
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.subhub" or "subhub" keys.
package extension

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/clock"
	"github.com/xraph/subhub/keeper"
	"github.com/xraph/subhub/store"
	"github.com/xraph/subhub/store/memory"
	"github.com/xraph/subhub/token"
	tokenmem "github.com/xraph/subhub/token/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "subhub"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring payment scheduling and settlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts SubHub as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config  Config
	hub     *subhub.Hub
	store   store.Store
	tokens  token.Ledger
	clock   clock.Clock
	keeper  *keeper.Keeper
	hubOpts []subhub.Option

	stopKeeper context.CancelFunc
	keeperDone chan struct{}
}

// New creates a new SubHub Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
		config:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hub returns the underlying hub.
// This is nil until Register is called.
func (e *Extension) Hub() *subhub.Hub { return e.hub }

// Keeper returns the extension's keeper, or nil when disabled.
func (e *Extension) Keeper() *keeper.Keeper { return e.keeper }

// Register implements [forge.Extension]. It loads configuration,
// initializes the hub, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	hub, err := e.build()
	if err != nil {
		return err
	}
	e.hub = hub

	return vessel.Provide(fapp.Container(), func() (*subhub.Hub, error) {
		return e.hub, nil
	})
}

// build constructs the hub from the resolved config, falling back to the
// in-process store and token ledger when none were provided.
func (e *Extension) build() (*subhub.Hub, error) {
	cfg, err := e.config.HubConfig()
	if err != nil {
		return nil, err
	}

	if e.store == nil {
		e.store = memory.New()
	}
	if e.tokens == nil {
		e.tokens = tokenmem.New()
	}
	if e.clock == nil {
		e.clock = clock.NewWall(time.Now(), e.config.TimeStep)
	}

	opts := make([]subhub.Option, 0, len(e.hubOpts)+1)
	opts = append(opts, subhub.WithClock(e.clock))
	opts = append(opts, e.hubOpts...)

	hub, err := subhub.New(cfg, e.store, e.tokens, opts...)
	if err != nil {
		return nil, err
	}

	if !e.config.DisableKeeper {
		e.keeper = keeper.New(hub, keeper.WithInterval(e.config.KeeperInterval))
	}
	return hub, nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.hub == nil {
		return errors.New("subhub: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.hub.Start(ctx); err != nil {
			return err
		}
	}

	if e.keeper != nil {
		kctx, cancel := context.WithCancel(context.Background())
		e.stopKeeper = cancel
		e.keeperDone = make(chan struct{})
		go func() {
			defer close(e.keeperDone)
			_ = e.keeper.Run(kctx) //nolint:errcheck // Run only returns nil on cancellation
		}()
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.stopKeeper != nil {
		e.stopKeeper()
		<-e.keeperDone
		e.stopKeeper = nil
	}
	if e.hub != nil {
		if err := e.hub.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.hub == nil {
		return errors.New("subhub: hub not initialized")
	}
	return e.hub.Ping(ctx)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("subhub: configuration is required but not found in config files; " +
				"ensure 'extensions.subhub' or 'subhub' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("subhub: configuration loaded",
		forge.F("fee_percentage", e.config.FeePercentage),
		forge.F("payment_interval", e.config.PaymentInterval),
		forge.F("max_services_per_bucket", e.config.MaxServicesPerBucket),
		forge.F("max_payments_per_bucket", e.config.MaxPaymentsPerBucket),
		forge.F("custody", e.config.Custody),
		forge.F("time_step", e.config.TimeStep),
		forge.F("disable_keeper", e.config.DisableKeeper),
		forge.F("disable_migrate", e.config.DisableMigrate),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.subhub", "subhub"} {
		if !cm.IsSet(key) {
			continue
		}
		cfg := DefaultConfig()
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("subhub: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("subhub: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults. A zero fee is a
// valid setting and is left alone.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.PaymentInterval == 0 {
		cfg.PaymentInterval = defaults.PaymentInterval
	}
	if cfg.MaxServicesPerBucket == 0 {
		cfg.MaxServicesPerBucket = defaults.MaxServicesPerBucket
	}
	if cfg.MaxPaymentsPerBucket == 0 {
		cfg.MaxPaymentsPerBucket = defaults.MaxPaymentsPerBucket
	}
	if cfg.TimeStep == 0 {
		cfg.TimeStep = defaults.TimeStep
	}
	if cfg.KeeperInterval == 0 {
		cfg.KeeperInterval = cfg.TimeStep
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableKeeper {
		yamlConfig.DisableKeeper = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.TrustedRelayer == "" {
		yamlConfig.TrustedRelayer = programmaticConfig.TrustedRelayer
	}
	if yamlConfig.Custody == "" {
		yamlConfig.Custody = programmaticConfig.Custody
	}
	if yamlConfig.FeeCollector == "" {
		yamlConfig.FeeCollector = programmaticConfig.FeeCollector
	}

	// Numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PaymentInterval == 0 {
		yamlConfig.PaymentInterval = programmaticConfig.PaymentInterval
	}
	if yamlConfig.MaxServicesPerBucket == 0 {
		yamlConfig.MaxServicesPerBucket = programmaticConfig.MaxServicesPerBucket
	}
	if yamlConfig.MaxPaymentsPerBucket == 0 {
		yamlConfig.MaxPaymentsPerBucket = programmaticConfig.MaxPaymentsPerBucket
	}
	if yamlConfig.TimeStep == 0 {
		yamlConfig.TimeStep = programmaticConfig.TimeStep
	}
	if yamlConfig.KeeperInterval == 0 {
		yamlConfig.KeeperInterval = programmaticConfig.KeeperInterval
	}

	return mergeWithDefaults(yamlConfig)
}
