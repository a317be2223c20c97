package subhub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/auth"
	"github.com/xraph/subhub/clock"
	"github.com/xraph/subhub/plugin"
	"github.com/xraph/subhub/store"
	"github.com/xraph/subhub/token"
)

// Identifier names the engine and its settlement protocol revision.
const Identifier = "subhub/v1"

// Hub is the recurring-payment scheduling and settlement engine.
//
// Every entrypoint runs to completion under the hub's lock, so callers never
// observe a half-applied registration, subscription, batch or claim.
type Hub struct {
	cfg     Config
	store   store.Store
	ledger  token.Ledger
	clock   clock.Clock
	plugins *plugin.Registry
	logger  *slog.Logger

	mu sync.RWMutex
}

// New creates a new Hub over an explicit store and token ledger.
func New(cfg Config, s store.Store, ledger token.Ledger, opts ...Option) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: nil token ledger", ErrInvalidConfig)
	}

	h := &Hub{
		cfg:     cfg,
		store:   s,
		ledger:  ledger,
		clock:   clock.NewWall(time.Now(), time.Second),
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// Option configures a Hub instance.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
		h.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(h *Hub) {
		_ = h.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the discrete time source.
func WithClock(c clock.Clock) Option {
	return func(h *Hub) {
		h.clock = c
	}
}

// Start migrates the store and initializes plugins.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	h.plugins.EmitInit(ctx, h)

	h.logger.Info("subhub started",
		"fee_percentage", h.cfg.FeePercentage,
		"payment_interval", h.cfg.PaymentInterval,
		"max_payments_per_bucket", h.cfg.MaxPaymentsPerBucket,
		"max_services_per_bucket", h.cfg.MaxServicesPerBucket,
		"custody", h.cfg.Custody.Hex(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (h *Hub) Stop() error {
	h.plugins.EmitShutdown(context.Background())
	return h.store.Close()
}

// Config returns the construction-time configuration.
func (h *Hub) Config() Config { return h.cfg }

// FeePercentage returns the retained protocol fee percentage.
func (h *Hub) FeePercentage() uint64 { return h.cfg.FeePercentage }

// PaymentInterval returns the billing period length in time units.
func (h *Hub) PaymentInterval() uint64 { return h.cfg.PaymentInterval }

// Identifier returns the engine identifier.
func (h *Hub) Identifier() string { return Identifier }

// Now returns the hub's current time unit.
func (h *Hub) Now() uint64 { return h.clock.Now() }

// Plugins returns the plugin registry.
func (h *Hub) Plugins() *plugin.Registry { return h.plugins }

// Ping checks the store.
func (h *Hub) Ping(ctx context.Context) error { return h.store.Ping(ctx) }

// sender resolves the effective account for the call carried by ctx.
func (h *Hub) sender(ctx context.Context) (common.Address, error) {
	call, ok := auth.CallerFrom(ctx)
	if !ok {
		return common.Address{}, ErrNoCaller
	}
	return call.Sender(h.cfg.TrustedRelayer), nil
}

func ignoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}
