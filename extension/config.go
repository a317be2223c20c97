package extension

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub"
)

// Config holds the SubHub extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.subhub" or "subhub" keys).
// Accounts are 0x-prefixed hex strings. The env tags name the SUBHUB_*
// overrides applied by cmd/subhubd.
type Config struct {
	// FeePercentage of every charge retained by the protocol (default: 25).
	FeePercentage uint64 `json:"fee_percentage" mapstructure:"fee_percentage" yaml:"fee_percentage" env:"SUBHUB_FEE_PERCENTAGE"`

	// PaymentInterval is the billing period in time units (default: 100).
	PaymentInterval uint64 `json:"payment_interval" mapstructure:"payment_interval" yaml:"payment_interval" env:"SUBHUB_PAYMENT_INTERVAL"`

	// MaxServicesPerBucket caps distinct services per Process call (default: 10).
	MaxServicesPerBucket int `json:"max_services_per_bucket" mapstructure:"max_services_per_bucket" yaml:"max_services_per_bucket" env:"SUBHUB_MAX_SERVICES_PER_BUCKET"`

	// MaxPaymentsPerBucket caps entries per Process call (default: 10).
	MaxPaymentsPerBucket int `json:"max_payments_per_bucket" mapstructure:"max_payments_per_bucket" yaml:"max_payments_per_bucket" env:"SUBHUB_MAX_PAYMENTS_PER_BUCKET"`

	TrustedRelayer string `json:"trusted_relayer" mapstructure:"trusted_relayer" yaml:"trusted_relayer" env:"SUBHUB_TRUSTED_RELAYER"`
	Custody        string `json:"custody" mapstructure:"custody" yaml:"custody" env:"SUBHUB_CUSTODY"`
	FeeCollector   string `json:"fee_collector" mapstructure:"fee_collector" yaml:"fee_collector" env:"SUBHUB_FEE_COLLECTOR"`

	// TimeStep is the wall-clock length of one hub time unit (default: 1s).
	TimeStep time.Duration `json:"time_step" mapstructure:"time_step" yaml:"time_step" env:"SUBHUB_TIME_STEP"`

	// DisableKeeper keeps the extension from running its own keeper loop.
	DisableKeeper bool `json:"disable_keeper" mapstructure:"disable_keeper" yaml:"disable_keeper" env:"SUBHUB_DISABLE_KEEPER"`

	// KeeperInterval is how often the keeper polls for due buckets
	// (default: TimeStep).
	KeeperInterval time.Duration `json:"keeper_interval" mapstructure:"keeper_interval" yaml:"keeper_interval" env:"SUBHUB_KEEPER_INTERVAL"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate" env:"SUBHUB_DISABLE_MIGRATE"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	d := subhub.DefaultConfig()
	return Config{
		FeePercentage:        d.FeePercentage,
		PaymentInterval:      d.PaymentInterval,
		MaxServicesPerBucket: d.MaxServicesPerBucket,
		MaxPaymentsPerBucket: d.MaxPaymentsPerBucket,
		TimeStep:             time.Second,
	}
}

// HubConfig converts the extension config into a hub configuration.
func (c Config) HubConfig() (subhub.Config, error) {
	cfg := subhub.Config{
		FeePercentage:        c.FeePercentage,
		PaymentInterval:      c.PaymentInterval,
		MaxServicesPerBucket: c.MaxServicesPerBucket,
		MaxPaymentsPerBucket: c.MaxPaymentsPerBucket,
	}

	accounts := []struct {
		field string
		raw   string
		dst   *common.Address
	}{
		{"trusted_relayer", c.TrustedRelayer, &cfg.TrustedRelayer},
		{"custody", c.Custody, &cfg.Custody},
		{"fee_collector", c.FeeCollector, &cfg.FeeCollector},
	}
	for _, a := range accounts {
		if a.raw == "" {
			continue
		}
		if !common.IsHexAddress(a.raw) {
			return subhub.Config{}, subhub.ValidationError{Field: a.field, Message: "is not a hex address"}
		}
		*a.dst = common.HexToAddress(a.raw)
	}

	return cfg, cfg.Validate()
}
