package subhub

import (
	"github.com/ethereum/go-ethereum/common"
)

// Config is fixed when the hub is constructed.
type Config struct {
	// FeePercentage of every charge is retained by the protocol (0..100).
	FeePercentage uint64 `json:"fee_percentage" mapstructure:"fee_percentage" yaml:"fee_percentage"`

	// PaymentInterval is the length of one billing period in time units.
	PaymentInterval uint64 `json:"payment_interval" mapstructure:"payment_interval" yaml:"payment_interval"`

	// MaxServicesPerBucket caps the distinct services one Process call settles.
	MaxServicesPerBucket int `json:"max_services_per_bucket" mapstructure:"max_services_per_bucket" yaml:"max_services_per_bucket"`

	// MaxPaymentsPerBucket caps the entries one Process call settles.
	MaxPaymentsPerBucket int `json:"max_payments_per_bucket" mapstructure:"max_payments_per_bucket" yaml:"max_payments_per_bucket"`

	// TrustedRelayer may submit calls on behalf of other accounts.
	TrustedRelayer common.Address `json:"trusted_relayer" mapstructure:"trusted_relayer" yaml:"trusted_relayer"`

	// Custody is the hub's own account on the token ledger. Charges are
	// pulled into it and payouts leave from it.
	Custody common.Address `json:"custody" mapstructure:"custody" yaml:"custody"`

	// FeeCollector may withdraw retained protocol fees.
	FeeCollector common.Address `json:"fee_collector" mapstructure:"fee_collector" yaml:"fee_collector"`
}

// DefaultConfig returns the default configuration. Custody must still be
// set before use.
func DefaultConfig() Config {
	return Config{
		FeePercentage:        25,
		PaymentInterval:      100,
		MaxServicesPerBucket: 10,
		MaxPaymentsPerBucket: 10,
	}
}

// Validate checks the configuration and returns a ValidationError for the
// first offending field.
func (c Config) Validate() error {
	switch {
	case c.FeePercentage > 100:
		return ValidationError{Field: "fee_percentage", Message: "must be between 0 and 100"}
	case c.PaymentInterval == 0:
		return ValidationError{Field: "payment_interval", Message: "must be positive"}
	case c.MaxServicesPerBucket <= 0:
		return ValidationError{Field: "max_services_per_bucket", Message: "must be positive"}
	case c.MaxPaymentsPerBucket <= 0:
		return ValidationError{Field: "max_payments_per_bucket", Message: "must be positive"}
	case c.Custody == (common.Address{}):
		return ValidationError{Field: "custody", Message: "is required"}
	}
	return nil
}
