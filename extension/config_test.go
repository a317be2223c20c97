package extension

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub"
)

const custodyHex = "0x000000000000000000000000000000000000c057"

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Custody: custodyHex, TimeStep: 2 * time.Second})

	if cfg.FeePercentage != 0 || cfg.PaymentInterval != 100 {
		t.Errorf("fee/interval = %d/%d, want zero fee kept", cfg.FeePercentage, cfg.PaymentInterval)
	}
	if cfg.MaxPaymentsPerBucket != 10 || cfg.MaxServicesPerBucket != 10 {
		t.Errorf("caps = %d/%d", cfg.MaxPaymentsPerBucket, cfg.MaxServicesPerBucket)
	}
	if cfg.KeeperInterval != 2*time.Second {
		t.Errorf("keeper interval = %s, want time step", cfg.KeeperInterval)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{PaymentInterval: 30, Custody: custodyHex}
	progCfg := Config{
		PaymentInterval: 60,
		FeePercentage:   10,
		FeeCollector:    "0x0000000000000000000000000000000000000005",
		DisableKeeper:   true,
		TimeStep:        3 * time.Second,
	}

	cfg := mergeConfigurations(yamlCfg, progCfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"yaml wins", cfg.PaymentInterval, uint64(30)},
		{"programmatic fills gap", cfg.TimeStep, 3 * time.Second},
		{"yaml zero fee kept", cfg.FeePercentage, uint64(0)},
		{"programmatic string fills gap", cfg.FeeCollector, progCfg.FeeCollector},
		{"programmatic bool", cfg.DisableKeeper, true},
		{"default", cfg.MaxPaymentsPerBucket, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestHubConfig(t *testing.T) {
	cfg := mergeWithDefaults(Config{Custody: custodyHex})

	hubCfg, err := cfg.HubConfig()
	if err != nil {
		t.Fatalf("hub config: %v", err)
	}
	if hubCfg.Custody != common.HexToAddress(custodyHex) {
		t.Errorf("custody = %s", hubCfg.Custody.Hex())
	}
	if hubCfg.FeeCollector != (common.Address{}) {
		t.Errorf("fee collector = %s, want zero", hubCfg.FeeCollector.Hex())
	}

	bad := cfg
	bad.TrustedRelayer = "relayer"
	var verr subhub.ValidationError
	if _, err := bad.HubConfig(); !errors.As(err, &verr) || verr.Field != "trusted_relayer" {
		t.Errorf("err = %v, want trusted_relayer validation error", err)
	}

	missing := mergeWithDefaults(Config{})
	if _, err := missing.HubConfig(); !errors.Is(err, subhub.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestBuildDefaults(t *testing.T) {
	e := New(WithConfig(mergeWithDefaults(Config{Custody: custodyHex})))

	hub, err := e.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if hub.PaymentInterval() != 100 {
		t.Errorf("interval = %d", hub.PaymentInterval())
	}
	if e.store == nil || e.tokens == nil || e.clock == nil {
		t.Error("defaults not filled")
	}
	if e.Keeper() == nil {
		t.Error("keeper not created")
	}

	e = New(WithConfig(mergeWithDefaults(Config{Custody: custodyHex, DisableKeeper: true})))
	if _, err := e.build(); err != nil {
		t.Fatal(err)
	}
	if e.Keeper() != nil {
		t.Error("keeper created while disabled")
	}
}
