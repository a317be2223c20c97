package types

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals uint8
		want     string
	}{
		{"cent of a token", "0.01", 18, "10000000000000000"},
		{"whole", "3", 18, "3000000000000000000"},
		{"no decimals", "42", 0, "42"},
		{"leading dot", ".5", 2, "50"},
		{"zero", "0.0", 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if err != nil {
				t.Fatalf("ParseUnits(%q): %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, in := range []string{"", ".", "1.2.3", "-1", "0.001"} {
		if _, err := ParseUnits(in, 2); !errors.Is(err, ErrAmountSyntax) {
			t.Errorf("ParseUnits(%q): expected ErrAmountSyntax, got %v", in, err)
		}
	}
}

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() (Amount, error)
		expected Amount
	}{
		{"Add", func() (Amount, error) { return NewAmount(100).Add(NewAmount(200)) }, NewAmount(300)},
		{"Sub", func() (Amount, error) { return NewAmount(500).Sub(NewAmount(200)) }, NewAmount(300)},
		{"Mul", func() (Amount, error) { return NewAmount(100).Mul(3) }, NewAmount(300)},
		{"Percent truncates", func() (Amount, error) { return NewAmount(999).Percent(25), nil }, NewAmount(249)},
		{"Percent full", func() (Amount, error) { return NewAmount(999).Percent(100), nil }, NewAmount(999)},
		{"Percent none", func() (Amount, error) { return NewAmount(999).Percent(0), nil }, Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestAmountBounds(t *testing.T) {
	if _, err := NewAmount(1).Sub(NewAmount(2)); !errors.Is(err, ErrAmountUnderflow) {
		t.Errorf("expected underflow, got %v", err)
	}

	maxAmount, err := AmountFromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	if err != nil {
		t.Fatalf("AmountFromBig(max): %v", err)
	}
	if _, err := maxAmount.Add(NewAmount(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	if got := maxAmount.Percent(100); !got.Equal(maxAmount) {
		t.Errorf("Percent(100) of max: got %s", got)
	}

	if _, err := AmountFromBig(big.NewInt(-1)); err == nil {
		t.Error("expected negative big.Int to be rejected")
	}
	if _, err := AmountFromBig(new(big.Int).Lsh(big.NewInt(1), 256)); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected 2^256 to overflow, got %v", err)
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   Amount
		decimals uint8
		want     string
	}{
		{MustParseAmount("10000000000000000"), 18, "0.01"},
		{MustParseAmount("1000000000000000000"), 18, "1.0"},
		{NewAmount(4900), 2, "49.0"},
		{NewAmount(4950), 2, "49.5"},
		{NewAmount(7), 0, "7"},
	}

	for _, tt := range tests {
		if got := tt.amount.FormatUnits(tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%s, %d): got %q, want %q", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestAmountJSON(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	data, err := json.Marshal(payload{Amount: MustParseAmount("123456789012345678901234567890")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"amount":"123456789012345678901234567890"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var back payload
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Amount.String() != "123456789012345678901234567890" {
		t.Errorf("round trip mismatch: %s", back.Amount)
	}
}

func TestAmountScan(t *testing.T) {
	var a Amount
	for _, src := range []any{"42", []byte("42"), int64(42)} {
		if err := a.Scan(src); err != nil {
			t.Fatalf("Scan(%T): %v", src, err)
		}
		if !a.Equal(NewAmount(42)) {
			t.Errorf("Scan(%T): got %s", src, a)
		}
	}
	if err := a.Scan(nil); err != nil || !a.IsZero() {
		t.Errorf("Scan(nil): got %s, %v", a, err)
	}
	if err := a.Scan(3.14); err == nil {
		t.Error("expected float scan to fail")
	}
}
