// Package types provides common types used across SubHub.
package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Amount errors.
var (
	ErrAmountOverflow  = errors.New("amount: overflow")
	ErrAmountUnderflow = errors.New("amount: underflow")
	ErrAmountSyntax    = errors.New("amount: invalid syntax")
)

// Amount is a non-negative token quantity expressed in the asset's smallest
// unit (wei for 18-decimal tokens). All arithmetic is 256-bit unsigned
// integer arithmetic with explicit overflow checks.
//
// The zero value is a valid zero amount. Amount is a value type and is safe
// to copy.
type Amount struct {
	v uint256.Int
}

// Zero is the zero amount.
var Zero Amount

// NewAmount creates an Amount from a uint64 quantity.
func NewAmount(x uint64) Amount {
	var a Amount
	a.v.SetUint64(x)
	return a
}

// AmountFromBig converts a big.Int. Negative values and values wider than
// 256 bits are rejected.
func AmountFromBig(b *big.Int) (Amount, error) {
	var a Amount
	if b == nil {
		return a, nil
	}
	if b.Sign() < 0 {
		return a, fmt.Errorf("%w: negative value %s", ErrAmountUnderflow, b)
	}
	if overflow := a.v.SetFromBig(b); overflow {
		return Amount{}, fmt.Errorf("%w: %s", ErrAmountOverflow, b)
	}
	return a, nil
}

// ParseAmount parses a base-10 integer string, or a 0x-prefixed hex string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrAmountSyntax)
	}

	var a Amount
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if err := a.v.SetFromHex(s); err != nil {
			return Amount{}, fmt.Errorf("%w: %q: %v", ErrAmountSyntax, s, err)
		}
		return a, nil
	}

	digits := strings.TrimLeft(s, "0")
	if digits == "" {
		return a, nil
	}
	if err := a.v.SetFromDecimal(digits); err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrAmountSyntax, s, err)
	}
	return a, nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for
// hardcoded values.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a human decimal like "0.01" into the smallest unit of an
// asset with the given number of decimals ("0.01" with 18 decimals is 1e16).
func ParseUnits(s string, decimals uint8) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, found := strings.Cut(s, ".")
	if whole == "" && (!found || frac == "") {
		return Amount{}, fmt.Errorf("%w: %q", ErrAmountSyntax, s)
	}
	if len(frac) > int(decimals) {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimals", ErrAmountSyntax, s, decimals)
	}
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q", ErrAmountSyntax, s)
		}
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	return ParseAmount(whole + frac)
}

// Arithmetic operations

// Add returns a+b, failing on 256-bit overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return z, nil
}

// Sub returns a-b, failing if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var z Amount
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrAmountUnderflow
	}
	return z, nil
}

// Mul returns a*n, failing on overflow.
func (a Amount) Mul(n uint64) (Amount, error) {
	var z Amount
	if _, overflow := z.v.MulOverflow(&a.v, uint256.NewInt(n)); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return z, nil
}

// Percent returns floor(a * pct / 100). The intermediate product is computed
// at 512 bits so it cannot overflow for pct <= 100.
func (a Amount) Percent(pct uint64) Amount {
	var z Amount
	z.v.MulDivOverflow(&a.v, uint256.NewInt(pct), uint256.NewInt(100))
	return z
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return !a.v.IsZero() }

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }

// LessThan returns true if a < b.
func (a Amount) LessThan(b Amount) bool { return a.v.Lt(&b.v) }

// Conversions

// Big returns the amount as a new big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

// Uint256 returns a copy of the underlying 256-bit integer.
func (a Amount) Uint256() *uint256.Int { return new(uint256.Int).Set(&a.v) }

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// FormatUnits renders the amount in major units for an asset with the given
// decimals, trimming trailing zeros ("10000000000000000" with 18 decimals is
// "0.01", one full unit is "1.0").
func (a Amount) FormatUnits(decimals uint8) string {
	if decimals == 0 {
		return a.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	major, minor := new(big.Int).QuoRem(a.Big(), divisor, new(big.Int))

	frac := minor.String()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}
	return major.String() + "." + frac
}

// MarshalText implements encoding.TextMarshaler. Amounts travel as decimal
// strings so JSON consumers never lose precision.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored as decimal text.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return ErrAmountUnderflow
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}
