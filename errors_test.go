package subhub_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/subhub"
)

func TestClassifiers(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", subhub.ErrServiceNotFound)

	tests := []struct {
		name       string
		err        error
		notFound   bool
		auth       bool
		settlement bool
	}{
		{"service not found", wrapped, true, false, false},
		{"subscription not found", subhub.ErrSubscriptionNotFound, true, false, false},
		{"unauthorized", subhub.ErrUnauthorized, false, true, false},
		{"bad signature", subhub.ErrInvalidSignature, false, true, false},
		{"no caller", subhub.ErrNoCaller, false, true, false},
		{"funds", subhub.ErrInsufficientFunds, false, false, true},
		{"nothing to claim", subhub.ErrNothingToClaim, false, false, true},
		{"unrelated", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := subhub.IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v", got)
			}
			if got := subhub.IsAuthError(tt.err); got != tt.auth {
				t.Errorf("IsAuthError = %v", got)
			}
			if got := subhub.IsSettlementError(tt.err); got != tt.settlement {
				t.Errorf("IsSettlementError = %v", got)
			}
		})
	}
}

func TestMultiError(t *testing.T) {
	var m subhub.MultiError
	if m.HasErrors() || m.First() != nil {
		t.Fatal("empty MultiError should report no errors")
	}

	m.Add(nil)
	m.Add(fmt.Errorf("entry a: %w", subhub.ErrInsufficientFunds))
	m.Add(errors.New("entry b: store down"))

	if len(m.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(m.Errors))
	}
	if m.Error() != "subhub: 2 errors occurred" {
		t.Errorf("Error() = %q", m.Error())
	}
	if !errors.Is(m, subhub.ErrInsufficientFunds) {
		t.Error("errors.Is should see through MultiError")
	}
}

func TestValidationError(t *testing.T) {
	err := subhub.ValidationError{Field: "fee_percentage", Message: "must be at most 100"}
	if !errors.Is(err, subhub.ErrInvalidConfig) {
		t.Error("ValidationError should match ErrInvalidConfig")
	}
	var ve subhub.ValidationError
	if !errors.As(fmt.Errorf("new: %w", err), &ve) || ve.Field != "fee_percentage" {
		t.Errorf("errors.As failed: %+v", ve)
	}
}
