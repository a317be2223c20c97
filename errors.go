package subhub

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Authorization errors
	ErrUnauthorized     = errors.New("subhub: unauthorized")
	ErrInvalidSignature = errors.New("subhub: invalid signature")
	ErrNoCaller         = errors.New("subhub: no caller on context")

	// Registry errors
	ErrServiceNotFound = errors.New("subhub: service not found")
	ErrInvalidService  = errors.New("subhub: invalid service")
	ErrInvalidAmount   = errors.New("subhub: invalid amount")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("subhub: subscription not found")
	ErrNotSubscribed        = errors.New("subhub: not subscribed")

	// Settlement errors
	ErrInsufficientFunds = errors.New("subhub: insufficient funds")
	ErrNothingToClaim    = errors.New("subhub: nothing to claim")
	ErrInvalidHint       = errors.New("subhub: invalid upkeep hint")

	// Configuration errors
	ErrInvalidConfig = errors.New("subhub: invalid configuration")

	// Store errors
	ErrStoreClosed     = errors.New("subhub: store is closed")
	ErrMigrationFailed = errors.New("subhub: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("subhub: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationError) Unwrap() error { return ErrInvalidConfig }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "subhub: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("subhub: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsAuthError returns true if the caller was not allowed to perform the call.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrNoCaller)
}

// IsSettlementError returns true if the error came from moving funds.
func IsSettlementError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNothingToClaim)
}
