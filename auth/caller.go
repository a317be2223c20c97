package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Call describes who submitted an entrypoint invocation. OnBehalfOf is set
// only for relayed calls.
type Call struct {
	Submitter  common.Address
	OnBehalfOf common.Address
}

// Relayed reports whether the call names a forwarded account.
func (c Call) Relayed() bool {
	return c.OnBehalfOf != (common.Address{})
}

// Sender resolves the effective account. A relayed call counts as the
// forwarded account only when submitted by the trusted relayer; otherwise
// the submitter itself is the sender.
func (c Call) Sender(trustedRelayer common.Address) common.Address {
	if c.Relayed() && trustedRelayer != (common.Address{}) && c.Submitter == trustedRelayer {
		return c.OnBehalfOf
	}
	return c.Submitter
}

type callKey struct{}

// WithCaller marks ctx as a direct call from account.
func WithCaller(ctx context.Context, account common.Address) context.Context {
	return context.WithValue(ctx, callKey{}, Call{Submitter: account})
}

// WithRelayedCaller marks ctx as a call submitted by relayer on behalf of
// account.
func WithRelayedCaller(ctx context.Context, relayer, account common.Address) context.Context {
	return context.WithValue(ctx, callKey{}, Call{Submitter: relayer, OnBehalfOf: account})
}

// CallerFrom extracts the call identity from ctx.
func CallerFrom(ctx context.Context) (Call, bool) {
	c, ok := ctx.Value(callKey{}).(Call)
	if !ok || c.Submitter == (common.Address{}) {
		return Call{}, false
	}
	return c, true
}
