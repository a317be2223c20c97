// Package schedule models the time-bucketed due queue. A bucket is the set
// of entries due at one discrete time unit; an entry moves between buckets
// when its subscription is rescheduled and is never duplicated.
package schedule

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/service"
)

type Entry struct {
	Due        uint64         `json:"due"`
	Subscriber common.Address `json:"subscriber"`
	ServiceID  service.ID     `json:"service_id"`
	// Seq orders entries within a bucket by insertion.
	Seq uint64 `json:"seq"`
}

// Limits caps the work taken from a bucket in one batch.
type Limits struct {
	MaxEntries  int
	MaxServices int
}

// Take selects, in order, the entries a batch may process under l: at most
// MaxEntries entries spanning at most MaxServices distinct services. Entries
// of services beyond the cap are skipped and stay due.
func (l Limits) Take(entries []Entry) []Entry {
	var (
		out      []Entry
		services = make(map[service.ID]struct{})
	)
	for _, e := range entries {
		if l.MaxEntries > 0 && len(out) >= l.MaxEntries {
			break
		}
		if _, seen := services[e.ServiceID]; !seen {
			if l.MaxServices > 0 && len(services) >= l.MaxServices {
				continue
			}
			services[e.ServiceID] = struct{}{}
		}
		out = append(out, e)
	}
	return out
}

// ErrInvalidHint is returned for hints that do not decode to a bucket.
var ErrInvalidHint = errors.New("schedule: invalid hint")

var hintArguments = func() abi.Arguments {
	u256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: u256}}
}()

// EncodeHint encodes a bucket time as the opaque hint handed to keepers
// (an ABI-encoded uint256).
func EncodeHint(due uint64) []byte {
	data, err := hintArguments.Pack(new(big.Int).SetUint64(due))
	if err != nil {
		panic(fmt.Sprintf("schedule: encode hint: %v", err))
	}
	return data
}

// DecodeHint returns the bucket time carried by hint.
func DecodeHint(hint []byte) (uint64, error) {
	if len(hint) != 32 {
		return 0, fmt.Errorf("%w: want 32 bytes, got %d", ErrInvalidHint, len(hint))
	}
	vals, err := hintArguments.Unpack(hint)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidHint, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("%w: bucket out of range", ErrInvalidHint)
	}
	return v.Uint64(), nil
}
