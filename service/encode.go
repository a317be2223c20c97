package service

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/types"
)

var configArguments = mustArguments("address", "address", "address", "uint256", "uint256")

func mustArguments(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(kinds))
	for _, k := range kinds {
		t, err := abi.NewType(k, "", nil)
		if err != nil {
			panic(fmt.Sprintf("service: abi type %q: %v", k, err))
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// EncodeConfiguration ABI-encodes the configuration as the tuple
// (proposer, receiver, asset, amount, version).
func EncodeConfiguration(c *Config) ([]byte, error) {
	return configArguments.Pack(
		c.Proposer,
		c.Receiver,
		c.Asset,
		c.Amount.Big(),
		new(big.Int).SetUint64(c.Version),
	)
}

// DecodeConfiguration reverses EncodeConfiguration.
func DecodeConfiguration(data []byte) (*Config, error) {
	vals, err := configArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("service: decode configuration: %w", err)
	}
	if len(vals) != len(configArguments) {
		return nil, errors.New("service: decode configuration: unexpected arity")
	}

	proposer, ok1 := vals[0].(common.Address)
	receiver, ok2 := vals[1].(common.Address)
	asset, ok3 := vals[2].(common.Address)
	amount, ok4 := vals[3].(*big.Int)
	version, ok5 := vals[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, errors.New("service: decode configuration: unexpected field types")
	}
	if !version.IsUint64() {
		return nil, errors.New("service: decode configuration: version out of range")
	}

	amt, err := types.AmountFromBig(amount)
	if err != nil {
		return nil, fmt.Errorf("service: decode configuration: %w", err)
	}

	return &Config{
		Proposer: proposer,
		Receiver: receiver,
		Asset:    asset,
		Amount:   amt,
		Version:  version.Uint64(),
	}, nil
}
