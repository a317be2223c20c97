// Package service defines recurring-charge service definitions, their
// deterministic identities and the registration records emitted each time a
// definition is (re)registered.
package service

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/subhub/id"
	"github.com/xraph/subhub/types"
)

// ID identifies a logical service across all of its versions.
type ID = common.Hash

// DeriveID computes the identity of the slot-th service registered by
// proposer: keccak256(proposer ‖ uint256(slot)).
func DeriveID(proposer common.Address, slot uint64) ID {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], slot)
	return crypto.Keccak256Hash(proposer.Bytes(), word[:])
}

type Service struct {
	types.Entity
	ID       ID             `json:"id"`
	Slot     uint64         `json:"slot"`
	Proposer common.Address `json:"proposer"`
	Receiver common.Address `json:"receiver"`
	Asset    common.Address `json:"asset"`
	Amount   types.Amount   `json:"amount"`
	Version  uint64         `json:"version"`
	Active   bool           `json:"active"`
}

// IsValid reports whether a binding to version is still honored.
func (s *Service) IsValid(version uint64) bool {
	return s != nil && s.Active && s.Version == version
}

// Config returns the latest registered configuration.
func (s *Service) Config() *Config {
	return &Config{
		Proposer: s.Proposer,
		Receiver: s.Receiver,
		Asset:    s.Asset,
		Amount:   s.Amount,
		Version:  s.Version,
	}
}

// Config is the externally visible configuration of a service.
type Config struct {
	Proposer common.Address `json:"proposer"`
	Receiver common.Address `json:"receiver"`
	Asset    common.Address `json:"asset"`
	Amount   types.Amount   `json:"amount"`
	Version  uint64         `json:"version"`
}

// Registration is the record emitted for observers on every registration.
type Registration struct {
	ID           id.ID          `json:"id"`
	ServiceID    ID             `json:"service_id"`
	Proposer     common.Address `json:"proposer"`
	Version      uint64         `json:"version"`
	Time         uint64         `json:"time"`
	RegisteredAt time.Time      `json:"registered_at"`
}
