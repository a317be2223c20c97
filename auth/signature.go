// Package auth proves subscriber consent with detached secp256k1 signatures
// and carries the identity of the immediate caller on the context.
//
// A consent signature covers the canonical message
//
//	keccak256(subscriber ‖ serviceID ‖ uint256(version))
//
// signed as an EIP-191 personal message, which is what wallets produce for
// signMessage. Because the version is part of the message, a signature for
// an old registration cannot be replayed against a re-registered service.
package auth

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/subhub/service"
)

// SignatureLength is the length of an [R || S || V] signature.
const SignatureLength = crypto.SignatureLength

var (
	ErrMalformedSignature = errors.New("auth: malformed signature")
	ErrSignerMismatch     = errors.New("auth: signature does not match subscriber")
)

// ConsentMessage returns the canonical message a subscriber signs.
func ConsentMessage(subscriber common.Address, serviceID service.ID, version uint64) common.Hash {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], version)
	return crypto.Keccak256Hash(subscriber.Bytes(), serviceID.Bytes(), word[:])
}

// ConsentDigest returns the EIP-191 digest that is actually signed.
func ConsentDigest(subscriber common.Address, serviceID service.ID, version uint64) []byte {
	msg := ConsentMessage(subscriber, serviceID, version)
	return accounts.TextHash(msg.Bytes())
}

// Sign produces a consent signature with V in {27, 28}.
func Sign(key *ecdsa.PrivateKey, serviceID service.ID, version uint64) ([]byte, error) {
	subscriber := crypto.PubkeyToAddress(key.PublicKey)
	sig, err := crypto.Sign(ConsentDigest(subscriber, serviceID, version), key)
	if err != nil {
		return nil, fmt.Errorf("auth: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the account that produced sig over the consent for
// (subscriber, serviceID, version). V may be 0/1 or 27/28.
func Recover(subscriber common.Address, serviceID service.ID, version uint64, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if v := normalized[crypto.RecoveryIDOffset]; v >= 27 {
		normalized[crypto.RecoveryIDOffset] = v - 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, sig[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(ConsentDigest(subscriber, serviceID, version), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sig is subscriber's consent to (serviceID, version).
func Verify(subscriber common.Address, serviceID service.ID, version uint64, sig []byte) error {
	signer, err := Recover(subscriber, serviceID, version, sig)
	if err != nil {
		return err
	}
	if signer != subscriber {
		return fmt.Errorf("%w: recovered %s", ErrSignerMismatch, signer.Hex())
	}
	return nil
}
