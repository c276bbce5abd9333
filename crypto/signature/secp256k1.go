// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

const secp256k1SigLen = 65

var errSignatureLength = errors.New("signature must be 65 bytes")

// Secp256k1Scheme recovers signers from 65-byte (r || s || v) signatures
// over keccak256 digests. Both Ethereum-convention recovery ids (27/28) and
// raw recovery ids (0/1) are accepted.
type Secp256k1Scheme struct{}

// Secp256k1 returns the default scheme instance.
func Secp256k1() *Secp256k1Scheme {
	return &Secp256k1Scheme{}
}

// ID returns the scheme identifier
func (*Secp256k1Scheme) ID() SchemeID {
	return SchemeSecp256k1
}

// SignatureLen returns the serialized signature length
func (*Secp256k1Scheme) SignatureLen() int {
	return secp256k1SigLen
}

// Digest computes the keccak256 digest of the message bytes
func (*Secp256k1Scheme) Digest(msg []byte) common.Hash {
	return crypto.Keccak256Hash(msg)
}

// RecoverSigner recovers the signing address from a signature over the digest
func (*Secp256k1Scheme) RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != secp256k1SigLen {
		return common.Address{}, fmt.Errorf("%w: got %d", errSignatureLength, len(sig))
	}
	normalized := make([]byte, secp256k1SigLen)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a 65-byte signature over the digest with the Ethereum
// recovery id convention (v in {27, 28}).
func (*Secp256k1Scheme) Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

var _ Scheme = (*Secp256k1Scheme)(nil)
