// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"bytes"
	"context"
	"fmt"

	"github.com/luxfi/cctp/crypto/signature"
)

// AttestationVerifier checks threshold attestations against an attester set.
//
// An attestation is the concatenation of exactly threshold signatures, each
// over the keccak256 digest of the serialized message. Recovered signer
// addresses must be strictly ascending, which rejects duplicates and enforces
// canonical ordering in a single comparison, and every recovered signer must
// be an enabled attester.
type AttestationVerifier struct {
	attesters *AttesterSet
	scheme    signature.Scheme
}

// NewAttestationVerifier creates a verifier over the attester set. A nil
// scheme selects secp256k1.
func NewAttestationVerifier(attesters *AttesterSet, scheme signature.Scheme) *AttestationVerifier {
	if scheme == nil {
		scheme = signature.Secp256k1()
	}
	return &AttestationVerifier{
		attesters: attesters,
		scheme:    scheme,
	}
}

// Verify checks the attestation over the message. Nothing is mutated; a nil
// return means the attestation authorizes delivery of exactly these bytes.
func (v *AttestationVerifier) Verify(_ context.Context, msg *Message, attestation []byte) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}

	sigLen := v.scheme.SignatureLen()
	threshold := v.attesters.Threshold()
	if len(attestation) != threshold*sigLen {
		return fmt.Errorf("%w: length %d, expected %d signatures of %d bytes",
			ErrInvalidAttestation, len(attestation), threshold, sigLen)
	}

	digest := v.scheme.Digest(msg.Bytes())
	var previous []byte
	for i := 0; i < threshold; i++ {
		sig := attestation[i*sigLen : (i+1)*sigLen]
		signer, err := v.scheme.RecoverSigner(digest, sig)
		if err != nil {
			return fmt.Errorf("%w: signature %d: %s", ErrInvalidSignature, i, err)
		}
		if previous != nil && bytes.Compare(signer[:], previous) <= 0 {
			return fmt.Errorf("%w: signature order invalid or duplicate at %d", ErrInvalidAttestation, i)
		}
		if !v.attesters.IsEnabled(signer) {
			return fmt.Errorf("%w: %s", ErrUnknownAttester, signer)
		}
		previous = signer[:]
	}
	return nil
}

// Attesters returns the verifier's attester set.
func (v *AttestationVerifier) Attesters() *AttesterSet {
	return v.attesters
}

// Scheme returns the verifier's signature scheme.
func (v *AttestationVerifier) Scheme() signature.Scheme {
	return v.scheme
}

var _ Verifier = (*AttestationVerifier)(nil)
