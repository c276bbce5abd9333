// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/ids"

	"github.com/luxfi/cctp/crypto/signature"
)

var (
	_ Signer = (*signer)(nil)

	ErrWrongVersion    = errors.New("wrong message version")
	ErrUnassignedNonce = errors.New("message nonce not assigned")
)

// Signer produces one attester's signature over a message. Attesters only
// sign finalized messages, so signing refuses a zero nonce.
type Signer interface {
	Sign(msg *Message) ([]byte, error)
	Address() common.Address
}

// NewSigner creates an attestation signer from a secp256k1 private key.
func NewSigner(key *ecdsa.PrivateKey) Signer {
	return &signer{
		key:    key,
		addr:   crypto.PubkeyToAddress(key.PublicKey),
		scheme: signature.Secp256k1(),
	}
}

type signer struct {
	key    *ecdsa.PrivateKey
	addr   common.Address
	scheme *signature.Secp256k1Scheme
}

func (s *signer) Sign(msg *Message) ([]byte, error) {
	if msg.Version != MessageVersion {
		return nil, ErrWrongVersion
	}
	if msg.Nonce == ids.Empty {
		return nil, ErrUnassignedNonce
	}

	return s.scheme.Sign(s.scheme.Digest(msg.Bytes()), s.key)
}

func (s *signer) Address() common.Address {
	return s.addr
}

// SignAttestation signs the message with every signer and concatenates the
// signatures in ascending signer-address order, producing an attestation
// that verifies against a set whose threshold equals len(signers).
func SignAttestation(msg *Message, signers ...Signer) ([]byte, error) {
	if len(signers) == 0 {
		return nil, errors.New("no signers")
	}
	ordered := make([]Signer, len(signers))
	copy(ordered, signers)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].Address(), ordered[j].Address()
		return bytes.Compare(a[:], b[:]) < 0
	})

	attestation := make([]byte, 0, len(ordered)*SignatureLen)
	for _, s := range ordered {
		sig, err := s.Sign(msg)
		if err != nil {
			return nil, fmt.Errorf("signer %s: %w", s.Address(), err)
		}
		attestation = append(attestation, sig...)
	}
	return attestation, nil
}
