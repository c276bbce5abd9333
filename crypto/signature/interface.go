// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

// Package signature provides modular signature schemes for message
// attestation. Attestation verification is recovery based: a scheme must
// yield the signer's address from a digest and signature alone, so that the
// verifier can enforce strict signer ordering without a key directory.
package signature

import (
	"errors"

	"github.com/luxfi/geth/common"
)

// SchemeID identifies a signature scheme.
type SchemeID string

const (
	// SchemeSecp256k1 uses 65-byte secp256k1 signatures over keccak256
	// digests with address recovery. This is the default scheme.
	SchemeSecp256k1 SchemeID = "secp256k1"
)

// Scheme binds digest construction, signature length, and signer recovery
// for one signature scheme.
type Scheme interface {
	// ID returns the scheme identifier
	ID() SchemeID

	// SignatureLen returns the length of one serialized signature
	SignatureLen() int

	// Digest computes the signing digest for a serialized message
	Digest(msg []byte) common.Hash

	// RecoverSigner returns the address that produced the signature over
	// the digest
	RecoverSigner(digest common.Hash, sig []byte) (common.Address, error)
}

// Registry manages available signature schemes
type Registry struct {
	schemes   map[SchemeID]Scheme
	preferred SchemeID
}

// NewRegistry creates a new signature scheme registry
func NewRegistry(preferred SchemeID) *Registry {
	return &Registry{
		schemes:   make(map[SchemeID]Scheme),
		preferred: preferred,
	}
}

// Register adds a signature scheme to the registry
func (r *Registry) Register(scheme Scheme) error {
	if scheme == nil {
		return errors.New("nil scheme")
	}
	r.schemes[scheme.ID()] = scheme
	return nil
}

// Get returns the scheme with the given identifier
func (r *Registry) Get(id SchemeID) (Scheme, error) {
	s, ok := r.schemes[id]
	if !ok {
		return nil, errors.New("unknown signature scheme")
	}
	return s, nil
}

// Preferred returns the currently preferred scheme
func (r *Registry) Preferred() (Scheme, error) {
	return r.Get(r.preferred)
}

// SetPreferred changes the preferred scheme
func (r *Registry) SetPreferred(id SchemeID) error {
	if _, ok := r.schemes[id]; !ok {
		return errors.New("scheme not registered")
	}
	r.preferred = id
	return nil
}
