// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/log"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
	"github.com/luxfi/p2p"

	"github.com/luxfi/cctp/crypto/signature"
)

var errFailedVerification = errors.New("failed verification")

type aggregatorResult struct {
	NodeID    ids.NodeID
	Signer    common.Address
	Signature []byte
	Err       error
}

// NewAttestationAggregator returns an instance of AttestationAggregator
func NewAttestationAggregator(
	log log.Logger,
	client *p2p.Client,
	attesters *AttesterSet,
	scheme signature.Scheme,
) *AttestationAggregator {
	if scheme == nil {
		scheme = signature.Secp256k1()
	}
	return &AttestationAggregator{
		log:       log,
		client:    client,
		attesters: attesters,
		scheme:    scheme,
	}
}

// AttestationAggregator collects attester signatures over a message until the
// enabled set's signature threshold is met.
type AttestationAggregator struct {
	log       log.Logger
	client    *p2p.Client
	attesters *AttesterSet
	scheme    signature.Scheme
}

// Aggregate blocks until threshold signatures over message have been
// collected from attesterNodes or the context is canceled. Each response is
// verified by recovering its signer and checking it against the attester
// registered for the responding node; signatures from disabled attesters and
// duplicate signers are dropped. The returned attestation is the
// concatenation of exactly threshold signatures ordered by ascending signer
// address.
func (a *AttestationAggregator) Aggregate(
	ctx context.Context,
	message *Message,
	attesterNodes map[ids.NodeID]common.Address,
) ([]byte, error) {
	if err := message.Verify(); err != nil {
		return nil, err
	}
	if message.Nonce == ids.Empty {
		return nil, ErrUnassignedNonce
	}

	threshold := a.attesters.Threshold()
	if len(attesterNodes) < threshold {
		return nil, fmt.Errorf("%w: %d attester nodes for threshold %d",
			ErrInsufficientSignatures, len(attesterNodes), threshold)
	}

	requestBytes, err := MarshalAttestationRequest(&AttestationRequest{
		Message: message.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attestation request: %w", err)
	}

	nodeIDs := make([]ids.NodeID, 0, len(attesterNodes))
	for nodeID := range attesterNodes {
		nodeIDs = append(nodeIDs, nodeID)
	}

	results := make(chan aggregatorResult)
	handler := attestationResponseHandler{
		digest:            a.scheme.Digest(message.Bytes()),
		scheme:            a.scheme,
		nodeIDsToAttester: attesterNodes,
		results:           results,
	}

	if err := a.client.Request(ctx, set.Of(nodeIDs...), requestBytes, handler.HandleResponse); err != nil {
		return nil, fmt.Errorf("failed to send attestation request: %w", err)
	}

	collected := make(map[common.Address][]byte, threshold)

	// Block until:
	// 1. The context is cancelled
	// 2. We get responses from all attester nodes
	// 3. The signature threshold is reached
	for i := 0; i < len(nodeIDs); i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: have %d signatures, need %d: %w",
				ErrInsufficientSignatures, len(collected), threshold, ctx.Err())
		case result := <-results:
			if result.Err != nil {
				a.log.Debug(
					"dropping response",
					log.Stringer("nodeID", result.NodeID),
					log.Err(result.Err),
				)
				continue
			}

			if !a.attesters.IsEnabled(result.Signer) {
				a.log.Debug(
					"dropping signature from disabled attester",
					log.Stringer("nodeID", result.NodeID),
					log.Stringer("signer", result.Signer),
				)
				continue
			}

			// Nodes may share attester keys so drop any duplicate signatures
			if _, ok := collected[result.Signer]; ok {
				a.log.Debug(
					"dropping duplicate signature",
					log.Stringer("nodeID", result.NodeID),
					log.Stringer("signer", result.Signer),
				)
				continue
			}

			collected[result.Signer] = result.Signature
			if len(collected) == threshold {
				return assembleAttestation(collected), nil
			}
		}
	}

	return nil, fmt.Errorf("%w: have %d signatures, need %d",
		ErrInsufficientSignatures, len(collected), threshold)
}

// assembleAttestation concatenates the collected signatures in ascending
// signer address order, the order Verify requires.
func assembleAttestation(collected map[common.Address][]byte) []byte {
	signers := make([]common.Address, 0, len(collected))
	size := 0
	for signer, sig := range collected {
		signers = append(signers, signer)
		size += len(sig)
	}
	sort.Slice(signers, func(i, j int) bool {
		return bytes.Compare(signers[i][:], signers[j][:]) < 0
	})

	attestation := make([]byte, 0, size)
	for _, signer := range signers {
		attestation = append(attestation, collected[signer]...)
	}
	return attestation
}

type attestationResponseHandler struct {
	digest            common.Hash
	scheme            signature.Scheme
	nodeIDsToAttester map[ids.NodeID]common.Address
	results           chan aggregatorResult
}

func (r *attestationResponseHandler) HandleResponse(
	_ context.Context,
	nodeID ids.NodeID,
	responseBytes []byte,
	err error,
) {
	if err != nil {
		r.results <- aggregatorResult{NodeID: nodeID, Err: err}
		return
	}

	response, err := UnmarshalAttestationResponse(responseBytes)
	if err != nil {
		r.results <- aggregatorResult{NodeID: nodeID, Err: err}
		return
	}

	signer, err := r.scheme.RecoverSigner(r.digest, response.Signature)
	if err != nil {
		r.results <- aggregatorResult{NodeID: nodeID, Err: err}
		return
	}

	if signer != r.nodeIDsToAttester[nodeID] {
		r.results <- aggregatorResult{NodeID: nodeID, Err: errFailedVerification}
		return
	}

	r.results <- aggregatorResult{NodeID: nodeID, Signer: signer, Signature: response.Signature}
}
