// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/p2p"
)

// AttestationHandlerID is the protocol ID for attestation request handling
const AttestationHandlerID = 0x63637470

// AttestationRequest asks an attester node to sign a message
type AttestationRequest struct {
	Message []byte
}

// AttestationResponse carries a single attester signature
type AttestationResponse struct {
	Signature []byte
}

// MarshalAttestationRequest marshals an attestation request to bytes
func MarshalAttestationRequest(req *AttestationRequest) ([]byte, error) {
	// Format: msgLen(4) + msg
	msgLen := len(req.Message)
	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	copy(buf[4:], req.Message)
	return buf, nil
}

// UnmarshalAttestationRequest unmarshals bytes to an attestation request
func UnmarshalAttestationRequest(data []byte) (*AttestationRequest, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short: %d", len(data))
	}
	msgLen := binary.BigEndian.Uint32(data[0:4])
	if len(data) < int(4+msgLen) {
		return nil, fmt.Errorf("data too short for message: %d", len(data))
	}
	return &AttestationRequest{
		Message: data[4 : 4+msgLen],
	}, nil
}

// MarshalAttestationResponse marshals an attestation response to bytes
func MarshalAttestationResponse(signature []byte) ([]byte, error) {
	// Format: sigLen(4) + sig
	buf := make([]byte, 4+len(signature))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(signature)))
	copy(buf[4:], signature)
	return buf, nil
}

// UnmarshalAttestationResponse unmarshals bytes to an attestation response
func UnmarshalAttestationResponse(data []byte) (*AttestationResponse, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short: %d", len(data))
	}
	sigLen := binary.BigEndian.Uint32(data[0:4])
	if len(data) < int(4+sigLen) {
		return nil, fmt.Errorf("data too short for signature: %d", len(data))
	}
	return &AttestationResponse{
		Signature: data[4 : 4+sigLen],
	}, nil
}

// AttestationHandler handles attestation requests
type AttestationHandler interface {
	// Request handles an incoming attestation request
	Request(ctx context.Context, nodeID ids.NodeID, deadline time.Time, request []byte) ([]byte, error)
}

// NoOpAttestationHandler is a no-op implementation of AttestationHandler
type NoOpAttestationHandler struct{}

// Request returns an empty response
func (NoOpAttestationHandler) Request(context.Context, ids.NodeID, time.Time, []byte) ([]byte, error) {
	return nil, nil
}

// RequestVerifier authorizes attestation requests before they are signed.
// Implementations typically check that the message was actually emitted on
// the attester's view of the source domain.
type RequestVerifier interface {
	VerifyRequest(ctx context.Context, msg *Message) error
}

// AttestationCacher provides caching for attestation responses
type AttestationCacher[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
}

// CachedAttestationHandler signs attestation requests, caching signatures by
// message ID so repeated requests for the same message are served without
// re-signing.
type CachedAttestationHandler struct {
	cache    AttestationCacher[ids.ID, []byte]
	verifier RequestVerifier
	signer   Signer
}

// NewCachedAttestationHandler creates a new cached attestation handler.
// cache.NewFIFOCache provides a suitable bounded cache. The verifier may be
// nil, in which case any well-formed message is signed.
func NewCachedAttestationHandler(
	cache AttestationCacher[ids.ID, []byte],
	verifier RequestVerifier,
	signer Signer,
) AttestationHandler {
	return &CachedAttestationHandler{
		cache:    cache,
		verifier: verifier,
		signer:   signer,
	}
}

// Request handles an incoming attestation request with caching
func (h *CachedAttestationHandler) Request(ctx context.Context, nodeID ids.NodeID, deadline time.Time, request []byte) ([]byte, error) {
	req, err := UnmarshalAttestationRequest(request)
	if err != nil {
		return nil, &Error{Code: ErrCodeMalformedRequest, Message: err.Error()}
	}

	message, err := ParseMessage(req.Message)
	if err != nil {
		return nil, &Error{Code: ErrCodeMalformedRequest, Message: err.Error()}
	}

	// Check cache
	messageID := message.ID()
	if signatureBytes, ok := h.cache.Get(messageID); ok {
		return MarshalAttestationResponse(signatureBytes)
	}

	if h.verifier != nil {
		if err := h.verifier.VerifyRequest(ctx, message); err != nil {
			return nil, &Error{Code: ErrCodeRequestDenied, Message: err.Error()}
		}
	}

	if h.signer == nil {
		return nil, &Error{Code: ErrCodeSigningFailed, Message: "no signer configured"}
	}
	// Signer errors are returned unwrapped so callers can match sentinels
	// such as ErrUnassignedNonce.
	signatureBytes, err := h.signer.Sign(message)
	if err != nil {
		return nil, err
	}

	h.cache.Put(messageID, signatureBytes)

	return MarshalAttestationResponse(signatureBytes)
}

// Ensure AttestationHandlerAdapter implements p2p.Handler
var _ p2p.Handler = (*AttestationHandlerAdapter)(nil)

// AttestationHandlerAdapter adapts an AttestationHandler to the p2p.Handler
// interface. This allows attestation handlers to be registered with the p2p
// router.
type AttestationHandlerAdapter struct {
	handler AttestationHandler
}

// NewAttestationHandlerAdapter creates a new adapter that wraps an
// AttestationHandler and implements the p2p.Handler interface.
func NewAttestationHandlerAdapter(handler AttestationHandler) *AttestationHandlerAdapter {
	return &AttestationHandlerAdapter{handler: handler}
}

// Gossip implements p2p.Handler. Attestation handlers do not use gossip.
func (a *AttestationHandlerAdapter) Gossip(ctx context.Context, nodeID ids.NodeID, gossipBytes []byte) {
	// Attestation handlers do not use Gossip
}

// Request implements p2p.Handler by delegating to the wrapped
// AttestationHandler. Coded application errors keep their code on the wire;
// anything else is reported as an internal error.
func (a *AttestationHandlerAdapter) Request(ctx context.Context, nodeID ids.NodeID, deadline time.Time, requestBytes []byte) ([]byte, *p2p.Error) {
	response, err := a.handler.Request(ctx, nodeID, deadline, requestBytes)
	if err == nil {
		return response, nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return nil, &p2p.Error{
			Code:    appErr.Code,
			Message: appErr.Message,
		}
	}
	return nil, &p2p.Error{
		Code:    ErrCodeSigningFailed,
		Message: err.Error(),
	}
}
