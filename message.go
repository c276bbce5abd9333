// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/ids"
)

const (
	// MessageVersion is the envelope version understood by this package.
	MessageVersion uint32 = 1

	// HeaderLength is the fixed size of the serialized message header.
	// Everything after it is the message body.
	HeaderLength = 148

	// MaxMessageSize bounds any serialized message this package will parse.
	MaxMessageSize = 256 * KiB

	// DefaultMaxMessageBodySize is the body cap a transmitter enforces on
	// send unless configured otherwise.
	DefaultMaxMessageBodySize = 8192

	// FinalityThresholdFinalized is the finality level at or above which a
	// delivered message is dispatched to the finalized handler.
	FinalityThresholdFinalized uint32 = 2000
)

// Header field offsets.
const (
	versionOffset           = 0
	sourceDomainOffset      = 4
	destinationDomainOffset = 8
	nonceOffset             = 12
	senderOffset            = 44
	recipientOffset         = 76
	destinationCallerOffset = 108
	minFinalityOffset       = 140
	finalityExecutedOffset  = 144
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidMessage         = errors.New("invalid message")
	ErrUnknownAttester        = errors.New("unknown attester")
	ErrInvalidAttestation     = errors.New("invalid attestation")
	ErrInsufficientSignatures = errors.New("insufficient signatures")
)

// Message is a cross-domain message envelope. The nonce is zero when the
// message is emitted on the source domain; the attestation layer assigns it
// (along with FinalityThresholdExecuted) before signing.
type Message struct {
	Version                   uint32 `serialize:"true"`
	SourceDomain              uint32 `serialize:"true"`
	DestinationDomain         uint32 `serialize:"true"`
	Nonce                     ids.ID `serialize:"true"`
	Sender                    ids.ID `serialize:"true"`
	Recipient                 ids.ID `serialize:"true"`
	DestinationCaller         ids.ID `serialize:"true"`
	MinFinalityThreshold      uint32 `serialize:"true"`
	FinalityThresholdExecuted uint32 `serialize:"true"`
	Body                      []byte `serialize:"true"`
}

// NewMessage creates an unattested message as emitted by a source-domain
// transmitter: current version, zero nonce, zero executed finality.
func NewMessage(
	sourceDomain uint32,
	destinationDomain uint32,
	sender ids.ID,
	recipient ids.ID,
	destinationCaller ids.ID,
	minFinalityThreshold uint32,
	body []byte,
) (*Message, error) {
	msg := &Message{
		Version:              MessageVersion,
		SourceDomain:         sourceDomain,
		DestinationDomain:    destinationDomain,
		Sender:               sender,
		Recipient:            recipient,
		DestinationCaller:    destinationCaller,
		MinFinalityThreshold: minFinalityThreshold,
		Body:                 body,
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Verify checks structural validity of the message.
func (m *Message) Verify() error {
	if m.Version != MessageVersion {
		return fmt.Errorf("%w: version %d, expected %d", ErrInvalidMessage, m.Version, MessageVersion)
	}
	if m.Recipient == ids.Empty {
		return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
	}
	if HeaderLength+len(m.Body) > MaxMessageSize {
		return fmt.Errorf("%w: message size %d exceeds maximum %d", ErrInvalidMessage, HeaderLength+len(m.Body), MaxMessageSize)
	}
	return nil
}

// Bytes serializes the message. The encoding is deterministic: big-endian
// fixed-width header followed by the raw body.
func (m *Message) Bytes() []byte {
	buf := make([]byte, HeaderLength+len(m.Body))
	binary.BigEndian.PutUint32(buf[versionOffset:], m.Version)
	binary.BigEndian.PutUint32(buf[sourceDomainOffset:], m.SourceDomain)
	binary.BigEndian.PutUint32(buf[destinationDomainOffset:], m.DestinationDomain)
	copy(buf[nonceOffset:], m.Nonce[:])
	copy(buf[senderOffset:], m.Sender[:])
	copy(buf[recipientOffset:], m.Recipient[:])
	copy(buf[destinationCallerOffset:], m.DestinationCaller[:])
	binary.BigEndian.PutUint32(buf[minFinalityOffset:], m.MinFinalityThreshold)
	binary.BigEndian.PutUint32(buf[finalityExecutedOffset:], m.FinalityThresholdExecuted)
	copy(buf[HeaderLength:], m.Body)
	return buf
}

// Digest returns the keccak256 hash of the serialized message. Attesters
// sign this digest and the verifier recovers signer addresses from it.
func (m *Message) Digest() common.Hash {
	return crypto.Keccak256Hash(m.Bytes())
}

// ID returns the message digest as an ids.ID.
func (m *Message) ID() ids.ID {
	return ids.ID(m.Digest())
}

// ParseMessage deserializes a message, rejecting truncated or oversized
// input. ParseMessage(m.Bytes()) round-trips byte-identically.
func ParseMessage(b []byte) (*Message, error) {
	if len(b) < HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidMessage, len(b), HeaderLength)
	}
	if len(b) > MaxMessageSize {
		return nil, fmt.Errorf("%w: message size %d exceeds maximum %d", ErrInvalidMessage, len(b), MaxMessageSize)
	}
	msg := &Message{
		Version:                   binary.BigEndian.Uint32(b[versionOffset:]),
		SourceDomain:              binary.BigEndian.Uint32(b[sourceDomainOffset:]),
		DestinationDomain:         binary.BigEndian.Uint32(b[destinationDomainOffset:]),
		MinFinalityThreshold:      binary.BigEndian.Uint32(b[minFinalityOffset:]),
		FinalityThresholdExecuted: binary.BigEndian.Uint32(b[finalityExecutedOffset:]),
		Body:                      make([]byte, len(b)-HeaderLength),
	}
	copy(msg.Nonce[:], b[nonceOffset:nonceOffset+32])
	copy(msg.Sender[:], b[senderOffset:senderOffset+32])
	copy(msg.Recipient[:], b[recipientOffset:recipientOffset+32])
	copy(msg.DestinationCaller[:], b[destinationCallerOffset:destinationCallerOffset+32])
	copy(msg.Body, b[HeaderLength:])
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// IsFinalized reports whether the executed finality level selects the
// finalized receive handler on delivery.
func (m *Message) IsFinalized() bool {
	return m.FinalityThresholdExecuted >= FinalityThresholdFinalized
}

// WithReplacedBody returns a copy of the message carrying a new body and
// destination caller while preserving version, domains, nonce, sender and
// recipient. Used by message replacement, which re-announces rather than
// re-registers.
func (m *Message) WithReplacedBody(newBody []byte, newDestinationCaller ids.ID) *Message {
	cp := *m
	cp.Body = make([]byte, len(newBody))
	copy(cp.Body, newBody)
	cp.DestinationCaller = newDestinationCaller
	return &cp
}
