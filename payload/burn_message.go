// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

const (
	// BurnMessageVersion is the burn body version understood by this package.
	BurnMessageVersion uint32 = 1

	// BurnMessageLength is the size of the fixed part of a serialized burn
	// message. Hook data, if any, follows it.
	BurnMessageLength = 228
)

// Burn message field offsets.
const (
	burnVersionOffset     = 0
	burnTokenOffset       = 4
	mintRecipientOffset   = 36
	amountOffset          = 68
	messageSenderOffset   = 100
	maxFeeOffset          = 132
	feeExecutedOffset     = 164
	expirationBlockOffset = 196
)

var (
	// ErrInvalidBurnMessage is returned when a burn message is malformed
	ErrInvalidBurnMessage = errors.New("invalid burn message")

	// ErrFeeInvariant is returned when the fee bounds are violated
	ErrFeeInvariant = errors.New("fee invariant violated")
)

// BurnMessage is the body of a cross-domain value transfer: a burn of
// Amount of BurnToken on the source domain to be minted to MintRecipient on
// the destination. FeeExecuted and ExpirationBlock are zero when emitted and
// are filled by the attestation layer before signing.
type BurnMessage struct {
	Version         uint32       `serialize:"true"`
	BurnToken       ids.ID       `serialize:"true"`
	MintRecipient   ids.ID       `serialize:"true"`
	Amount          *uint256.Int `serialize:"true"`
	MessageSender   ids.ID       `serialize:"true"`
	MaxFee          *uint256.Int `serialize:"true"`
	FeeExecuted     *uint256.Int `serialize:"true"`
	ExpirationBlock *uint256.Int `serialize:"true"`
	HookData        []byte       `serialize:"true"`
}

// NewBurnMessage creates a burn message as emitted on the source domain:
// current version, zero fee executed, zero expiration.
func NewBurnMessage(
	burnToken ids.ID,
	mintRecipient ids.ID,
	amount *uint256.Int,
	messageSender ids.ID,
	maxFee *uint256.Int,
	hookData []byte,
) (*BurnMessage, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: nil amount", ErrInvalidBurnMessage)
	}
	if maxFee == nil {
		return nil, fmt.Errorf("%w: nil max fee", ErrInvalidBurnMessage)
	}
	msg := &BurnMessage{
		Version:         BurnMessageVersion,
		BurnToken:       burnToken,
		MintRecipient:   mintRecipient,
		Amount:          amount.Clone(),
		MessageSender:   messageSender,
		MaxFee:          maxFee.Clone(),
		FeeExecuted:     uint256.NewInt(0),
		ExpirationBlock: uint256.NewInt(0),
		HookData:        hookData,
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Verify checks structural validity of the burn message.
func (m *BurnMessage) Verify() error {
	if m.Version != BurnMessageVersion {
		return fmt.Errorf("%w: version %d, expected %d", ErrInvalidBurnMessage, m.Version, BurnMessageVersion)
	}
	if m.Amount == nil || m.MaxFee == nil || m.FeeExecuted == nil || m.ExpirationBlock == nil {
		return fmt.Errorf("%w: nil field", ErrInvalidBurnMessage)
	}
	if m.MintRecipient == ids.Empty {
		return fmt.Errorf("%w: empty mint recipient", ErrInvalidBurnMessage)
	}
	return nil
}

// ValidateFees checks FeeExecuted <= MaxFee < Amount. On emission
// FeeExecuted is zero so only the max fee bound bites; on receipt both do.
func (m *BurnMessage) ValidateFees() error {
	if m.MaxFee.Cmp(m.Amount) >= 0 {
		return fmt.Errorf("%w: max fee %s not below amount %s", ErrFeeInvariant, m.MaxFee, m.Amount)
	}
	if m.FeeExecuted.Cmp(m.MaxFee) > 0 {
		return fmt.Errorf("%w: fee executed %s exceeds max fee %s", ErrFeeInvariant, m.FeeExecuted, m.MaxFee)
	}
	return nil
}

// HasHook reports whether a hook payload is attached.
func (m *BurnMessage) HasHook() bool {
	return len(m.HookData) > 0
}

// Bytes serializes the burn message.
func (m *BurnMessage) Bytes() []byte {
	buf := make([]byte, BurnMessageLength+len(m.HookData))
	binary.BigEndian.PutUint32(buf[burnVersionOffset:], m.Version)
	copy(buf[burnTokenOffset:], m.BurnToken[:])
	copy(buf[mintRecipientOffset:], m.MintRecipient[:])

	amount := m.Amount.Bytes32()
	copy(buf[amountOffset:], amount[:])
	copy(buf[messageSenderOffset:], m.MessageSender[:])
	maxFee := m.MaxFee.Bytes32()
	copy(buf[maxFeeOffset:], maxFee[:])
	feeExecuted := m.FeeExecuted.Bytes32()
	copy(buf[feeExecutedOffset:], feeExecuted[:])
	expiration := m.ExpirationBlock.Bytes32()
	copy(buf[expirationBlockOffset:], expiration[:])

	copy(buf[BurnMessageLength:], m.HookData)
	return buf
}

// ParseBurnMessage deserializes a burn message, rejecting truncated input.
func ParseBurnMessage(b []byte) (*BurnMessage, error) {
	if len(b) < BurnMessageLength {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidBurnMessage, len(b), BurnMessageLength)
	}

	msg := &BurnMessage{
		Version:         binary.BigEndian.Uint32(b[burnVersionOffset:]),
		Amount:          new(uint256.Int).SetBytes(b[amountOffset : amountOffset+32]),
		MaxFee:          new(uint256.Int).SetBytes(b[maxFeeOffset : maxFeeOffset+32]),
		FeeExecuted:     new(uint256.Int).SetBytes(b[feeExecutedOffset : feeExecutedOffset+32]),
		ExpirationBlock: new(uint256.Int).SetBytes(b[expirationBlockOffset : expirationBlockOffset+32]),
		HookData:        make([]byte, len(b)-BurnMessageLength),
	}
	copy(msg.BurnToken[:], b[burnTokenOffset:burnTokenOffset+32])
	copy(msg.MintRecipient[:], b[mintRecipientOffset:mintRecipientOffset+32])
	copy(msg.MessageSender[:], b[messageSenderOffset:messageSenderOffset+32])
	copy(msg.HookData, b[BurnMessageLength:])

	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// WithMintRecipient returns a copy carrying a new mint recipient,
// preserving every other field. Used by deposit replacement.
func (m *BurnMessage) WithMintRecipient(recipient ids.ID) *BurnMessage {
	cp := m.clone()
	cp.MintRecipient = recipient
	return cp
}

// WithExecution returns a copy carrying the executed fee and expiration
// block stamped by the attestation layer.
func (m *BurnMessage) WithExecution(feeExecuted, expirationBlock *uint256.Int) *BurnMessage {
	cp := m.clone()
	cp.FeeExecuted = feeExecuted.Clone()
	cp.ExpirationBlock = expirationBlock.Clone()
	return cp
}

func (m *BurnMessage) clone() *BurnMessage {
	cp := &BurnMessage{
		Version:         m.Version,
		BurnToken:       m.BurnToken,
		MintRecipient:   m.MintRecipient,
		Amount:          m.Amount.Clone(),
		MessageSender:   m.MessageSender,
		MaxFee:          m.MaxFee.Clone(),
		FeeExecuted:     m.FeeExecuted.Clone(),
		ExpirationBlock: m.ExpirationBlock.Clone(),
	}
	if m.HookData != nil {
		cp.HookData = make([]byte, len(m.HookData))
		copy(cp.HookData, m.HookData)
	}
	return cp
}
