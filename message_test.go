// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"encoding/binary"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func testID(b byte) ids.ID {
	var id ids.ID
	id[31] = b
	return id
}

func TestMessage(t *testing.T) {
	body := []byte("test body")

	msg, err := NewMessage(0, 1, testID(0xAA), testID(0xBB), testID(0xCC), 1000, body)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.Equal(t, MessageVersion, msg.Version)
	require.Equal(t, uint32(0), msg.SourceDomain)
	require.Equal(t, uint32(1), msg.DestinationDomain)
	require.Equal(t, ids.Empty, msg.Nonce)
	require.Equal(t, testID(0xAA), msg.Sender)
	require.Equal(t, testID(0xBB), msg.Recipient)
	require.Equal(t, testID(0xCC), msg.DestinationCaller)
	require.Equal(t, uint32(1000), msg.MinFinalityThreshold)
	require.Equal(t, uint32(0), msg.FinalityThresholdExecuted)

	raw := msg.Bytes()
	require.Len(t, raw, HeaderLength+len(body))

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	require.Equal(t, msg, parsed)
	require.Equal(t, raw, parsed.Bytes())

	require.Equal(t, msg.Digest(), parsed.Digest())
	require.Len(t, msg.ID(), 32)
}

func TestMessageFieldOffsets(t *testing.T) {
	require := require.New(t)

	msg, err := NewMessage(7, 9, testID(0x11), testID(0x22), testID(0x33), 500, []byte{0xFF})
	require.NoError(err)
	msg.Nonce = testID(0x44)
	msg.FinalityThresholdExecuted = 2000

	raw := msg.Bytes()
	require.Equal(uint32(1), binary.BigEndian.Uint32(raw[0:4]))
	require.Equal(uint32(7), binary.BigEndian.Uint32(raw[4:8]))
	require.Equal(uint32(9), binary.BigEndian.Uint32(raw[8:12]))
	require.Equal(msg.Nonce[:], raw[12:44])
	require.Equal(msg.Sender[:], raw[44:76])
	require.Equal(msg.Recipient[:], raw[76:108])
	require.Equal(msg.DestinationCaller[:], raw[108:140])
	require.Equal(uint32(500), binary.BigEndian.Uint32(raw[140:144]))
	require.Equal(uint32(2000), binary.BigEndian.Uint32(raw[144:148]))
	require.Equal(byte(0xFF), raw[148])
}

func TestParseMessageTruncated(t *testing.T) {
	msg, err := NewMessage(0, 1, testID(1), testID(2), ids.Empty, 0, []byte("body"))
	require.NoError(t, err)
	raw := msg.Bytes()

	for _, cut := range []int{0, 1, 12, HeaderLength - 1} {
		_, err := ParseMessage(raw[:cut])
		require.ErrorIs(t, err, ErrInvalidMessage)
	}
}

func TestParseMessageBadVersion(t *testing.T) {
	msg, err := NewMessage(0, 1, testID(1), testID(2), ids.Empty, 0, nil)
	require.NoError(t, err)
	raw := msg.Bytes()
	raw[3] = 0xEE

	_, err = ParseMessage(raw)
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestNewMessageValidation(t *testing.T) {
	// Empty recipient is rejected
	_, err := NewMessage(0, 1, testID(1), ids.Empty, ids.Empty, 0, nil)
	require.ErrorIs(t, err, ErrInvalidMessage)

	// Oversized body is rejected
	_, err = NewMessage(0, 1, testID(1), testID(2), ids.Empty, 0, make([]byte, MaxMessageSize))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestIsFinalized(t *testing.T) {
	msg, err := NewMessage(0, 1, testID(1), testID(2), ids.Empty, 0, nil)
	require.NoError(t, err)

	msg.FinalityThresholdExecuted = FinalityThresholdFinalized - 1
	require.False(t, msg.IsFinalized())
	msg.FinalityThresholdExecuted = FinalityThresholdFinalized
	require.True(t, msg.IsFinalized())
}

func TestWithReplacedBody(t *testing.T) {
	require := require.New(t)

	msg, err := NewMessage(0, 1, testID(1), testID(2), testID(3), 1000, []byte("original"))
	require.NoError(err)
	msg.Nonce = testID(9)

	replaced := msg.WithReplacedBody([]byte("replacement"), testID(4))
	require.Equal(msg.Version, replaced.Version)
	require.Equal(msg.SourceDomain, replaced.SourceDomain)
	require.Equal(msg.DestinationDomain, replaced.DestinationDomain)
	require.Equal(msg.Nonce, replaced.Nonce)
	require.Equal(msg.Sender, replaced.Sender)
	require.Equal(msg.Recipient, replaced.Recipient)
	require.Equal(testID(4), replaced.DestinationCaller)
	require.Equal([]byte("replacement"), replaced.Body)

	// Original untouched
	require.Equal([]byte("original"), msg.Body)
	require.Equal(testID(3), msg.DestinationCaller)
}

func TestAddressConversion(t *testing.T) {
	id := testID(0x55)
	addr := AddressFromBytes32(id)
	require.Equal(t, id[12:], addr[:])
	require.Equal(t, id, AddressToBytes32(addr))
}
