// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package backend

import (
	"github.com/luxfi/geth/rlp"
)

// MessageRecord is the stored form of a sent message. Attestation is empty
// until the attestation layer has signed the message.
type MessageRecord struct {
	Message     []byte
	Attestation []byte
	EventIndex  uint64
}

// Bytes returns the RLP encoding of the record
func (r *MessageRecord) Bytes() ([]byte, error) {
	return rlp.EncodeToBytes(r)
}

// ParseMessageRecord decodes an RLP-encoded record
func ParseMessageRecord(b []byte) (*MessageRecord, error) {
	record := &MessageRecord{}
	if err := rlp.DecodeBytes(b, record); err != nil {
		return nil, err
	}
	return record, nil
}
