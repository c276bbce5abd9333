// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// Constants
const (
	// KiB is 1024 bytes
	KiB = 1024

	// SignatureLen is the length of one attester signature (r || s || v)
	SignatureLen = 65
)

// AddressToBytes32 left-pads a 20-byte address into a 32-byte identity.
func AddressToBytes32(addr common.Address) ids.ID {
	var id ids.ID
	copy(id[12:], addr[:])
	return id
}

// AddressFromBytes32 truncates a 32-byte identity to its low 20 bytes.
func AddressFromBytes32(id ids.ID) common.Address {
	return common.BytesToAddress(id[12:])
}

// HashToID converts a common.Hash to an ids.ID.
func HashToID(h common.Hash) ids.ID {
	return ids.ID(h)
}

// IDToHash converts an ids.ID to a common.Hash.
func IDToHash(id ids.ID) common.Hash {
	return common.Hash(id)
}
