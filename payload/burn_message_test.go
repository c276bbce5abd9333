// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

// generateTestID creates a random ID for testing
func generateTestID() ids.ID {
	var id ids.ID
	rand.Read(id[:])
	return id
}

func TestBurnMessage_NewAndBytes(t *testing.T) {
	burnToken := generateTestID()
	mintRecipient := generateTestID()
	messageSender := generateTestID()
	amount := uint256.NewInt(100)
	maxFee := uint256.NewInt(10)
	hookData := []byte{0x11, 0x22, 0x33}

	m, err := NewBurnMessage(burnToken, mintRecipient, amount, messageSender, maxFee, hookData)
	if err != nil {
		t.Fatalf("NewBurnMessage failed: %v", err)
	}
	if m.Version != BurnMessageVersion {
		t.Fatalf("version = %d, want %d", m.Version, BurnMessageVersion)
	}
	if !m.FeeExecuted.IsZero() || !m.ExpirationBlock.IsZero() {
		t.Fatal("emitted burn message must carry zero fee executed and expiration")
	}

	encoded := m.Bytes()
	if len(encoded) != BurnMessageLength+len(hookData) {
		t.Fatalf("encoded length = %d, want %d", len(encoded), BurnMessageLength+len(hookData))
	}

	decoded, err := ParseBurnMessage(encoded)
	if err != nil {
		t.Fatalf("ParseBurnMessage failed: %v", err)
	}
	if decoded.BurnToken != burnToken ||
		decoded.MintRecipient != mintRecipient ||
		decoded.MessageSender != messageSender {
		t.Fatal("decoded identities do not match")
	}
	if decoded.Amount.Cmp(amount) != 0 || decoded.MaxFee.Cmp(maxFee) != 0 {
		t.Fatal("decoded amounts do not match")
	}
	if !bytes.Equal(decoded.HookData, hookData) {
		t.Fatal("decoded hook data does not match")
	}
	if !bytes.Equal(decoded.Bytes(), encoded) {
		t.Fatal("round trip is not byte identical")
	}
}

func TestBurnMessage_NoHook(t *testing.T) {
	m, err := NewBurnMessage(generateTestID(), generateTestID(), uint256.NewInt(5), generateTestID(), uint256.NewInt(1), nil)
	if err != nil {
		t.Fatalf("NewBurnMessage failed: %v", err)
	}
	if m.HasHook() {
		t.Fatal("message without hook data reports a hook")
	}
	encoded := m.Bytes()
	if len(encoded) != BurnMessageLength {
		t.Fatalf("encoded length = %d, want %d", len(encoded), BurnMessageLength)
	}
	decoded, err := ParseBurnMessage(encoded)
	if err != nil {
		t.Fatalf("ParseBurnMessage failed: %v", err)
	}
	if decoded.HasHook() {
		t.Fatal("decoded message without hook data reports a hook")
	}
}

func TestParseBurnMessage_Truncated(t *testing.T) {
	m, err := NewBurnMessage(generateTestID(), generateTestID(), uint256.NewInt(5), generateTestID(), uint256.NewInt(1), nil)
	if err != nil {
		t.Fatalf("NewBurnMessage failed: %v", err)
	}
	encoded := m.Bytes()
	for _, cut := range []int{0, 1, 100, BurnMessageLength - 1} {
		if _, err := ParseBurnMessage(encoded[:cut]); !errors.Is(err, ErrInvalidBurnMessage) {
			t.Fatalf("truncated parse at %d: got %v, want ErrInvalidBurnMessage", cut, err)
		}
	}
}

func TestParseBurnMessage_BadVersion(t *testing.T) {
	m, err := NewBurnMessage(generateTestID(), generateTestID(), uint256.NewInt(5), generateTestID(), uint256.NewInt(1), nil)
	if err != nil {
		t.Fatalf("NewBurnMessage failed: %v", err)
	}
	encoded := m.Bytes()
	encoded[3] = 0xFF
	if _, err := ParseBurnMessage(encoded); !errors.Is(err, ErrInvalidBurnMessage) {
		t.Fatalf("bad version parse: got %v, want ErrInvalidBurnMessage", err)
	}
}

func TestBurnMessage_ValidateFees(t *testing.T) {
	tests := []struct {
		name        string
		amount      uint64
		maxFee      uint64
		feeExecuted uint64
		wantErr     bool
	}{
		{name: "zero fees", amount: 100, maxFee: 10, feeExecuted: 0, wantErr: false},
		{name: "fee at max", amount: 100, maxFee: 10, feeExecuted: 10, wantErr: false},
		{name: "fee above max", amount: 100, maxFee: 10, feeExecuted: 11, wantErr: true},
		{name: "max fee equals amount", amount: 100, maxFee: 100, feeExecuted: 0, wantErr: true},
		{name: "max fee above amount", amount: 100, maxFee: 101, feeExecuted: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &BurnMessage{
				Version:         BurnMessageVersion,
				MintRecipient:   generateTestID(),
				Amount:          uint256.NewInt(tt.amount),
				MaxFee:          uint256.NewInt(tt.maxFee),
				FeeExecuted:     uint256.NewInt(tt.feeExecuted),
				ExpirationBlock: uint256.NewInt(0),
			}
			err := m.ValidateFees()
			if tt.wantErr && !errors.Is(err, ErrFeeInvariant) {
				t.Fatalf("got %v, want ErrFeeInvariant", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBurnMessage_WithExecution(t *testing.T) {
	m, err := NewBurnMessage(generateTestID(), generateTestID(), uint256.NewInt(100), generateTestID(), uint256.NewInt(10), []byte{1})
	if err != nil {
		t.Fatalf("NewBurnMessage failed: %v", err)
	}
	stamped := m.WithExecution(uint256.NewInt(5), uint256.NewInt(9000))
	if !m.FeeExecuted.IsZero() || !m.ExpirationBlock.IsZero() {
		t.Fatal("WithExecution mutated the original")
	}
	if stamped.FeeExecuted.Uint64() != 5 || stamped.ExpirationBlock.Uint64() != 9000 {
		t.Fatal("WithExecution did not stamp the copy")
	}

	replaced := m.WithMintRecipient(generateTestID())
	if replaced.MintRecipient == m.MintRecipient {
		t.Fatal("WithMintRecipient did not change the recipient")
	}
	if replaced.Amount.Cmp(m.Amount) != 0 {
		t.Fatal("WithMintRecipient changed the amount")
	}
}
