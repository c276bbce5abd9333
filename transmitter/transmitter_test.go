// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package transmitter

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/crypto/signature"
	"github.com/luxfi/cctp/roles"
)

const (
	localDomain  uint32 = 5
	remoteDomain uint32 = 0
)

func testID(b byte) ids.ID {
	var id ids.ID
	id[31] = b
	return id
}

var (
	ownerID   = testID(0x01)
	pauserID  = testID(0x02)
	managerID = testID(0x03)
	senderID  = testID(0x0A)
	handlerID = testID(0x0B)
	callerID  = testID(0x0C)
)

type testEnv struct {
	transmitter *Transmitter
	keys        []*ecdsa.PrivateKey
	signers     []cctp.Signer
	attesters   *cctp.AttesterSet
	store       *backend.MemoryBackend
}

// newTestEnv builds a transmitter on localDomain with three attesters and a
// signature threshold of two.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	keys := make([]*ecdsa.PrivateKey, 3)
	signers := make([]cctp.Signer, 3)
	addrs := make([]common.Address, 3)
	for i := range signers {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		signers[i] = cctp.NewSigner(key)
		addrs[i] = signers[i].Address()
	}
	attesters, err := cctp.NewAttesterSet(addrs, 2)
	require.NoError(t, err)

	store := backend.NewMemoryBackend()
	tr, err := New(
		Config{
			LocalDomain:     localDomain,
			Owner:           ownerID,
			Pauser:          pauserID,
			AttesterManager: managerID,
		},
		log.NoLog{},
		attesters,
		store,
		nil,
	)
	require.NoError(t, err)

	return &testEnv{
		transmitter: tr,
		keys:        keys,
		signers:     signers,
		attesters:   attesters,
		store:       store,
	}
}

// rawAttestation signs at the scheme level, bypassing the signer's
// assigned-nonce check.
func rawAttestation(t *testing.T, msg *cctp.Message, env *testEnv) []byte {
	t.Helper()

	scheme := signature.Secp256k1()
	digest := scheme.Digest(msg.Bytes())
	keys := make([]*ecdsa.PrivateKey, 2)
	copy(keys, env.keys[:2])
	sort.Slice(keys, func(i, j int) bool {
		a := crypto.PubkeyToAddress(keys[i].PublicKey)
		b := crypto.PubkeyToAddress(keys[j].PublicKey)
		return bytes.Compare(a[:], b[:]) < 0
	})

	attestation := make([]byte, 0, len(keys)*cctp.SignatureLen)
	for _, key := range keys {
		sig, err := scheme.Sign(digest, key)
		require.NoError(t, err)
		attestation = append(attestation, sig...)
	}
	return attestation
}

// inboundMessage builds an attested message addressed to the local domain.
func (e *testEnv) inboundMessage(t *testing.T, nonce ids.ID, finality uint32, destinationCaller ids.ID) (*cctp.Message, []byte) {
	t.Helper()

	msg, err := cctp.NewMessage(remoteDomain, localDomain, senderID, handlerID, destinationCaller, 1000, []byte("payload"))
	require.NoError(t, err)
	msg.Nonce = nonce
	msg.FinalityThresholdExecuted = finality

	attestation, err := cctp.SignAttestation(msg, e.signers[0], e.signers[1])
	require.NoError(t, err)
	return msg, attestation
}

type handledMessage struct {
	finalized    bool
	sourceDomain uint32
	sender       ids.ID
	finality     uint32
	body         []byte
}

// recordingHandler is a MessageRecipient that records deliveries and fails
// on demand.
type recordingHandler struct {
	mu       sync.Mutex
	err      error
	received []handledMessage
}

func (h *recordingHandler) handle(finalized bool, sourceDomain uint32, sender ids.ID, finality uint32, body []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.received = append(h.received, handledMessage{
		finalized:    finalized,
		sourceDomain: sourceDomain,
		sender:       sender,
		finality:     finality,
		body:         body,
	})
	return nil
}

func (h *recordingHandler) HandleReceiveFinalizedMessage(_ context.Context, sourceDomain uint32, sender ids.ID, finality uint32, body []byte) error {
	return h.handle(true, sourceDomain, sender, finality, body)
}

func (h *recordingHandler) HandleReceiveUnfinalizedMessage(_ context.Context, sourceDomain uint32, sender ids.ID, finality uint32, body []byte) error {
	return h.handle(false, sourceDomain, sender, finality, body)
}

func (h *recordingHandler) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func TestSendMessage(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	tr := env.transmitter
	ctx := context.Background()

	var events []*SentMessage
	tr.RegisterSink(SinkFunc(func(_ context.Context, event *SentMessage) error {
		events = append(events, event)
		return nil
	}))

	event, err := tr.SendMessage(ctx, senderID, remoteDomain, handlerID, ids.Empty, 2000, []byte("hello"))
	require.NoError(err)
	require.Equal(uint64(1), event.Index)
	require.Equal(ids.Empty, event.Message.Nonce)
	require.Equal(localDomain, event.Message.SourceDomain)
	require.Equal(senderID, event.Message.Sender)
	require.Len(events, 1)

	// The message is journaled under its digest.
	record, err := tr.GetSentMessage(ctx, event.Message.ID())
	require.NoError(err)
	require.Equal(event.Raw, record.Message)
	require.Equal(uint64(1), record.EventIndex)

	// Indexes increase monotonically.
	event, err = tr.SendMessage(ctx, senderID, remoteDomain, handlerID, ids.Empty, 2000, []byte("world"))
	require.NoError(err)
	require.Equal(uint64(2), event.Index)

	_, err = tr.SendMessage(ctx, ids.Empty, remoteDomain, handlerID, ids.Empty, 2000, nil)
	require.ErrorIs(err, ErrZeroSender)

	oversized := make([]byte, tr.MaxMessageBodySize()+1)
	_, err = tr.SendMessage(ctx, senderID, remoteDomain, handlerID, ids.Empty, 2000, oversized)
	require.ErrorIs(err, ErrBodyTooLarge)

	require.NoError(tr.Pause(pauserID))
	_, err = tr.SendMessage(ctx, senderID, remoteDomain, handlerID, ids.Empty, 2000, []byte("paused"))
	require.ErrorIs(err, roles.ErrPaused)
}

func TestReceiveMessage(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	tr := env.transmitter
	ctx := context.Background()

	handler := &recordingHandler{}
	require.NoError(tr.RegisterRecipient(handlerID, handler))

	msg, attestation := env.inboundMessage(t, testID(0x10), 2000, ids.Empty)
	require.NoError(tr.ReceiveMessage(ctx, callerID, msg.Bytes(), attestation))

	require.Equal(1, handler.count())
	got := handler.received[0]
	require.True(got.finalized)
	require.Equal(remoteDomain, got.sourceDomain)
	require.Equal(senderID, got.sender)
	require.Equal(uint32(2000), got.finality)
	require.Equal([]byte("payload"), got.body)

	used, err := tr.IsNonceUsed(ctx, remoteDomain, msg.Nonce)
	require.NoError(err)
	require.True(used)

	// Replaying the same nonce is rejected.
	err = tr.ReceiveMessage(ctx, callerID, msg.Bytes(), attestation)
	require.ErrorIs(err, backend.ErrNonceUsed)
	require.Equal(1, handler.count())
}

func TestReceiveUnfinalized(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	tr := env.transmitter
	ctx := context.Background()

	handler := &recordingHandler{}
	require.NoError(tr.RegisterRecipient(handlerID, handler))

	msg, attestation := env.inboundMessage(t, testID(0x11), 1000, ids.Empty)
	require.NoError(tr.ReceiveMessage(ctx, callerID, msg.Bytes(), attestation))

	require.Equal(1, handler.count())
	require.False(handler.received[0].finalized)
	require.Equal(uint32(1000), handler.received[0].finality)
}

func TestReceiveValidation(t *testing.T) {
	env := newTestEnv(t)
	tr := env.transmitter
	ctx := context.Background()

	handler := &recordingHandler{}
	require.NoError(t, tr.RegisterRecipient(handlerID, handler))

	tests := []struct {
		name        string
		setup       func(t *testing.T) (caller ids.ID, raw []byte, attestation []byte)
		expectedErr error
	}{
		{
			name: "malformed message",
			setup: func(*testing.T) (ids.ID, []byte, []byte) {
				return callerID, []byte{1, 2, 3}, nil
			},
			expectedErr: cctp.ErrInvalidMessage,
		},
		{
			name: "wrong destination domain",
			setup: func(t *testing.T) (ids.ID, []byte, []byte) {
				msg, err := cctp.NewMessage(remoteDomain, localDomain+1, senderID, handlerID, ids.Empty, 1000, nil)
				require.NoError(t, err)
				msg.Nonce = testID(0x20)
				msg.FinalityThresholdExecuted = 2000
				attestation, err := cctp.SignAttestation(msg, env.signers[0], env.signers[1])
				require.NoError(t, err)
				return callerID, msg.Bytes(), attestation
			},
			expectedErr: ErrWrongDomain,
		},
		{
			name: "tampered message",
			setup: func(t *testing.T) (ids.ID, []byte, []byte) {
				msg, attestation := env.inboundMessage(t, testID(0x21), 2000, ids.Empty)
				raw := msg.Bytes()
				raw[len(raw)-1] ^= 0xFF
				return callerID, raw, attestation
			},
			expectedErr: cctp.ErrUnknownAttester,
		},
		{
			name: "attestation below threshold",
			setup: func(t *testing.T) (ids.ID, []byte, []byte) {
				msg, _ := env.inboundMessage(t, testID(0x22), 2000, ids.Empty)
				attestation, err := cctp.SignAttestation(msg, env.signers[0])
				require.NoError(t, err)
				return callerID, msg.Bytes(), attestation
			},
			expectedErr: cctp.ErrInvalidAttestation,
		},
		{
			name: "destination caller mismatch",
			setup: func(t *testing.T) (ids.ID, []byte, []byte) {
				msg, attestation := env.inboundMessage(t, testID(0x23), 2000, testID(0x77))
				return callerID, msg.Bytes(), attestation
			},
			expectedErr: ErrInvalidDestinationCaller,
		},
		{
			name: "zero nonce",
			setup: func(t *testing.T) (ids.ID, []byte, []byte) {
				msg, err := cctp.NewMessage(remoteDomain, localDomain, senderID, handlerID, ids.Empty, 1000, nil)
				require.NoError(t, err)
				msg.FinalityThresholdExecuted = 2000
				// Attest directly with the scheme: the signer refuses zero
				// nonces, the verifier alone does not.
				attestation := rawAttestation(t, msg, env)
				return callerID, msg.Bytes(), attestation
			},
			expectedErr: backend.ErrNonceUsed,
		},
		{
			name: "unknown recipient",
			setup: func(t *testing.T) (ids.ID, []byte, []byte) {
				msg, err := cctp.NewMessage(remoteDomain, localDomain, senderID, testID(0xEE), ids.Empty, 1000, nil)
				require.NoError(t, err)
				msg.Nonce = testID(0x24)
				msg.FinalityThresholdExecuted = 2000
				attestation, err := cctp.SignAttestation(msg, env.signers[0], env.signers[1])
				require.NoError(t, err)
				return callerID, msg.Bytes(), attestation
			},
			expectedErr: ErrUnknownRecipient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller, raw, attestation := tt.setup(t)
			err := tr.ReceiveMessage(ctx, caller, raw, attestation)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}

	// No delivery reached the handler.
	require.Zero(t, handler.count())

	// The unknown-recipient failure released its nonce.
	used, err := tr.IsNonceUsed(ctx, remoteDomain, testID(0x24))
	require.NoError(t, err)
	require.False(t, used)

	// A matching destination caller is accepted.
	msg, attestation := env.inboundMessage(t, testID(0x25), 2000, callerID)
	require.NoError(t, tr.ReceiveMessage(ctx, callerID, msg.Bytes(), attestation))
	require.Equal(t, 1, handler.count())
}

func TestReceiveHandlerFailureRollsBack(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	tr := env.transmitter
	ctx := context.Background()

	handler := &recordingHandler{}
	handler.setErr(errors.New("mint failed"))
	require.NoError(tr.RegisterRecipient(handlerID, handler))

	msg, attestation := env.inboundMessage(t, testID(0x30), 2000, ids.Empty)
	err := tr.ReceiveMessage(ctx, callerID, msg.Bytes(), attestation)
	require.Error(err)

	// The nonce was released, the delivery can be retried.
	used, err := tr.IsNonceUsed(ctx, remoteDomain, msg.Nonce)
	require.NoError(err)
	require.False(used)

	handler.setErr(nil)
	require.NoError(tr.ReceiveMessage(ctx, callerID, msg.Bytes(), attestation))
	require.Equal(1, handler.count())

	used, err = tr.IsNonceUsed(ctx, remoteDomain, msg.Nonce)
	require.NoError(err)
	require.True(used)
}

func TestReplaceMessage(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	tr := env.transmitter
	ctx := context.Background()

	// An original sent from this domain, finalized and attested.
	original, err := cctp.NewMessage(localDomain, remoteDomain, senderID, handlerID, ids.Empty, 1000, []byte("original"))
	require.NoError(err)
	original.Nonce = testID(0x40)
	original.FinalityThresholdExecuted = 2000
	attestation, err := cctp.SignAttestation(original, env.signers[0], env.signers[1])
	require.NoError(err)

	event, err := tr.ReplaceMessage(ctx, senderID, original.Bytes(), attestation, []byte("replacement"), testID(0x55))
	require.NoError(err)
	require.Equal([]byte("replacement"), event.Message.Body)
	require.Equal(testID(0x55), event.Message.DestinationCaller)

	// Nonce, sender and recipient survive the replacement.
	require.Equal(original.Nonce, event.Message.Nonce)
	require.Equal(original.Sender, event.Message.Sender)
	require.Equal(original.Recipient, event.Message.Recipient)

	// Only the original sender may replace.
	_, err = tr.ReplaceMessage(ctx, testID(0x99), original.Bytes(), attestation, nil, ids.Empty)
	require.ErrorIs(err, ErrSenderMismatch)

	// The original must have been sent from this domain.
	foreign, foreignAtt := env.inboundMessage(t, testID(0x41), 2000, ids.Empty)
	_, err = tr.ReplaceMessage(ctx, senderID, foreign.Bytes(), foreignAtt, nil, ids.Empty)
	require.ErrorIs(err, ErrWrongDomain)

	// The original attestation must verify.
	_, err = tr.ReplaceMessage(ctx, senderID, original.Bytes(), attestation[:cctp.SignatureLen], nil, ids.Empty)
	require.ErrorIs(err, cctp.ErrInvalidAttestation)
}

func TestTransmitterAdmin(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	tr := env.transmitter

	newKey, err := crypto.GenerateKey()
	require.NoError(err)
	newAttester := crypto.PubkeyToAddress(newKey.PublicKey)

	// Attester administration is attester-manager-gated.
	require.ErrorIs(tr.EnableAttester(ownerID, newAttester), ErrNotAttesterManager)
	require.NoError(tr.EnableAttester(managerID, newAttester))
	require.Len(tr.Attesters(), 4)

	require.NoError(tr.SetSignatureThreshold(managerID, 3))
	require.Equal(3, tr.SignatureThreshold())

	require.NoError(tr.DisableAttester(managerID, newAttester))
	require.Len(tr.Attesters(), 3)

	// Manager rotation is owner-gated.
	require.ErrorIs(tr.UpdateAttesterManager(managerID, callerID), roles.ErrNotOwner)
	require.NoError(tr.UpdateAttesterManager(ownerID, callerID))
	require.Equal(callerID, tr.AttesterManager())
	require.ErrorIs(tr.SetSignatureThreshold(managerID, 2), ErrNotAttesterManager)
	require.NoError(tr.SetSignatureThreshold(callerID, 2))

	require.ErrorIs(tr.SetMaxMessageBodySize(callerID, 16), roles.ErrNotOwner)
	require.NoError(tr.SetMaxMessageBodySize(ownerID, 16))
	require.Equal(16, tr.MaxMessageBodySize())
	_, err = tr.SendMessage(context.Background(), senderID, remoteDomain, handlerID, ids.Empty, 2000, make([]byte, 17))
	require.ErrorIs(err, ErrBodyTooLarge)

	// Pauser rotation is owner-gated, pausing is pauser-gated.
	require.ErrorIs(tr.Pause(ownerID), roles.ErrNotPauser)
	require.NoError(tr.SetPauser(ownerID, callerID))
	require.NoError(tr.Pause(callerID))
	require.True(tr.Paused())
	require.NoError(tr.Unpause(callerID))

	// Two-step ownership transfer.
	require.NoError(tr.TransferOwnership(ownerID, callerID))
	require.Equal(callerID, tr.PendingOwner())
	require.Equal(ownerID, tr.Owner())
	require.NoError(tr.AcceptOwnership(callerID))
	require.Equal(callerID, tr.Owner())
	require.ErrorIs(tr.SetMaxMessageBodySize(ownerID, 32), roles.ErrNotOwner)
	require.NoError(tr.SetMaxMessageBodySize(callerID, 32))
}
