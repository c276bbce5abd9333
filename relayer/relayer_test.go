// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/service"
	"github.com/luxfi/cctp/transmitter"
)

const (
	sourceDomain      uint32 = 0
	destinationDomain uint32 = 5
)

func testID(b byte) ids.ID {
	var id ids.ID
	id[31] = b
	return id
}

var (
	ownerID   = testID(0x01)
	senderID  = testID(0x0A)
	handlerID = testID(0x0B)
	relayerID = testID(0x0C)
)

type recordingHandler struct {
	lock     sync.Mutex
	received [][]byte
}

func (h *recordingHandler) HandleReceiveFinalizedMessage(
	_ context.Context, _ uint32, _ ids.ID, _ uint32, body []byte,
) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.received = append(h.received, body)
	return nil
}

func (h *recordingHandler) HandleReceiveUnfinalizedMessage(
	ctx context.Context, domain uint32, sender ids.ID, finality uint32, body []byte,
) error {
	return h.HandleReceiveFinalizedMessage(ctx, domain, sender, finality, body)
}

func (h *recordingHandler) count() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.received)
}

type relayEnv struct {
	source  *transmitter.Transmitter
	dest    *transmitter.Transmitter
	service *service.Service
	handler *recordingHandler
}

// newRelayEnv builds a source and a destination transmitter trusting the
// same attesters, plus a service signing with those attesters' keys.
func newRelayEnv(t *testing.T) *relayEnv {
	require := require.New(t)

	signers := make([]cctp.Signer, 2)
	addrs := make([]common.Address, 2)
	for i := range signers {
		key, err := crypto.GenerateKey()
		require.NoError(err)
		signers[i] = cctp.NewSigner(key)
		addrs[i] = signers[i].Address()
	}

	newTransmitter := func(domain uint32) *transmitter.Transmitter {
		attesters, err := cctp.NewAttesterSet(addrs, 2)
		require.NoError(err)
		tx, err := transmitter.New(transmitter.Config{
			LocalDomain:     domain,
			Owner:           ownerID,
			Pauser:          ownerID,
			AttesterManager: ownerID,
		}, log.NoLog{}, attesters, backend.NewMemoryBackend(), nil)
		require.NoError(err)
		return tx
	}

	source := newTransmitter(sourceDomain)
	dest := newTransmitter(destinationDomain)

	handler := &recordingHandler{}
	require.NoError(dest.RegisterRecipient(handlerID, handler))

	svc, err := service.New(service.Config{}, log.NoLog{}, signers, backend.NewMemoryBackend(), nil, nil)
	require.NoError(err)

	return &relayEnv{
		source:  source,
		dest:    dest,
		service: svc,
		handler: handler,
	}
}

func newTestRelayer(t *testing.T, env *relayEnv, provider AttestationProvider) *Relayer {
	r, err := New(Config{
		CallerID:     relayerID,
		RetryTimeout: 2 * time.Second,
	}, log.NoLog{}, provider, map[uint32]*transmitter.Transmitter{
		destinationDomain: env.dest,
	}, nil)
	require.NoError(t, err)
	return r
}

func TestRelaySink(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newRelayEnv(t)
	r := newTestRelayer(t, env, NewServiceProvider(env.service))
	env.source.RegisterSink(r.Sink())

	sent, err := env.source.SendMessage(
		ctx, senderID, destinationDomain, handlerID, ids.Empty, 2000, []byte("hello"),
	)
	require.NoError(err)

	// The sink is synchronous, so the message already arrived.
	require.Equal(1, env.handler.count())
	require.Equal([]byte("hello"), env.handler.received[0])

	// Relaying the same event again is idempotent.
	require.NoError(r.Relay(ctx, sent.Raw))
	require.Equal(1, env.handler.count())
}

func TestRelayValidation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newRelayEnv(t)
	r := newTestRelayer(t, env, NewServiceProvider(env.service))

	// Locked to a caller that is not this relayer.
	locked, err := env.source.SendMessage(
		ctx, senderID, destinationDomain, handlerID, testID(0xEE), 2000, []byte("locked"),
	)
	require.NoError(err)
	require.ErrorIs(r.Relay(ctx, locked.Raw), ErrWrongCaller)
	require.Zero(env.handler.count())

	// Locked to this relayer delivers fine.
	mine, err := env.source.SendMessage(
		ctx, senderID, destinationDomain, handlerID, relayerID, 2000, []byte("mine"),
	)
	require.NoError(err)
	require.NoError(r.Relay(ctx, mine.Raw))
	require.Equal(1, env.handler.count())

	// No transmitter serves domain 9.
	lost, err := env.source.SendMessage(
		ctx, senderID, 9, handlerID, ids.Empty, 2000, []byte("lost"),
	)
	require.NoError(err)
	require.ErrorIs(r.Relay(ctx, lost.Raw), ErrUnknownDestination)

	require.ErrorIs(r.Relay(ctx, []byte("junk")), cctp.ErrInvalidMessage)
}

func TestRelayHTTPClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require := require.New(t)
	ctx := context.Background()

	env := newRelayEnv(t)
	server := httptest.NewServer(service.NewServer(log.NoLog{}, env.service, nil).Router())
	defer server.Close()

	r := newTestRelayer(t, env, NewClient(server.URL))

	sent, err := env.source.SendMessage(
		ctx, senderID, destinationDomain, handlerID, ids.Empty, 2000, []byte("over http"),
	)
	require.NoError(err)
	require.NoError(r.Relay(ctx, sent.Raw))
	require.Equal(1, env.handler.count())
	require.Equal([]byte("over http"), env.handler.received[0])

	// The service refuses junk with a client error, not a transport error.
	client := NewClient(server.URL)
	_, _, err = client.Attestation(ctx, []byte("junk"))
	require.ErrorContains(err, "status 400")
}

func TestRelayRunSocket(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newRelayEnv(t)

	sink, err := transmitter.NewSocketSink(log.NoLog{}, "127.0.0.1:0")
	require.NoError(err)
	defer sink.Close()
	env.source.RegisterSink(sink)

	r := newTestRelayer(t, env, NewServiceProvider(env.service))

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, sink.Addr())
	}()

	require.Eventually(func() bool {
		return sink.SubscriberCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = env.source.SendMessage(
		ctx, senderID, destinationDomain, handlerID, ids.Empty, 2000, []byte("streamed"),
	)
	require.NoError(err)

	require.Eventually(func() bool {
		return env.handler.count() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal([]byte("streamed"), env.handler.received[0])

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("relayer did not stop on context cancellation")
	}
}
