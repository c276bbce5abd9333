// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relayer delivers attested messages to destination transmitters. It
// watches a source transmitter's event stream, obtains an attestation for
// each message, and submits the finalized message to the transmitter of the
// destination domain.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/transmitter"
	"github.com/luxfi/cctp/utils"
)

const (
	DefaultRetryTimeout   = 30 * time.Second
	DefaultRedialInterval = 5 * time.Second
)

var (
	ErrUnknownDestination = errors.New("no transmitter for destination domain")
	ErrWrongCaller        = errors.New("message locked to another destination caller")
)

// AttestationProvider obtains the finalized message and its attestation for
// a raw unfinalized message.
type AttestationProvider interface {
	Attestation(ctx context.Context, raw []byte) (message []byte, attestation []byte, err error)
}

// Config parameterizes a relayer.
type Config struct {
	// CallerID is the identity the relayer presents on delivery. Messages
	// locked to a different destination caller are skipped.
	CallerID ids.ID

	// RetryTimeout bounds the delivery retries for a single message. Zero
	// means DefaultRetryTimeout.
	RetryTimeout time.Duration

	// RedialInterval is the pause before reconnecting a failed event socket.
	// Zero means DefaultRedialInterval.
	RedialInterval time.Duration
}

// Relayer moves messages from one source to any number of destination
// transmitters.
type Relayer struct {
	logger       log.Logger
	cfg          Config
	provider     AttestationProvider
	destinations map[uint32]*transmitter.Transmitter
	metrics      *Metrics
}

// New creates a relayer delivering through provider to destinations, keyed
// by destination domain.
func New(
	cfg Config,
	logger log.Logger,
	provider AttestationProvider,
	destinations map[uint32]*transmitter.Transmitter,
	metrics *Metrics,
) (*Relayer, error) {
	if provider == nil {
		return nil, errors.New("nil attestation provider")
	}
	if len(destinations) == 0 {
		return nil, errors.New("no destination transmitters")
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = DefaultRetryTimeout
	}
	if cfg.RedialInterval <= 0 {
		cfg.RedialInterval = DefaultRedialInterval
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	return &Relayer{
		logger:       logger,
		cfg:          cfg,
		provider:     provider,
		destinations: destinations,
		metrics:      metrics,
	}, nil
}

// Relay attests one raw message and delivers it to its destination domain.
// Delivery is idempotent: a nonce already marked used counts as success.
func (r *Relayer) Relay(ctx context.Context, raw []byte) error {
	start := time.Now()

	msg, err := cctp.ParseMessage(raw)
	if err != nil {
		return err
	}
	labels := prometheus.Labels{
		"source_domain":      domainLabel(msg.SourceDomain),
		"destination_domain": domainLabel(msg.DestinationDomain),
	}

	if msg.DestinationCaller != ids.Empty && msg.DestinationCaller != r.cfg.CallerID {
		return fmt.Errorf("%w: %s", ErrWrongCaller, msg.DestinationCaller)
	}

	dest, ok := r.destinations[msg.DestinationDomain]
	if !ok {
		r.fail(labels, "unknown_destination")
		return fmt.Errorf("%w: %d", ErrUnknownDestination, msg.DestinationDomain)
	}

	finalizedRaw, attestation, err := r.provider.Attestation(ctx, raw)
	if err != nil {
		r.fail(labels, "attestation")
		return fmt.Errorf("attestation: %w", err)
	}
	finalized, err := cctp.ParseMessage(finalizedRaw)
	if err != nil {
		r.fail(labels, "invalid_message")
		return fmt.Errorf("attested message: %w", err)
	}

	err = utils.WithRetriesTimeout(r.logger, func() error {
		err := dest.ReceiveMessage(ctx, r.cfg.CallerID, finalizedRaw, attestation)
		if errors.Is(err, backend.ErrNonceUsed) {
			// Someone else delivered it first.
			return nil
		}
		return err
	}, r.cfg.RetryTimeout)
	if err != nil {
		r.fail(labels, "receive")
		return fmt.Errorf("receive: %w", err)
	}

	r.metrics.successfulRelayMessageCount.With(labels).Inc()
	r.metrics.relayLatencyMS.With(labels).Set(float64(time.Since(start).Milliseconds()))
	r.logger.Info("message relayed",
		log.Uint32("sourceDomain", finalized.SourceDomain),
		log.Uint32("destinationDomain", finalized.DestinationDomain),
		log.Stringer("nonce", finalized.Nonce),
	)
	return nil
}

// Sink adapts the relayer to a transmitter event sink for single-process
// deployments. Messages locked to another caller are skipped silently; other
// relay failures are returned for the transmitter to log.
func (r *Relayer) Sink() transmitter.Sink {
	return transmitter.SinkFunc(func(ctx context.Context, event *transmitter.SentMessage) error {
		err := r.Relay(ctx, event.Raw)
		if errors.Is(err, ErrWrongCaller) {
			return nil
		}
		return err
	})
}

// Run subscribes to the event socket at address and relays every message
// until ctx is canceled. Lost connections are redialed.
func (r *Relayer) Run(ctx context.Context, address string) error {
	var dialer net.Dialer
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			r.logger.Warn("event socket dial failed",
				log.String("address", address),
				log.Err(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.RedialInterval):
			}
			continue
		}

		r.logger.Info("subscribed to event socket", log.String("address", address))
		r.consume(ctx, conn)
	}
}

// consume reads frames until the connection or the context dies.
func (r *Relayer) consume(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		raw, err := transmitter.ReadFrame(conn)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("event socket read failed", log.Err(err))
			}
			return
		}

		switch err := r.Relay(ctx, raw); {
		case errors.Is(err, ErrWrongCaller):
			r.logger.Debug("skipping message for another caller")
		case err != nil:
			r.logger.Error("relay failed", log.Err(err))
		}
	}
}

func (r *Relayer) fail(labels prometheus.Labels, reason string) {
	failLabels := prometheus.Labels{"failure_reason": reason}
	for k, v := range labels {
		failLabels[k] = v
	}
	r.metrics.failedRelayMessageCount.With(failLabels).Inc()
}

func domainLabel(domain uint32) string {
	return strconv.FormatUint(uint64(domain), 10)
}
