// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package service implements the attestation service. It finalizes messages
// accepted on a source domain, assigns their permanent nonces, and signs the
// attestations that destination transmitters verify before delivery.
package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/bridge"
	"github.com/luxfi/cctp/cache"
	"github.com/luxfi/cctp/payload"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 10 * time.Minute
)

var (
	ErrNoSigners          = errors.New("no attestation signers")
	ErrFinalityNotReached = errors.New("finality not reached")
	ErrUnknownDigest      = errors.New("unknown message digest")
)

// Config parameterizes an attestation service.
type Config struct {
	// FinalityThreshold is the finality level this service attests at. A
	// message whose MinFinalityThreshold exceeds it is refused. Zero means
	// FinalityThresholdFinalized.
	FinalityThreshold uint32

	// Fee is deducted from burn deposits at attestation time, capped at the
	// depositor's MaxFee. Nil or zero charges nothing.
	Fee *uint256.Int

	// ExpiryWindow is the number of blocks an attested burn stays mintable,
	// measured from the source chain height at signing. Zero never expires.
	ExpiryWindow uint64

	// CacheSize and CacheTTL bound the attestation cache. Zero values take
	// the defaults.
	CacheSize int
	CacheTTL  time.Duration
}

// Service finalizes and signs messages. The number of configured signers must
// match the signature threshold of the attester sets that will verify the
// attestations it produces.
//
// Records are keyed by the digest of the unfinalized message, so a client that
// only saw the original send can look up the finalized bytes and attestation.
type Service struct {
	logger       log.Logger
	signers      []cctp.Signer
	finality     uint32
	fee          *uint256.Int
	expiryWindow uint64
	heights      bridge.HeightProvider
	store        backend.MessageStore
	cache        *cache.Cache[ids.ID, *backend.MessageRecord]
	metrics      *Metrics

	lock       sync.Mutex
	eventIndex uint64
}

// New creates an attestation service backed by store. A nil heights provider
// reports height zero, which suits domains without burn expiration.
func New(
	cfg Config,
	logger log.Logger,
	signers []cctp.Signer,
	store backend.MessageStore,
	heights bridge.HeightProvider,
	metrics *Metrics,
) (*Service, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	if store == nil {
		return nil, errors.New("nil message store")
	}
	if heights == nil {
		heights = bridge.HeightProviderFunc(func(context.Context) (uint64, error) {
			return 0, nil
		})
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	finality := cfg.FinalityThreshold
	if finality == 0 {
		finality = cctp.FinalityThresholdFinalized
	}
	fee := uint256.NewInt(0)
	if cfg.Fee != nil {
		fee = cfg.Fee.Clone()
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}

	return &Service{
		logger:       logger,
		signers:      signers,
		finality:     finality,
		fee:          fee,
		expiryWindow: cfg.ExpiryWindow,
		heights:      heights,
		store:        store,
		cache:        cache.New[ids.ID, *backend.MessageRecord](cacheSize, cacheTTL),
		metrics:      metrics,
	}, nil
}

// Attest finalizes and signs a serialized message, returning the stored
// record. Attesting the same message again returns the original record
// unchanged; concurrent requests for one digest are deduplicated.
func (s *Service) Attest(ctx context.Context, raw []byte) (*backend.MessageRecord, error) {
	msg, err := cctp.ParseMessage(raw)
	if err != nil {
		s.metrics.attestFailures.Inc()
		return nil, err
	}

	digest := msg.ID()
	record, err := s.cache.Get(digest, func(ids.ID) (*backend.MessageRecord, error) {
		return s.attest(ctx, digest, msg)
	}, false)
	if err != nil {
		s.metrics.attestFailures.Inc()
		return nil, err
	}
	return record, nil
}

func (s *Service) attest(ctx context.Context, digest ids.ID, msg *cctp.Message) (*backend.MessageRecord, error) {
	record, err := s.store.GetMessage(ctx, digest)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return nil, fmt.Errorf("attestation store: %w", err)
	}

	index := s.nextEventIndex()
	finalized, err := s.finalize(ctx, msg, index)
	if err != nil {
		return nil, err
	}

	attestation, err := cctp.SignAttestation(finalized, s.signers...)
	if err != nil {
		return nil, err
	}

	record = &backend.MessageRecord{
		Message:     finalized.Bytes(),
		Attestation: attestation,
		EventIndex:  index,
	}
	if err := s.store.PutMessage(ctx, digest, record); err != nil {
		return nil, fmt.Errorf("attestation store: %w", err)
	}

	s.metrics.messagesAttested.Inc()
	s.logger.Info("message attested",
		log.Stringer("digest", digest),
		log.Stringer("nonce", finalized.Nonce),
		log.Uint64("eventIndex", index),
	)
	return record, nil
}

// Attestation returns the stored record for the digest of an unfinalized
// message, or ErrUnknownDigest if it was never attested.
func (s *Service) Attestation(ctx context.Context, digest ids.ID) (*backend.MessageRecord, error) {
	record, err := s.store.GetMessage(ctx, digest)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDigest, digest)
	}
	return record, err
}

// Reattest re-signs a previously attested message with a fresh expiration.
// The nonce and event index assigned at first attestation are preserved, so
// the refreshed message still consumes the same replay slot.
func (s *Service) Reattest(ctx context.Context, digest ids.ID) (*backend.MessageRecord, error) {
	record, err := s.cache.Get(digest, func(ids.ID) (*backend.MessageRecord, error) {
		return s.reattest(ctx, digest)
	}, true)
	if err != nil {
		s.metrics.attestFailures.Inc()
		return nil, err
	}
	return record, nil
}

func (s *Service) reattest(ctx context.Context, digest ids.ID) (*backend.MessageRecord, error) {
	record, err := s.store.GetMessage(ctx, digest)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDigest, digest)
	}
	if err != nil {
		return nil, fmt.Errorf("attestation store: %w", err)
	}

	msg, err := cctp.ParseMessage(record.Message)
	if err != nil {
		return nil, fmt.Errorf("stored message: %w", err)
	}

	if burn, parseErr := payload.ParseBurnMessage(msg.Body); parseErr == nil {
		expiration, err := s.expiration(ctx)
		if err != nil {
			return nil, err
		}
		msg.Body = burn.WithExecution(burn.FeeExecuted, expiration).Bytes()
	}

	attestation, err := cctp.SignAttestation(msg, s.signers...)
	if err != nil {
		return nil, err
	}

	refreshed := &backend.MessageRecord{
		Message:     msg.Bytes(),
		Attestation: attestation,
		EventIndex:  record.EventIndex,
	}
	if err := s.store.PutMessage(ctx, digest, refreshed); err != nil {
		return nil, fmt.Errorf("attestation store: %w", err)
	}

	s.metrics.messagesReattested.Inc()
	s.logger.Info("message reattested",
		log.Stringer("digest", digest),
		log.Stringer("nonce", msg.Nonce),
	)
	return refreshed, nil
}

// finalize stamps the fields a sending transmitter leaves open: the nonce,
// the executed finality level, and for burn bodies the executed fee and the
// expiration block.
func (s *Service) finalize(ctx context.Context, msg *cctp.Message, eventIndex uint64) (*cctp.Message, error) {
	if s.finality < msg.MinFinalityThreshold {
		return nil, fmt.Errorf("%w: message requires %d, attesting at %d",
			ErrFinalityNotReached, msg.MinFinalityThreshold, s.finality)
	}

	body := msg.Body
	if burn, err := payload.ParseBurnMessage(msg.Body); err == nil {
		fee := s.fee
		if fee.Gt(burn.MaxFee) {
			fee = burn.MaxFee
		}
		expiration, err := s.expiration(ctx)
		if err != nil {
			return nil, err
		}
		stamped := burn.WithExecution(fee, expiration)
		if err := stamped.ValidateFees(); err != nil {
			return nil, err
		}
		body = stamped.Bytes()
	}

	return &cctp.Message{
		Version:                   msg.Version,
		SourceDomain:              msg.SourceDomain,
		DestinationDomain:         msg.DestinationDomain,
		Nonce:                     deriveNonce(msg.SourceDomain, eventIndex, msg.Digest()),
		Sender:                    msg.Sender,
		Recipient:                 msg.Recipient,
		DestinationCaller:         msg.DestinationCaller,
		MinFinalityThreshold:      msg.MinFinalityThreshold,
		FinalityThresholdExecuted: s.finality,
		Body:                      body,
	}, nil
}

// expiration returns the block at which a burn attested now stops being
// mintable, or zero when no expiry window is configured.
func (s *Service) expiration(ctx context.Context) (*uint256.Int, error) {
	if s.expiryWindow == 0 {
		return uint256.NewInt(0), nil
	}
	height, err := s.heights.Height(ctx)
	if err != nil {
		return nil, fmt.Errorf("source height: %w", err)
	}
	return uint256.NewInt(height + s.expiryWindow), nil
}

func (s *Service) nextEventIndex() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.eventIndex++
	return s.eventIndex
}

// deriveNonce computes the permanent nonce for an attested message: the
// keccak256 of the source domain, the event index assigned by this service,
// and the digest of the unfinalized message. The hash of a non-empty preimage
// is never the zero ID.
func deriveNonce(sourceDomain uint32, eventIndex uint64, digest common.Hash) ids.ID {
	var buf [44]byte
	binary.BigEndian.PutUint32(buf[0:4], sourceDomain)
	binary.BigEndian.PutUint64(buf[4:12], eventIndex)
	copy(buf[12:], digest[:])
	return ids.ID(crypto.Keccak256Hash(buf[:]))
}
