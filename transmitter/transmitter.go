// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transmitter implements the domain-local message transmitter: it
// emits messages for other domains, receives attested messages exactly once,
// and dispatches them to registered recipient handlers.
package transmitter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/crypto/signature"
	"github.com/luxfi/cctp/roles"
)

var (
	ErrBodyTooLarge             = errors.New("message body exceeds max size")
	ErrWrongDomain              = errors.New("wrong domain")
	ErrInvalidDestinationCaller = errors.New("caller does not match destination caller")
	ErrUnknownRecipient         = errors.New("no handler registered for recipient")
	ErrNotAttesterManager       = errors.New("caller is not the attester manager")
	ErrSenderMismatch           = errors.New("caller is not the message sender")
	ErrZeroSender               = errors.New("zero sender")
)

// Config is the immutable construction-time configuration of a Transmitter.
type Config struct {
	// LocalDomain is the domain this transmitter lives on. Received messages
	// must name it as their destination.
	LocalDomain uint32

	// Version is the message envelope version sent and accepted. Zero means
	// cctp.MessageVersion.
	Version uint32

	// MaxMessageBodySize caps outbound body length. Zero means
	// cctp.DefaultMaxMessageBodySize.
	MaxMessageBodySize int

	// Owner, Pauser and AttesterManager are the initial role holders.
	Owner           ids.ID
	Pauser          ids.ID
	AttesterManager ids.ID

	// Scheme selects the attestation signature scheme. Nil means secp256k1.
	Scheme signature.Scheme
}

// Transmitter is the domain-local message conduit.
type Transmitter struct {
	localDomain uint32
	version     uint32

	logger    log.Logger
	owner     *roles.Ownable
	pauser    *roles.Pauser
	attesters *cctp.AttesterSet
	verifier  cctp.Verifier
	store     backend.Backend
	metrics   *Metrics

	lock            sync.RWMutex
	attesterManager ids.ID
	maxBodySize     int
	recipients      map[ids.ID]MessageRecipient
	sinks           []Sink
	eventIndex      uint64
}

// New creates a Transmitter. A nil metrics registers against a private
// registry, keeping counters live without exporting them.
func New(
	cfg Config,
	logger log.Logger,
	attesters *cctp.AttesterSet,
	store backend.Backend,
	metrics *Metrics,
) (*Transmitter, error) {
	if attesters == nil {
		return nil, errors.New("nil attester set")
	}
	if store == nil {
		return nil, errors.New("nil backend")
	}
	if cfg.AttesterManager == ids.Empty {
		return nil, fmt.Errorf("%w: attester manager", roles.ErrZeroID)
	}
	owner, err := roles.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("%w: owner", err)
	}
	pauser, err := roles.NewPauser(cfg.Pauser)
	if err != nil {
		return nil, fmt.Errorf("%w: pauser", err)
	}
	if cfg.Version == 0 {
		cfg.Version = cctp.MessageVersion
	}
	if cfg.MaxMessageBodySize == 0 {
		cfg.MaxMessageBodySize = cctp.DefaultMaxMessageBodySize
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	return &Transmitter{
		localDomain:     cfg.LocalDomain,
		version:         cfg.Version,
		logger:          logger,
		owner:           owner,
		pauser:          pauser,
		attesters:       attesters,
		verifier:        cctp.NewAttestationVerifier(attesters, cfg.Scheme),
		store:           store,
		metrics:         metrics,
		attesterManager: cfg.AttesterManager,
		maxBodySize:     cfg.MaxMessageBodySize,
		recipients:      make(map[ids.ID]MessageRecipient),
	}, nil
}

// SendMessage emits a message for destinationDomain. The caller becomes the
// message sender. The emitted nonce is zero; the attestation layer assigns
// one before the message becomes deliverable.
func (t *Transmitter) SendMessage(
	ctx context.Context,
	caller ids.ID,
	destinationDomain uint32,
	recipient ids.ID,
	destinationCaller ids.ID,
	minFinalityThreshold uint32,
	body []byte,
) (*SentMessage, error) {
	if err := t.pauser.CheckNotPaused(); err != nil {
		return nil, err
	}
	if caller == ids.Empty {
		return nil, ErrZeroSender
	}
	if len(body) > t.MaxMessageBodySize() {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, len(body), t.MaxMessageBodySize())
	}

	msg, err := cctp.NewMessage(
		t.localDomain,
		destinationDomain,
		caller,
		recipient,
		destinationCaller,
		minFinalityThreshold,
		body,
	)
	if err != nil {
		return nil, err
	}

	event, err := t.emit(ctx, msg)
	if err != nil {
		return nil, err
	}

	t.metrics.messagesSent.Inc()
	t.logger.Info("message sent",
		log.Uint64("index", event.Index),
		log.Stringer("id", msg.ID()),
		log.Uint32("destinationDomain", destinationDomain),
		log.Stringer("recipient", recipient),
	)
	return event, nil
}

// ReceiveMessage verifies and dispatches an attested message. The nonce is
// reserved before the handler runs and released again if the handler fails,
// so a failed delivery can be retried and a reentrant delivery of the same
// nonce cannot succeed.
func (t *Transmitter) ReceiveMessage(ctx context.Context, caller ids.ID, raw []byte, attestation []byte) error {
	if err := t.pauser.CheckNotPaused(); err != nil {
		return t.reject("paused", err)
	}

	msg, err := cctp.ParseMessage(raw)
	if err != nil {
		return t.reject("malformed", err)
	}
	if msg.DestinationDomain != t.localDomain {
		return t.reject("wrong_domain", fmt.Errorf("%w: destination domain %d, local domain %d",
			ErrWrongDomain, msg.DestinationDomain, t.localDomain))
	}
	if msg.Version != t.version {
		return t.reject("wrong_version", fmt.Errorf("%w: message version %d, expected %d",
			cctp.ErrInvalidMessage, msg.Version, t.version))
	}

	if err := t.verifier.Verify(ctx, msg, attestation); err != nil {
		return t.reject("attestation", err)
	}

	if msg.DestinationCaller != ids.Empty && msg.DestinationCaller != caller {
		return t.reject("destination_caller", ErrInvalidDestinationCaller)
	}

	nonceKey := backend.NonceKey{SourceDomain: msg.SourceDomain, Nonce: msg.Nonce}
	if err := t.store.Reserve(ctx, nonceKey); err != nil {
		return t.reject("nonce", fmt.Errorf("nonce %s: %w", msg.Nonce, err))
	}

	t.lock.RLock()
	recipient, ok := t.recipients[msg.Recipient]
	t.lock.RUnlock()
	if !ok {
		t.release(ctx, nonceKey)
		return t.reject("recipient", fmt.Errorf("%w: %s", ErrUnknownRecipient, msg.Recipient))
	}

	if msg.IsFinalized() {
		err = recipient.HandleReceiveFinalizedMessage(ctx, msg.SourceDomain, msg.Sender, msg.FinalityThresholdExecuted, msg.Body)
	} else {
		err = recipient.HandleReceiveUnfinalizedMessage(ctx, msg.SourceDomain, msg.Sender, msg.FinalityThresholdExecuted, msg.Body)
	}
	if err != nil {
		t.release(ctx, nonceKey)
		return t.reject("handler", fmt.Errorf("recipient handler: %w", err))
	}

	t.metrics.messagesReceived.Inc()
	t.logger.Info("message received",
		log.Stringer("id", msg.ID()),
		log.Stringer("nonce", msg.Nonce),
		log.Uint32("sourceDomain", msg.SourceDomain),
		log.Stringer("recipient", msg.Recipient),
	)
	return nil
}

// ReplaceMessage re-announces a previously sent message with a new body
// and/or destination caller. The original must carry a valid attestation,
// have been sent from this domain, and name the caller as its sender. The
// nonce, version, domains, sender and recipient are preserved.
func (t *Transmitter) ReplaceMessage(
	ctx context.Context,
	caller ids.ID,
	originalRaw []byte,
	originalAttestation []byte,
	newBody []byte,
	newDestinationCaller ids.ID,
) (*SentMessage, error) {
	if err := t.pauser.CheckNotPaused(); err != nil {
		return nil, err
	}

	original, err := cctp.ParseMessage(originalRaw)
	if err != nil {
		return nil, err
	}
	if original.SourceDomain != t.localDomain {
		return nil, fmt.Errorf("%w: source domain %d, local domain %d",
			ErrWrongDomain, original.SourceDomain, t.localDomain)
	}
	if err := t.verifier.Verify(ctx, original, originalAttestation); err != nil {
		return nil, err
	}
	if original.Sender != caller {
		return nil, ErrSenderMismatch
	}
	if len(newBody) > t.MaxMessageBodySize() {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, len(newBody), t.MaxMessageBodySize())
	}

	replaced := original.WithReplacedBody(newBody, newDestinationCaller)
	event, err := t.emit(ctx, replaced)
	if err != nil {
		return nil, err
	}

	t.metrics.messagesReplaced.Inc()
	t.logger.Info("message replaced",
		log.Uint64("index", event.Index),
		log.Stringer("id", replaced.ID()),
		log.Stringer("nonce", replaced.Nonce),
	)
	return event, nil
}

// emit journals the message, assigns its event index, and fans the event out
// to the registered sinks.
func (t *Transmitter) emit(ctx context.Context, msg *cctp.Message) (*SentMessage, error) {
	raw := msg.Bytes()

	t.lock.Lock()
	t.eventIndex++
	index := t.eventIndex
	sinks := make([]Sink, len(t.sinks))
	copy(sinks, t.sinks)
	t.lock.Unlock()

	record := &backend.MessageRecord{
		Message:    raw,
		EventIndex: index,
	}
	if err := t.store.PutMessage(ctx, msg.ID(), record); err != nil {
		return nil, fmt.Errorf("journal message: %w", err)
	}

	event := &SentMessage{
		Index:   index,
		Message: msg,
		Raw:     raw,
	}
	for _, sink := range sinks {
		if err := sink.Accept(ctx, event); err != nil {
			t.logger.Warn("sink rejected event",
				log.Uint64("index", index),
				log.Err(err),
			)
		}
	}
	return event, nil
}

func (t *Transmitter) release(ctx context.Context, key backend.NonceKey) {
	if err := t.store.Release(ctx, key); err != nil {
		t.logger.Error("failed to release nonce",
			log.Stringer("nonce", key.Nonce),
			log.Uint32("sourceDomain", key.SourceDomain),
			log.Err(err),
		)
	}
}

func (t *Transmitter) reject(reason string, err error) error {
	t.metrics.receiveRejected.WithLabelValues(reason).Inc()
	t.logger.Debug("message rejected",
		log.String("reason", reason),
		log.Err(err),
	)
	return err
}

// RegisterRecipient routes messages addressed to id to handler, replacing
// any previous registration.
func (t *Transmitter) RegisterRecipient(id ids.ID, handler MessageRecipient) error {
	if id == ids.Empty {
		return roles.ErrZeroID
	}
	if handler == nil {
		return errors.New("nil handler")
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.recipients[id] = handler
	return nil
}

// DeregisterRecipient removes the handler for id.
func (t *Transmitter) DeregisterRecipient(id ids.ID) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.recipients, id)
}

// RegisterSink subscribes sink to sent-message events.
func (t *Transmitter) RegisterSink(sink Sink) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.sinks = append(t.sinks, sink)
}

// EnableAttester enables an attester. Attester-manager only.
func (t *Transmitter) EnableAttester(caller ids.ID, attester common.Address) error {
	if err := t.checkAttesterManager(caller); err != nil {
		return err
	}
	return t.attesters.Enable(attester)
}

// DisableAttester disables an attester, keeping the set above the signature
// threshold. Attester-manager only.
func (t *Transmitter) DisableAttester(caller ids.ID, attester common.Address) error {
	if err := t.checkAttesterManager(caller); err != nil {
		return err
	}
	return t.attesters.Disable(attester)
}

// SetSignatureThreshold updates the number of signatures an attestation must
// carry. Attester-manager only.
func (t *Transmitter) SetSignatureThreshold(caller ids.ID, threshold int) error {
	if err := t.checkAttesterManager(caller); err != nil {
		return err
	}
	return t.attesters.SetThreshold(threshold)
}

// UpdateAttesterManager rotates the attester manager. Owner only.
func (t *Transmitter) UpdateAttesterManager(caller, manager ids.ID) error {
	if err := t.owner.Check(caller); err != nil {
		return err
	}
	if manager == ids.Empty {
		return roles.ErrZeroID
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.attesterManager = manager
	return nil
}

// SetMaxMessageBodySize updates the outbound body cap. Owner only.
func (t *Transmitter) SetMaxMessageBodySize(caller ids.ID, size int) error {
	if err := t.owner.Check(caller); err != nil {
		return err
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.maxBodySize = size
	return nil
}

// Pause stops sends, receives and replacements. Pauser only.
func (t *Transmitter) Pause(caller ids.ID) error {
	return t.pauser.Pause(caller)
}

// Unpause resumes operation. Pauser only.
func (t *Transmitter) Unpause(caller ids.ID) error {
	return t.pauser.Unpause(caller)
}

// SetPauser rotates the pauser. Owner only.
func (t *Transmitter) SetPauser(caller, pauser ids.ID) error {
	if err := t.owner.Check(caller); err != nil {
		return err
	}
	return t.pauser.SetPauser(pauser)
}

// TransferOwnership nominates a new owner. Owner only; the nominee must
// accept before the transfer takes effect.
func (t *Transmitter) TransferOwnership(caller, newOwner ids.ID) error {
	return t.owner.TransferOwnership(caller, newOwner)
}

// AcceptOwnership completes an ownership transfer. Pending owner only.
func (t *Transmitter) AcceptOwnership(caller ids.ID) error {
	return t.owner.AcceptOwnership(caller)
}

func (t *Transmitter) checkAttesterManager(caller ids.ID) error {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if caller != t.attesterManager {
		return ErrNotAttesterManager
	}
	return nil
}

// LocalDomain returns the domain this transmitter lives on.
func (t *Transmitter) LocalDomain() uint32 {
	return t.localDomain
}

// Version returns the envelope version sent and accepted.
func (t *Transmitter) Version() uint32 {
	return t.version
}

// MaxMessageBodySize returns the outbound body cap.
func (t *Transmitter) MaxMessageBodySize() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.maxBodySize
}

// AttesterManager returns the current attester manager.
func (t *Transmitter) AttesterManager() ids.ID {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.attesterManager
}

// Owner returns the current owner.
func (t *Transmitter) Owner() ids.ID {
	return t.owner.Owner()
}

// PendingOwner returns the nominated owner, or the zero id if none.
func (t *Transmitter) PendingOwner() ids.ID {
	return t.owner.PendingOwner()
}

// Paused reports the pause flag.
func (t *Transmitter) Paused() bool {
	return t.pauser.Paused()
}

// Attesters returns the enabled attesters in ascending address order.
func (t *Transmitter) Attesters() []common.Address {
	return t.attesters.Attesters()
}

// SignatureThreshold returns the current signature threshold.
func (t *Transmitter) SignatureThreshold() int {
	return t.attesters.Threshold()
}

// IsNonceUsed reports whether a nonce from sourceDomain has been consumed.
func (t *Transmitter) IsNonceUsed(ctx context.Context, sourceDomain uint32, nonce ids.ID) (bool, error) {
	return t.store.IsUsed(ctx, backend.NonceKey{SourceDomain: sourceDomain, Nonce: nonce})
}

// GetSentMessage returns the journaled record for a message ID.
func (t *Transmitter) GetSentMessage(ctx context.Context, id ids.ID) (*backend.MessageRecord, error) {
	return t.store.GetMessage(ctx, id)
}
