// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge implements the token messenger: the transmitter recipient
// that burns deposits on the source domain and mints them, fee split applied,
// on the destination domain.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/ids"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/minter"
	"github.com/luxfi/cctp/payload"
	"github.com/luxfi/cctp/roles"
	"github.com/luxfi/cctp/transmitter"
)

// MinSupportedFinalityThreshold is the lowest finality level the messenger
// accepts on an unfinalized delivery.
const MinSupportedFinalityThreshold uint32 = 1000

var (
	ErrZeroAmount           = errors.New("zero deposit amount")
	ErrNoRemoteMessenger    = errors.New("no remote messenger for domain")
	ErrRemoteMessengerSet   = errors.New("remote messenger already set for domain")
	ErrMessengerMismatch    = errors.New("sender is not the remote messenger")
	ErrDepositorMismatch    = errors.New("caller is not the original depositor")
	ErrEmptyHook            = errors.New("empty hook payload")
	ErrExpired              = errors.New("message expired, must be re-signed")
	ErrInsufficientFinality = errors.New("finality threshold below supported minimum")
	ErrNotMinFeeController  = errors.New("caller is not the min fee controller")
	ErrFeeBelowMinimum      = errors.New("max fee below minimum fee")
)

// HeightProvider reports the current block height of the local domain, used
// to gate expired deposits.
type HeightProvider interface {
	Height(ctx context.Context) (uint64, error)
}

// HeightProviderFunc adapts a function to HeightProvider.
type HeightProviderFunc func(ctx context.Context) (uint64, error)

func (f HeightProviderFunc) Height(ctx context.Context) (uint64, error) {
	return f(ctx)
}

// Config is the construction-time configuration of a TokenMessenger.
type Config struct {
	// MessengerID is this messenger's identity: remote messengers address
	// deposits to it, and its own deposits are sent under it.
	MessengerID ids.ID

	// Owner, Denylister and MinFeeController are the initial role holders.
	Owner            ids.ID
	Denylister       ids.ID
	MinFeeController ids.ID

	// FeeRecipient receives executed fees on mint. Required only once fees
	// are charged.
	FeeRecipient ids.ID

	// MinFee is the floor a deposit's max fee must clear. Nil or zero
	// disables the floor.
	MinFee *uint256.Int
}

// TokenMessenger burns deposits for other domains and mints deposits received
// from them. It is registered with the local transmitter as the recipient for
// its own identity.
type TokenMessenger struct {
	logger      log.Logger
	id          ids.ID
	transmitter *transmitter.Transmitter
	minter      *minter.TokenMinter
	heights     HeightProvider
	hooks       HookHandler
	metrics     *Metrics

	owner    *roles.Ownable
	denylist *roles.Denylist

	lock             sync.RWMutex
	remoteMessengers map[uint32]ids.ID
	feeRecipient     ids.ID
	minFee           *uint256.Int
	minFeeController ids.ID
}

// New creates a TokenMessenger. heights may be nil when no expiration gating
// is wanted; hooks may be nil when hook payloads are ignored. A nil metrics
// registers against a private registry.
func New(
	cfg Config,
	logger log.Logger,
	tx *transmitter.Transmitter,
	tokenMinter *minter.TokenMinter,
	heights HeightProvider,
	hooks HookHandler,
	metrics *Metrics,
) (*TokenMessenger, error) {
	if tx == nil {
		return nil, errors.New("nil transmitter")
	}
	if tokenMinter == nil {
		return nil, errors.New("nil minter")
	}
	if cfg.MessengerID == ids.Empty {
		return nil, fmt.Errorf("%w: messenger id", roles.ErrZeroID)
	}
	if cfg.MinFeeController == ids.Empty {
		return nil, fmt.Errorf("%w: min fee controller", roles.ErrZeroID)
	}
	owner, err := roles.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("%w: owner", err)
	}
	denylist, err := roles.NewDenylist(cfg.Denylister)
	if err != nil {
		return nil, fmt.Errorf("%w: denylister", err)
	}
	if heights == nil {
		heights = HeightProviderFunc(func(context.Context) (uint64, error) {
			return 0, nil
		})
	}
	minFee := uint256.NewInt(0)
	if cfg.MinFee != nil {
		minFee = cfg.MinFee.Clone()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	return &TokenMessenger{
		logger:           logger,
		id:               cfg.MessengerID,
		transmitter:      tx,
		minter:           tokenMinter,
		heights:          heights,
		hooks:            hooks,
		metrics:          metrics,
		owner:            owner,
		denylist:         denylist,
		remoteMessengers: make(map[uint32]ids.ID),
		feeRecipient:     cfg.FeeRecipient,
		minFee:           minFee,
		minFeeController: cfg.MinFeeController,
	}, nil
}

// Register installs the messenger as the transmitter recipient for its own
// identity.
func (b *TokenMessenger) Register() error {
	return b.transmitter.RegisterRecipient(b.id, b)
}

// DepositForBurn burns amount of burnToken from the caller and emits a burn
// message minting it to mintRecipient on the destination domain.
func (b *TokenMessenger) DepositForBurn(
	ctx context.Context,
	caller ids.ID,
	amount *uint256.Int,
	destinationDomain uint32,
	mintRecipient ids.ID,
	burnToken ids.ID,
	destinationCaller ids.ID,
	maxFee *uint256.Int,
	minFinalityThreshold uint32,
) (*transmitter.SentMessage, error) {
	return b.depositForBurn(ctx, caller, amount, destinationDomain, mintRecipient,
		burnToken, destinationCaller, maxFee, minFinalityThreshold, nil)
}

// DepositForBurnWithHook is DepositForBurn with an opaque hook payload
// executed on the destination after the mint.
func (b *TokenMessenger) DepositForBurnWithHook(
	ctx context.Context,
	caller ids.ID,
	amount *uint256.Int,
	destinationDomain uint32,
	mintRecipient ids.ID,
	burnToken ids.ID,
	destinationCaller ids.ID,
	maxFee *uint256.Int,
	minFinalityThreshold uint32,
	hookData []byte,
) (*transmitter.SentMessage, error) {
	if len(hookData) == 0 {
		return nil, ErrEmptyHook
	}
	return b.depositForBurn(ctx, caller, amount, destinationDomain, mintRecipient,
		burnToken, destinationCaller, maxFee, minFinalityThreshold, hookData)
}

func (b *TokenMessenger) depositForBurn(
	ctx context.Context,
	caller ids.ID,
	amount *uint256.Int,
	destinationDomain uint32,
	mintRecipient ids.ID,
	burnToken ids.ID,
	destinationCaller ids.ID,
	maxFee *uint256.Int,
	minFinalityThreshold uint32,
	hookData []byte,
) (*transmitter.SentMessage, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if mintRecipient == ids.Empty {
		return nil, fmt.Errorf("%w: mint recipient", roles.ErrZeroID)
	}
	if err := b.denylist.Check(caller); err != nil {
		return nil, fmt.Errorf("%w: %s", err, caller)
	}
	if err := b.denylist.Check(mintRecipient); err != nil {
		return nil, fmt.Errorf("%w: %s", err, mintRecipient)
	}
	remoteMessenger, ok := b.RemoteMessenger(destinationDomain)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoRemoteMessenger, destinationDomain)
	}

	body, err := payload.NewBurnMessage(burnToken, mintRecipient, amount, caller, maxFee, hookData)
	if err != nil {
		return nil, err
	}
	if err := body.ValidateFees(); err != nil {
		return nil, err
	}
	if minFee := b.MinFee(); maxFee.Lt(minFee) {
		return nil, fmt.Errorf("%w: %s < %s", ErrFeeBelowMinimum, maxFee, minFee)
	}

	// Everything the send validates is checked before the burn, so a deposit
	// that burns also sends.
	raw := body.Bytes()
	if len(raw) > b.transmitter.MaxMessageBodySize() {
		return nil, fmt.Errorf("%w: %d > %d", transmitter.ErrBodyTooLarge, len(raw), b.transmitter.MaxMessageBodySize())
	}
	if b.transmitter.Paused() {
		return nil, roles.ErrPaused
	}

	if err := b.minter.Burn(ctx, b.id, burnToken, caller, amount); err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}

	event, err := b.transmitter.SendMessage(ctx, b.id, destinationDomain, remoteMessenger,
		destinationCaller, minFinalityThreshold, raw)
	if err != nil {
		b.logger.Error("send failed after burn",
			log.Stringer("burnToken", burnToken),
			log.Stringer("depositor", caller),
			log.Stringer("amount", amount),
			log.Err(err),
		)
		return nil, fmt.Errorf("send after burn: %w", err)
	}

	b.metrics.depositsForBurn.Inc()
	b.logger.Info("deposit for burn",
		log.Uint64("index", event.Index),
		log.Stringer("id", event.Message.ID()),
		log.Uint32("destinationDomain", destinationDomain),
		log.Stringer("burnToken", burnToken),
		log.Stringer("amount", amount),
		log.Stringer("mintRecipient", mintRecipient),
	)
	return event, nil
}

// ReplaceDepositForBurn re-announces an attested deposit with a new mint
// recipient and/or destination caller. Only the original depositor may
// replace; the tokens are not burned again.
func (b *TokenMessenger) ReplaceDepositForBurn(
	ctx context.Context,
	caller ids.ID,
	originalRaw []byte,
	originalAttestation []byte,
	newDestinationCaller ids.ID,
	newMintRecipient ids.ID,
) (*transmitter.SentMessage, error) {
	if newMintRecipient == ids.Empty {
		return nil, fmt.Errorf("%w: mint recipient", roles.ErrZeroID)
	}
	if err := b.denylist.Check(caller); err != nil {
		return nil, fmt.Errorf("%w: %s", err, caller)
	}
	if err := b.denylist.Check(newMintRecipient); err != nil {
		return nil, fmt.Errorf("%w: %s", err, newMintRecipient)
	}

	original, err := cctp.ParseMessage(originalRaw)
	if err != nil {
		return nil, err
	}
	burn, err := payload.ParseBurnMessage(original.Body)
	if err != nil {
		return nil, err
	}
	if burn.MessageSender != caller {
		return nil, fmt.Errorf("%w: depositor %s", ErrDepositorMismatch, burn.MessageSender)
	}

	replacement := burn.WithMintRecipient(newMintRecipient)
	event, err := b.transmitter.ReplaceMessage(ctx, b.id, originalRaw, originalAttestation,
		replacement.Bytes(), newDestinationCaller)
	if err != nil {
		return nil, err
	}

	b.metrics.depositsReplaced.Inc()
	b.logger.Info("deposit replaced",
		log.Uint64("index", event.Index),
		log.Stringer("id", event.Message.ID()),
		log.Stringer("nonce", event.Message.Nonce),
		log.Stringer("mintRecipient", newMintRecipient),
	)
	return event, nil
}

// HandleReceiveFinalizedMessage mints a finalized deposit.
func (b *TokenMessenger) HandleReceiveFinalizedMessage(
	ctx context.Context,
	sourceDomain uint32,
	sender ids.ID,
	finalityThresholdExecuted uint32,
	body []byte,
) error {
	return b.handleReceive(ctx, sourceDomain, sender, finalityThresholdExecuted, body, true)
}

// HandleReceiveUnfinalizedMessage mints a deposit attested below the
// finalized threshold. The executed threshold must still clear the supported
// minimum.
func (b *TokenMessenger) HandleReceiveUnfinalizedMessage(
	ctx context.Context,
	sourceDomain uint32,
	sender ids.ID,
	finalityThresholdExecuted uint32,
	body []byte,
) error {
	return b.handleReceive(ctx, sourceDomain, sender, finalityThresholdExecuted, body, false)
}

// handleReceive validates a received burn message and mints it. Any error
// return makes the transmitter release the nonce, so a failed mint can be
// redelivered.
func (b *TokenMessenger) handleReceive(
	ctx context.Context,
	sourceDomain uint32,
	sender ids.ID,
	finalityThresholdExecuted uint32,
	body []byte,
	finalized bool,
) error {
	remote, ok := b.RemoteMessenger(sourceDomain)
	if !ok || remote != sender {
		return fmt.Errorf("%w: domain %d sender %s", ErrMessengerMismatch, sourceDomain, sender)
	}
	if !finalized && finalityThresholdExecuted < MinSupportedFinalityThreshold {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientFinality,
			finalityThresholdExecuted, MinSupportedFinalityThreshold)
	}

	burn, err := payload.ParseBurnMessage(body)
	if err != nil {
		return err
	}
	if err := burn.ValidateFees(); err != nil {
		return err
	}
	if !burn.ExpirationBlock.IsZero() {
		height, err := b.heights.Height(ctx)
		if err != nil {
			return fmt.Errorf("height: %w", err)
		}
		if uint256.NewInt(height).Cmp(burn.ExpirationBlock) >= 0 {
			return fmt.Errorf("%w: height %d, expiration %s", ErrExpired, height, burn.ExpirationBlock)
		}
	}

	principal := new(uint256.Int).Sub(burn.Amount, burn.FeeExecuted)
	localToken, err := b.minter.MintWithFee(ctx, b.id, sourceDomain, burn.BurnToken,
		burn.MintRecipient, b.FeeRecipient(), principal, burn.FeeExecuted)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}

	b.metrics.mintsCompleted.Inc()
	b.logger.Info("deposit minted",
		log.Uint32("sourceDomain", sourceDomain),
		log.Stringer("localToken", localToken),
		log.Stringer("mintRecipient", burn.MintRecipient),
		log.Stringer("amount", burn.Amount),
		log.Stringer("feeExecuted", burn.FeeExecuted),
	)

	if burn.HasHook() && b.hooks != nil {
		if err := b.hooks.ExecuteHook(ctx, sourceDomain, localToken, burn); err != nil {
			b.metrics.hooksFailed.Inc()
			b.logger.Warn("hook execution failed",
				log.Uint32("sourceDomain", sourceDomain),
				log.Stringer("localToken", localToken),
				log.Err(err),
			)
		} else {
			b.metrics.hooksExecuted.Inc()
		}
	}
	return nil
}

// AddRemoteTokenMessenger registers the messenger identity for a remote
// domain. Owner only.
func (b *TokenMessenger) AddRemoteTokenMessenger(caller ids.ID, domain uint32, messenger ids.ID) error {
	if err := b.owner.Check(caller); err != nil {
		return err
	}
	if messenger == ids.Empty {
		return roles.ErrZeroID
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if existing, ok := b.remoteMessengers[domain]; ok {
		return fmt.Errorf("%w: %d -> %s", ErrRemoteMessengerSet, domain, existing)
	}
	b.remoteMessengers[domain] = messenger
	return nil
}

// RemoveRemoteTokenMessenger deregisters a remote domain. Owner only.
func (b *TokenMessenger) RemoveRemoteTokenMessenger(caller ids.ID, domain uint32) error {
	if err := b.owner.Check(caller); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.remoteMessengers[domain]; !ok {
		return fmt.Errorf("%w: %d", ErrNoRemoteMessenger, domain)
	}
	delete(b.remoteMessengers, domain)
	return nil
}

// SetFeeRecipient rotates the fee recipient. Owner only.
func (b *TokenMessenger) SetFeeRecipient(caller, recipient ids.ID) error {
	if err := b.owner.Check(caller); err != nil {
		return err
	}
	if recipient == ids.Empty {
		return fmt.Errorf("%w: fee recipient", roles.ErrZeroID)
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.feeRecipient = recipient
	return nil
}

// SetMinFee updates the max-fee floor. Min-fee controller only.
func (b *TokenMessenger) SetMinFee(caller ids.ID, fee *uint256.Int) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if caller != b.minFeeController {
		return ErrNotMinFeeController
	}
	if fee == nil {
		b.minFee = uint256.NewInt(0)
		return nil
	}
	b.minFee = fee.Clone()
	return nil
}

// SetMinFeeController rotates the min-fee controller. Owner only.
func (b *TokenMessenger) SetMinFeeController(caller, controller ids.ID) error {
	if err := b.owner.Check(caller); err != nil {
		return err
	}
	if controller == ids.Empty {
		return fmt.Errorf("%w: min fee controller", roles.ErrZeroID)
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.minFeeController = controller
	return nil
}

// Deny denylists an account. Denylister only.
func (b *TokenMessenger) Deny(caller, id ids.ID) error {
	return b.denylist.Deny(caller, id)
}

// Allow removes an account from the denylist. Denylister only.
func (b *TokenMessenger) Allow(caller, id ids.ID) error {
	return b.denylist.Allow(caller, id)
}

// SetDenylister rotates the denylister. Owner only.
func (b *TokenMessenger) SetDenylister(caller, denylister ids.ID) error {
	if err := b.owner.Check(caller); err != nil {
		return err
	}
	return b.denylist.SetDenylister(denylister)
}

// IsDenylisted reports whether id is denylisted.
func (b *TokenMessenger) IsDenylisted(id ids.ID) bool {
	return b.denylist.IsDenylisted(id)
}

// TransferOwnership nominates a new owner. Owner only.
func (b *TokenMessenger) TransferOwnership(caller, newOwner ids.ID) error {
	return b.owner.TransferOwnership(caller, newOwner)
}

// AcceptOwnership completes an ownership transfer. Pending owner only.
func (b *TokenMessenger) AcceptOwnership(caller ids.ID) error {
	return b.owner.AcceptOwnership(caller)
}

// ID returns the messenger's identity.
func (b *TokenMessenger) ID() ids.ID {
	return b.id
}

// RemoteMessenger returns the messenger registered for a remote domain.
func (b *TokenMessenger) RemoteMessenger(domain uint32) (ids.ID, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	messenger, ok := b.remoteMessengers[domain]
	return messenger, ok
}

// FeeRecipient returns the current fee recipient.
func (b *TokenMessenger) FeeRecipient() ids.ID {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.feeRecipient
}

// MinFee returns the max-fee floor.
func (b *TokenMessenger) MinFee() *uint256.Int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.minFee.Clone()
}

// MinFeeController returns the current min-fee controller.
func (b *TokenMessenger) MinFeeController() ids.ID {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.minFeeController
}

// Owner returns the current owner.
func (b *TokenMessenger) Owner() ids.ID {
	return b.owner.Owner()
}

// PendingOwner returns the nominated owner, or the zero id if none.
func (b *TokenMessenger) PendingOwner() ids.ID {
	return b.owner.PendingOwner()
}

var _ transmitter.MessageRecipient = (*TokenMessenger)(nil)
