// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package minter implements the token registry and mint/burn authority shared
// by the token messengers on a domain. It binds local token ids to ledgers,
// links them to tokens on remote domains, and enforces per-message burn
// ceilings.
package minter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/ids"

	"github.com/luxfi/cctp/roles"
)

var (
	ErrNotLocalMessenger   = errors.New("caller is not a local messenger")
	ErrNotTokenController  = errors.New("caller is not the token controller")
	ErrUnsupportedToken    = errors.New("token not supported for burn")
	ErrBurnLimitExceeded   = errors.New("burn amount exceeds per-message limit")
	ErrZeroAmount          = errors.New("zero amount")
	ErrTokenNotRegistered  = errors.New("local token not registered")
	ErrPairLinked          = errors.New("token pair already linked")
	ErrPairNotLinked       = errors.New("token pair not linked")
	ErrMessengerRegistered = errors.New("messenger already registered")
	ErrMessengerUnknown    = errors.New("messenger not registered")
)

// RemoteToken identifies a token on another domain.
type RemoteToken struct {
	Domain uint32
	Token  ids.ID
}

// Config is the construction-time configuration of a TokenMinter.
type Config struct {
	// Owner, Pauser and TokenController are the initial role holders.
	Owner           ids.ID
	Pauser          ids.ID
	TokenController ids.ID
}

// TokenMinter holds the mint/burn authority for the local tokens of a domain.
// Only registered local messengers may burn and mint; only the token
// controller may link token pairs and set burn ceilings.
type TokenMinter struct {
	logger log.Logger
	owner  *roles.Ownable
	pauser *roles.Pauser

	lock            sync.RWMutex
	tokenController ids.ID
	localMessengers set.Set[ids.ID]
	tokens          map[ids.ID]Token
	burnLimits      map[ids.ID]*uint256.Int
	pairs           map[RemoteToken]ids.ID
}

// NewTokenMinter creates a TokenMinter with no tokens registered.
func NewTokenMinter(cfg Config, logger log.Logger) (*TokenMinter, error) {
	if cfg.TokenController == ids.Empty {
		return nil, fmt.Errorf("%w: token controller", roles.ErrZeroID)
	}
	owner, err := roles.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("%w: owner", err)
	}
	pauser, err := roles.NewPauser(cfg.Pauser)
	if err != nil {
		return nil, fmt.Errorf("%w: pauser", err)
	}

	return &TokenMinter{
		logger:          logger,
		owner:           owner,
		pauser:          pauser,
		tokenController: cfg.TokenController,
		localMessengers: set.NewSet[ids.ID](1),
		tokens:          make(map[ids.ID]Token),
		burnLimits:      make(map[ids.ID]*uint256.Int),
		pairs:           make(map[RemoteToken]ids.ID),
	}, nil
}

// RegisterLocalToken binds a local token id to its ledger, replacing any
// previous binding.
func (m *TokenMinter) RegisterLocalToken(id ids.ID, token Token) error {
	if id == ids.Empty {
		return roles.ErrZeroID
	}
	if token == nil {
		return errors.New("nil token")
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.tokens[id] = token
	return nil
}

// LinkTokenPair links a local token to a token on a remote domain. Token
// controller only. The remote pair must not already be linked.
func (m *TokenMinter) LinkTokenPair(caller, localToken ids.ID, remoteDomain uint32, remoteToken ids.ID) error {
	if err := m.checkTokenController(caller); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.tokens[localToken]; !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotRegistered, localToken)
	}
	key := RemoteToken{Domain: remoteDomain, Token: remoteToken}
	if linked, ok := m.pairs[key]; ok {
		return fmt.Errorf("%w: domain %d token %s already maps to %s",
			ErrPairLinked, remoteDomain, remoteToken, linked)
	}
	m.pairs[key] = localToken

	m.logger.Info("token pair linked",
		log.Stringer("localToken", localToken),
		log.Uint32("remoteDomain", remoteDomain),
		log.Stringer("remoteToken", remoteToken),
	)
	return nil
}

// UnlinkTokenPair removes a link created by LinkTokenPair. Token controller
// only. The named pair must currently be linked to localToken.
func (m *TokenMinter) UnlinkTokenPair(caller, localToken ids.ID, remoteDomain uint32, remoteToken ids.ID) error {
	if err := m.checkTokenController(caller); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	key := RemoteToken{Domain: remoteDomain, Token: remoteToken}
	linked, ok := m.pairs[key]
	if !ok {
		return fmt.Errorf("%w: domain %d token %s", ErrPairNotLinked, remoteDomain, remoteToken)
	}
	if linked != localToken {
		return fmt.Errorf("%w: domain %d token %s maps to %s, not %s",
			ErrPairNotLinked, remoteDomain, remoteToken, linked, localToken)
	}
	delete(m.pairs, key)
	return nil
}

// SetMaxBurnAmountPerMessage sets the per-message burn ceiling for a local
// token. Token controller only. A zero ceiling disables burning the token.
func (m *TokenMinter) SetMaxBurnAmountPerMessage(caller, localToken ids.ID, amount *uint256.Int) error {
	if err := m.checkTokenController(caller); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if amount == nil || amount.IsZero() {
		delete(m.burnLimits, localToken)
		return nil
	}
	m.burnLimits[localToken] = amount.Clone()
	return nil
}

// AddLocalMessenger authorizes a messenger to burn and mint. Owner only.
func (m *TokenMinter) AddLocalMessenger(caller, messenger ids.ID) error {
	if err := m.owner.Check(caller); err != nil {
		return err
	}
	if messenger == ids.Empty {
		return roles.ErrZeroID
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.localMessengers.Contains(messenger) {
		return fmt.Errorf("%w: %s", ErrMessengerRegistered, messenger)
	}
	m.localMessengers.Add(messenger)
	return nil
}

// RemoveLocalMessenger revokes a messenger's burn/mint authority. Owner only.
func (m *TokenMinter) RemoveLocalMessenger(caller, messenger ids.ID) error {
	if err := m.owner.Check(caller); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.localMessengers.Contains(messenger) {
		return fmt.Errorf("%w: %s", ErrMessengerUnknown, messenger)
	}
	m.localMessengers.Remove(messenger)
	return nil
}

// Burn burns amount of burnToken from the holder. Local messengers only. The
// amount must be positive and within the token's per-message ceiling; a token
// with no ceiling cannot be burned.
func (m *TokenMinter) Burn(ctx context.Context, caller, burnToken, from ids.ID, amount *uint256.Int) error {
	if err := m.checkLocalMessenger(caller); err != nil {
		return err
	}
	if err := m.pauser.CheckNotPaused(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	m.lock.RLock()
	limit, hasLimit := m.burnLimits[burnToken]
	token, hasToken := m.tokens[burnToken]
	m.lock.RUnlock()

	if !hasLimit {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, burnToken)
	}
	if amount.Gt(limit) {
		return fmt.Errorf("%w: %s > %s", ErrBurnLimitExceeded, amount, limit)
	}
	if !hasToken {
		return fmt.Errorf("%w: %s", ErrTokenNotRegistered, burnToken)
	}

	return token.Burn(ctx, from, amount)
}

// Mint mints amount of the local token linked to (sourceDomain, burnToken) to
// the recipient and returns the local token id. Local messengers only.
func (m *TokenMinter) Mint(ctx context.Context, caller ids.ID, sourceDomain uint32, burnToken, recipient ids.ID, amount *uint256.Int) (ids.ID, error) {
	if err := m.checkLocalMessenger(caller); err != nil {
		return ids.Empty, err
	}
	if err := m.pauser.CheckNotPaused(); err != nil {
		return ids.Empty, err
	}

	localToken, token, err := m.resolve(sourceDomain, burnToken)
	if err != nil {
		return ids.Empty, err
	}
	if err := token.Mint(ctx, recipient, amount); err != nil {
		return ids.Empty, err
	}
	return localToken, nil
}

// MintWithFee mints the principal to the recipient and the fee to the fee
// recipient in one operation: either both mints apply or neither does.
func (m *TokenMinter) MintWithFee(
	ctx context.Context,
	caller ids.ID,
	sourceDomain uint32,
	burnToken, recipient, feeRecipient ids.ID,
	principal, fee *uint256.Int,
) (ids.ID, error) {
	if err := m.checkLocalMessenger(caller); err != nil {
		return ids.Empty, err
	}
	if err := m.pauser.CheckNotPaused(); err != nil {
		return ids.Empty, err
	}
	if fee != nil && !fee.IsZero() && feeRecipient == ids.Empty {
		return ids.Empty, fmt.Errorf("%w: fee recipient", roles.ErrZeroID)
	}

	localToken, token, err := m.resolve(sourceDomain, burnToken)
	if err != nil {
		return ids.Empty, err
	}
	if err := token.Mint(ctx, recipient, principal); err != nil {
		return ids.Empty, err
	}
	if fee == nil || fee.IsZero() {
		return localToken, nil
	}
	if err := token.Mint(ctx, feeRecipient, fee); err != nil {
		// Unwind the principal so the failed fee mint leaves no partial
		// state.
		if burnErr := token.Burn(ctx, recipient, principal); burnErr != nil {
			m.logger.Error("failed to unwind principal mint",
				log.Stringer("localToken", localToken),
				log.Stringer("recipient", recipient),
				log.Err(burnErr),
			)
		}
		return ids.Empty, fmt.Errorf("fee mint: %w", err)
	}
	return localToken, nil
}

// GetLocalToken returns the local token linked to a remote token, if any.
func (m *TokenMinter) GetLocalToken(remoteDomain uint32, remoteToken ids.ID) (ids.ID, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	localToken, ok := m.pairs[RemoteToken{Domain: remoteDomain, Token: remoteToken}]
	return localToken, ok
}

// MaxBurnAmountPerMessage returns the per-message burn ceiling for a local
// token. A zero ceiling means the token cannot be burned.
func (m *TokenMinter) MaxBurnAmountPerMessage(localToken ids.ID) *uint256.Int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	limit, ok := m.burnLimits[localToken]
	if !ok {
		return uint256.NewInt(0)
	}
	return limit.Clone()
}

// IsLocalMessenger reports whether id is an authorized messenger.
func (m *TokenMinter) IsLocalMessenger(id ids.ID) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.localMessengers.Contains(id)
}

// SetTokenController rotates the token controller. Owner only.
func (m *TokenMinter) SetTokenController(caller, controller ids.ID) error {
	if err := m.owner.Check(caller); err != nil {
		return err
	}
	if controller == ids.Empty {
		return roles.ErrZeroID
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.tokenController = controller
	return nil
}

// TokenController returns the current token controller.
func (m *TokenMinter) TokenController() ids.ID {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.tokenController
}

// Pause stops burns and mints. Pauser only.
func (m *TokenMinter) Pause(caller ids.ID) error {
	return m.pauser.Pause(caller)
}

// Unpause resumes burns and mints. Pauser only.
func (m *TokenMinter) Unpause(caller ids.ID) error {
	return m.pauser.Unpause(caller)
}

// SetPauser rotates the pauser. Owner only.
func (m *TokenMinter) SetPauser(caller, pauser ids.ID) error {
	if err := m.owner.Check(caller); err != nil {
		return err
	}
	return m.pauser.SetPauser(pauser)
}

// Paused reports the pause flag.
func (m *TokenMinter) Paused() bool {
	return m.pauser.Paused()
}

// TransferOwnership nominates a new owner. Owner only.
func (m *TokenMinter) TransferOwnership(caller, newOwner ids.ID) error {
	return m.owner.TransferOwnership(caller, newOwner)
}

// AcceptOwnership completes an ownership transfer. Pending owner only.
func (m *TokenMinter) AcceptOwnership(caller ids.ID) error {
	return m.owner.AcceptOwnership(caller)
}

// Owner returns the current owner.
func (m *TokenMinter) Owner() ids.ID {
	return m.owner.Owner()
}

// PendingOwner returns the nominated owner, or the zero id if none.
func (m *TokenMinter) PendingOwner() ids.ID {
	return m.owner.PendingOwner()
}

func (m *TokenMinter) checkTokenController(caller ids.ID) error {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if caller != m.tokenController {
		return ErrNotTokenController
	}
	return nil
}

func (m *TokenMinter) checkLocalMessenger(caller ids.ID) error {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if !m.localMessengers.Contains(caller) {
		return fmt.Errorf("%w: %s", ErrNotLocalMessenger, caller)
	}
	return nil
}

// resolve maps a remote token to its local token and ledger.
func (m *TokenMinter) resolve(sourceDomain uint32, burnToken ids.ID) (ids.ID, Token, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	localToken, ok := m.pairs[RemoteToken{Domain: sourceDomain, Token: burnToken}]
	if !ok {
		return ids.Empty, nil, fmt.Errorf("%w: domain %d token %s", ErrPairNotLinked, sourceDomain, burnToken)
	}
	token, ok := m.tokens[localToken]
	if !ok {
		return ids.Empty, nil, fmt.Errorf("%w: %s", ErrTokenNotRegistered, localToken)
	}
	return localToken, token, nil
}
