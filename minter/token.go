// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package minter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSupplyOverflow      = errors.New("total supply overflow")
)

// Token is the ledger a registered local token is minted and burned on. The
// minter holds the mint/burn authority; implementations only move balances.
type Token interface {
	Mint(ctx context.Context, to ids.ID, amount *uint256.Int) error
	Burn(ctx context.Context, from ids.ID, amount *uint256.Int) error
}

// MemToken is an in-memory token ledger.
type MemToken struct {
	lock        sync.RWMutex
	balances    map[ids.ID]*uint256.Int
	totalSupply *uint256.Int
}

// NewMemToken creates an empty ledger.
func NewMemToken() *MemToken {
	return &MemToken{
		balances:    make(map[ids.ID]*uint256.Int),
		totalSupply: uint256.NewInt(0),
	}
}

func (m *MemToken) Mint(_ context.Context, to ids.ID, amount *uint256.Int) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(m.totalSupply, amount)
	if overflow {
		return ErrSupplyOverflow
	}

	balance, ok := m.balances[to]
	if !ok {
		balance = uint256.NewInt(0)
		m.balances[to] = balance
	}
	balance.Add(balance, amount)
	m.totalSupply = supply
	return nil
}

func (m *MemToken) Burn(_ context.Context, from ids.ID, amount *uint256.Int) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	balance, ok := m.balances[from]
	if !ok || balance.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from)
	}
	balance.Sub(balance, amount)
	m.totalSupply.Sub(m.totalSupply, amount)
	return nil
}

// Transfer moves amount between holders.
func (m *MemToken) Transfer(_ context.Context, from, to ids.ID, amount *uint256.Int) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	fromBalance, ok := m.balances[from]
	if !ok || fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from)
	}
	toBalance, ok := m.balances[to]
	if !ok {
		toBalance = uint256.NewInt(0)
		m.balances[to] = toBalance
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	return nil
}

// BalanceOf returns the holder's balance.
func (m *MemToken) BalanceOf(holder ids.ID) *uint256.Int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	balance, ok := m.balances[holder]
	if !ok {
		return uint256.NewInt(0)
	}
	return balance.Clone()
}

// TotalSupply returns the outstanding supply.
func (m *MemToken) TotalSupply() *uint256.Int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.totalSupply.Clone()
}

var _ Token = (*MemToken)(nil)
