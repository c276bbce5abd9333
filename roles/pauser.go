// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package roles

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
)

var (
	ErrNotPauser = errors.New("caller is not the pauser")
	ErrPaused    = errors.New("paused")
)

// Pauser gates a component's state-changing operations behind a pause flag
// controlled by a dedicated pauser identity. Pause and Unpause are
// idempotent.
type Pauser struct {
	lock   sync.RWMutex
	pauser ids.ID
	paused bool
}

// NewPauser creates a Pauser controlled by pauser.
func NewPauser(pauser ids.ID) (*Pauser, error) {
	if pauser == ids.Empty {
		return nil, ErrZeroID
	}
	return &Pauser{pauser: pauser}, nil
}

// Pause stops state-changing operations.
func (p *Pauser) Pause(caller ids.ID) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if caller != p.pauser {
		return ErrNotPauser
	}
	p.paused = true
	return nil
}

// Unpause resumes state-changing operations.
func (p *Pauser) Unpause(caller ids.ID) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if caller != p.pauser {
		return ErrNotPauser
	}
	p.paused = false
	return nil
}

// CheckNotPaused returns ErrPaused while paused.
func (p *Pauser) CheckNotPaused() error {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.paused {
		return ErrPaused
	}
	return nil
}

// Paused reports the pause flag.
func (p *Pauser) Paused() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.paused
}

// SetPauser rotates the pauser identity. The embedding component gates this
// with its owner check.
func (p *Pauser) SetPauser(pauser ids.ID) error {
	if pauser == ids.Empty {
		return ErrZeroID
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.pauser = pauser
	return nil
}

// CurrentPauser returns the pauser identity.
func (p *Pauser) CurrentPauser() ids.ID {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.pauser
}
