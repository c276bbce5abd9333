// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package roles provides the capability components protocol objects compose:
// ownership, pausing, and denylisting. Each capability guards its own actor;
// rotating the actor is gated by the embedding component's owner.
package roles

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
)

var (
	ErrNotOwner        = errors.New("caller is not the owner")
	ErrNotPendingOwner = errors.New("caller is not the pending owner")
	ErrZeroID          = errors.New("zero id")
)

// Ownable implements two-step ownership transfer. The current owner nominates
// a pending owner, who must accept before the transfer takes effect.
type Ownable struct {
	lock    sync.RWMutex
	owner   ids.ID
	pending ids.ID
}

// NewOwnable creates an Ownable held by owner.
func NewOwnable(owner ids.ID) (*Ownable, error) {
	if owner == ids.Empty {
		return nil, ErrZeroID
	}
	return &Ownable{owner: owner}, nil
}

// Check returns ErrNotOwner unless caller is the current owner.
func (o *Ownable) Check(caller ids.ID) error {
	o.lock.RLock()
	defer o.lock.RUnlock()

	if caller != o.owner {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership nominates newOwner as pending owner. Nominating the zero
// id cancels an in-flight transfer.
func (o *Ownable) TransferOwnership(caller, newOwner ids.ID) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if caller != o.owner {
		return ErrNotOwner
	}
	o.pending = newOwner
	return nil
}

// AcceptOwnership completes a transfer. Only the pending owner may accept.
func (o *Ownable) AcceptOwnership(caller ids.ID) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.pending == ids.Empty || caller != o.pending {
		return ErrNotPendingOwner
	}
	o.owner = o.pending
	o.pending = ids.Empty
	return nil
}

// Owner returns the current owner.
func (o *Ownable) Owner() ids.ID {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.owner
}

// PendingOwner returns the nominated owner, or the zero id if none.
func (o *Ownable) PendingOwner() ids.ID {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.pending
}
