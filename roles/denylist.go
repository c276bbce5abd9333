// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package roles

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var (
	ErrNotDenylister = errors.New("caller is not the denylister")
	ErrDenied        = errors.New("account denylisted")
)

// Denylist blocks individual identities from interacting with a component.
type Denylist struct {
	lock       sync.RWMutex
	denylister ids.ID
	denied     set.Set[ids.ID]
}

// NewDenylist creates a Denylist controlled by denylister.
func NewDenylist(denylister ids.ID) (*Denylist, error) {
	if denylister == ids.Empty {
		return nil, ErrZeroID
	}
	return &Denylist{
		denylister: denylister,
		denied:     set.NewSet[ids.ID](0),
	}, nil
}

// Deny adds id to the denylist.
func (d *Denylist) Deny(caller, id ids.ID) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if caller != d.denylister {
		return ErrNotDenylister
	}
	d.denied.Add(id)
	return nil
}

// Allow removes id from the denylist.
func (d *Denylist) Allow(caller, id ids.ID) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if caller != d.denylister {
		return ErrNotDenylister
	}
	d.denied.Remove(id)
	return nil
}

// Check returns ErrDenied if id is denylisted.
func (d *Denylist) Check(id ids.ID) error {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if d.denied.Contains(id) {
		return ErrDenied
	}
	return nil
}

// IsDenylisted reports whether id is denylisted.
func (d *Denylist) IsDenylisted(id ids.ID) bool {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.denied.Contains(id)
}

// SetDenylister rotates the denylister identity. The embedding component
// gates this with its owner check.
func (d *Denylist) SetDenylister(denylister ids.ID) error {
	if denylister == ids.Empty {
		return ErrZeroID
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.denylister = denylister
	return nil
}
