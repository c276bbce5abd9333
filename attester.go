// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

var (
	ErrAttesterEnabled    = errors.New("attester already enabled")
	ErrAttesterNotEnabled = errors.New("attester not enabled")
	ErrTooFewAttesters    = errors.New("too few enabled attesters")
	ErrInvalidThreshold   = errors.New("invalid signature threshold")
	ErrThresholdUnchanged = errors.New("signature threshold unchanged")
)

// AttesterSet is the mutable set of enabled attester addresses together with
// the exact number of signatures an attestation must carry. Mutations
// preserve the invariants that at least one attester stays enabled and that
// the enabled count never drops below the threshold.
type AttesterSet struct {
	lock      sync.RWMutex
	enabled   set.Set[common.Address]
	threshold int
}

// NewAttesterSet creates an attester set from the initial attesters and
// signature threshold.
func NewAttesterSet(attesters []common.Address, threshold int) (*AttesterSet, error) {
	if len(attesters) == 0 {
		return nil, errors.New("empty attester set")
	}
	enabled := set.NewSet[common.Address](len(attesters))
	for _, attester := range attesters {
		if attester == (common.Address{}) {
			return nil, errors.New("zero attester address")
		}
		if enabled.Contains(attester) {
			return nil, fmt.Errorf("duplicate attester: %s", attester)
		}
		enabled.Add(attester)
	}
	if threshold <= 0 || threshold > enabled.Len() {
		return nil, fmt.Errorf("%w: %d with %d attesters", ErrInvalidThreshold, threshold, enabled.Len())
	}
	return &AttesterSet{
		enabled:   enabled,
		threshold: threshold,
	}, nil
}

// Enable adds an attester to the enabled set.
func (a *AttesterSet) Enable(attester common.Address) error {
	if attester == (common.Address{}) {
		return errors.New("zero attester address")
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.enabled.Contains(attester) {
		return fmt.Errorf("%w: %s", ErrAttesterEnabled, attester)
	}
	a.enabled.Add(attester)
	return nil
}

// Disable removes an attester. The removal must leave at least one attester
// enabled and must not drop the enabled count below the threshold.
func (a *AttesterSet) Disable(attester common.Address) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.enabled.Len() <= 1 {
		return ErrTooFewAttesters
	}
	if a.enabled.Len() <= a.threshold {
		return fmt.Errorf("%w: disabling %s would drop below threshold %d", ErrTooFewAttesters, attester, a.threshold)
	}
	if !a.enabled.Contains(attester) {
		return fmt.Errorf("%w: %s", ErrAttesterNotEnabled, attester)
	}
	a.enabled.Remove(attester)
	return nil
}

// SetThreshold updates the signature threshold.
func (a *AttesterSet) SetThreshold(threshold int) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if threshold <= 0 || threshold > a.enabled.Len() {
		return fmt.Errorf("%w: %d with %d attesters", ErrInvalidThreshold, threshold, a.enabled.Len())
	}
	if threshold == a.threshold {
		return ErrThresholdUnchanged
	}
	a.threshold = threshold
	return nil
}

// IsEnabled reports whether the address is an enabled attester.
func (a *AttesterSet) IsEnabled(attester common.Address) bool {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.enabled.Contains(attester)
}

// Threshold returns the current signature threshold.
func (a *AttesterSet) Threshold() int {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.threshold
}

// Len returns the number of enabled attesters.
func (a *AttesterSet) Len() int {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.enabled.Len()
}

// Attesters returns the enabled attesters in ascending address order.
func (a *AttesterSet) Attesters() []common.Address {
	a.lock.RLock()
	defer a.lock.RUnlock()

	attesters := a.enabled.List()
	sort.Slice(attesters, func(i, j int) bool {
		return bytes.Compare(attesters[i][:], attesters[j][:]) < 0
	})
	return attesters
}
