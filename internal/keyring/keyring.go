// SPDX-License-Identifier: Apache-2.0

// Package keyring holds the symmetric keys used by Security Associations:
// a mapping from 16-bit KeyID to key bytes and lifecycle state. Master
// keys (IDs below the mission's session-key threshold) are provisioned
// out of band and can never be state-transitioned or OTAR'd; session
// keys live at or above the threshold and are the only ones OTAR and
// Key-Update procedures may touch.
package keyring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spacedatalink/sdls-core/internal/suite"
)

// ErrUnknownKey indicates no key is registered under the requested ID.
var ErrUnknownKey = errors.New("keyring: unknown key id")

// ErrMasterKeyImmutable indicates an attempt to OTAR-install or
// state-transition a master key id.
var ErrMasterKeyImmutable = errors.New("keyring: master keys cannot be installed or transitioned")

// ErrIllegalTransition indicates a requested key state change does not
// follow the one-step-forward lifecycle (or any-state -> CORRUPTED).
var ErrIllegalTransition = errors.New("keyring: illegal key state transition")

// Key is one entry in the ring: its value and lifecycle state.
type Key struct {
	ID    uint16
	Value []byte
	State suite.KeyState
}

// Ring is a KeyID -> Key map guarded for concurrent Apply/Process/SDLS
// access. Threshold is the smallest session KeyID; every ID below it is
// a master key.
type Ring struct {
	mu        sync.RWMutex
	keys      map[uint16]*Key
	Threshold uint16
}

// New returns an empty ring with the given master/session-key threshold.
func New(threshold uint16) *Ring {
	return &Ring{keys: make(map[uint16]*Key), Threshold: threshold}
}

// IsMasterKeyID reports whether id falls in the master-key range.
func (r *Ring) IsMasterKeyID(id uint16) bool { return id < r.Threshold }

// Provision installs a master key at startup. It bypasses the OTAR/
// transition restrictions since it is the out-of-band provisioning path.
func (r *Ring) Provision(id uint16, value []byte, state suite.KeyState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[id] = &Key{ID: id, Value: append([]byte(nil), value...), State: state}
}

// Get returns a copy of the key registered under id.
func (r *Ring) Get(id uint16) (Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	if !ok {
		return Key{}, fmt.Errorf("%w: %d", ErrUnknownKey, id)
	}
	return *k, nil
}

// InstallOTAR installs or overwrites a session key's value and sets its
// state to PREACTIVE, as required by the OTAR procedure (spec.md
// §4.7.1). It rejects master-key ids.
func (r *Ring) InstallOTAR(id uint16, value []byte) error {
	if r.IsMasterKeyID(id) {
		return fmt.Errorf("%w: id %d", ErrMasterKeyImmutable, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[id] = &Key{ID: id, Value: append([]byte(nil), value...), State: suite.KeyPreActive}
	return nil
}

// Transition moves the key registered under id to target, enforcing the
// one-step-forward rule (or any-state -> CORRUPTED) from spec.md §3.
func (r *Ring) Transition(id uint16, target suite.KeyState) error {
	if r.IsMasterKeyID(id) {
		return fmt.Errorf("%w: id %d", ErrMasterKeyImmutable, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKey, id)
	}
	if !k.State.CanTransitionTo(target) {
		return fmt.Errorf("%w: key %d is %s, requested %s", ErrIllegalTransition, id, k.State, target)
	}
	k.State = target
	return nil
}

// RequireActive returns the key's value if it is registered and in
// state ACTIVE, the precondition spec.md §3 and §4.4 require for use in
// encryption or authentication.
func (r *Ring) RequireActive(id uint16) ([]byte, error) {
	k, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if k.State != suite.KeyActive {
		return nil, fmt.Errorf("keyring: key %d is %s, not ACTIVE", id, k.State)
	}
	return k.Value, nil
}

// Corrupt forces a key into the CORRUPTED state from any state. No
// procedure in this module calls it; the User/Test fault toggles corrupt
// frame fields, not keys.
func (r *Ring) Corrupt(id uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKey, id)
	}
	k.State = suite.KeyCorrupted
	return nil
}
