// SPDX-License-Identifier: Apache-2.0

// Package memstore is the in-memory reference implementation of the
// sastore.Store contract (spec.md §4.2). One store-wide RWMutex guards
// every SA: lookups run concurrently, each mutation runs alone, and the
// lock is held only for the duration of a single method call, not for a
// whole Apply or Process call.
package memstore

import (
	"fmt"
	"sync"

	"github.com/spacedatalink/sdls-core/internal/counter"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/suite"
)

// Store is a sync.RWMutex-guarded map of SPI -> *sastore.SA.
type Store struct {
	mu  sync.RWMutex
	sas map[uint16]*sastore.SA
}

// New returns an empty in-memory SA store.
func New() *Store {
	return &Store{sas: make(map[uint16]*sastore.SA)}
}

var _ sastore.Store = (*Store)(nil)

func (s *Store) GetBySPI(spi uint16) (sastore.SA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sa, ok := s.sas[spi]
	if !ok {
		return sastore.SA{}, fmt.Errorf("%w: spi %d", sastore.ErrNotFound, spi)
	}
	return *sa, nil
}

func (s *Store) GetByGVCIDMapID(g sastore.GVCID, mapID uint8) (sastore.SA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sa := range s.sas {
		if sa.State == suite.SAOperational && sa.AllowsMapID(g, mapID) {
			return *sa, nil
		}
	}
	return sastore.SA{}, fmt.Errorf("%w: gvcid %+v mapid %d", sastore.ErrNotFound, g, mapID)
}

func (s *Store) Create(sa sastore.SA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sas[sa.SPI]; exists {
		return fmt.Errorf("memstore: spi %d already exists", sa.SPI)
	}
	cp := sa
	s.sas[sa.SPI] = &cp
	return nil
}

func (s *Store) Delete(spi uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sas[spi]; !ok {
		return fmt.Errorf("%w: spi %d", sastore.ErrNotFound, spi)
	}
	delete(s.sas, spi)
	return nil
}

func (s *Store) mutate(spi uint16, f func(sa *sastore.SA) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.sas[spi]
	if !ok {
		return fmt.Errorf("%w: spi %d", sastore.ErrNotFound, spi)
	}
	return f(sa)
}

func (s *Store) Start(spi uint16) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		if !sa.State.CanTransitionTo(suite.SAOperational) {
			return fmt.Errorf("memstore: spi %d cannot start from state %s", spi, sa.State)
		}
		sa.State = suite.SAOperational
		return nil
	})
}

func (s *Store) Stop(spi uint16) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		sa.State = suite.SAKeyed
		return nil
	})
}

func (s *Store) Rekey(spi uint16, ekid, akid uint16) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		sa.EKID = ekid
		sa.AKID = akid
		if sa.State == suite.SANone || sa.State == suite.SAUnkeyed {
			sa.State = suite.SAKeyed
		}
		return nil
	})
}

func (s *Store) Expire(spi uint16) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		sa.State = suite.SAUnkeyed
		return nil
	})
}

func (s *Store) SetARSN(spi uint16, value []byte) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		if len(value) != sa.ARSN.Len() {
			return fmt.Errorf("memstore: ARSN length mismatch for spi %d", spi)
		}
		sa.ARSN.Set(value)
		return nil
	})
}

func (s *Store) SetARSNW(spi uint16, window int) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		if window < 0 {
			return fmt.Errorf("memstore: negative ARSNW")
		}
		sa.ARSNW = window
		return nil
	})
}

func (s *Store) CommitCounters(spi uint16, iv, arsn []byte) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		if iv != nil {
			if len(iv) != sa.IV.Len() {
				return fmt.Errorf("memstore: IV length mismatch for spi %d", spi)
			}
			sa.IV.Set(iv)
		}
		if arsn != nil {
			if len(arsn) != sa.ARSN.Len() {
				return fmt.Errorf("memstore: ARSN length mismatch for spi %d", spi)
			}
			sa.ARSN.Set(arsn)
		}
		return nil
	})
}

func (s *Store) Status(spi uint16) (sastore.SA, error) {
	return s.GetBySPI(spi)
}

// NewCounter is a convenience constructor SA-seeding code can use to
// build a zeroed IV or ARSN counter of a given length.
func NewCounter(n int) counter.Counter { return counter.New(n) }
