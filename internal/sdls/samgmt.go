// SPDX-License-Identifier: Apache-2.0

package sdls

import "github.com/spacedatalink/sdls-core/internal/sastore"

// SAManager is a thin adapter exposing sastore.Store's mutators as the
// SA-Management service group's procedures (spec.md §4.7), translating
// store errors into the typed Status this package's callers expect.
type SAManager struct {
	Store sastore.Store
}

func (m SAManager) Create(sa sastore.SA) Status {
	if err := m.Store.Create(sa); err != nil {
		return SAOperationInvalid
	}
	return Success
}

func (m SAManager) Delete(spi uint16) Status {
	if err := m.Store.Delete(spi); err != nil {
		return SAUnknown
	}
	return Success
}

func (m SAManager) Start(spi uint16) Status {
	if err := m.Store.Start(spi); err != nil {
		return SAOperationInvalid
	}
	return Success
}

func (m SAManager) Stop(spi uint16) Status {
	if err := m.Store.Stop(spi); err != nil {
		return SAOperationInvalid
	}
	return Success
}

func (m SAManager) Rekey(spi uint16, ekid, akid uint16) Status {
	if err := m.Store.Rekey(spi, ekid, akid); err != nil {
		return SAOperationInvalid
	}
	return Success
}

func (m SAManager) Expire(spi uint16) Status {
	if err := m.Store.Expire(spi); err != nil {
		return SAOperationInvalid
	}
	return Success
}

func (m SAManager) SetARSN(spi uint16, value []byte) Status {
	if err := m.Store.SetARSN(spi, value); err != nil {
		return SAOperationInvalid
	}
	return Success
}

func (m SAManager) SetARSNW(spi uint16, window int) Status {
	if err := m.Store.SetARSNW(spi, window); err != nil {
		return SAOperationInvalid
	}
	return Success
}

func (m SAManager) ReadARSN(spi uint16) (sastore.SA, Status) {
	sa, err := m.Store.Status(spi)
	if err != nil {
		return sastore.SA{}, SAUnknown
	}
	return sa, Success
}
