// SPDX-License-Identifier: Apache-2.0

// Package sastore declares the Security Association database contract
// consumed by the TC Apply/Process pipeline and the SDLS SA-Management
// procedures. It does not itself mandate a storage engine; spec.md §6
// allows any on-disk store satisfying this contract alongside the
// in-memory reference in package memstore.
package sastore

import (
	"errors"

	"github.com/spacedatalink/sdls-core/internal/counter"
	"github.com/spacedatalink/sdls-core/internal/suite"
)

// ErrNotFound indicates no SA is registered under the requested
// selector (SPI, or GVCID+MAPID).
var ErrNotFound = errors.New("sastore: not found")

// GVCID identifies a Global Virtual Channel: transfer frame version,
// spacecraft id, and virtual channel id.
type GVCID struct {
	TFVN uint8
	SCID uint16
	VCID uint8
}

// MapEntry is one row of an SA's (GVCID, MAPID) -> allowed table.
type MapEntry struct {
	GVCID GVCID
	MAPID uint8
	Allow bool
}

// Stats are monitoring-only per-SA counters, not part of spec.md's core
// data model but recovered from original_source/fsw/src/crypto.c, which
// tracks per-SA processed/rejected frame counts purely for telemetry.
// Apply and Process do not increment them; stores carry and persist
// whatever values the SA record holds.
type Stats struct {
	FramesApplied   uint64
	FramesProcessed uint64
	FramesRejected  uint64
}

// SA is a Security Association record, per spec.md §3.
type SA struct {
	SPI   uint16
	State suite.SAState

	EKID uint16
	AKID uint16
	EST  bool
	AST  bool

	IV       counter.Counter
	ARSN     counter.Counter
	ARSNW    int
	ECS      suite.EncryptionCipherSuite
	ACS      suite.AuthenticationCipherSuite
	ABM      []byte
	MapTable []MapEntry

	STMACFLen   int
	PadFieldLen int // width in bytes of SHPLF; 0 if this SA carries no pad field
	HasFECF     bool
	HasSegHdr   bool

	Stats Stats
}

// AllowsMapID reports whether this SA's mapping table admits the given
// GVCID/MAPID combination (spec.md §4.5 step 4).
func (sa SA) AllowsMapID(g GVCID, mapID uint8) bool {
	for _, e := range sa.MapTable {
		if e.GVCID == g && e.MAPID == mapID {
			return e.Allow
		}
	}
	return false
}

// Store is the SA database contract. Implementations must serialize all
// mutations to a single SA (spec.md §4.2, §5). Apply and Process read an
// SA, validate, and then write its counters with CommitCounters in a
// separate call; the store does not hold the SA between those calls.
type Store interface {
	GetBySPI(spi uint16) (SA, error)
	GetByGVCIDMapID(g GVCID, mapID uint8) (SA, error)

	Create(sa SA) error
	Delete(spi uint16) error

	Start(spi uint16) error
	Stop(spi uint16) error
	Rekey(spi uint16, ekid, akid uint16) error
	Expire(spi uint16) error

	SetARSN(spi uint16, value []byte) error
	SetARSNW(spi uint16, window int) error

	// CommitCounters atomically advances the IV/ARSN stored for spi.
	// Called exactly once on the success path of Apply or Process.
	CommitCounters(spi uint16, iv, arsn []byte) error

	Status(spi uint16) (SA, error)
}
