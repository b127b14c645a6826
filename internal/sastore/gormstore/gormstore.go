// SPDX-License-Identifier: Apache-2.0

// Package gormstore is a gorm-backed sastore.Store: the persistent
// alternative to memstore for missions that need the SA database to
// survive a process restart (spec.md §6, "persistent SA store beyond
// the contract + reference implementations" is explicitly allowed, not
// required). It supports both the sqlite and postgres drivers the
// teacher project depends on.
package gormstore

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/spacedatalink/sdls-core/internal/counter"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/suite"
)

// saRow is the gorm model backing one Security Association row. The
// mapping table and ABM are stored as JSON blobs rather than normalized
// into their own tables: both are small, always read/written as a unit
// with the SA, and never queried independently.
type saRow struct {
	SPI   uint16 `gorm:"primaryKey"`
	State int

	EKID uint16
	AKID uint16
	EST  bool
	AST  bool

	IV      []byte
	ARSN    []byte
	ARSNW   int
	ECS     int
	ACS     int
	ABM     []byte
	MapJSON []byte `gorm:"column:map_json"`

	STMACFLen   int
	PadFieldLen int
	HasFECF     bool
	HasSegHdr   bool

	FramesApplied   uint64
	FramesProcessed uint64
	FramesRejected  uint64
}

func (saRow) TableName() string { return "security_associations" }

// Store is a *gorm.DB-backed sastore.Store. Callers own the *gorm.DB
// (its dialect and connection pool); New only auto-migrates the SA
// table.
type Store struct {
	db *gorm.DB
}

var _ sastore.Store = (*Store)(nil)

// New wraps db, running AutoMigrate for the SA table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&saRow{}); err != nil {
		return nil, errors.Wrap(err, "gormstore: auto-migrate failed")
	}
	return &Store{db: db}, nil
}

func toRow(sa sastore.SA) (saRow, error) {
	mapJSON, err := json.Marshal(sa.MapTable)
	if err != nil {
		return saRow{}, errors.Wrap(err, "gormstore: marshal map table")
	}
	return saRow{
		SPI: sa.SPI, State: int(sa.State),
		EKID: sa.EKID, AKID: sa.AKID, EST: sa.EST, AST: sa.AST,
		IV: sa.IV.Bytes(), ARSN: sa.ARSN.Bytes(), ARSNW: sa.ARSNW,
		ECS: int(sa.ECS), ACS: int(sa.ACS), ABM: sa.ABM, MapJSON: mapJSON,
		STMACFLen: sa.STMACFLen, PadFieldLen: sa.PadFieldLen,
		HasFECF: sa.HasFECF, HasSegHdr: sa.HasSegHdr,
		FramesApplied: sa.Stats.FramesApplied, FramesProcessed: sa.Stats.FramesProcessed, FramesRejected: sa.Stats.FramesRejected,
	}, nil
}

func fromRow(r saRow) (sastore.SA, error) {
	var mapTable []sastore.MapEntry
	if len(r.MapJSON) > 0 {
		if err := json.Unmarshal(r.MapJSON, &mapTable); err != nil {
			return sastore.SA{}, errors.Wrap(err, "gormstore: unmarshal map table")
		}
	}
	return sastore.SA{
		SPI: r.SPI, State: suite.SAState(r.State),
		EKID: r.EKID, AKID: r.AKID, EST: r.EST, AST: r.AST,
		IV: counter.FromBytes(r.IV), ARSN: counter.FromBytes(r.ARSN), ARSNW: r.ARSNW,
		ECS: suite.EncryptionCipherSuite(r.ECS), ACS: suite.AuthenticationCipherSuite(r.ACS),
		ABM: r.ABM, MapTable: mapTable,
		STMACFLen: r.STMACFLen, PadFieldLen: r.PadFieldLen,
		HasFECF: r.HasFECF, HasSegHdr: r.HasSegHdr,
		Stats: sastore.Stats{FramesApplied: r.FramesApplied, FramesProcessed: r.FramesProcessed, FramesRejected: r.FramesRejected},
	}, nil
}

func (s *Store) GetBySPI(spi uint16) (sastore.SA, error) {
	var row saRow
	if err := s.db.First(&row, "spi = ?", spi).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sastore.SA{}, errors.Wrapf(sastore.ErrNotFound, "spi %d", spi)
		}
		return sastore.SA{}, errors.Wrap(err, "gormstore: get by spi")
	}
	return fromRow(row)
}

func (s *Store) GetByGVCIDMapID(g sastore.GVCID, mapID uint8) (sastore.SA, error) {
	var rows []saRow
	if err := s.db.Where("state = ?", int(suite.SAOperational)).Find(&rows).Error; err != nil {
		return sastore.SA{}, errors.Wrap(err, "gormstore: scan operational SAs")
	}
	for _, row := range rows {
		sa, err := fromRow(row)
		if err != nil {
			return sastore.SA{}, err
		}
		if sa.AllowsMapID(g, mapID) {
			return sa, nil
		}
	}
	return sastore.SA{}, errors.Wrapf(sastore.ErrNotFound, "gvcid %+v mapid %d", g, mapID)
}

func (s *Store) Create(sa sastore.SA) error {
	row, err := toRow(sa)
	if err != nil {
		return err
	}
	if err := s.db.Create(&row).Error; err != nil {
		return errors.Wrap(err, "gormstore: create")
	}
	return nil
}

func (s *Store) Delete(spi uint16) error {
	res := s.db.Delete(&saRow{}, "spi = ?", spi)
	if res.Error != nil {
		return errors.Wrap(res.Error, "gormstore: delete")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(sastore.ErrNotFound, "spi %d", spi)
	}
	return nil
}

func (s *Store) mutate(spi uint16, f func(*sastore.SA) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row saRow
		if err := tx.First(&row, "spi = ?", spi).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(sastore.ErrNotFound, "spi %d", spi)
			}
			return errors.Wrap(err, "gormstore: lock sa")
		}
		sa, err := fromRow(row)
		if err != nil {
			return err
		}
		if err := f(&sa); err != nil {
			return err
		}
		newRow, err := toRow(sa)
		if err != nil {
			return err
		}
		return tx.Save(&newRow).Error
	})
}

func (s *Store) Start(spi uint16) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		if !sa.State.CanTransitionTo(suite.SAOperational) {
			return errors.Errorf("gormstore: spi %d cannot start from state %s", spi, sa.State)
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
			return errors.Errorf("gormstore: ARSN length mismatch for spi %d", spi)
		}
		sa.ARSN.Set(value)
		return nil
	})
}

func (s *Store) SetARSNW(spi uint16, window int) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		if window < 0 {
			return errors.New("gormstore: negative ARSNW")
		}
		sa.ARSNW = window
		return nil
	})
}

func (s *Store) CommitCounters(spi uint16, iv, arsn []byte) error {
	return s.mutate(spi, func(sa *sastore.SA) error {
		if iv != nil {
			if len(iv) != sa.IV.Len() {
				return errors.Errorf("gormstore: IV length mismatch for spi %d", spi)
			}
			sa.IV.Set(iv)
		}
		if arsn != nil {
			if len(arsn) != sa.ARSN.Len() {
				return errors.Errorf("gormstore: ARSN length mismatch for spi %d", spi)
			}
			sa.ARSN.Set(arsn)
		}
		return nil
	})
}

func (s *Store) Status(spi uint16) (sastore.SA, error) {
	return s.GetBySPI(spi)
}
