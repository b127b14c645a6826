// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/spacedatalink/sdls-core/internal/counter"
	"github.com/spacedatalink/sdls-core/internal/primitive/aesprimitive"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/sastore/gormstore"
	"github.com/spacedatalink/sdls-core/internal/suite"
	"github.com/spacedatalink/sdls-core/internal/tc"
	"github.com/spacedatalink/sdls-core/sdlscore"
)

// ManagedParameterConfig is one managed-parameter config block entry,
// decoded via mapstructure the same way the teacher decodes its FSIM
// service-info operations.
type ManagedParameterConfig struct {
	TFVN           uint8  `mapstructure:"tfvn"`
	SCID           uint16 `mapstructure:"scid"`
	VCID           uint8  `mapstructure:"vcid"`
	HasFECF        bool   `mapstructure:"has_fecf"`
	HasSegmentHdrs bool   `mapstructure:"has_segment_hdrs"`
}

// KeySeedConfig provisions one master key at startup. ValueHex is
// hex-encoded since config files are text.
type KeySeedConfig struct {
	ID       uint16 `mapstructure:"id"`
	ValueHex string `mapstructure:"value_hex"`
}

// MapEntryConfig is one row of an SA's (GVCID, MAPID) allow table.
type MapEntryConfig struct {
	TFVN  uint8  `mapstructure:"tfvn"`
	SCID  uint16 `mapstructure:"scid"`
	VCID  uint8  `mapstructure:"vcid"`
	MAPID uint8  `mapstructure:"mapid"`
	Allow bool   `mapstructure:"allow"`
}

// SASeedConfig provisions one SA at startup.
type SASeedConfig struct {
	SPI         uint16           `mapstructure:"spi"`
	EKID        uint16           `mapstructure:"ekid"`
	AKID        uint16           `mapstructure:"akid"`
	EST         bool             `mapstructure:"est"`
	AST         bool             `mapstructure:"ast"`
	IVLen       int              `mapstructure:"iv_len"`
	ARSNLen     int              `mapstructure:"arsn_len"`
	ARSNW       int              `mapstructure:"arsnw"`
	STMACFLen   int              `mapstructure:"stmacf_len"`
	PadFieldLen int              `mapstructure:"pad_field_len"`
	HasFECF     bool             `mapstructure:"has_fecf"`
	HasSegHdr   bool             `mapstructure:"has_segment_hdrs"`
	MapTable    []MapEntryConfig `mapstructure:"map_table"`
}

// MissionConfig is the top-level mission config file shape, the
// sdls-core analogue of the teacher's FDOServerConfig.
type MissionConfig struct {
	SCID             uint16                   `mapstructure:"scid"`
	CreateFECF       bool                     `mapstructure:"create_fecf"`
	CheckFECF        bool                     `mapstructure:"check_fecf"`
	IgnoreSAState    bool                     `mapstructure:"ignore_sa_state"`
	IgnoreAntiReplay bool                     `mapstructure:"ignore_anti_replay"`
	KeyThreshold     uint16                   `mapstructure:"key_threshold"`
	LogMirrorPath    string                   `mapstructure:"log_mirror_path"`
	DBType           string                   `mapstructure:"db_type"`
	DBDSN            string                   `mapstructure:"db_dsn"`
	ManagedParams    []ManagedParameterConfig `mapstructure:"managed_parameters"`
	MasterKeys       []KeySeedConfig          `mapstructure:"master_keys"`
	SAs              []SASeedConfig           `mapstructure:"security_associations"`
}

func decodeMissionConfig() (MissionConfig, error) {
	var mc MissionConfig
	if err := mapstructure.Decode(viper.AllSettings(), &mc); err != nil {
		return MissionConfig{}, fmt.Errorf("sdls-core: decode mission config: %w", err)
	}
	return mc, nil
}

// buildEngine loads the mission config and constructs a ready-to-use
// Engine, seeding the key ring and SA store from it. With db_type unset
// the CLI uses the in-memory reference store; setting db_type to
// "sqlite" or "postgres" (plus db_dsn) backs the SA database with
// gormstore instead, so the store survives a process restart.
func buildEngine() (*sdlscore.Engine, error) {
	if err := loadViperConfig(); err != nil {
		return nil, fmt.Errorf("sdls-core: load config: %w", err)
	}
	mc, err := decodeMissionConfig()
	if err != nil {
		return nil, err
	}

	opts := sdlscore.InitOptions{
		KeyThreshold: mc.KeyThreshold,
		Prim:         aesprimitive.Provider{},
	}
	if mc.DBType != "" {
		db, derr := gormstore.Open(mc.DBType, mc.DBDSN)
		if derr != nil {
			return nil, fmt.Errorf("sdls-core: open db: %w", derr)
		}
		store, derr := gormstore.New(db)
		if derr != nil {
			return nil, fmt.Errorf("sdls-core: init db schema: %w", derr)
		}
		opts.Store = store
	}
	if mc.LogMirrorPath != "" {
		opts.LogMirror = &lumberjack.Logger{
			Filename:   mc.LogMirrorPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	eng, err := sdlscore.Init(opts)
	if err != nil {
		return nil, err
	}

	eng.ConfigCryptoLib(tc.Config{
		SCID:             mc.SCID,
		CreateFECF:       mc.CreateFECF,
		CheckFECF:        mc.CheckFECF,
		IgnoreSAState:    mc.IgnoreSAState,
		IgnoreAntiReplay: mc.IgnoreAntiReplay,
	})
	for _, mp := range mc.ManagedParams {
		eng.ConfigAddGvcidManagedParameter(tc.ManagedParameter{
			TFVN: mp.TFVN, SCID: mp.SCID, VCID: mp.VCID,
			HasFECF: mp.HasFECF, HasSegmentHdrs: mp.HasSegmentHdrs,
		})
	}

	for _, k := range mc.MasterKeys {
		val, derr := hex.DecodeString(k.ValueHex)
		if derr != nil {
			return nil, fmt.Errorf("sdls-core: master key %d: %w", k.ID, derr)
		}
		eng.Keys().Provision(k.ID, val, suite.KeyActive)
	}

	for _, s := range mc.SAs {
		if err := eng.Store().Create(buildSA(s)); err != nil {
			return nil, fmt.Errorf("sdls-core: create SA %d: %w", s.SPI, err)
		}
	}

	return eng, nil
}

func buildSA(s SASeedConfig) sastore.SA {
	mapTable := make([]sastore.MapEntry, 0, len(s.MapTable))
	for _, m := range s.MapTable {
		mapTable = append(mapTable, sastore.MapEntry{
			GVCID: sastore.GVCID{TFVN: m.TFVN, SCID: m.SCID, VCID: m.VCID},
			MAPID: m.MAPID,
			Allow: m.Allow,
		})
	}
	return sastore.SA{
		SPI:         s.SPI,
		State:       suite.SAKeyed,
		EKID:        s.EKID,
		AKID:        s.AKID,
		EST:         s.EST,
		AST:         s.AST,
		IV:          counter.New(s.IVLen),
		ARSN:        counter.New(s.ARSNLen),
		ARSNW:       s.ARSNW,
		STMACFLen:   s.STMACFLen,
		PadFieldLen: s.PadFieldLen,
		HasFECF:     s.HasFECF,
		HasSegHdr:   s.HasSegHdr,
		MapTable:    mapTable,
	}
}
