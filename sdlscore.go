// SPDX-License-Identifier: Apache-2.0

// Package sdlscore is the public entry point for the CCSDS Space Data
// Link Security engine: frame-level Apply/Process for TC, the SDLS
// Extended Procedure dispatcher, and the SA/Key Ring collaborators
// those two pipelines share. Everything under internal/ implements the
// mechanics; this package wires them into the small operation set
// spec.md §6 names.
package sdlscore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spacedatalink/sdls-core/internal/keyring"
	"github.com/spacedatalink/sdls-core/internal/primitive"
	"github.com/spacedatalink/sdls-core/internal/report"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/sastore/memstore"
	"github.com/spacedatalink/sdls-core/internal/sdls"
	"github.com/spacedatalink/sdls-core/internal/tc"
)

// ErrNotImplemented is returned by the TM/AOS stub entry points. This
// library implements TC only (spec.md §1 Non-goals); these stubs exist
// so a caller built against the full CCSDS service mix gets a clear
// typed refusal instead of a silent no-op.
var ErrNotImplemented = errors.New("sdlscore: service not implemented")

// Status re-exports the TC pipeline's typed status so callers never
// need to import internal/tc directly.
type Status = tc.Status

const (
	Success              = tc.Success
	TCApplyNoSA          = tc.TCApplyNoSA
	SPIInvalid           = tc.SPIInvalid
	SAStateInvalid       = tc.SAStateInvalid
	IVOutsideWindow      = tc.IVOutsideWindow
	IVReplay             = tc.IVReplay
	ARSNOutsideWindow    = tc.ARSNOutsideWindow
	ARSNReplay           = tc.ARSNReplay
	MACValidationError   = tc.MACValidationError
	FECFInvalid          = tc.FECFInvalid
	FrameSizeOverflow    = tc.FrameSizeOverflow
	KeyStateInvalid      = tc.KeyStateInvalid
	OTARMKIDInvalid      = tc.OTARMKIDInvalid
	CryptoPrimitiveFail  = tc.CryptoPrimitiveFail
	MapIDDisallowed      = tc.MapIDDisallowed
	SCIDMismatch         = tc.SCIDMismatch
	TFVNMismatch         = tc.TFVNMismatch
)

// GVCID, ManagedParameter and ApplyRequest are re-exported verbatim so
// callers build requests against this package alone.
type (
	GVCID            = sastore.GVCID
	ManagedParameter = tc.ManagedParameter
	ApplyRequest     = tc.ApplyRequest
	ProcessResult    = tc.ProcessResult
)

// Engine is the library's top-level handle: one per mission context,
// bundling the SA store, key ring, primitive provider, and the
// observability state the Process pipeline and the SDLS dispatcher
// share. Construct one with Init.
type Engine struct {
	mu sync.Mutex

	store sastore.Store
	keys  *keyring.Ring
	prim  primitive.Provider
	log   *report.Log
	fsr   *report.FSR
	cfg   tc.Config

	allowTestFaultInjection bool
}

// InitOptions configures an Engine at construction time.
type InitOptions struct {
	// Store is the SA database. If nil, Init uses the in-memory
	// reference implementation (internal/sastore/memstore).
	Store sastore.Store

	// KeyThreshold is the smallest session KeyID; every ID below it is
	// an immutable master key (spec.md §3).
	KeyThreshold uint16

	// Prim is the cryptographic primitive provider. Callers almost
	// always supply their own FIPS-validated implementation; this
	// library's internal/primitive/aesprimitive is reference-only.
	Prim primitive.Provider

	// LogCapacity sizes the bounded event log; 0 uses report.DefaultCapacity.
	LogCapacity int

	// LogMirror, if set, receives every event log entry as it is
	// appended (e.g. a lumberjack.Logger for a rotating on-disk mirror
	// of the bounded in-memory log).
	LogMirror io.Writer

	// AllowTestFaultInjection gates the SDLS User/Test service group
	// (spec.md §4.8). Leave false in any production configuration.
	AllowTestFaultInjection bool
}

// Init constructs a new Engine. It is the library's sole constructor;
// spec.md §6's Crypto_Init names this responsibility.
func Init(opts InitOptions) (*Engine, error) {
	if opts.Prim == nil {
		return nil, errors.New("sdlscore: InitOptions.Prim is required")
	}
	store := opts.Store
	if store == nil {
		store = memstore.New()
	}
	log := report.New(opts.LogCapacity)
	if opts.LogMirror != nil {
		mirror := opts.LogMirror
		log.SetMirror(func(e report.Entry) {
			fmt.Fprintf(mirror, "%s value=%s\n", e.Type, hex.EncodeToString(e.Value[:e.Len]))
		})
	}
	return &Engine{
		store:                   store,
		keys:                    keyring.New(opts.KeyThreshold),
		prim:                    opts.Prim,
		log:                     log,
		fsr:                     &report.FSR{},
		allowTestFaultInjection: opts.AllowTestFaultInjection,
	}, nil
}

// Shutdown releases any resources Init acquired. The in-memory
// reference store and key ring hold none; a persistent gormstore-backed
// Engine's Store is expected to be closed by its owner, since this
// package never owns the *gorm.DB it was handed.
func (e *Engine) Shutdown() error { return nil }

// ConfigCryptoLib applies global TC pipeline policy (spec.md §6
// Crypto_Config_CryptoLib): SCID, FECF create/check toggles, and the
// test-only replay/SA-state bypass switches.
func (e *Engine) ConfigCryptoLib(cfg tc.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg.FaultInjection = e.cfg.FaultInjection // preserve any pending one-shot fault
	e.cfg = cfg
}

// ConfigAddGvcidManagedParameter registers one (TFVN, SCID, VCID) ->
// {FECF, segment headers} declaration (spec.md §6
// Crypto_Config_Add_Gvcid_Managed_Parameter).
func (e *Engine) ConfigAddGvcidManagedParameter(mp ManagedParameter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.ManagedParams = append(e.cfg.ManagedParams, mp)
}

// Keys exposes the engine's key ring for out-of-band master-key
// provisioning; OTAR and session-key lifecycle management go through
// Dispatch instead.
func (e *Engine) Keys() *keyring.Ring { return e.keys }

// Store exposes the engine's SA database for out-of-band SA
// provisioning; runtime SA-Management goes through Dispatch instead.
func (e *Engine) Store() sastore.Store { return e.store }

// Log exposes the engine's bounded event log, e.g. for a mission's
// housekeeping telemetry generator to read alongside the MC Dump-Log
// procedure.
func (e *Engine) Log() *report.Log { return e.log }

// FSR returns a snapshot of the engine's Frame Security Report.
func (e *Engine) FSR() report.FSR { return e.fsr.Snapshot() }

// TCApplySecurity attaches security to an outbound TC frame (spec.md
// §4.4, Crypto_TC_ApplySecurity).
func (e *Engine) TCApplySecurity(ctx context.Context, req ApplyRequest) ([]byte, Status) {
	e.mu.Lock()
	cfg := e.cfg
	e.cfg.FaultInjection = nil // a pending fault applies to this call only
	e.mu.Unlock()
	return tc.Apply(ctx, e.store, e.keys, e.prim, cfg, req)
}

// TCProcessSecurity verifies and decrypts an inbound TC frame (spec.md
// §4.5, Crypto_TC_ProcessSecurity).
func (e *Engine) TCProcessSecurity(ctx context.Context, frameBytes []byte) (ProcessResult, Status) {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()
	return tc.Process(ctx, e.store, e.keys, e.prim, e.log, e.fsr, cfg, frameBytes)
}

// DispatchSDLS routes one parsed in-band SDLS Extended Procedure command
// (spec.md §4.7) through the OTAR/key-verification/SA-management/MC/
// user-test handlers, threading the engine's own store, keys, log, FSR
// and config. Cfg is passed as a live pointer rather than a snapshot so
// a User/Test fault-injection command takes effect on the engine's very
// next Apply call.
func (e *Engine) DispatchSDLS(ctx context.Context, cmd sdls.Command) sdls.Reply {
	e.mu.Lock()
	cfgPtr := &e.cfg
	deps := sdls.Deps{
		Keys:                    e.keys,
		Prim:                    e.prim,
		Store:                   e.store,
		Log:                     e.log,
		FSR:                     e.fsr,
		Cfg:                     cfgPtr,
		AllowTestFaultInjection: e.allowTestFaultInjection,
	}
	e.mu.Unlock()
	return sdls.Dispatch(ctx, deps, cmd)
}

// ParseSDLSCommand strips CCSDS/PUS/TLV framing from a processed TC
// payload and returns the command ready for DispatchSDLS.
func ParseSDLSCommand(payload []byte, hasPUSHdr bool) (sdls.Command, error) {
	return sdls.ParseCommand(payload, hasPUSHdr)
}

// TMApplySecurity and TMProcessSecurity, and their AOS counterparts, are
// not implemented: spec.md scopes this library to TC only (§1
// Non-goals). They exist so a caller coded against the full CCSDS
// service mix fails loudly instead of silently skipping security.
func (e *Engine) TMApplySecurity(context.Context, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}

func (e *Engine) TMProcessSecurity(context.Context, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}

func (e *Engine) AOSApplySecurity(context.Context, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}

func (e *Engine) AOSProcessSecurity(context.Context, []byte) ([]byte, error) {
	return nil, ErrNotImplemented
}
