// SPDX-License-Identifier: Apache-2.0

package tc

import (
	"context"

	"github.com/spacedatalink/sdls-core/internal/counter"
	"github.com/spacedatalink/sdls-core/internal/frame"
	"github.com/spacedatalink/sdls-core/internal/keyring"
	"github.com/spacedatalink/sdls-core/internal/primitive"
	"github.com/spacedatalink/sdls-core/internal/report"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/suite"
)

// ProcessResult carries the outcome of a Process call: the plaintext on
// success, the terminal state machine position reached, and the status.
type ProcessResult struct {
	Plaintext []byte
	State     ProcessState
	SA        sastore.SA
}

// reject is a small helper bundling the common "log + FSR bit + return"
// pattern spec.md §7 requires for every rejection that implicates an
// incoming frame.
func reject(log *report.Log, fsr *report.FSR, eid report.EventType, eventValue [4]byte, update func(*report.FSR), state ProcessState, status Status) (ProcessResult, Status) {
	if log != nil {
		log.Append(report.Entry{Type: eid, Value: eventValue, Len: 4})
	}
	if fsr != nil && update != nil {
		fsr.Set(update)
	}
	return ProcessResult{State: state}, status
}

// Process verifies and decrypts an inbound TC frame per spec.md §4.5.
func Process(ctx context.Context, store sastore.Store, keys *keyring.Ring, prim primitive.Provider, log *report.Log, fsr *report.FSR, cfg Config, frameBytes []byte) (ProcessResult, Status) {
	ph, err := frame.UnmarshalPrimaryHeader(frameBytes)
	if err != nil {
		return ProcessResult{State: StateParsing}, FrameSizeOverflow
	}
	if ph.SCID != cfg.SCID {
		return ProcessResult{State: StateParsing}, SCIDMismatch
	}
	mp, haveMP := cfg.LookupManagedParam(ph.TFVN, ph.SCID, ph.VCID)
	if haveMP && mp.TFVN != ph.TFVN {
		return ProcessResult{State: StateParsing}, TFVNMismatch
	}

	off := frame.PrimaryHeaderLen
	var mapID uint8
	if haveMP && mp.HasSegmentHdrs {
		if len(frameBytes) <= off {
			return ProcessResult{State: StateParsing}, FrameSizeOverflow
		}
		seg := frame.UnmarshalSegmentHeader(frameBytes[off])
		mapID = seg.MAPID
		off += frame.SegmentHeaderLen
	}

	if len(frameBytes) < off+2 {
		return ProcessResult{State: StateParsing}, FrameSizeOverflow
	}
	spi := uint16(frameBytes[off])<<8 | uint16(frameBytes[off+1])

	// SPI invariants per spec.md §4.5 step 2: 0x0000 and 0xFFFF are
	// reserved, and SPI must not exceed the configured SA table size.
	// The store is the source of truth for table size via a lookup
	// miss, so only the reserved values are checked directly here.
	if spi == 0x0000 || spi == 0xFFFF {
		return reject(log, fsr, report.SPIInvalidEID, eidValue(spi), func(f *report.FSR) {
			f.InvalidSPI = true
		}, StateParsing, SPIInvalid)
	}

	sa, serr := store.GetBySPI(spi)
	if serr != nil {
		return reject(log, fsr, report.SPIInvalidEID, eidValue(spi), func(f *report.FSR) {
			f.InvalidSPI = true
		}, StateParsing, SPIInvalid)
	}

	if sa.State != suite.SAOperational && !cfg.IgnoreSAState {
		return ProcessResult{State: StateParsing, SA: sa}, SAStateInvalid
	}

	g := sastore.GVCID{TFVN: ph.TFVN, SCID: ph.SCID, VCID: ph.VCID}
	if !sa.AllowsMapID(g, mapID) {
		return ProcessResult{State: StateSAResolved, SA: sa}, MapIDDisallowed
	}

	if sa.HasFECF && cfg.CheckFECF {
		if !frame.CheckFECF(frameBytes) {
			return reject(log, fsr, report.FECFErrEID, [4]byte{}, nil, StateSAResolved, FECFInvalid)
		}
	}

	widths := frame.SecurityHeaderWidths{IVLen: sa.IV.Len(), ARSNLen: sa.ARSN.Len(), PadLen: sa.PadFieldLen}
	sh, uerr := frame.UnmarshalSecurityHeader(frameBytes[off:], widths)
	if uerr != nil {
		return ProcessResult{State: StateSAResolved, SA: sa}, FrameSizeOverflow
	}

	trailerLen := sa.STMACFLen
	fecfLen := 0
	if sa.HasFECF && cfg.CheckFECF {
		fecfLen = frame.FECFLen
	}
	payloadStart := off + widths.Len()
	payloadEnd := len(frameBytes) - trailerLen - fecfLen
	if payloadEnd < payloadStart {
		return ProcessResult{State: StateSAResolved, SA: sa}, FrameSizeOverflow
	}
	ciphertext := frameBytes[payloadStart:payloadEnd]
	tag := frameBytes[payloadEnd : payloadEnd+trailerLen]

	if !cfg.IgnoreAntiReplay {
		if sa.EST {
			actual := counter.FromBytes(sh.IV)
			if status := checkReplay(actual, sa.IV, sa.ARSNW, log, fsr, report.IVWindowErrEID, report.IVReplayErrEID, IVOutsideWindow, IVReplay); status != Success {
				return ProcessResult{State: StateSAResolved, SA: sa}, status
			}
		} else if sa.AST {
			actual := counter.FromBytes(sh.ARSN)
			if status := checkReplay(actual, sa.ARSN, sa.ARSNW, log, fsr, report.IVWindowErrEID, report.IVReplayErrEID, ARSNOutsideWindow, ARSNReplay); status != Success {
				return ProcessResult{State: StateSAResolved, SA: sa}, status
			}
		}
	}

	// The AAD spans the same header region Apply authenticated: primary
	// header + optional segment header + security header, i.e.
	// everything before the payload.
	aad := aadFromBitmask(frameBytes[:payloadStart], sa.ABM)

	var plaintext []byte
	switch {
	case sa.EST && sa.AST:
		ekey, kerr := keys.RequireActive(sa.EKID)
		if kerr != nil {
			return ProcessResult{State: StateReplayOK, SA: sa}, KeyStateInvalid
		}
		pt, cerr := prim.AEADDecryptAndVerify(ctx, ekey, sh.IV, aad, ciphertext, tag)
		if cerr != nil {
			return reject(log, fsr, report.MACValidationErrEID, [4]byte{}, func(f *report.FSR) {
				f.BadMAC = true
			}, StateReplayOK, MACValidationError)
		}
		plaintext = pt
	case !sa.EST && sa.AST:
		akey, kerr := keys.RequireActive(sa.AKID)
		if kerr != nil {
			return ProcessResult{State: StateReplayOK, SA: sa}, KeyStateInvalid
		}
		ok, cerr := prim.MACVerify(ctx, akey, aad, ciphertext, tag)
		if cerr != nil || !ok {
			return reject(log, fsr, report.MACValidationErrEID, [4]byte{}, func(f *report.FSR) {
				f.BadMAC = true
			}, StateReplayOK, MACValidationError)
		}
		plaintext = ciphertext
	default:
		plaintext = ciphertext
	}

	var commitIV, commitARSN []byte
	if sa.EST {
		commitIV = append([]byte(nil), sh.IV...)
	}
	if sa.AST {
		commitARSN = append([]byte(nil), sh.ARSN...)
	}
	if cerr := store.CommitCounters(sa.SPI, commitIV, commitARSN); cerr != nil {
		return ProcessResult{State: StateCryptoOK, SA: sa}, CryptoPrimitiveFail
	}

	fresh, _ := store.GetBySPI(sa.SPI)
	return ProcessResult{Plaintext: plaintext, State: StateCommitted, SA: fresh}, Success
}

// checkReplay applies spec.md §4.3's two-step acceptance rule. The
// accepted candidate set is {last+1, ..., last+window} (spec.md §9
// testable property 5: last+W is accepted, last+W+1 is rejected
// OUTSIDE_WINDOW). A received counter equal to last itself falls below
// this set and is reported as an out-of-window rejection rather than a
// replay, matching spec.md §8 scenario A.
func checkReplay(actual, last counter.Counter, window int, log *report.Log, fsr *report.FSR, windowEID, replayEID report.EventType, windowStatus, replayStatus Status) Status {
	expected := last
	expected.Increment()
	if !counter.WithinWindow(actual, expected, window) {
		if log != nil {
			log.Append(report.Entry{Type: windowEID, Len: 4})
		}
		if fsr != nil {
			fsr.Set(func(f *report.FSR) {
				f.Alarm = true
				f.BadSN = true
			})
		}
		return windowStatus
	}
	if counter.LessOrEqual(actual, last) {
		if log != nil {
			log.Append(report.Entry{Type: replayEID, Len: 4})
		}
		if fsr != nil {
			fsr.Set(func(f *report.FSR) {
				f.Alarm = true
				f.BadSN = true
			})
		}
		return replayStatus
	}
	return Success
}

func eidValue(spi uint16) [4]byte {
	return [4]byte{0, 0, byte(spi >> 8), byte(spi)}
}
