// SPDX-License-Identifier: Apache-2.0

package tc

import (
	"context"

	"github.com/spacedatalink/sdls-core/internal/frame"
	"github.com/spacedatalink/sdls-core/internal/keyring"
	"github.com/spacedatalink/sdls-core/internal/primitive"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/suite"
)

// ApplyRequest is the caller-supplied description of an outbound TC
// frame before security is attached.
type ApplyRequest struct {
	GVCID          sastore.GVCID
	MAPID          uint8
	FrameSeqNum    uint8
	BypassFlag     bool
	ControlCommand bool
	Payload        []byte

	// MaxFrameLen bounds the total produced frame size; exceeding it is
	// TCApplyNoSA's sibling rejection, TC_FRAME_SIZE_OVERFLOW.
	MaxFrameLen int
}

// Apply attaches security (security header, ciphertext/MAC, FECF) to an
// outbound plaintext frame per spec.md §4.4.
func Apply(ctx context.Context, store sastore.Store, keys *keyring.Ring, prim primitive.Provider, cfg Config, req ApplyRequest) ([]byte, Status) {
	sa, err := store.GetByGVCIDMapID(req.GVCID, req.MAPID)
	if err != nil || sa.State != suite.SAOperational {
		return nil, TCApplyNoSA
	}

	var (
		nextIV, nextARSN []byte
	)
	if sa.EST {
		iv := sa.IV
		if !iv.Increment() {
			return nil, CryptoPrimitiveFail
		}
		nextIV = append([]byte(nil), iv.Bytes()...)
	}
	if sa.AST && !sa.ECS.IsAEAD() {
		arsn := sa.ARSN
		if !arsn.Increment() {
			return nil, CryptoPrimitiveFail
		}
		nextARSN = append([]byte(nil), arsn.Bytes()...)
	}

	if sa.EST {
		if _, kerr := keys.RequireActive(sa.EKID); kerr != nil {
			return nil, KeyStateInvalid
		}
	}
	if sa.AST {
		akid := sa.AKID
		if sa.ECS.IsAEAD() {
			akid = sa.EKID
		}
		if _, kerr := keys.RequireActive(akid); kerr != nil {
			return nil, KeyStateInvalid
		}
	}

	ph := frame.PrimaryHeader{
		TFVN:           req.GVCID.TFVN,
		BypassFlag:     req.BypassFlag,
		ControlCommand: req.ControlCommand,
		SCID:           req.GVCID.SCID,
		VCID:           req.GVCID.VCID,
		FrameSeqNum:    req.FrameSeqNum,
	}

	widths := frame.SecurityHeaderWidths{IVLen: sa.IV.Len(), ARSNLen: sa.ARSN.Len(), PadLen: sa.PadFieldLen}
	padBytes := make([]byte, sa.PadFieldLen)

	shIV := make([]byte, sa.IV.Len())
	if nextIV != nil {
		copy(shIV, nextIV)
	}
	shARSN := make([]byte, sa.ARSN.Len())
	if nextARSN != nil {
		copy(shARSN, nextARSN)
	}
	sh := frame.SecurityHeader{SPI: sa.SPI, IV: shIV, ARSN: shARSN, PadLen: padBytes}

	var segByte []byte
	if sa.HasSegHdr {
		b, serr := frame.MarshalSegmentHeader(frame.SegmentHeader{MAPID: req.MAPID})
		if serr != nil {
			return nil, FrameSizeOverflow
		}
		segByte = []byte{b}
	}

	headerLen := frame.PrimaryHeaderLen + len(segByte) + widths.Len()
	trailerLen := sa.STMACFLen
	fecfLen := 0
	if cfg.CreateFECF {
		fecfLen = frame.FECFLen
	}
	total := headerLen + len(req.Payload) + trailerLen + fecfLen
	if req.MaxFrameLen > 0 && total > req.MaxFrameLen {
		return nil, FrameSizeOverflow
	}

	ph.FrameLength = uint16(total - 1)
	phBytes, herr := frame.MarshalPrimaryHeader(ph)
	if herr != nil {
		return nil, FrameSizeOverflow
	}

	out := make([]byte, 0, total)
	out = append(out, phBytes...)
	out = append(out, segByte...)
	shBuf := make([]byte, widths.Len())
	if _, serr := sh.Marshal(widths, shBuf); serr != nil {
		return nil, FrameSizeOverflow
	}
	out = append(out, shBuf...)

	headerEnd := len(out)
	out = append(out, req.Payload...)

	aad := aadFromBitmask(out[:headerEnd], sa.ABM)

	switch {
	case sa.EST && sa.AST:
		ekey, _ := keys.RequireActive(sa.EKID)
		ciphertext, tag, cerr := prim.AEADEncrypt(ctx, ekey, shIV, aad, req.Payload)
		if cerr != nil {
			return nil, CryptoPrimitiveFail
		}
		copy(out[headerEnd:], ciphertext)
		out = append(out, tag[:min(len(tag), sa.STMACFLen)]...)
	case !sa.EST && sa.AST:
		akey, _ := keys.RequireActive(sa.AKID)
		tag, cerr := prim.MACGenerate(ctx, akey, aad, req.Payload)
		if cerr != nil {
			return nil, CryptoPrimitiveFail
		}
		out = append(out, tag[:min(len(tag), sa.STMACFLen)]...)
	case sa.EST && !sa.AST:
		// Reserved/future: encryption without authentication is a
		// documented copy-through limitation (spec.md §4.4 step 6).
	default:
		// copy-through, nothing further to do.
	}

	if fi := cfg.FaultInjection; fi != nil {
		if fi.CorruptSPI && len(out) > 1 {
			out[frame.PrimaryHeaderLen+len(segByte)] ^= 0xFF
		}
		if fi.CorruptIV && len(shIV) > 0 {
			out[frame.PrimaryHeaderLen+len(segByte)+2] ^= 0xFF
		}
		if fi.CorruptMAC && sa.STMACFLen > 0 {
			out[len(out)-1] ^= 0xFF
		}
	}

	if cfg.CreateFECF {
		out = frame.AppendFECF(out)
		if cfg.FaultInjection != nil && cfg.FaultInjection.CorruptFECF {
			out[len(out)-1] ^= 0xFF
		}
	}

	if cerr := store.CommitCounters(sa.SPI, nextIV, nextARSN); cerr != nil {
		return nil, CryptoPrimitiveFail
	}

	return out, Success
}

// aadFromBitmask derives the additional authenticated data by bytewise
// AND of headerBytes with abm, per spec.md §4.4 step 5 / §4.5 step 8.
func aadFromBitmask(headerBytes, abm []byte) []byte {
	n := len(headerBytes)
	if len(abm) < n {
		n = len(abm)
	}
	aad := make([]byte, n)
	for i := 0; i < n; i++ {
		aad[i] = headerBytes[i] & abm[i]
	}
	return aad
}
