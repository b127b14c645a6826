// SPDX-License-Identifier: Apache-2.0

package sdls

import (
	"context"
	"encoding/binary"

	"github.com/spacedatalink/sdls-core/internal/keyring"
	"github.com/spacedatalink/sdls-core/internal/primitive"
	"github.com/spacedatalink/sdls-core/internal/report"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/tc"
)

// Deps bundles the shared engine state every Extended Procedure needs.
// A single Deps value is normally constructed once per mission context
// and reused across every Dispatch call.
type Deps struct {
	Keys                    *keyring.Ring
	Prim                    primitive.Provider
	Store                   sastore.Store
	Log                     *report.Log
	FSR                     *report.FSR
	Cfg                     *tc.Config
	AllowTestFaultInjection bool
}

// Reply is the generic dispatch result: the service group and procedure
// that were executed (for reply-PDU framing by the caller), the
// procedure's own status, and an opaque payload the caller encodes into
// whatever reply transport it uses. Dispatch never builds a wire-level
// SDLS reply PDU itself; spec.md leaves reply framing to the mission's
// TM assembly, which this engine does not implement (see SPEC_FULL.md
// TM/AOS scope note).
type Reply struct {
	SG      ServiceGroup
	PID     ProcedureID
	Status  Status
	Payload []byte
}

// Dispatch routes a parsed Command to the procedure its TLV header
// names, per the service-group/procedure matrix in spec.md §4.7.
func Dispatch(ctx context.Context, d Deps, cmd Command) Reply {
	h := cmd.Header
	if h.UF {
		return dispatchUserTest(d, h, cmd.Body)
	}
	switch h.SG {
	case SGKeyManagement:
		return dispatchKeyManagement(ctx, d, h, cmd.Body)
	case SGSAManagement:
		return dispatchSAManagement(d, h, cmd.Body)
	case SGMonitoringControl:
		return dispatchMC(d, h, cmd.Body)
	default:
		return Reply{SG: h.SG, PID: h.PID, Status: UnknownProcedure}
	}
}

func dispatchKeyManagement(ctx context.Context, d Deps, h TLVHeader, body []byte) Reply {
	switch h.PID {
	case PIDOTAR:
		req, st := ParseOTARRequest(body)
		if st != Success {
			return Reply{SG: h.SG, PID: h.PID, Status: st}
		}
		st = ProcessOTAR(ctx, d.Keys, d.Prim, d.Log, req)
		return Reply{SG: h.SG, PID: h.PID, Status: st}
	case PIDKeyActivation, PIDKeyDeactivation, PIDKeyDestruction:
		if len(body) < 2 {
			return Reply{SG: h.SG, PID: h.PID, Status: MalformedPDU}
		}
		ekid := binary.BigEndian.Uint16(body[0:2])
		var st Status
		switch h.PID {
		case PIDKeyActivation:
			st = KeyActivation(d.Keys, d.Log, ekid)
		case PIDKeyDeactivation:
			st = KeyDeactivation(d.Keys, d.Log, ekid)
		case PIDKeyDestruction:
			st = KeyDestruction(d.Keys, d.Log, ekid)
		}
		return Reply{SG: h.SG, PID: h.PID, Status: st}
	case PIDKeyVerification:
		req, st := parseKeyVerifyBody(body)
		if st != Success {
			return Reply{SG: h.SG, PID: h.PID, Status: st}
		}
		resps, st := ProcessKeyVerify(ctx, d.Keys, d.Prim, req)
		if st != Success {
			return Reply{SG: h.SG, PID: h.PID, Status: st}
		}
		return Reply{SG: h.SG, PID: h.PID, Status: Success, Payload: marshalChallengeResponses(resps)}
	default:
		return Reply{SG: h.SG, PID: h.PID, Status: UnknownProcedure}
	}
}

// parseKeyVerifyBody decodes {EKID(2), IVLen(1), IVBase(IVLen), ChallengeCount(1),
// [ChallengeLen(2), Challenge...]*}.
func parseKeyVerifyBody(body []byte) (KeyVerifyRequest, Status) {
	if len(body) < 4 {
		return KeyVerifyRequest{}, MalformedPDU
	}
	ekid := binary.BigEndian.Uint16(body[0:2])
	ivLen := int(body[2])
	off := 3
	if len(body)-off < ivLen+1 {
		return KeyVerifyRequest{}, MalformedPDU
	}
	ivBase := body[off : off+ivLen]
	off += ivLen
	count := int(body[off])
	off++
	challenges := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(body)-off < 2 {
			return KeyVerifyRequest{}, MalformedPDU
		}
		clen := int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if len(body)-off < clen {
			return KeyVerifyRequest{}, MalformedPDU
		}
		challenges = append(challenges, body[off:off+clen])
		off += clen
	}
	return KeyVerifyRequest{EKID: ekid, IVBase: ivBase, Challenges: challenges}, Success
}

// marshalChallengeResponses packs [{IVLen(1),IV,CTLen(2),CT,TagLen(1),Tag}...].
func marshalChallengeResponses(resps []ChallengeResponse) []byte {
	var out []byte
	for _, r := range resps {
		out = append(out, byte(len(r.IV)))
		out = append(out, r.IV...)
		var ctLen [2]byte
		binary.BigEndian.PutUint16(ctLen[:], uint16(len(r.Ciphertext)))
		out = append(out, ctLen[:]...)
		out = append(out, r.Ciphertext...)
		out = append(out, byte(len(r.Tag)))
		out = append(out, r.Tag...)
	}
	return out
}

func dispatchMC(d Deps, h TLVHeader, body []byte) Reply {
	switch h.PID {
	case PIDPing:
		rep, st := Ping(body)
		return Reply{SG: h.SG, PID: h.PID, Status: st, Payload: rep.Echo}
	case PIDLogStatus:
		sum, st := LogStatus(d.Log)
		if st != Success {
			return Reply{SG: h.SG, PID: h.PID, Status: st}
		}
		payload := make([]byte, 8)
		binary.BigEndian.PutUint32(payload[0:4], uint32(sum.CountSinceLastRead))
		binary.BigEndian.PutUint32(payload[4:8], uint32(sum.RemainingSlots))
		return Reply{SG: h.SG, PID: h.PID, Status: Success, Payload: payload}
	case PIDDumpLog:
		entries, st := DumpLog(d.Log)
		if st != Success {
			return Reply{SG: h.SG, PID: h.PID, Status: st}
		}
		return Reply{SG: h.SG, PID: h.PID, Status: Success, Payload: marshalLogEntries(entries)}
	case PIDEraseLog:
		st := EraseLog(d.Log)
		return Reply{SG: h.SG, PID: h.PID, Status: st}
	case PIDSelfTest:
		rep, st := SelfTest(d.Keys != nil)
		payload := []byte{0}
		if rep.CounterArithmeticOK && rep.CRCTableOK && rep.KeyringReachable {
			payload[0] = 1
		}
		return Reply{SG: h.SG, PID: h.PID, Status: st, Payload: payload}
	case PIDAlarmFlag:
		st := ResetAlarm(d.FSR)
		return Reply{SG: h.SG, PID: h.PID, Status: st}
	default:
		return Reply{SG: h.SG, PID: h.PID, Status: UnknownProcedure}
	}
}

func marshalLogEntries(entries []report.Entry) []byte {
	out := make([]byte, 0, len(entries)*6)
	for _, e := range entries {
		out = append(out, byte(e.Type>>8), byte(e.Type))
		out = append(out, e.Value[:]...)
	}
	return out
}

func dispatchSAManagement(d Deps, h TLVHeader, body []byte) Reply {
	mgr := SAManager{Store: d.Store}
	if len(body) < 2 {
		return Reply{SG: h.SG, PID: h.PID, Status: MalformedPDU}
	}
	spi := binary.BigEndian.Uint16(body[0:2])
	switch h.PID {
	case PIDSADelete:
		return Reply{SG: h.SG, PID: h.PID, Status: mgr.Delete(spi)}
	case PIDSAStart:
		return Reply{SG: h.SG, PID: h.PID, Status: mgr.Start(spi)}
	case PIDSAStop:
		return Reply{SG: h.SG, PID: h.PID, Status: mgr.Stop(spi)}
	case PIDSAExpire:
		return Reply{SG: h.SG, PID: h.PID, Status: mgr.Expire(spi)}
	case PIDSARekey:
		if len(body) < 6 {
			return Reply{SG: h.SG, PID: h.PID, Status: MalformedPDU}
		}
		ekid := binary.BigEndian.Uint16(body[2:4])
		akid := binary.BigEndian.Uint16(body[4:6])
		return Reply{SG: h.SG, PID: h.PID, Status: mgr.Rekey(spi, ekid, akid)}
	case PIDSASetARSNW:
		if len(body) < 4 {
			return Reply{SG: h.SG, PID: h.PID, Status: MalformedPDU}
		}
		window := int(binary.BigEndian.Uint16(body[2:4]))
		return Reply{SG: h.SG, PID: h.PID, Status: mgr.SetARSNW(spi, window)}
	case PIDSASetARSN:
		if len(body) < 3 {
			return Reply{SG: h.SG, PID: h.PID, Status: MalformedPDU}
		}
		return Reply{SG: h.SG, PID: h.PID, Status: mgr.SetARSN(spi, body[2:])}
	case PIDSAStatus, PIDSAReadARSN:
		sa, st := mgr.ReadARSN(spi)
		if st != Success {
			return Reply{SG: h.SG, PID: h.PID, Status: st}
		}
		return Reply{SG: h.SG, PID: h.PID, Status: Success, Payload: sa.ARSN.Bytes()}
	default:
		return Reply{SG: h.SG, PID: h.PID, Status: UnknownProcedure}
	}
}

func dispatchUserTest(d Deps, h TLVHeader, body []byte) Reply {
	req, st := ParseFaultRequest(body)
	if st != Success {
		return Reply{SG: h.SG, PID: h.PID, Status: st}
	}
	st = ApplyFault(d.Cfg, d.AllowTestFaultInjection, req)
	return Reply{SG: h.SG, PID: h.PID, Status: st}
}
