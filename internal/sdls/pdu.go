// SPDX-License-Identifier: Apache-2.0

// Package sdls implements the Security-Data-Link-Service Extended
// Procedure dispatcher: the in-band key and SA management sub-protocol
// carried inside processed TC payloads (spec.md §4.7).
package sdls

import (
	"encoding/binary"
	"errors"
)

// SDLSAPID is the 16-bit CCSDS primary header value that marks a
// processed TC payload as carrying an SDLS command: PVN=0, secondary
// header flag set, APID=0x080 (spec.md §4.7). Matched as a single 16-bit
// word against the wire bytes rather than re-derived from sub-fields, to
// stay byte-exact with the constant the spec names.
const SDLSAPID = 0x1880

// CCSDSPrimaryHeaderLen is the fixed size of the space packet primary
// header carried ahead of an SDLS PDU.
const CCSDSPrimaryHeaderLen = 6

// PUSSecondaryHeaderLen is the fixed size of the optional PUS secondary
// header some missions carry between the CCSDS primary header and the
// SDLS TLV PDU header.
const PUSSecondaryHeaderLen = 4

// TLVHeaderLen is the fixed size of the SDLS TLV PDU header.
const TLVHeaderLen = 4

// ErrShortPDU indicates the supplied buffer is too short to contain the
// header being parsed.
var ErrShortPDU = errors.New("sdls: PDU too short")

// ErrNotSDLS indicates the payload's CCSDS primary header does not
// carry the SDLS APID and should not be dispatched here.
var ErrNotSDLS = errors.New("sdls: payload is not an SDLS command")

// PDUType distinguishes an SDLS command from its reply.
type PDUType uint8

const (
	PDUCommand PDUType = 0
	PDUReply   PDUType = 1
)

// ServiceGroup is the SG field of the SDLS TLV PDU header.
type ServiceGroup uint8

const (
	SGKeyManagement ServiceGroup = iota
	SGSAManagement
	SGMonitoringControl
	SGUserTest
)

func (g ServiceGroup) String() string {
	switch g {
	case SGKeyManagement:
		return "KEY_MGMT"
	case SGSAManagement:
		return "SA_MGMT"
	case SGMonitoringControl:
		return "MC"
	case SGUserTest:
		return "USER"
	default:
		return "UNKNOWN_SG"
	}
}

// ProcedureID is the PID field of the SDLS TLV PDU header; its meaning
// is scoped by ServiceGroup.
type ProcedureID uint8

// Key-Management procedure IDs.
const (
	PIDOTAR ProcedureID = iota
	PIDKeyActivation
	PIDKeyDeactivation
	PIDKeyDestruction
	PIDKeyVerification
	PIDKeyInventory
)

// SA-Management procedure IDs.
const (
	PIDSACreate ProcedureID = iota
	PIDSADelete
	PIDSARekey
	PIDSAExpire
	PIDSAStart
	PIDSAStop
	PIDSASetARSN
	PIDSASetARSNW
	PIDSAReadARSN
	PIDSAStatus
)

// Monitoring & Control procedure IDs.
const (
	PIDPing ProcedureID = iota
	PIDLogStatus
	PIDDumpLog
	PIDEraseLog
	PIDSelfTest
	PIDAlarmFlag
)

// TLVHeader is the SDLS TLV PDU header: {Type, UF, SG, PID, PDU_LEN}.
type TLVHeader struct {
	Type   PDUType
	UF     bool // user-flag: procedure is a user/test toggle, SG ignored
	SG     ServiceGroup
	PID    ProcedureID
	PDULen uint16
}

// ParseTLVHeader parses the first TLVHeaderLen bytes of buf.
func ParseTLVHeader(buf []byte) (TLVHeader, error) {
	if len(buf) < TLVHeaderLen {
		return TLVHeader{}, ErrShortPDU
	}
	b0 := buf[0]
	h := TLVHeader{
		Type:   PDUType(b0 >> 7 & 0x01),
		UF:     b0&(1<<6) != 0,
		SG:     ServiceGroup(b0 >> 4 & 0x03),
		PID:    ProcedureID(b0 & 0x0F),
		PDULen: binary.BigEndian.Uint16(buf[2:4]),
	}
	return h, nil
}

// MarshalTLVHeader packs h into a 4-byte TLV header.
func MarshalTLVHeader(h TLVHeader) []byte {
	buf := make([]byte, TLVHeaderLen)
	var b0 byte
	b0 |= byte(h.Type) << 7
	if h.UF {
		b0 |= 1 << 6
	}
	b0 |= byte(h.SG) << 4 & 0x30
	b0 |= byte(h.PID) & 0x0F
	buf[0] = b0
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], h.PDULen)
	return buf
}

// Command is a parsed, in-band SDLS command ready for Dispatch: the TLV
// header and the raw procedure body. The CCSDS/PUS framing that
// preceded the TLV header is not kept.
type Command struct {
	Header TLVHeader
	Body   []byte
}

// ParseCommand strips the CCSDS primary header (and, if hasPUSHdr, the
// PUS secondary header) from payload, verifies the SDLS APID, and
// returns the TLV header plus the remaining procedure-specific body.
func ParseCommand(payload []byte, hasPUSHdr bool) (Command, error) {
	if len(payload) < CCSDSPrimaryHeaderLen {
		return Command{}, ErrShortPDU
	}
	apid := binary.BigEndian.Uint16(payload[0:2])
	if apid != SDLSAPID {
		return Command{}, ErrNotSDLS
	}
	off := CCSDSPrimaryHeaderLen
	if hasPUSHdr {
		if len(payload) < off+PUSSecondaryHeaderLen {
			return Command{}, ErrShortPDU
		}
		off += PUSSecondaryHeaderLen
	}
	h, err := ParseTLVHeader(payload[off:])
	if err != nil {
		return Command{}, err
	}
	off += TLVHeaderLen
	if len(payload) < off {
		return Command{}, ErrShortPDU
	}
	return Command{Header: h, Body: payload[off:]}, nil
}
