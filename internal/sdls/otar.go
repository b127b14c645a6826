// SPDX-License-Identifier: Apache-2.0

package sdls

import (
	"context"
	"encoding/binary"

	"github.com/spacedatalink/sdls-core/internal/keyring"
	"github.com/spacedatalink/sdls-core/internal/primitive"
	"github.com/spacedatalink/sdls-core/internal/report"
	"github.com/spacedatalink/sdls-core/internal/suite"
)

// otarIVLen and otarTagLen fix the AEAD framing OTAR uses to protect the
// key block; they match the AES-256-GCM reference provider's nonce and
// tag sizes (spec.md §4.7.1 names no suite of its own, so OTAR reuses
// the mission's configured AEAD primitive geometry).
const (
	otarIVLen  = 12
	otarTagLen = 16
)

// OTARRequest is the decoded body of a Key-Management/OTAR command,
// before the master-key AEAD envelope is opened.
type OTARRequest struct {
	MKID       uint16
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// ParseOTARRequest decodes body per the wire layout {MKID(2), IV(ivLen),
// ciphertext..., tag(tagLen)}.
func ParseOTARRequest(body []byte) (OTARRequest, Status) {
	const fixed = 2 + otarIVLen + otarTagLen
	if len(body) < fixed {
		return OTARRequest{}, MalformedPDU
	}
	mkid := binary.BigEndian.Uint16(body[0:2])
	iv := body[2 : 2+otarIVLen]
	rest := body[2+otarIVLen:]
	ct := rest[:len(rest)-otarTagLen]
	tag := rest[len(rest)-otarTagLen:]
	return OTARRequest{MKID: mkid, IV: iv, Ciphertext: ct, Tag: tag}, Success
}

// KeyBlockEntry is one {EKID, key value} pair carried inside an OTAR
// plaintext key block.
type KeyBlockEntry struct {
	EKID  uint16
	Value []byte
}

// parseKeyBlock decodes a sequence of {EKID(2), KeyLen(2), KeyValue}
// entries filling plaintext exactly.
func parseKeyBlock(plaintext []byte) ([]KeyBlockEntry, Status) {
	var entries []KeyBlockEntry
	off := 0
	for off < len(plaintext) {
		if len(plaintext)-off < 4 {
			return nil, MalformedPDU
		}
		ekid := binary.BigEndian.Uint16(plaintext[off : off+2])
		klen := int(binary.BigEndian.Uint16(plaintext[off+2 : off+4]))
		off += 4
		if len(plaintext)-off < klen {
			return nil, MalformedPDU
		}
		entries = append(entries, KeyBlockEntry{EKID: ekid, Value: append([]byte(nil), plaintext[off:off+klen]...)})
		off += klen
	}
	return entries, Success
}

// ProcessOTAR implements spec.md §4.7.1: the master key identified by
// MKID must be ACTIVE, the AEAD envelope must verify, and every key
// delivered inside must target a session KeyID (master keys are never
// OTAR targets). Each accepted key is installed PREACTIVE, per the key
// lifecycle (spec.md §3): activation is a separate procedure.
func ProcessOTAR(ctx context.Context, keys *keyring.Ring, prim primitive.Provider, log *report.Log, req OTARRequest) Status {
	if !keys.IsMasterKeyID(req.MKID) {
		logEID(log, report.MKIDInvalidEID, req.MKID)
		return OTARMKIDInvalid
	}
	mk, err := keys.Get(req.MKID)
	if err != nil {
		logEID(log, report.MKIDInvalidEID, req.MKID)
		return OTARMKIDInvalid
	}
	if mk.State != suite.KeyActive {
		logEID(log, report.MKIDStateErrEID, req.MKID)
		return OTARMKStateInvalid
	}

	plaintext, cerr := prim.AEADDecryptAndVerify(ctx, mk.Value, req.IV, nil, req.Ciphertext, req.Tag)
	if cerr != nil {
		logEID(log, report.OTARMKErrEID, req.MKID)
		return OTARDecryptFailed
	}

	entries, pstat := parseKeyBlock(plaintext)
	if pstat != Success {
		return pstat
	}
	for _, e := range entries {
		if keys.IsMasterKeyID(e.EKID) {
			logEID(log, report.OTARMKErrEID, e.EKID)
			return OTAREKIDInvalid
		}
		if err := keys.InstallOTAR(e.EKID, e.Value); err != nil {
			logEID(log, report.OTARMKErrEID, e.EKID)
			return OTAREKIDInvalid
		}
	}
	return Success
}

// KeyActivation, KeyDeactivation and KeyDestruction drive the one-step
// session-key lifecycle transitions spec.md §4.7's Key-Management
// service group exposes as standalone procedures (PREACTIVE->ACTIVE,
// ACTIVE->DEACTIVATED, DEACTIVATED->DESTROYED).
func KeyActivation(keys *keyring.Ring, log *report.Log, ekid uint16) Status {
	return transitionKey(keys, log, ekid, suite.KeyActive)
}

func KeyDeactivation(keys *keyring.Ring, log *report.Log, ekid uint16) Status {
	return transitionKey(keys, log, ekid, suite.KeyDeactivated)
}

func KeyDestruction(keys *keyring.Ring, log *report.Log, ekid uint16) Status {
	return transitionKey(keys, log, ekid, suite.KeyDestroyed)
}

func transitionKey(keys *keyring.Ring, log *report.Log, ekid uint16, target suite.KeyState) Status {
	if err := keys.Transition(ekid, target); err != nil {
		logEID(log, report.KeyTransitionErrEID, ekid)
		return KeyTransitionInvalid
	}
	return Success
}

func logEID(log *report.Log, eid report.EventType, id uint16) {
	if log == nil {
		return
	}
	log.Append(report.Entry{Type: eid, Value: [4]byte{0, 0, byte(id >> 8), byte(id)}, Len: 4})
}
