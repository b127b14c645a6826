// SPDX-License-Identifier: Apache-2.0

// Package suite enumerates the encryption and authentication cipher
// suites a Security Association may select, following the cipher-suite
// registration pattern of the key-exchange layer this library's
// predecessor used: a stable numeric ID with a String() form and a
// lookup-by-name helper.
package suite

import "strings"

// EncryptionCipherSuite identifies the confidentiality algorithm an SA
// applies to a frame's payload (SA field ECS).
type EncryptionCipherSuite int

const (
	ECSNone EncryptionCipherSuite = iota
	ECSAes256Gcm
)

func (e EncryptionCipherSuite) String() string {
	switch e {
	case ECSNone:
		return "NONE"
	case ECSAes256Gcm:
		return "AES256-GCM"
	default:
		return "UNKNOWN-ECS"
	}
}

// EncryptionCipherSuiteByName parses a mission-config name into its ID.
func EncryptionCipherSuiteByName(name string) (EncryptionCipherSuite, bool) {
	switch strings.ToUpper(name) {
	case "NONE":
		return ECSNone, true
	case "AES256-GCM", "AES256GCM":
		return ECSAes256Gcm, true
	}
	return 0, false
}

// IsAEAD reports whether the suite produces its own authentication tag,
// i.e. AST may be satisfied without a separate ACS.
func (e EncryptionCipherSuite) IsAEAD() bool {
	return e == ECSAes256Gcm
}

// KeyLen returns the symmetric key length in bytes this suite requires.
func (e EncryptionCipherSuite) KeyLen() int {
	switch e {
	case ECSAes256Gcm:
		return 32
	default:
		return 0
	}
}

// AuthenticationCipherSuite identifies the integrity algorithm an SA
// applies when authentication is not already provided by an AEAD
// encryption suite (SA field ACS).
type AuthenticationCipherSuite int

const (
	ACSNone AuthenticationCipherSuite = iota
	ACSAes256Cmac
)

func (a AuthenticationCipherSuite) String() string {
	switch a {
	case ACSNone:
		return "NONE"
	case ACSAes256Cmac:
		return "AES256-CMAC"
	default:
		return "UNKNOWN-ACS"
	}
}

// AuthenticationCipherSuiteByName parses a mission-config name into its ID.
func AuthenticationCipherSuiteByName(name string) (AuthenticationCipherSuite, bool) {
	switch strings.ToUpper(name) {
	case "NONE":
		return ACSNone, true
	case "AES256-CMAC", "AES256CMAC":
		return ACSAes256Cmac, true
	}
	return 0, false
}

// KeyLen returns the symmetric key length in bytes this suite requires.
func (a AuthenticationCipherSuite) KeyLen() int {
	switch a {
	case ACSAes256Cmac:
		return 32
	default:
		return 0
	}
}

// KeyState is the lifecycle state of a key in the Key Ring.
type KeyState int

const (
	KeyPreActive KeyState = iota
	KeyActive
	KeyDeactivated
	KeyDestroyed
	KeyCorrupted
)

func (s KeyState) String() string {
	switch s {
	case KeyPreActive:
		return "PREACTIVE"
	case KeyActive:
		return "ACTIVE"
	case KeyDeactivated:
		return "DEACTIVATED"
	case KeyDestroyed:
		return "DESTROYED"
	case KeyCorrupted:
		return "CORRUPTED"
	default:
		return "UNKNOWN-KEY-STATE"
	}
}

// CanTransitionTo reports whether a Key-Update command moving a key from
// s to target is a legal one-step-forward transition, per spec: current
// == target-1 on the PREACTIVE -> ACTIVE -> DEACTIVATED -> DESTROYED
// chain, plus any state -> CORRUPTED.
func (s KeyState) CanTransitionTo(target KeyState) bool {
	if target == KeyCorrupted {
		return true
	}
	switch s {
	case KeyPreActive:
		return target == KeyActive
	case KeyActive:
		return target == KeyDeactivated
	case KeyDeactivated:
		return target == KeyDestroyed
	default:
		return false
	}
}

// SAState is the lifecycle state of a Security Association.
type SAState int

const (
	SANone SAState = iota
	SAUnkeyed
	SAKeyed
	SAOperational
)

func (s SAState) String() string {
	switch s {
	case SANone:
		return "NONE"
	case SAUnkeyed:
		return "UNKEYED"
	case SAKeyed:
		return "KEYED"
	case SAOperational:
		return "OPERATIONAL"
	default:
		return "UNKNOWN-SA-STATE"
	}
}

// CanTransitionTo reports whether an SA-Management command moving an SA
// from s to target is legal. The DAG is NONE -> UNKEYED -> KEYED ->
// OPERATIONAL -> KEYED -> ...; downgrades (moving to any earlier state)
// are always permitted, but KEYED can never be skipped on the way up.
func (s SAState) CanTransitionTo(target SAState) bool {
	if target <= s {
		return true
	}
	switch s {
	case SANone:
		return target == SAUnkeyed
	case SAUnkeyed:
		return target == SAKeyed
	case SAKeyed:
		return target == SAOperational
	default:
		return false
	}
}
