// SPDX-License-Identifier: Apache-2.0

package tc

import "github.com/spacedatalink/sdls-core/internal/sastore"

// ManagedParameter is one configured (TFVN, SCID, VCID) entry declaring
// which channels carry FECF and segment headers, per spec.md §4.1/§6
// Crypto_Config_Add_Gvcid_Managed_Parameter.
type ManagedParameter struct {
	TFVN           uint8
	SCID           uint16
	VCID           uint8
	HasFECF        bool
	HasSegmentHdrs bool
}

// Config is the subset of Crypto_Config_CryptoLib (spec.md §6) that
// governs the TC Apply/Process pipeline.
type Config struct {
	SCID             uint16
	CreateFECF       bool
	CheckFECF        bool
	IgnoreSAState    bool
	IgnoreAntiReplay bool
	UniqueSAPerMapID bool

	ManagedParams []ManagedParameter

	// FaultInjection, when non-nil, is consulted by Apply immediately
	// before FECF computation (spec.md §4.8). Production configurations
	// must leave this nil; the SDLS user/test procedures are the only
	// caller allowed to set it, and only when AllowTestFaultInjection
	// is true.
	FaultInjection *FaultInjection
}

// FaultInjection holds the toggles spec.md §4.8 describes: one-shot
// corruption of a named field on the next Apply call.
type FaultInjection struct {
	CorruptSPI  bool
	CorruptIV   bool
	CorruptMAC  bool
	CorruptFECF bool
}

// LookupManagedParam returns the configured managed parameters for the
// given (TFVN, SCID, VCID), if any.
func (c Config) LookupManagedParam(tfvn uint8, scid uint16, vcid uint8) (ManagedParameter, bool) {
	for _, p := range c.ManagedParams {
		if p.TFVN == tfvn && p.SCID == scid && p.VCID == vcid {
			return p, true
		}
	}
	return ManagedParameter{}, false
}

// gvcidOf extracts the sastore.GVCID selector from a managed parameter.
func gvcidOf(tfvn uint8, scid uint16, vcid uint8) sastore.GVCID {
	return sastore.GVCID{TFVN: tfvn, SCID: scid, VCID: vcid}
}
