// SPDX-License-Identifier: Apache-2.0

package sdls

import "github.com/spacedatalink/sdls-core/internal/tc"

// FaultRequest decodes a User/Test service-group command's body: which
// fields the next Apply call should corrupt (spec.md §4.8). The
// user flag (TLVHeader.UF) marks these commands as test-only; a
// dispatcher must additionally consult AllowTestFaultInjection before
// honoring one.
type FaultRequest struct {
	CorruptSPI  bool
	CorruptIV   bool
	CorruptMAC  bool
	CorruptFECF bool
}

// ParseFaultRequest decodes a single flag byte into a FaultRequest.
func ParseFaultRequest(body []byte) (FaultRequest, Status) {
	if len(body) < 1 {
		return FaultRequest{}, MalformedPDU
	}
	b := body[0]
	return FaultRequest{
		CorruptSPI:  b&(1<<0) != 0,
		CorruptIV:   b&(1<<1) != 0,
		CorruptMAC:  b&(1<<2) != 0,
		CorruptFECF: b&(1<<3) != 0,
	}, Success
}

// ApplyFault installs req as the one-shot fault-injection toggle on cfg,
// gated on allowed: production configurations must refuse this
// regardless of what a received command asks for.
func ApplyFault(cfg *tc.Config, allowed bool, req FaultRequest) Status {
	if !allowed {
		return TestFaultInjectionDisabled
	}
	cfg.FaultInjection = &tc.FaultInjection{
		CorruptSPI:  req.CorruptSPI,
		CorruptIV:   req.CorruptIV,
		CorruptMAC:  req.CorruptMAC,
		CorruptFECF: req.CorruptFECF,
	}
	return Success
}

// ClearFault removes any pending fault-injection toggle.
func ClearFault(cfg *tc.Config) {
	cfg.FaultInjection = nil
}
