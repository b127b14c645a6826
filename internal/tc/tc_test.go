// SPDX-License-Identifier: Apache-2.0

package tc

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/spacedatalink/sdls-core/internal/counter"
	"github.com/spacedatalink/sdls-core/internal/frame"
	"github.com/spacedatalink/sdls-core/internal/keyring"
	"github.com/spacedatalink/sdls-core/internal/primitive/aesprimitive"
	"github.com/spacedatalink/sdls-core/internal/report"
	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/internal/sastore/memstore"
	"github.com/spacedatalink/sdls-core/internal/suite"
)

// scenarioKeyHex is the 32-byte AES-256 key spec.md §8 Scenarios A-D share.
const scenarioKeyHex = "ef9f9284cf599eac3b119905a7d18851e7e374cf63aea04358586b0f757670f8"

var testGVCID = sastore.GVCID{TFVN: 0, SCID: 0x123, VCID: 0}

func mustHexT(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex literal %q: %v", s, err)
	}
	return b
}

// fullABM returns an authentication bitmask wide enough to cover any
// header this test file builds, every bit set so the AAD is the header
// verbatim.
func fullABM() []byte {
	abm := make([]byte, 32)
	for i := range abm {
		abm[i] = 0xFF
	}
	return abm
}

func testRingWithKey(t *testing.T, id uint16, keyHex string) *keyring.Ring {
	t.Helper()
	ring := keyring.New(1000)
	ring.Provision(id, mustHexT(t, keyHex), suite.KeyActive)
	return ring
}

func testConfig() Config {
	return Config{SCID: 0x123}
}

// aeadSA builds the Scenario A-D SA: EST=1, AST=1 (AES-256-GCM), 12-byte
// IV, last-accepted value lastIVHex, acceptance window window.
func aeadSA(t *testing.T, lastIVHex string, window int) sastore.SA {
	t.Helper()
	return sastore.SA{
		SPI:       0x0001,
		State:     suite.SAOperational,
		EKID:      1,
		EST:       true,
		AST:       true,
		IV:        counter.FromBytes(mustHexT(t, lastIVHex)),
		ARSN:      counter.New(0),
		ARSNW:     window,
		ECS:       suite.ECSAes256Gcm,
		ABM:       fullABM(),
		STMACFLen: 16,
		MapTable:  []sastore.MapEntry{{GVCID: testGVCID, MAPID: 0, Allow: true}},
	}
}

// buildFrame hand-assembles an on-wire TC frame carrying the given IV
// and/or ARSN field values, authenticated/encrypted exactly as Apply
// would, so Process can be exercised against a specific counter value
// without going through Apply's own counter-advance logic.
func buildFrame(t *testing.T, prim aesprimitive.Provider, sa sastore.SA, ekid, akid uint16, ring *keyring.Ring, ivHex, arsnHex string, payload []byte) []byte {
	t.Helper()
	ph := frame.PrimaryHeader{TFVN: 0, SCID: 0x123, VCID: 0, FrameSeqNum: 1}
	phBytes, err := frame.MarshalPrimaryHeader(ph)
	if err != nil {
		t.Fatalf("marshal primary header: %v", err)
	}

	iv := make([]byte, sa.IV.Len())
	if ivHex != "" {
		iv = mustHexT(t, ivHex)
	}
	arsn := make([]byte, sa.ARSN.Len())
	if arsnHex != "" {
		arsn = mustHexT(t, arsnHex)
	}
	padLen := make([]byte, sa.PadFieldLen)

	widths := frame.SecurityHeaderWidths{IVLen: sa.IV.Len(), ARSNLen: sa.ARSN.Len(), PadLen: sa.PadFieldLen}
	sh := frame.SecurityHeader{SPI: sa.SPI, IV: iv, ARSN: arsn, PadLen: padLen}
	shBytes := make([]byte, widths.Len())
	if _, err := sh.Marshal(widths, shBytes); err != nil {
		t.Fatalf("marshal security header: %v", err)
	}

	header := append(append([]byte(nil), phBytes...), shBytes...)
	aad := aadFromBitmask(header, sa.ABM)

	out := append([]byte(nil), header...)
	switch {
	case sa.EST && sa.AST:
		ekey, err := ring.RequireActive(ekid)
		if err != nil {
			t.Fatalf("require active ekey: %v", err)
		}
		ciphertext, tag, err := prim.AEADEncrypt(context.Background(), ekey, iv, aad, payload)
		if err != nil {
			t.Fatalf("AEADEncrypt: %v", err)
		}
		out = append(out, ciphertext...)
		out = append(out, tag[:sa.STMACFLen]...)
	case !sa.EST && sa.AST:
		akey, err := ring.RequireActive(akid)
		if err != nil {
			t.Fatalf("require active akey: %v", err)
		}
		tag, err := prim.MACGenerate(context.Background(), akey, aad, payload)
		if err != nil {
			t.Fatalf("MACGenerate: %v", err)
		}
		out = append(out, payload...)
		out = append(out, tag[:sa.STMACFLen]...)
	default:
		out = append(out, payload...)
	}
	if sa.HasFECF {
		out = frame.AppendFECF(out)
	}
	return out
}

// TestApplyProcessRoundTrip exercises the basic round trip: a frame
// built by Apply is accepted by Process and yields back the original
// payload, with both counters advanced by exactly one step.
func TestApplyProcessRoundTrip(t *testing.T) {
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	store := memstore.New()
	sa := aeadSA(t, "000000000000000000000000", 5)
	sa.MapTable = []sastore.MapEntry{{GVCID: testGVCID, MAPID: 3, Allow: true}}
	sa.HasSegHdr = true
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	// The receiving side holds its own copy of the SA, starting from the
	// same last-accepted IV the sender started from.
	rxStore := memstore.New()
	if err := rxStore.Create(sa); err != nil {
		t.Fatalf("create receiver sa: %v", err)
	}

	prim := aesprimitive.Provider{}
	cfg := testConfig()
	cfg.ManagedParams = []ManagedParameter{{TFVN: 0, SCID: 0x123, VCID: 0, HasSegmentHdrs: true}}
	payload := []byte("round trip payload")

	req := ApplyRequest{GVCID: testGVCID, MAPID: 3, Payload: payload}
	frameBytes, status := Apply(context.Background(), store, ring, prim, cfg, req)
	if status != Success {
		t.Fatalf("Apply: %v", status)
	}

	log := report.New(8)
	fsr := &report.FSR{}
	result, status := Process(context.Background(), rxStore, ring, prim, log, fsr, cfg, frameBytes)
	if status != Success {
		t.Fatalf("Process: %v", status)
	}
	if !bytes.Equal(result.Plaintext, payload) {
		t.Fatalf("plaintext mismatch: got %q want %q", result.Plaintext, payload)
	}
	if result.State != StateCommitted {
		t.Fatalf("expected StateCommitted, got %s", result.State)
	}
	if hex.EncodeToString(result.SA.IV.Bytes()) != "000000000000000000000001" {
		t.Fatalf("expected IV advanced by one, got %x", result.SA.IV.Bytes())
	}
}

// TestScenarioA_IVReplayOfLastAccepted is spec.md §8 Scenario A: a frame
// whose IV equals the SA's last-accepted value is rejected as outside
// the window (not as a replay), and the SA's IV is left untouched.
func TestScenarioA_IVReplayOfLastAccepted(t *testing.T) {
	const last = "b6ac8e4963f49207ffd6374b"
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	store := memstore.New()
	sa := aeadSA(t, last, 5)
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	frameBytes := buildFrame(t, prim, sa, 1, 0, ring, last, "", []byte("payload"))

	log := report.New(8)
	fsr := &report.FSR{}
	result, status := Process(context.Background(), store, ring, prim, log, fsr, cfg, frameBytes)
	if status != IVOutsideWindow {
		t.Fatalf("expected IVOutsideWindow, got %v", status)
	}
	if result.State != StateSAResolved {
		t.Fatalf("expected rejection before replay check, got %s", result.State)
	}

	got, err := store.GetBySPI(sa.SPI)
	if err != nil {
		t.Fatalf("get sa: %v", err)
	}
	if hex.EncodeToString(got.IV.Bytes()) != last {
		t.Fatalf("SA.IV mutated on rejection: got %x", got.IV.Bytes())
	}
}

// TestScenarioB_IVOutsideWindow is spec.md §8 Scenario B: last+17 with
// window 5 falls outside the acceptance window.
func TestScenarioB_IVOutsideWindow(t *testing.T) {
	const last = "b6ac8e4963f49207ffd6374b"
	const farIV = "b6ac8e4963f49207ffd6375c"
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	store := memstore.New()
	sa := aeadSA(t, last, 5)
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	frameBytes := buildFrame(t, prim, sa, 1, 0, ring, farIV, "", []byte("payload"))

	if _, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, frameBytes); status != IVOutsideWindow {
		t.Fatalf("expected IVOutsideWindow, got %v", status)
	}
}

// TestScenarioC_IVAcceptedExactNext is spec.md §8 Scenario C: the exact
// next IV is accepted and committed.
func TestScenarioC_IVAcceptedExactNext(t *testing.T) {
	const last = "b6ac8e4963f49207ffd6374b"
	const next = "b6ac8e4963f49207ffd6374c"
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	store := memstore.New()
	sa := aeadSA(t, last, 5)
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	frameBytes := buildFrame(t, prim, sa, 1, 0, ring, next, "", []byte("payload"))

	result, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, frameBytes)
	if status != Success {
		t.Fatalf("expected Success, got %v", status)
	}
	if result.State != StateCommitted {
		t.Fatalf("expected StateCommitted, got %s", result.State)
	}

	got, err := store.GetBySPI(sa.SPI)
	if err != nil {
		t.Fatalf("get sa: %v", err)
	}
	if hex.EncodeToString(got.IV.Bytes()) != next {
		t.Fatalf("SA.IV not committed: got %x want %s", got.IV.Bytes(), next)
	}
}

// TestScenarioD_IVAcceptedWithGap is spec.md §8 Scenario D: last+3 is
// within the window and is accepted without the intermediate values
// having been seen.
func TestScenarioD_IVAcceptedWithGap(t *testing.T) {
	const last = "b6ac8e4963f49207ffd6374b"
	const gapped = "b6ac8e4963f49207ffd6374f"
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	store := memstore.New()
	sa := aeadSA(t, last, 5)
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	frameBytes := buildFrame(t, prim, sa, 1, 0, ring, gapped, "", []byte("payload"))

	if _, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, frameBytes); status != Success {
		t.Fatalf("expected Success, got %v", status)
	}

	got, err := store.GetBySPI(sa.SPI)
	if err != nil {
		t.Fatalf("get sa: %v", err)
	}
	if hex.EncodeToString(got.IV.Bytes()) != gapped {
		t.Fatalf("SA.IV not committed: got %x want %s", got.IV.Bytes(), gapped)
	}
}

// TestWindowBoundary_LastPlusWAcceptedLastPlusWPlus1Rejected is spec.md
// §9 testable property 5: with ARSNW=W, last+W is accepted and
// last+W+1 is rejected OUTSIDE_WINDOW.
func TestWindowBoundary_LastPlusWAcceptedLastPlusWPlus1Rejected(t *testing.T) {
	// last = b6ac8e4963f49207ffd6374b, window W = 5
	const last = "b6ac8e4963f49207ffd6374b"
	const lastPlusW = "b6ac8e4963f49207ffd63750"
	const lastPlusWPlus1 = "b6ac8e4963f49207ffd63751"
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	store := memstore.New()
	sa := aeadSA(t, last, 5)
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	frameBytes := buildFrame(t, prim, sa, 1, 0, ring, lastPlusW, "", []byte("payload"))
	if _, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, frameBytes); status != Success {
		t.Fatalf("expected Success for last+W, got %v", status)
	}

	store2 := memstore.New()
	if err := store2.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	frameBytes2 := buildFrame(t, prim, sa, 1, 0, ring, lastPlusWPlus1, "", []byte("payload"))
	if _, status := Process(context.Background(), store2, ring, prim, nil, nil, cfg, frameBytes2); status != IVOutsideWindow {
		t.Fatalf("expected IVOutsideWindow for last+W+1, got %v", status)
	}
}

// TestScenarioE_ARSNCmacPath is spec.md §8 Scenario E: EST=0, AST=1,
// ACS=AES256-CMAC, a 2-byte ARSN, window 5.
func TestScenarioE_ARSNCmacPath(t *testing.T) {
	const akid = uint16(2)
	ring := testRingWithKey(t, akid, scenarioKeyHex)
	store := memstore.New()
	sa := sastore.SA{
		SPI:       0x0002,
		State:     suite.SAOperational,
		AKID:      akid,
		EST:       false,
		AST:       true,
		ACS:       suite.ACSAes256Cmac,
		ARSN:      counter.FromBytes(mustHexT(t, "0123")),
		ARSNW:     5,
		ABM:       fullABM(),
		STMACFLen: 16,
		MapTable:  []sastore.MapEntry{{GVCID: testGVCID, MAPID: 0, Allow: true}},
	}
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	replayFrame := buildFrame(t, prim, sa, 0, akid, ring, "", "0123", []byte("payload"))
	if _, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, replayFrame); status != ARSNOutsideWindow {
		t.Fatalf("expected ARSNOutsideWindow for replay of 0123, got %v", status)
	}

	farFrame := buildFrame(t, prim, sa, 0, akid, ring, "", "0444", []byte("payload"))
	if _, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, farFrame); status != ARSNOutsideWindow {
		t.Fatalf("expected ARSNOutsideWindow for 0444, got %v", status)
	}

	nextFrame := buildFrame(t, prim, sa, 0, akid, ring, "", "0124", []byte("payload"))
	result, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, nextFrame)
	if status != Success {
		t.Fatalf("expected Success for 0124, got %v", status)
	}
	if !bytes.Equal(result.Plaintext, []byte("payload")) {
		t.Fatalf("unexpected plaintext: %q", result.Plaintext)
	}

	laterFrame := buildFrame(t, prim, sa, 0, akid, ring, "", "0129", []byte("payload"))
	if _, status := Process(context.Background(), store, ring, prim, nil, nil, cfg, laterFrame); status != Success {
		t.Fatalf("expected Success for 0129, got %v", status)
	}
	got, err := store.GetBySPI(sa.SPI)
	if err != nil {
		t.Fatalf("get sa: %v", err)
	}
	if hex.EncodeToString(got.ARSN.Bytes()) != "0129" {
		t.Fatalf("SA.ARSN not committed: got %x", got.ARSN.Bytes())
	}
}

// TestApplyNoMutationOnFailure confirms a frame that Apply rejects (no
// matching SA) leaves the store untouched and returns no bytes.
func TestApplyNoMutationOnFailure(t *testing.T) {
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	store := memstore.New()
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	req := ApplyRequest{GVCID: testGVCID, MAPID: 9, Payload: []byte("x")}
	frameBytes, status := Apply(context.Background(), store, ring, prim, cfg, req)
	if status != TCApplyNoSA {
		t.Fatalf("expected TCApplyNoSA, got %v", status)
	}
	if frameBytes != nil {
		t.Fatalf("expected nil frame on failure, got %d bytes", len(frameBytes))
	}
}

// TestProcessFECFInvalid confirms a bit-flipped FECF is detected and
// rejected without committing counters.
func TestProcessFECFInvalid(t *testing.T) {
	ring := testRingWithKey(t, 1, scenarioKeyHex)
	store := memstore.New()
	sa := aeadSA(t, "000000000000000000000000", 5)
	sa.HasFECF = true
	sa.HasSegHdr = true
	sa.MapTable = []sastore.MapEntry{{GVCID: testGVCID, MAPID: 3, Allow: true}}
	if err := store.Create(sa); err != nil {
		t.Fatalf("create sa: %v", err)
	}

	prim := aesprimitive.Provider{}
	cfg := testConfig()
	cfg.CreateFECF = true
	cfg.CheckFECF = true
	cfg.ManagedParams = []ManagedParameter{{TFVN: 0, SCID: 0x123, VCID: 0, HasFECF: true, HasSegmentHdrs: true}}

	req := ApplyRequest{GVCID: testGVCID, MAPID: 3, Payload: []byte("payload")}
	frameBytes, status := Apply(context.Background(), store, ring, prim, cfg, req)
	if status != Success {
		t.Fatalf("Apply: %v", status)
	}
	afterApply, err := store.GetBySPI(sa.SPI)
	if err != nil {
		t.Fatalf("get sa: %v", err)
	}
	frameBytes[len(frameBytes)-1] ^= 0xFF

	log := report.New(8)
	fsr := &report.FSR{}
	if _, status := Process(context.Background(), store, ring, prim, log, fsr, cfg, frameBytes); status != FECFInvalid {
		t.Fatalf("expected FECFInvalid, got %v", status)
	}

	got, err := store.GetBySPI(sa.SPI)
	if err != nil {
		t.Fatalf("get sa: %v", err)
	}
	if !bytes.Equal(got.IV.Bytes(), afterApply.IV.Bytes()) {
		t.Fatalf("SA.IV mutated on FECF rejection: got %x want %x", got.IV.Bytes(), afterApply.IV.Bytes())
	}
}

// TestProcessSPIUnknownRaisesFSR confirms an unresolvable SPI is
// rejected and flags the Frame Security Report's InvalidSPI bit.
func TestProcessSPIUnknownRaisesFSR(t *testing.T) {
	ring := keyring.New(1000)
	store := memstore.New()
	prim := aesprimitive.Provider{}
	cfg := testConfig()

	ph := frame.PrimaryHeader{TFVN: 0, SCID: 0x123, VCID: 0, FrameSeqNum: 1}
	phBytes, err := frame.MarshalPrimaryHeader(ph)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frameBytes := append(append([]byte(nil), phBytes...), 0x12, 0x34)

	log := report.New(8)
	fsr := &report.FSR{}
	if _, status := Process(context.Background(), store, ring, prim, log, fsr, cfg, frameBytes); status != SPIInvalid {
		t.Fatalf("expected SPIInvalid, got %v", status)
	}
	if !fsr.Snapshot().InvalidSPI {
		t.Fatalf("expected FSR.InvalidSPI to be set")
	}
	if log.Status().CountSinceLastRead != 1 {
		t.Fatalf("expected one log entry, got %d", log.Status().CountSinceLastRead)
	}
}
