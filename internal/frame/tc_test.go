// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"testing"
)

func TestPrimaryHeaderRoundTrip(t *testing.T) {
	h := PrimaryHeader{
		TFVN:           0,
		BypassFlag:     true,
		ControlCommand: false,
		SCID:           0x123,
		VCID:           0x2A,
		FrameLength:    300,
		FrameSeqNum:    7,
	}
	buf, err := MarshalPrimaryHeader(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(buf) != PrimaryHeaderLen {
		t.Fatalf("expected %d bytes, got %d", PrimaryHeaderLen, len(buf))
	}
	got, err := UnmarshalPrimaryHeader(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestPrimaryHeaderSpareMustBeZero(t *testing.T) {
	buf := []byte{0x0C, 0x00, 0x00, 0x00, 0x00}
	if _, err := UnmarshalPrimaryHeader(buf); err != ErrSpareNonZero {
		t.Fatalf("expected ErrSpareNonZero, got %v", err)
	}
}

func TestPrimaryHeaderFieldOverflow(t *testing.T) {
	h := PrimaryHeader{SCID: 0xFFFF}
	if _, err := MarshalPrimaryHeader(h); err == nil {
		t.Fatalf("expected error for SCID overflowing 10 bits")
	}
}

func TestSegmentHeaderRoundTrip(t *testing.T) {
	h := SegmentHeader{SequenceFlags: 0x3, MAPID: 0x1F}
	b, err := MarshalSegmentHeader(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := UnmarshalSegmentHeader(b)
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestSecurityHeaderRoundTrip(t *testing.T) {
	widths := SecurityHeaderWidths{IVLen: 12, ARSNLen: 0, PadLen: 1}
	sh := SecurityHeader{
		SPI:    0x00AB,
		IV:     bytes.Repeat([]byte{0x01}, 12),
		ARSN:   []byte{},
		PadLen: []byte{0x00},
	}
	buf := make([]byte, widths.Len())
	n, err := sh.Marshal(widths, buf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if n != widths.Len() {
		t.Fatalf("unexpected length written: %d", n)
	}
	got, err := UnmarshalSecurityHeader(buf, widths)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SPI != sh.SPI || !bytes.Equal(got.IV, sh.IV) || !bytes.Equal(got.PadLen, sh.PadLen) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, sh)
	}
}

func TestFECFRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	framed := AppendFECF(append([]byte(nil), body...))
	if !CheckFECF(framed) {
		t.Fatalf("expected valid FECF to check out")
	}
	framed[0] ^= 0xFF
	if CheckFECF(framed) {
		t.Fatalf("expected corrupted frame to fail FECF check")
	}
}
