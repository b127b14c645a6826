// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"encoding/hex"
	"testing"
)

func TestIncrementCarries(t *testing.T) {
	c := FromBytes([]byte{0x00, 0xFF})
	if ok := c.Increment(); !ok {
		t.Fatalf("expected increment to succeed")
	}
	if got := c.Bytes(); got[0] != 0x01 || got[1] != 0x00 {
		t.Fatalf("unexpected carry result: % x", got)
	}
}

func TestIncrementOverflowWraps(t *testing.T) {
	c := FromBytes([]byte{0xFF, 0xFF})
	if ok := c.Increment(); ok {
		t.Fatalf("expected increment overflow to report failure")
	}
}

func TestCompare(t *testing.T) {
	a := FromBytes([]byte{0x00, 0x01})
	b := FromBytes([]byte{0x00, 0x02})
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Fatalf("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected a == a")
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex literal %q: %v", s, err)
	}
	return b
}

// Scenario C/D from spec.md: SA.IV last-accepted b6ac8e4963f49207ffd6374b,
// window 5, next-exact and gapped frames are both accepted; a frame
// last+17 falls outside the window.
func TestWithinWindowScenarios(t *testing.T) {
	last := FromBytes(mustHex(t, "b6ac8e4963f49207ffd6374b"))

	tests := []struct {
		name   string
		actual string
		window int
		want   bool
	}{
		{"replay of last itself", "b6ac8e4963f49207ffd6374b", 6, true}, // last is candidate k=0
		{"exact next", "b6ac8e4963f49207ffd6374c", 6, true},
		{"gap within window", "b6ac8e4963f49207ffd6374f", 6, true},
		{"outside window", "b6ac8e4963f49207ffd6375c", 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := FromBytes(mustHex(t, tt.actual))
			got := WithinWindow(actual, last, tt.window)
			if got != tt.want {
				t.Fatalf("WithinWindow(%s) = %v, want %v", tt.actual, got, tt.want)
			}
		})
	}
}

func TestLessOrEqual(t *testing.T) {
	last := FromBytes(mustHex(t, "b6ac8e4963f49207ffd6374b"))
	replay := FromBytes(mustHex(t, "b6ac8e4963f49207ffd6374b"))
	if !LessOrEqual(replay, last) {
		t.Fatalf("expected replay of last-accepted to be flagged as <=")
	}
	next := FromBytes(mustHex(t, "b6ac8e4963f49207ffd6374c"))
	if LessOrEqual(next, last) {
		t.Fatalf("expected strictly-greater counter to pass the replay check")
	}
}
