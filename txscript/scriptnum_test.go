package txscript

import (
	"bytes"
	"testing"
)

func TestScriptNumBytesVectors(t *testing.T) {
	tests := []struct {
		num  scriptNum
		want []byte
	}{
		{0, nil},
		{1, []byte{0x01}},
		{-1, []byte{0x81}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x00}},
		{-128, []byte{0x80, 0x80}},
		{255, []byte{0xff, 0x00}},
		{-255, []byte{0xff, 0x80}},
		{1 << 31, []byte{0x00, 0x00, 0x00, 0x80, 0x00}},
		{1<<31 - 1, []byte{0xff, 0xff, 0xff, 0x7f}},
		{-(1<<31 - 1), []byte{0xff, 0xff, 0xff, 0xff}},
	}

	for _, test := range tests {
		got := test.num.Bytes()
		if !bytes.Equal(got, test.want) {
			t.Errorf("scriptNum(%d).Bytes() = %x, want %x", test.num, got, test.want)
		}
	}
}

// TestScriptNumRoundTrip encodes every vector with Bytes and decodes it back
// with makeScriptNum, checking both that the minimal re-encoding is accepted
// and that the original value is recovered exactly.
func TestScriptNumRoundTrip(t *testing.T) {
	values := []scriptNum{
		0, 1, -1, 127, 128, -128, 255, -255,
		1 << 31, 1<<31 - 1, -(1<<31 - 1),
		1 << 40, -(1 << 40),
	}

	for _, v := range values {
		enc := v.Bytes()
		dec, err := makeScriptNum(enc, true, len(enc))
		if err != nil {
			t.Fatalf("makeScriptNum(%x) for value %d: %v", enc, v, err)
		}
		if dec != v {
			t.Errorf("round trip of %d produced %x -> %d", v, enc, dec)
		}
	}
}

func TestScriptNumRejectsNonMinimalEncoding(t *testing.T) {
	// 0x00 0x00 encodes zero but not minimally: the empty byte string is
	// the only minimal encoding of zero.
	if _, err := makeScriptNum([]byte{0x00, 0x00}, true, 8); err == nil {
		t.Fatal("expected a non-minimal zero encoding to be rejected")
	}
	// A single 0x00 is also a non-minimal encoding of zero.
	if _, err := makeScriptNum([]byte{0x00}, true, 8); err == nil {
		t.Fatal("expected a single zero byte to be rejected as non-minimal")
	}
	// With requireMinimal false, the same bytes must still decode.
	n, err := makeScriptNum([]byte{0x00, 0x00}, false, 8)
	if err != nil {
		t.Fatalf("makeScriptNum with requireMinimal=false: %v", err)
	}
	if n != 0 {
		t.Errorf("decoded non-minimal zero as %d, want 0", n)
	}
}

func TestScriptNumRejectsOversizedEncoding(t *testing.T) {
	if _, err := makeScriptNum([]byte{0x01, 0x02, 0x03, 0x04, 0x05}, true, 4); err == nil {
		t.Fatal("expected a 5-byte encoding to be rejected against a 4-byte limit")
	}
}
