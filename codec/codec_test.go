package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTripLiteral(t *testing.T) {
	src := []byte("the quick brown fox jumps over the lazy dog, repeatedly and with feeling")
	out, err := Encode(src, DefaultScanProfile())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(out, len(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch: got %x want %x", got, src)
	}
}

func TestRoundTripIsotope(t *testing.T) {
	src := bytes.Repeat([]byte{0x42}, 10000)
	out, err := Encode(src, DefaultScanProfile())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) >= len(src) {
		t.Fatalf("isotope run did not compress: out=%d src=%d", len(out), len(src))
	}
	got, err := Decode(out, len(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch")
	}
}

// TestGradientDecodeAtBoundary exercises a Gradient token whose
// progression stays inside [0,255] for its whole length: start 10,
// slope 10, logical length 8 reaches 10..80.
func TestGradientDecodeAtBoundary(t *testing.T) {
	field, ext, err := encodeLength(8 - lengthBias)
	if err != nil {
		t.Fatalf("encodeLength: %v", err)
	}
	tok := append([]byte{byte(OpGradient)<<6 | field}, ext...)
	tok = append(tok, 10, 10)

	got, err := Decode(tok, 8)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

// TestGradientOverflowRejected exercises a Gradient token whose
// progression would leave [0,255] partway through: start 250, slope
// 10, logical length 8 would need to represent 260 at the second term.
func TestGradientOverflowRejected(t *testing.T) {
	field, ext, err := encodeLength(8 - lengthBias)
	if err != nil {
		t.Fatalf("encodeLength: %v", err)
	}
	tok := append([]byte{byte(OpGradient)<<6 | field}, ext...)
	tok = append(tok, 250, 10)

	_, err = Decode(tok, 8)
	if err == nil {
		t.Fatalf("expected ErrDataRot, got nil")
	}
	if !isDataRot(err) {
		t.Fatalf("expected ErrDataRot, got %v", err)
	}
}

func TestGradientSlopeZeroRejected(t *testing.T) {
	field, _, _ := encodeLength(4 - lengthBias)
	tok := []byte{byte(OpGradient)<<6 | field, 5, 0}
	_, err := Decode(tok, 4)
	if !isDataRot(err) {
		t.Fatalf("expected ErrDataRot for slope 0, got %v", err)
	}
}

// TestBitmaskRoundTrip builds a 128-byte buffer of 32 four-byte words
// alternating zero and a nonzero pattern, confirming the encoder
// prefers Bitmask over Literal and the decoder reconstructs it exactly.
func TestBitmaskRoundTrip(t *testing.T) {
	src := make([]byte, 128)
	for w := 0; w < 32; w++ {
		if w%2 == 1 {
			copy(src[w*4:w*4+4], []byte{0xAA, 0xAA, 0xAA, 0xAA})
		}
	}
	out, err := Encode(src, DefaultScanProfile())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if out[0]>>6 != byte(OpBitmask) {
		t.Fatalf("expected leading Bitmask token, got opcode %d", out[0]>>6)
	}
	if len(out) >= len(src) {
		t.Fatalf("bitmask encoding did not save space: out=%d src=%d", len(out), len(src))
	}
	got, err := Decode(out, len(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch")
	}
}

func TestBitmaskPaddingBitsMustBeZero(t *testing.T) {
	// 4 words (16 bytes), mask byte has bits beyond bit 3 set.
	field, _, _ := encodeLength(16)
	tok := []byte{byte(OpBitmask)<<6 | field, 0xF0}
	_, err := Decode(tok, 16)
	if !isDataRot(err) {
		t.Fatalf("expected ErrDataRot for nonzero padding bits, got %v", err)
	}
}

func TestBoundCoversWorstCaseLiteral(t *testing.T) {
	src := make([]byte, 4096)
	for i := range src {
		src[i] = byte(i * 7)
	}
	out, err := Encode(src, DefaultScanProfile())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) > Bound(len(src)) {
		t.Fatalf("output %d exceeds Bound %d", len(out), Bound(len(src)))
	}
}

func TestEncodeIntoReportsNoSpace(t *testing.T) {
	src := make([]byte, 512)
	for i := range src {
		src[i] = byte(i * 31)
	}

	dst := make([]byte, Bound(len(src)))
	n, err := EncodeInto(dst, src, DefaultScanProfile())
	if err != nil {
		t.Fatalf("EncodeInto: %v", err)
	}
	got, err := Decode(dst[:n], len(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch through EncodeInto")
	}

	if _, err := EncodeInto(make([]byte, 4), src, DefaultScanProfile()); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("expected ErrNoSpace for undersized dst, got %v", err)
	}
}

func TestDecodeRejectsTruncatedStream(t *testing.T) {
	field, ext, _ := encodeLength(4 - lengthBias)
	tok := append([]byte{byte(OpIsotope)<<6 | field}, ext...)
	// drop the value byte
	_, err := Decode(tok, 4)
	if !isDataRot(err) {
		t.Fatalf("expected ErrDataRot for truncated stream, got %v", err)
	}
}

func TestDecodeRejectsOverlongVarint(t *testing.T) {
	tok := []byte{byte(OpLiteral)<<6 | lengthSentinel}
	for i := 0; i < 40; i++ {
		tok = append(tok, 255)
	}
	_, err := Decode(tok, 1<<20)
	if !isDataRot(err) {
		t.Fatalf("expected ErrDataRot for overlong varint, got %v", err)
	}
}

func TestMixedStreamRoundTrip(t *testing.T) {
	var src []byte
	src = append(src, []byte("header-")...)
	src = append(src, bytes.Repeat([]byte{0x00}, 300)...)
	for i := 0; i < 50; i++ {
		src = append(src, byte(i*3))
	}
	src = append(src, []byte("-trailer")...)

	out, err := Encode(src, ScanProfile{WindowBytes: 16, DeepScan: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(out, len(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch for mixed stream")
	}
}

func isDataRot(err error) bool {
	return errors.Is(err, ErrDataRot)
}
