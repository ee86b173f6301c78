package descriptor

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseHappyPath(t *testing.T) {
	nonce := make([]byte, 16)
	for i := range nonce {
		nonce[i] = byte(i + 1)
	}
	input := append([]byte("63144\n"), nonce...)

	d, err := Parse(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Port != 63144 {
		t.Fatalf("port = %d, want 63144", d.Port)
	}
	if !bytes.Equal(d.Nonce[:], nonce) {
		t.Fatalf("nonce = %v, want %v", d.Nonce[:], nonce)
	}
}

func TestParseShortNonce(t *testing.T) {
	input := append([]byte("63144\n"), 0x01, 0x02, 0x03)
	_, err := Parse(bytes.NewReader(input))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseNonNumericPort(t *testing.T) {
	input := append([]byte("notaport\n"), make([]byte, 16)...)
	_, err := Parse(bytes.NewReader(input))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseNoNewline(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("63144")))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseTrailingBytesIgnored(t *testing.T) {
	nonce := bytes.Repeat([]byte{0xAB}, 16)
	input := append(append([]byte("4000\n"), nonce...), []byte("garbage-trailer")...)
	d, err := Parse(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Port != 4000 || !bytes.Equal(d.Nonce[:], nonce) {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}
