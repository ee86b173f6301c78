package assuan

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestExtractCommand(t *testing.T) {
	f := New()
	f.Push([]byte("GETINFO version\nBYE"))

	frame, ok := f.ExtractCommand()
	if !ok {
		t.Fatal("expected a frame")
	}
	if string(frame) != "GETINFO version\n" {
		t.Fatalf("got %q", frame)
	}
	if string(f.buf) != "BYE" {
		t.Fatalf("residual = %q", f.buf)
	}

	if _, ok := f.ExtractCommand(); ok {
		t.Fatal("expected no frame on second call")
	}
}

func TestExtractCommandSplitAcrossChunks(t *testing.T) {
	f := New()
	f.Push([]byte("GETI"))
	if _, ok := f.ExtractCommand(); ok {
		t.Fatal("should not have a full line yet")
	}
	f.Push([]byte("NFO version\n"))
	frame, ok := f.ExtractCommand()
	if !ok || string(frame) != "GETINFO version\n" {
		t.Fatalf("got %q ok=%v", frame, ok)
	}
}

func TestExtractInquireBlock(t *testing.T) {
	f := New()
	f.Push([]byte("D line1\nD line2\nEND\n"))
	frame, ok := f.ExtractInquireBlock()
	if !ok {
		t.Fatal("expected a frame")
	}
	if string(frame) != "D line1\nD line2\nEND\n" {
		t.Fatalf("got %q", frame)
	}
	if f.Len() != 0 {
		t.Fatalf("residual should be empty, got %d bytes", f.Len())
	}
}

func TestExtractInquireBlockTerminatorAnywhere(t *testing.T) {
	f := New()
	f.Push([]byte("D abcEND\nEND\nmore"))
	frame, ok := f.ExtractInquireBlock()
	if !ok {
		t.Fatal("expected a frame")
	}
	// The first occurrence of "END\n" terminates the block, even though it
	// appears mid-line rather than at a line boundary.
	if string(frame) != "D abcEND\n" {
		t.Fatalf("got %q", frame)
	}
	if string(f.buf) != "END\nmore" {
		t.Fatalf("residual = %q", f.buf)
	}
}

func TestDetectResponseCompletion(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Completion
	}{
		{"ok-bare", "OK\n", Completion{true, KindOK}},
		{"ok-with-text", "OK Pleased to meet you\n", Completion{true, KindOK}},
		{"err", "ERR 67108949 No such file\n", Completion{true, KindErr}},
		{"inquire", "INQUIRE PASSPHRASE\n", Completion{true, KindInquire}},
		{"interleaved-status-ok", "S PROGRESS 50 100\nS PROGRESS 100 100\nOK\n", Completion{true, KindOK}},
		{"no-trailing-newline", "S PROGRESS 50 100\nS PROGRESS 100 100\nOK", Completion{false, KindNone}},
		{"status-only", "S PROGRESS 50 100\n", Completion{false, KindNone}},
		{"data-only", "D deadbeef\n", Completion{false, KindNone}},
		{"comment-only-at-end", "S foo\n# trailing comment\n", Completion{false, KindNone}},
		{"blank-lines-after-ok", "OK\n\n\n", Completion{true, KindOK}},
		{"err-no-text", "ERR \n", Completion{false, KindNone}},
		{"empty", "", Completion{false, KindNone}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectResponseCompletion([]byte(tc.in))
			if got != tc.want {
				t.Fatalf("DetectResponseCompletion(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

// TestByteTransparency verifies that every byte value 0x00..0xFF survives a
// round trip through the framer untouched, including as the sole payload
// byte of a command frame. A 0x0A payload byte is itself a line terminator,
// so it yields a one-byte frame and leaves the trailing '\n' buffered.
func TestByteTransparency(t *testing.T) {
	for v := 0; v <= 0xFF; v++ {
		f := New()
		payload := []byte{byte(v), '\n'}
		f.Push(payload)
		frame, ok := f.ExtractCommand()
		if !ok {
			t.Fatalf("byte %#x: expected frame", v)
		}
		want := payload
		if v == '\n' {
			want = payload[:1]
		}
		if !bytes.Equal(frame, want) {
			t.Fatalf("byte %#x: got %v, want %v", v, frame, want)
		}
		if f.Len() != len(payload)-len(want) {
			t.Fatalf("byte %#x: residual = %d bytes, want %d", v, f.Len(), len(payload)-len(want))
		}
	}
}

// TestFramingRoundTrip exercises the guarantee that splitting a stream
// across arbitrary chunk boundaries yields the same frames.
func TestFramingRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	full := []byte("GETINFO version\nSCD SERIALNO\nBYE\n")

	for trial := 0; trial < 50; trial++ {
		f := New()
		var got []byte
		i := 0
		for i < len(full) {
			n := 1 + rng.Intn(5)
			if i+n > len(full) {
				n = len(full) - i
			}
			f.Push(full[i : i+n])
			i += n
			for {
				frame, ok := f.ExtractCommand()
				if !ok {
					break
				}
				got = append(got, frame...)
			}
		}
		residual := append([]byte(nil), f.buf...)
		got = append(got, residual...)
		if !bytes.Equal(got, full) {
			t.Fatalf("trial %d: round trip mismatch: got %q want %q", trial, got, full)
		}
	}
}
