// internal/assuan/framer.go
// Package assuan implements a binary-safe, incremental framer for the
// GnuPG Assuan line protocol. It never interprets command semantics — it
// only finds line boundaries, INQUIRE D-block terminators, and the three
// terminal response keywords (OK / ERR / INQUIRE). Every byte that enters
// the framer is preserved exactly; nothing is normalised, trimmed, or
// duplicated.
//
// The scanning style (byte-index walks over a buffered reader, terminal
// line classified by its first token) mirrors the hand-rolled Assuan
// forwarding loop in addt's gpg_proxy.go, generalised here into a
// re-entrant, chunk-agnostic state machine instead of a blocking read loop.
package assuan

import "bytes"

// ResponseKind tags the three terminal Assuan response lines the framer
// must recognise. Any other line (S, D, #, blank) is non-terminal.
type ResponseKind int

const (
	// KindNone means the buffer does not yet end in a terminal line.
	KindNone ResponseKind = iota
	KindOK
	KindErr
	KindInquire
)

func (k ResponseKind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindErr:
		return "ERR"
	case KindInquire:
		return "INQUIRE"
	default:
		return "NONE"
	}
}

// Completion is the result of detecting whether a buffer ends in a
// terminal Assuan response.
type Completion struct {
	Complete bool
	Kind     ResponseKind
}

// Framer incrementally extracts discrete Assuan units — command lines and
// INQUIRE data blocks — from a stream of opaque 8-bit bytes. It holds no
// knowledge of which mode (command vs inquire) it should operate in; the
// caller picks the extractor appropriate to the state machine's current
// state: the framer is pure extraction, with mode selection left entirely
// to the driving state machine.
//
// A Framer is not safe for concurrent use; each Session owns exactly one.
type Framer struct {
	buf []byte
}

// New returns an empty Framer.
func New() *Framer {
	return &Framer{}
}

// Push appends bytes to the framer's internal buffer. The slice is copied;
// callers may reuse b immediately after Push returns.
func (f *Framer) Push(b []byte) {
	if len(b) == 0 {
		return
	}
	f.buf = append(f.buf, b...)
}

// Len reports the number of unconsumed bytes currently buffered.
func (f *Framer) Len() int { return len(f.buf) }

// Reset drops all buffered bytes. Used when a session is torn down.
func (f *Framer) Reset() { f.buf = nil }

// ExtractCommand returns the bytes up to and including the next '\n', or
// (nil, false) if no newline has been buffered yet. The returned slice is a
// fresh copy; the consumed prefix is removed from the internal buffer.
func (f *Framer) ExtractCommand() ([]byte, bool) {
	idx := bytes.IndexByte(f.buf, '\n')
	if idx < 0 {
		return nil, false
	}
	frame := make([]byte, idx+1)
	copy(frame, f.buf[:idx+1])
	f.buf = append([]byte(nil), f.buf[idx+1:]...)
	return frame, true
}

// inquireTerminator is the literal byte sequence that ends an INQUIRE
// D-block: the literal bytes "END" followed by a newline. The first
// occurrence of this sequence terminates the block, wherever it appears in
// the buffered segment, including in the middle of a line.
var inquireTerminator = []byte("END\n")

// ExtractInquireBlock returns the bytes up to and including the first
// occurrence of "END\n", or (nil, false) if that sequence has not yet
// appeared in the buffer. Like ExtractCommand, it never alters the
// returned bytes and removes only the consumed prefix from the buffer.
func (f *Framer) ExtractInquireBlock() ([]byte, bool) {
	idx := bytes.Index(f.buf, inquireTerminator)
	if idx < 0 {
		return nil, false
	}
	end := idx + len(inquireTerminator)
	frame := make([]byte, end)
	copy(frame, f.buf[:end])
	f.buf = append([]byte(nil), f.buf[end:]...)
	return frame, true
}

// DetectResponseCompletion determines whether buf ends in a terminal
// Assuan response line, without mutating buf or any Framer state. It is a
// pure function usable both by the host gateway (reading agent replies)
// and by tests.
//
// Algorithm: walk backwards from the end of buf over trailing blank lines,
// then inspect the first non-empty line found. A response is terminal iff
// that line begins with:
//   - "OK" followed by end-of-line or a single space plus trailing text,
//   - "ERR " followed by at least one non-whitespace character, or
//   - "INQUIRE " followed by at least one non-whitespace character.
//
// No trailing '\n' in buf always yields {false, KindNone}: a half-written
// final line can never be classified as terminal.
func DetectResponseCompletion(buf []byte) Completion {
	if len(buf) == 0 || buf[len(buf)-1] != '\n' {
		return Completion{Complete: false, Kind: KindNone}
	}

	lines := bytes.Split(buf, []byte("\n"))
	// Split on a string ending in '\n' always yields a trailing empty
	// element; drop it before walking backwards over blank lines.
	lines = lines[:len(lines)-1]

	var last []byte
	found := false
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := bytes.TrimRight(lines[i], " \t\r")
		if len(trimmed) == 0 {
			continue
		}
		last = trimmed
		found = true
		break
	}
	if !found {
		return Completion{Complete: false, Kind: KindNone}
	}

	switch {
	case bytes.Equal(last, []byte("OK")):
		return Completion{Complete: true, Kind: KindOK}
	case bytes.HasPrefix(last, []byte("OK ")):
		return Completion{Complete: true, Kind: KindOK}
	case bytes.HasPrefix(last, []byte("ERR ")) && len(bytes.TrimSpace(last[4:])) > 0:
		return Completion{Complete: true, Kind: KindErr}
	case bytes.HasPrefix(last, []byte("INQUIRE ")) && len(bytes.TrimSpace(last[8:])) > 0:
		return Completion{Complete: true, Kind: KindInquire}
	default:
		return Completion{Complete: false, Kind: KindNone}
	}
}
