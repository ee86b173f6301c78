// internal/util/id.go
// Session id allocation. GnuPG sessions need an opaque, unique-within-the-
// gateway identifier; ULIDs are 128-bit, URL-safe, and lexicographically
// sortable by creation time, which makes them convenient for log
// correlation across the host and remote sides of the bridge.
package util

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mrand "math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

var entropy *ulid.MonotonicEntropy

func init() {
	var seed int64
	_ = binaryRead(rand.Reader, &seed)
	entropy = ulid.Monotonic(mrand.New(mrand.NewSource(seed)), 0)
}

// NewSessionID returns a fresh ULID string suitable as a Session.session_id.
func NewSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewSessionID panics on entropy read failure; used only where a
// caller has no sensible error path (e.g. package-level test helpers).
func MustNewSessionID() string {
	s, err := NewSessionID()
	if err != nil {
		panic(err)
	}
	return s
}

func binaryRead(r io.Reader, v interface{}) error {
	return binary.Read(r, binary.BigEndian, v)
}
