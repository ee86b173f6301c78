// internal/logging/logger.go
// Package logging provides a thin global wrapper around zap.Logger so that
// both the host gateway and the remote proxy — separate binaries that never
// share a process — can log without threading a logger through every call.
//
// The design is intentionally minimal: a single atomic pointer and helper
// accessors. Tests may swap the logger (e.g., to zaptest.Buffer) without
// data races. Production code sets the logger once during program start
// (see cmd/gpgbridge-host/main.go or cmd/gpgbridge-remote/main.go).
package logging

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	l       atomic.Pointer[zap.Logger]
	nopOnce = zap.NewNop()
)

// Set installs the given zap.Logger as the global logger.
// Calling Set more than once overwrites the previous logger; this is useful
// in tests. The function never panics on nil input -- it silently
// downgrades to the shared no-op logger.
func Set(logger *zap.Logger) {
	if logger == nil {
		logger = nopOnce
	}
	l.Store(logger)
}

// Logger returns the globally registered *zap.Logger. If none has been set
// it returns a no-op logger so that callers can safely continue.
func Logger() *zap.Logger {
	if logger := l.Load(); logger != nil {
		return logger
	}
	l.Store(nopOnce)
	return nopOnce
}

// Sugar is shorthand for Logger().Sugar().
func Sugar() *zap.SugaredLogger { return Logger().Sugar() }

// Initialised reports whether a non-nop logger has been set.
func Initialised() bool {
	logger := l.Load()
	return logger != nil && logger != nopOnce
}
