// internal/obs/tracebridge.go
// Minimal trace-id correlation bridge across the host/remote process
// boundary. It carries no OpenTelemetry SDK or exporter -- only enough of
// go.opentelemetry.io/otel/trace's SpanContext type to generate a W3C
// traceparent header on the remote side, propagate it over the existing
// gRPC metadata channel, and let the host gateway log against the same
// trace id. Keeps an in-memory session-id -> SpanContext map with TTL
// eviction so a slow leak of abandoned sessions can't grow it unbounded.
package obs

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const defaultTTL = 2 * time.Minute

type entry struct {
	sc trace.SpanContext
	ts time.Time
}

// Bridge correlates session ids to trace contexts for logging only; it
// never talks to a collector.
type Bridge struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]entry
}

// NewBridge returns a Bridge evicting entries older than ttl (default 2m).
func NewBridge(ttl time.Duration) *Bridge {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Bridge{ttl: ttl, m: make(map[string]entry)}
}

// StartClientSide generates a fresh trace context for sessionID, records it,
// and returns its W3C traceparent representation (version "00", sampled
// flag set) for the remote proxy to attach to its gRPC calls.
func (b *Bridge) StartClientSide(sessionID string) string {
	var tid trace.TraceID
	var sid trace.SpanID
	_, _ = rand.Read(tid[:])
	_, _ = rand.Read(sid[:])

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	})
	b.record(sessionID, sc)
	return traceparent(sc)
}

// AdoptServerSide parses an inbound traceparent header (as received via gRPC
// metadata) and records the resulting context against sessionID so the host
// gateway's logs carry the same trace id as the remote proxy's. Malformed
// headers are ignored: nothing is recorded, and Fields returns nil for a
// session that has no other entry.
func (b *Bridge) AdoptServerSide(sessionID, header string) {
	sc, ok := parseTraceparent(header)
	if !ok {
		return
	}
	b.record(sessionID, sc)
}

func (b *Bridge) record(sessionID string, sc trace.SpanContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[sessionID] = entry{sc: sc, ts: time.Now()}
	b.evictLocked()
}

// Fields returns zap SugaredLogger-style key/value pairs for sessionID's
// trace context, or nil if none is recorded (or it has expired).
func (b *Bridge) Fields(sessionID string) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.m[sessionID]
	if !ok || time.Since(e.ts) > b.ttl {
		return nil
	}
	return []interface{}{"trace_id", e.sc.TraceID().String(), "span_id", e.sc.SpanID().String()}
}

func (b *Bridge) evictLocked() {
	now := time.Now()
	for id, e := range b.m {
		if now.Sub(e.ts) > b.ttl {
			delete(b.m, id)
		}
	}
}

// traceparent formats sc per the W3C Trace Context spec, version "00".
func traceparent(sc trace.SpanContext) string {
	return fmt.Sprintf("00-%s-%s-%02x", sc.TraceID().String(), sc.SpanID().String(), sc.TraceFlags())
}

// parseTraceparent parses the "00-<trace_id>-<span_id>-<flags>" format.
func parseTraceparent(h string) (trace.SpanContext, bool) {
	parts := strings.Split(h, "-")
	if len(parts) != 4 || parts[0] != "00" {
		return trace.SpanContext{}, false
	}
	tid, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return trace.SpanContext{}, false
	}
	sid, err := trace.SpanIDFromHex(parts[2])
	if err != nil {
		return trace.SpanContext{}, false
	}
	flags := trace.TraceFlags(0)
	if parts[3] == "01" {
		flags = trace.FlagsSampled
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: flags})
	return sc, sc.IsValid()
}
