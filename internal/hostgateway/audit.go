// internal/hostgateway/audit.go
// Package-internal audit trail for session lifecycle events (connect, send,
// disconnect, error) -- never Assuan payload bytes. The in-memory store is a
// time-bounded ring buffer sized for a single-instance gateway; the Redis
// store lets multiple gateway instances (or a separate audit viewer process)
// share one trail.
package hostgateway

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimbusrelay/gpgbridge/internal/logging"
)

// AuditStore retains recent session lifecycle events for operator review.
// Implementations must be safe for concurrent use.
type AuditStore interface {
	// Write persists one JSON-encoded lifecycleEvent.
	Write(b []byte) error

	// ReadAll returns retained events, oldest first, as deep copies.
	ReadAll() [][]byte
}

// inMemAudit is a circular buffer that drops events older than retentionDur.
type inMemAudit struct {
	retentionDur time.Duration

	mu     sync.RWMutex
	idx    int
	buf    [][]byte
	tsBuf  []time.Time
	filled bool
}

// NewInMemAudit constructs an AuditStore retaining events for up to d. The
// ring holds ten slots per second of d, so at higher event rates older
// events are overwritten before d has elapsed.
func NewInMemAudit(d time.Duration) AuditStore {
	if d < time.Second {
		d = time.Second
	}
	capSlots := int(d.Seconds()*10) + 1
	return &inMemAudit{
		retentionDur: d,
		buf:          make([][]byte, capSlots),
		tsBuf:        make([]time.Time, capSlots),
	}
}

func (r *inMemAudit) Write(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cloned := append([]byte(nil), b...)

	r.buf[r.idx] = cloned
	r.tsBuf[r.idx] = now
	r.idx = (r.idx + 1) % len(r.buf)
	if r.idx == 0 {
		r.filled = true
	}

	if !r.filled {
		return nil
	}
	cutoff := now.Add(-r.retentionDur)
	if r.tsBuf[r.idx].After(cutoff) {
		return nil
	}
	for i, ts := range r.tsBuf {
		if ts.Before(cutoff) {
			r.buf[i] = nil
			r.tsBuf[i] = time.Time{}
		}
	}
	return nil
}

func (r *inMemAudit) ReadAll() [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res [][]byte
	appendClone := func(b []byte) {
		if b == nil {
			return
		}
		res = append(res, append([]byte(nil), b...))
	}

	if !r.filled {
		for i := 0; i < r.idx; i++ {
			appendClone(r.buf[i])
		}
		return res
	}
	for i := r.idx; i < len(r.buf); i++ {
		appendClone(r.buf[i])
	}
	for i := 0; i < r.idx; i++ {
		appendClone(r.buf[i])
	}
	return res
}

const redisAuditKey = "gpgbridge:audit"

type redisAudit struct {
	cli          *redis.Client
	retentionDur time.Duration
	maxLen       int64
}

// NewRedisAudit returns an AuditStore backed by a capped Redis list.
// eventsPerSecond is an estimate used to size list trimming.
func NewRedisAudit(cli *redis.Client, retention time.Duration, eventsPerSecond int) AuditStore {
	if retention < time.Second {
		retention = time.Second
	}
	if eventsPerSecond <= 0 {
		eventsPerSecond = 10
	}
	maxLen := int64(retention.Seconds()*float64(eventsPerSecond)) + 100
	return &redisAudit{cli: cli, retentionDur: retention, maxLen: maxLen}
}

func (r *redisAudit) Write(b []byte) error {
	ctx := context.Background()
	pipe := r.cli.Pipeline()
	pipe.LPush(ctx, redisAuditKey, b)
	pipe.LTrim(ctx, redisAuditKey, 0, r.maxLen)
	pipe.Expire(ctx, redisAuditKey, r.retentionDur)
	if _, err := pipe.Exec(ctx); err != nil {
		logging.Sugar().Warnw("redis audit write", "err", err)
	}
	return nil
}

func (r *redisAudit) ReadAll() [][]byte {
	ctx := context.Background()
	vals, err := r.cli.LRange(ctx, redisAuditKey, 0, -1).Result()
	if err != nil {
		logging.Sugar().Warnw("redis audit read", "err", err)
		return nil
	}
	n := len(vals)
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		raw := []byte(vals[n-1-i])
		out[i] = append([]byte(nil), raw...)
	}
	return out
}

// NewAuditStoreFromDSN builds an AuditStore from cfg.AuditRedisDSN, falling
// back to an in-memory store when the DSN is empty or unparsable.
func NewAuditStoreFromDSN(dsn string, retention time.Duration) AuditStore {
	if dsn == "" {
		return NewInMemAudit(retention)
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		logging.Sugar().Warnw("invalid audit redis dsn, falling back to in-memory", "err", err)
		return NewInMemAudit(retention)
	}
	return NewRedisAudit(redis.NewClient(opts), retention, 10)
}
