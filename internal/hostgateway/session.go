// internal/hostgateway/session.go
// Session bookkeeping for the host-side AgentGateway. A session is an
// arena-owned record: the gateway's table is the single owner, tasks hold
// only the session id and look the record up under the table's mutex to
// mutate it. This avoids the client-socket/agent-socket/state cyclic
// reference a naive design would otherwise require.
package hostgateway

import (
	"fmt"
	"net"
	"sync"
)

// session holds everything the gateway needs to service one logical
// client-to-agent exchange. Exactly one goroutine — the one executing a
// Send or Connect call for this session — touches agentConn at a time; the
// sendMu field enforces that at the API boundary: at most one outstanding
// send per session.
type session struct {
	id        string
	agentConn net.Conn

	sendMu sync.Mutex // serialises Send calls on this session

	accumulator []byte // response bytes read so far, cleared after each Send
}

// table is the gateway's shared mutable session registry. Every mutation —
// insert, lookup, remove — happens under mu; none of the actual socket I/O
// does.
type table struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newTable() *table {
	return &table{sessions: make(map[string]*session)}
}

// insert adds s under s.id. Returns ErrSessionExists if the id is already
// registered — the gateway never silently overwrites a live session.
func (t *table) insert(s *session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[s.id]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.id)
	}
	t.sessions[s.id] = s
	return nil
}

// get returns the session for id, or (nil, false) if absent.
func (t *table) get(id string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// remove deletes id from the table and returns the removed session, if any.
// Idempotent: removing an unknown id is a no-op.
func (t *table) remove(id string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	return s, ok
}

// count returns the number of live sessions; used by the /metrics and /ws
// debug endpoints.
func (t *table) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
