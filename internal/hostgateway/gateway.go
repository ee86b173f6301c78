// internal/hostgateway/gateway.go
// Package hostgateway implements the host-side AgentGateway: it parses the
// GnuPG Assuan socket descriptor file once, then opens
// one dedicated loopback TCP connection per logical session to the local
// gpg-agent extra socket, performing the nonce handshake as the first bytes
// on each connection. connect/send/disconnect are exposed to the remote
// RequestProxy over the gRPC command channel in server.go; this file holds
// the transport-agnostic core so it can be unit tested without a socket.
package hostgateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nimbusrelay/gpgbridge/internal/assuan"
	"github.com/nimbusrelay/gpgbridge/internal/descriptor"
	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/internal/util"
)

// Error kinds the gateway surfaces to its callers. Wrapped with fmt.Errorf("%w: ...") so
// callers can match with errors.Is while keeping detail in the message.
var (
	ErrDescriptorInvalid     = errors.New("hostgateway: descriptor invalid")
	ErrSessionExists         = errors.New("hostgateway: session already exists")
	ErrNoSuchSession         = errors.New("hostgateway: no such session")
	ErrAgentConnectRefused   = errors.New("hostgateway: agent connection refused")
	ErrAgentHandshakeTimeout = errors.New("hostgateway: agent handshake timed out")
	ErrAgentUnexpectedClose  = errors.New("hostgateway: agent closed before greeting")
	ErrAgentDropped          = errors.New("hostgateway: agent connection dropped")
)

// Config tunes gateway timeouts and behaviour. Zero values take sane
// production defaults.
type Config struct {
	// DescriptorPath is the GnuPG Assuan socket descriptor file to parse at
	// construction time.
	DescriptorPath string

	// HandshakeTimeout bounds how long Connect waits for the agent's
	// greeting. Default 5s.
	HandshakeTimeout time.Duration

	// SendTimeout bounds how long a single Send call waits for a complete
	// response. Default 30s.
	SendTimeout time.Duration

	// MaxBufferBytes caps the response accumulator per session. Default 16 MiB.
	MaxBufferBytes int
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = 16 << 20
	}
}

// Gateway is the host-side AgentGateway: one instance per descriptor file,
// multiplexing many sessions onto independent loopback TCP connections.
type Gateway struct {
	cfg  Config
	desc descriptor.Descriptor
	tbl  *table

	// dial is overridable in tests to avoid a real TCP connection to an
	// agent; production callers leave it nil and get net.Dial.
	dial func(network, addr string) (net.Conn, error)
}

// New parses the descriptor file at cfg.DescriptorPath and returns a ready
// Gateway. It fails with ErrDescriptorInvalid if the file is malformed.
func New(cfg Config) (*Gateway, error) {
	cfg.setDefaults()
	d, err := descriptor.Load(cfg.DescriptorPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDescriptorInvalid, err)
	}
	return &Gateway{cfg: cfg, desc: d, tbl: newTable()}, nil
}

// SessionCount reports the number of currently live sessions.
func (g *Gateway) SessionCount() int { return g.tbl.count() }

func (g *Gateway) dialer() func(network, addr string) (net.Conn, error) {
	if g.dial != nil {
		return g.dial
	}
	return net.Dial
}

// Connect opens a new agent TCP connection, writes the nonce, and waits for
// the Assuan greeting. sessionID may be empty, in which case a fresh ULID is
// allocated; a non-empty, already-registered id fails with ErrSessionExists.
func (g *Gateway) Connect(sessionID string) (id string, greeting []byte, err error) {
	if sessionID == "" {
		sessionID, err = util.NewSessionID()
		if err != nil {
			return "", nil, fmt.Errorf("hostgateway: allocate session id: %w", err)
		}
	}

	addr := fmt.Sprintf("127.0.0.1:%d", g.desc.Port)
	conn, err := g.dialer()("tcp4", addr)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrAgentConnectRefused, err)
	}

	s := &session{id: sessionID, agentConn: conn}
	if err := g.tbl.insert(s); err != nil {
		conn.Close()
		return "", nil, err
	}

	greeting, err = g.handshake(s)
	if err != nil {
		g.tbl.remove(sessionID)
		conn.Close()
		return "", nil, err
	}

	logging.Sugar().Infow("session connected", "session_id", sessionID)
	return sessionID, greeting, nil
}

// handshake writes the nonce as the very first bytes on the agent socket,
// before any other traffic, and reads until the greeting's OK response
// completes.
func (g *Gateway) handshake(s *session) ([]byte, error) {
	deadline := time.Now().Add(g.cfg.HandshakeTimeout)
	_ = s.agentConn.SetDeadline(deadline)
	defer s.agentConn.SetDeadline(time.Time{})

	if _, err := s.agentConn.Write(g.desc.Nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: writing nonce: %v", ErrAgentUnexpectedClose, err)
	}

	var acc []byte
	buf := make([]byte, 4096)
	for {
		n, err := s.agentConn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			if c := assuan.DetectResponseCompletion(acc); c.Complete {
				if c.Kind != assuan.KindOK {
					return nil, fmt.Errorf("%w: greeting was %s, not OK", ErrAgentUnexpectedClose, c.Kind)
				}
				return acc, nil
			}
			if len(acc) > g.cfg.MaxBufferBytes {
				return nil, fmt.Errorf("%w: greeting exceeded buffer cap", ErrAgentUnexpectedClose)
			}
		}
		if err != nil {
			if isTimeout(err) {
				return nil, ErrAgentHandshakeTimeout
			}
			return nil, fmt.Errorf("%w: %v", ErrAgentUnexpectedClose, err)
		}
	}
}

// isTimeout reports whether err is a network timeout, covering both the
// net.Error interface and context deadline propagation.
func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

// Send writes commandBlock to the agent socket bound to sessionID and
// returns the agent's verbatim reply once DetectResponseCompletion reports
// it complete. Sends on the same session are serialised by session.sendMu;
// sends on different sessions never block each other.
func (g *Gateway) Send(sessionID string, commandBlock []byte) ([]byte, error) {
	s, ok := g.tbl.get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchSession, sessionID)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	deadline := time.Now().Add(g.cfg.SendTimeout)
	_ = s.agentConn.SetDeadline(deadline)
	defer s.agentConn.SetDeadline(time.Time{})

	if _, err := s.agentConn.Write(commandBlock); err != nil {
		g.teardown(sessionID)
		return nil, fmt.Errorf("%w: writing command: %v", ErrAgentDropped, err)
	}

	s.accumulator = s.accumulator[:0]
	buf := make([]byte, 4096)
	for {
		n, err := s.agentConn.Read(buf)
		if n > 0 {
			s.accumulator = append(s.accumulator, buf[:n]...)
			if c := assuan.DetectResponseCompletion(s.accumulator); c.Complete {
				resp := append([]byte(nil), s.accumulator...)
				s.accumulator = s.accumulator[:0]
				return resp, nil
			}
			if len(s.accumulator) > g.cfg.MaxBufferBytes {
				g.teardown(sessionID)
				return nil, fmt.Errorf("%w: response exceeded buffer cap", ErrAgentDropped)
			}
		}
		if err != nil {
			g.teardown(sessionID)
			if isTimeout(err) {
				return nil, fmt.Errorf("hostgateway: send timed out: %w", ErrAgentDropped)
			}
			return nil, fmt.Errorf("%w: %v", ErrAgentDropped, err)
		}
	}
}

// Disconnect closes the agent socket for sessionID and removes it from the
// table. Idempotent: unknown ids succeed silently.
func (g *Gateway) Disconnect(sessionID string) error {
	g.teardown(sessionID)
	return nil
}

// teardown is the single path that closes an agent socket and evicts its
// session; both Send's failure paths and the public Disconnect route
// through it so the table never retains a session whose socket is closed.
func (g *Gateway) teardown(sessionID string) {
	s, ok := g.tbl.remove(sessionID)
	if !ok {
		return
	}
	if err := s.agentConn.Close(); err != nil {
		logging.Sugar().Debugw("agent socket close", "session_id", sessionID, "err", err)
	}
	logging.Sugar().Infow("session disconnected", "session_id", sessionID)
}
