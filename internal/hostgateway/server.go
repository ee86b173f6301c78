// internal/hostgateway/server.go
// gRPC front door for the host gateway: wraps a Gateway and exposes it as
// an internal/rpc.Server so remote proxies can invoke connect/send/
// disconnect over the cross-host command channel. The interceptor chain and
// TLS wiring follow the same shape as a typical gRPC-fronted control plane:
// a chained unary interceptor for auth, optional server-side TLS.
package hostgateway

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/internal/metrics"
	"github.com/nimbusrelay/gpgbridge/internal/obs"
	"github.com/nimbusrelay/gpgbridge/internal/rpc"
	"github.com/nimbusrelay/gpgbridge/pkg/auth"
)

var (
	ErrUnauthenticated = status.Error(codes.Unauthenticated, "missing auth token")
	ErrInvalidToken    = status.Error(codes.PermissionDenied, "invalid auth token")
)

// Server adapts a Gateway to the rpc.Server contract and hosts it behind a
// grpc.Server with optional bearer/JWT auth.
type Server struct {
	gw  *Gateway
	cfg ServerConfig
	jwt jwtHelper

	grpcSrv *grpc.Server

	subsMu sync.RWMutex
	subs   map[chan []byte]struct{}

	audit  AuditStore // nil disables the audit trail
	tracer *obs.Bridge
}

// SetAuditStore attaches an AuditStore; every subsequent lifecycle event is
// appended to it in addition to being broadcast to /ws subscribers. Pass nil
// to disable (the default).
func (s *Server) SetAuditStore(a AuditStore) { s.audit = a }

// lifecycleEvent is broadcast to /ws debug subscribers whenever a session is
// created, served, or torn down. It never carries Assuan payload bytes --
// passphrases and key material must never reach the operator debug channel
// either -- only metadata about the event itself.
type lifecycleEvent struct {
	Kind      string `json:"kind"` // connect|send|disconnect|error
	SessionID string `json:"session_id"`
	Bytes     int    `json:"bytes,omitempty"`
	Err       string `json:"err,omitempty"`
	At        string `json:"at"`
}

// broadcast fans event out to every subscriber without blocking the caller;
// an event a slow consumer has no room for is dropped for that consumer
// rather than allowed to stall the gateway.
func (s *Server) broadcast(ev lifecycleEvent) {
	if s.audit == nil && func() bool {
		s.subsMu.RLock()
		defer s.subsMu.RUnlock()
		return len(s.subs) == 0
	}() {
		return
	}

	buf, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if s.audit != nil {
		if err := s.audit.Write(buf); err != nil {
			logging.Sugar().Debugw("audit write", "err", err)
		}
	}

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- buf:
		default:
			logging.Sugar().Debug("dropping lifecycle event to slow debug subscriber")
		}
	}
}

// Subscribe registers a debug client and returns a channel of JSON-encoded
// lifecycleEvent messages plus an unregister func the caller must invoke
// when done.
func (s *Server) Subscribe() (ch chan []byte, unregister func()) {
	ch = make(chan []byte, 64)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	unregister = func() {
		s.subsMu.Lock()
		delete(s.subs, ch)
		s.subsMu.Unlock()
		close(ch)
	}
	return ch, unregister
}

type jwtHelper struct {
	secret   []byte
	verifier *auth.Verifier
}

func newJWTHelper(secret []byte, issuer string) jwtHelper {
	if len(secret) == 0 {
		return jwtHelper{}
	}
	return jwtHelper{secret: secret, verifier: auth.NewVerifier(secret, issuer)}
}

// NewServer builds a Server around gw, installing auth interceptors per
// cfg.
func NewServer(gw *Gateway, cfg ServerConfig) *Server {
	s := &Server{
		gw:   gw,
		cfg:  cfg,
		jwt:    newJWTHelper(cfg.JWTSecret, cfg.JWTIssuer),
		subs:   make(map[chan []byte]struct{}),
		tracer: obs.NewBridge(0),
	}

	var opts []grpc.ServerOption
	if cfg.TLSConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(cfg.TLSConfig)))
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(s.unaryAuthInterceptor()))

	s.grpcSrv = grpc.NewServer(opts...)
	rpc.RegisterCommandChannelServer(s.grpcSrv, s)
	return s
}

// ListenAndServe binds cfg.ListenAddr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.grpcSrv.GracefulStop()
	}()

	logging.Sugar().Infow("host gateway listening", "addr", ln.Addr().String())
	return s.grpcSrv.Serve(ln)
}

// --------------------------------------------------------------------------
// rpc.Server implementation
// --------------------------------------------------------------------------

func (s *Server) Connect(ctx context.Context, req *rpc.ConnectRequest) (*rpc.ConnectResponse, error) {
	timer := metrics.NewTimer(metrics.AgentConnectDuration)
	defer timer.ObserveDuration()

	id, greeting, err := s.gw.Connect(req.SessionID)
	if err != nil {
		metrics.AgentConnectErrors.Inc()
		s.broadcast(lifecycleEvent{Kind: "error", SessionID: req.SessionID, Err: err.Error(), At: now()})
		return nil, translateErr(err)
	}
	metrics.SessionsActive.Set(float64(s.gw.SessionCount()))
	s.broadcast(lifecycleEvent{Kind: "connect", SessionID: id, At: now()})
	return &rpc.ConnectResponse{SessionID: id, Greeting: greeting}, nil
}

// now formats the current time for lifecycle events; a thin wrapper keeps
// the single non-deterministic call in one place.
func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *Server) Send(ctx context.Context, req *rpc.SendRequest) (*rpc.SendResponse, error) {
	timer := metrics.NewTimer(metrics.AgentSendDuration)
	defer timer.ObserveDuration()
	s.adoptTrace(ctx, req.SessionID)

	resp, err := s.gw.Send(req.SessionID, req.CommandBlock)
	if err != nil {
		metrics.AgentSendErrors.Inc()
		metrics.SessionsActive.Set(float64(s.gw.SessionCount()))
		s.broadcast(lifecycleEvent{Kind: "error", SessionID: req.SessionID, Err: err.Error(), At: now()})
		return nil, translateErr(err)
	}
	logging.Sugar().Debugw("agent send", append([]interface{}{"session_id", req.SessionID, "bytes", len(req.CommandBlock)}, s.tracer.Fields(req.SessionID)...)...)
	s.broadcast(lifecycleEvent{Kind: "send", SessionID: req.SessionID, Bytes: len(req.CommandBlock), At: now()})
	return &rpc.SendResponse{Response: resp}, nil
}

func (s *Server) Disconnect(ctx context.Context, req *rpc.DisconnectRequest) (*emptypb.Empty, error) {
	s.adoptTrace(ctx, req.SessionID)
	if err := s.gw.Disconnect(req.SessionID); err != nil {
		return nil, translateErr(err)
	}
	metrics.SessionsActive.Set(float64(s.gw.SessionCount()))
	logging.Sugar().Infow("session disconnected", append([]interface{}{"session_id", req.SessionID}, s.tracer.Fields(req.SessionID)...)...)
	s.broadcast(lifecycleEvent{Kind: "disconnect", SessionID: req.SessionID, At: now()})
	return &emptypb.Empty{}, nil
}

// adoptTrace extracts an inbound traceparent header (set by the remote
// proxy's grpcChannel) and records it against sessionID so this server's
// subsequent log lines for the same session carry a matching trace id.
func (s *Server) adoptTrace(ctx context.Context, sessionID string) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return
	}
	vals := md.Get("traceparent")
	if len(vals) == 0 {
		return
	}
	s.tracer.AdoptServerSide(sessionID, vals[0])
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isErr(err, ErrSessionExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case isErr(err, ErrNoSuchSession):
		return status.Error(codes.NotFound, err.Error())
	case isErr(err, ErrAgentConnectRefused), isErr(err, ErrAgentUnexpectedClose):
		return status.Error(codes.Unavailable, err.Error())
	case isErr(err, ErrAgentHandshakeTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case isErr(err, ErrAgentDropped):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func isErr(err, target error) bool {
	for e := err; e != nil; {
		if e == target {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// --------------------------------------------------------------------------
// auth
// --------------------------------------------------------------------------

func (s *Server) unaryAuthInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := s.authFromContext(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (s *Server) authFromContext(ctx context.Context) error {
	if s.cfg.AuthToken == "" && len(s.jwt.secret) == 0 {
		return nil // auth disabled
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ErrUnauthenticated
	}
	return s.validateBearer(vals[0])
}

func (s *Server) validateBearer(token string) error {
	token = strings.TrimPrefix(token, "Bearer ")
	if len(s.jwt.secret) > 0 {
		_, err := s.jwt.verifier.ParseAndVerify(token)
		if err != nil {
			return ErrInvalidToken
		}
		return nil
	}
	if token != s.cfg.AuthToken {
		return ErrInvalidToken
	}
	return nil
}
