// internal/remoteproxy/client.go
// CommandChannel is the small capability contract for connect/send/
// disconnect over whatever opaque bidirectional channel the environment
// provides. grpcChannel is the production implementation, wrapping
// internal/rpc.Client with automatic reconnect: it maintains a persistent
// gRPC connection to the host gateway and reconnects with a cenkalti
// back-off policy on failure.
package remoteproxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/nimbusrelay/gpgbridge/internal/obs"
	"github.com/nimbusrelay/gpgbridge/internal/rpc"
	"github.com/nimbusrelay/gpgbridge/pkg/auth"
)

// CommandChannel is the RequestProxy's view of the AgentGateway RPCs.
type CommandChannel interface {
	Connect(ctx context.Context, sessionID string) (id string, greeting []byte, err error)
	Send(ctx context.Context, sessionID string, commandBlock []byte) ([]byte, error)
	Disconnect(ctx context.Context, sessionID string) error
	Close() error
}

// ChannelConfig parameterises the gRPC command channel to the host gateway.
type ChannelConfig struct {
	Addr        string
	AuthToken   string
	TLSConfig   *tls.Config // nil dials with insecure transport credentials
	DialRetry   backoff.BackOff
	DialTimeout time.Duration
	// TraceBridge attaches a W3C traceparent header to Send/Disconnect calls
	// so the host gateway's logs for a session can be correlated with this
	// proxy's. Defaults to a private bridge if nil.
	TraceBridge *obs.Bridge
	// JWTSecret, when set, switches the channel from a static bearer token
	// to a short-lived HMAC JWT signed with this secret on every call. Takes
	// precedence over AuthToken when both are set; the host gateway must be
	// configured with the matching secret for tokens to verify.
	JWTSecret []byte
	// JWTIssuer is the iss claim on signed tokens. Must match the host
	// gateway's configured issuer when it checks one.
	JWTIssuer string
	// JWTSubject is the sub claim; defaults to "gpgbridge-remote".
	JWTSubject string
}

// grpcChannel implements CommandChannel over internal/rpc.Client, redialing
// with a jittered exponential back-off whenever a Connect or Send call
// fails, whatever the error. The RequestProxy never retries at the protocol level:
// reconnection here only restores the transport, it never resends an
// in-flight command block on the caller's behalf.
type grpcChannel struct {
	cfg           ChannelConfig
	signer        *auth.Signer
	signerSubject string

	mu     sync.Mutex
	client *rpc.Client
}

// NewGRPCChannel dials addr and returns a ready CommandChannel. The initial
// dial blocks until connected or cfg.DialTimeout elapses.
func NewGRPCChannel(ctx context.Context, cfg ChannelConfig) (CommandChannel, error) {
	if cfg.DialRetry == nil {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 250 * time.Millisecond
		bo.MaxInterval = 10 * time.Second
		bo.MaxElapsedTime = time.Minute
		cfg.DialRetry = bo
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.TraceBridge == nil {
		cfg.TraceBridge = obs.NewBridge(0)
	}

	g := &grpcChannel{cfg: cfg}
	if len(cfg.JWTSecret) > 0 {
		subject := cfg.JWTSubject
		if subject == "" {
			subject = "gpgbridge-remote"
		}
		g.signer = auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer, 5*time.Minute)
		g.signerSubject = subject
	}
	if err := g.dial(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *grpcChannel) dial(ctx context.Context) error {
	creds := insecure.NewCredentials()
	if g.cfg.TLSConfig != nil {
		creds = credentials.NewTLS(g.cfg.TLSConfig)
	}

	dialCtx, cancel := context.WithTimeout(ctx, g.cfg.DialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, g.cfg.Addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
	)
	if err != nil {
		return fmt.Errorf("remoteproxy: dial host gateway: %w", err)
	}

	g.mu.Lock()
	g.client = rpc.NewClient(conn)
	g.mu.Unlock()
	return nil
}

// authContext attaches a bearer credential (if configured) and, for calls
// scoped to an established sessionID, a traceparent header the host gateway
// can adopt for log correlation. sessionID is empty for the initial Connect
// call, before the gateway has allocated one. When a JWT signer is
// configured it takes precedence over the static AuthToken: each call gets a
// freshly signed, short-lived token rather than one long-lived shared
// secret sent verbatim on every call.
func (g *grpcChannel) authContext(ctx context.Context, sessionID string) context.Context {
	pairs := make([]string, 0, 4)
	switch {
	case g.signer != nil:
		if tok, err := g.signedToken(); err == nil {
			pairs = append(pairs, "authorization", "Bearer "+tok)
		}
	case g.cfg.AuthToken != "":
		pairs = append(pairs, "authorization", "Bearer "+g.cfg.AuthToken)
	}
	if sessionID != "" {
		pairs = append(pairs, "traceparent", g.cfg.TraceBridge.StartClientSide(sessionID))
	}
	if len(pairs) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, metadata.Pairs(pairs...))
}

func (g *grpcChannel) signedToken() (string, error) {
	claims := g.signer.Claims(g.signerSubject, nil)
	return g.signer.Sign(claims)
}

func (g *grpcChannel) current() *rpc.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client
}

// reconnect closes the current connection and retries dial per cfg.DialRetry.
func (g *grpcChannel) reconnect(ctx context.Context) error {
	g.mu.Lock()
	if g.client != nil {
		_ = g.client.Close()
		g.client = nil
	}
	g.mu.Unlock()

	bo := g.cfg.DialRetry
	bo.Reset()
	for {
		next := bo.NextBackOff()
		if next == backoff.Stop {
			return context.DeadlineExceeded
		}
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := g.dial(ctx); err == nil {
			return nil
		}
	}
}

func (g *grpcChannel) Connect(ctx context.Context, sessionID string) (string, []byte, error) {
	resp, err := g.current().Connect(g.authContext(ctx, ""), &rpc.ConnectRequest{SessionID: sessionID})
	if err != nil {
		if reErr := g.reconnect(ctx); reErr != nil {
			return "", nil, fmt.Errorf("remoteproxy: connect: %w (reconnect: %v)", err, reErr)
		}
		return "", nil, fmt.Errorf("remoteproxy: connect: %w", err)
	}
	return resp.SessionID, resp.Greeting, nil
}

func (g *grpcChannel) Send(ctx context.Context, sessionID string, commandBlock []byte) ([]byte, error) {
	resp, err := g.current().Send(g.authContext(ctx, sessionID), &rpc.SendRequest{SessionID: sessionID, CommandBlock: commandBlock})
	if err != nil {
		if reErr := g.reconnect(ctx); reErr != nil {
			return nil, fmt.Errorf("remoteproxy: send: %w (reconnect: %v)", err, reErr)
		}
		return nil, fmt.Errorf("remoteproxy: send: %w", err)
	}
	return resp.Response, nil
}

func (g *grpcChannel) Disconnect(ctx context.Context, sessionID string) error {
	return g.current().Disconnect(g.authContext(ctx, sessionID), &rpc.DisconnectRequest{SessionID: sessionID})
}

func (g *grpcChannel) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
