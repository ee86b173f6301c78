// cmd/gpgbridge-remote/main.go
// Binary entrypoint for the standalone remote request proxy. It resolves
// the canonical agent socket path via gpgconf (or an explicit --socket-path
// override), dials the host gateway over gRPC, and serves client Assuan
// connections until a signal is received: flags, logger, component wiring,
// signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/internal/remoteproxy"
	"github.com/nimbusrelay/gpgbridge/pkg/gpgconf"
)

func main() {
	gatewayAddr := flag.String("gateway", "localhost:4321", "gpgbridge host gateway gRPC address")
	socketPath := flag.String("socket-path", "", "Override the agent socket path (default: resolved via gpgconf)")
	authToken := flag.String("auth-token", "", "Static bearer token for the host gateway (optional)")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret to sign bearer JWTs; overrides --auth-token when set")
	jwtIssuer := flag.String("jwt-issuer", "", "iss claim to sign into bearer JWTs (optional)")
	legacySocketMode := flag.Bool("legacy-socket-mode", false, "Use the insecure 0o666 socket mode instead of 0o600")
	handshakeTimeout := flag.Duration("handshake-timeout", 5*time.Second, "Timeout waiting for the agent's greeting")
	sendTimeout := flag.Duration("send-timeout", 30*time.Second, "Timeout waiting for a single agent response")
	configFile := flag.String("config", "", "Optional YAML/TOML/JSON config file, merged under GPGBRIDGE_REMOTE_* env vars")
	flag.Parse()

	lc := remoteproxy.DefaultConfig()
	lc.GatewayAddr = *gatewayAddr
	lc.SocketPath = *socketPath
	lc.AuthToken = *authToken
	lc.JWTSecret = *jwtSecret
	lc.JWTIssuer = *jwtIssuer
	lc.LegacySocketMode = *legacySocketMode
	lc.HandshakeTimeout = *handshakeTimeout
	lc.SendTimeout = *sendTimeout
	lc = remoteproxy.Load(lc, *configFile, "GPGBRIDGE_REMOTE")

	lg, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap init: %v", err)
	}
	logging.Set(lg)
	defer lg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := lc.SocketPath
	if path == "" {
		loc := gpgconf.NewLocator()
		resolved, err := loc.AgentSocketPath(ctx)
		if err != nil {
			lg.Fatal("resolve agent socket path", zap.Error(err))
		}
		path = resolved
	}
	lc.SocketPath = path

	channel, err := remoteproxy.NewGRPCChannel(ctx, remoteproxy.ChannelConfigFrom(lc))
	if err != nil {
		lg.Fatal("dial host gateway", zap.Error(err))
	}

	proxy, err := remoteproxy.NewProxy(remoteproxy.ProxyConfigFrom(lc), channel)
	if err != nil {
		lg.Fatal("proxy init", zap.Error(err))
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		lg.Info("signal received, shutting down")
		cancel()
	}()

	lg.Info("gpgbridge-remote started", zap.String("gateway", lc.GatewayAddr), zap.String("socket", path))
	if err := proxy.Serve(ctx); err != nil {
		lg.Info("proxy stopped", zap.Error(err))
	}
	_ = channel.Close()
	lg.Info("bye")
}
