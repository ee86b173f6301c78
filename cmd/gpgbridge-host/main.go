// cmd/gpgbridge-host/main.go
// Binary entrypoint for the standalone host gateway. It parses the local
// GnuPG Assuan socket descriptor, exposes the AgentGateway over gRPC for
// remote proxies to dial, and optionally serves a debug HTTP listener
// (/ws lifecycle events, /metrics). Configured via CLI flags or environment
// variables with sane defaults for local testing.
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

	"github.com/nimbusrelay/gpgbridge/internal/hostgateway"
	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/internal/metrics"
)

func main() {
	descriptorPath := flag.String("descriptor", "", "Path to the GnuPG Assuan socket descriptor file")
	configFile := flag.String("config", "", "Optional YAML/TOML/JSON config file, merged under GPGBRIDGE_HOST_* env vars")
	listen := flag.String("listen", ":4321", "gRPC listen address (host:port)")
	debugListen := flag.String("debug-listen", "", "Debug HTTP listen address for /ws and /metrics (empty disables it)")
	tlsCert := flag.String("tls-cert", "", "TLS certificate file (PEM); if empty, serve plaintext")
	tlsKey := flag.String("tls-key", "", "TLS private key file (PEM)")
	authToken := flag.String("auth-token", "", "Static bearer token required from the remote proxy (optional)")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for bearer JWTs; overrides --auth-token when set")
	jwtIssuer := flag.String("jwt-issuer", "", "Expected iss claim on bearer JWTs (optional)")
	auditRedisDSN := flag.String("audit-redis-dsn", "", "Optional redis://... DSN for a shared session audit trail")
	auditRetention := flag.Duration("audit-retention", 15*time.Minute, "How long session lifecycle events are retained")
	handshakeTimeout := flag.Duration("handshake-timeout", 5*time.Second, "Timeout waiting for the agent's greeting")
	sendTimeout := flag.Duration("send-timeout", 30*time.Second, "Timeout waiting for a single agent response")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap: %v", err)
	}
	logging.Set(lg)
	defer lg.Sync()

	gwCfg := hostgateway.DefaultGatewayConfig()
	gwCfg.DescriptorPath = *descriptorPath
	gwCfg.HandshakeTimeout = *handshakeTimeout
	gwCfg.SendTimeout = *sendTimeout

	srvCfg := hostgateway.DefaultServerConfig()
	srvCfg.ListenAddr = *listen
	srvCfg.DebugAddr = *debugListen
	srvCfg.AuthToken = *authToken
	if *jwtSecret != "" {
		srvCfg.JWTSecret = []byte(*jwtSecret)
		srvCfg.JWTIssuer = *jwtIssuer
	}
	srvCfg.AuditRedisDSN = *auditRedisDSN

	hostgateway.LoadConfig(&gwCfg, &srvCfg, *configFile, "GPGBRIDGE_HOST", *tlsCert, *tlsKey)

	gw, err := hostgateway.New(gwCfg)
	if err != nil {
		lg.Fatal("gateway init", zap.Error(err))
	}

	srv := hostgateway.NewServer(gw, srvCfg)
	srv.SetAuditStore(hostgateway.NewAuditStoreFromDSN(srvCfg.AuditRedisDSN, *auditRetention))

	var debugSrv interface{ Shutdown(context.Context) error }
	if srvCfg.DebugAddr != "" {
		metrics.Register()
		debugSrv = srv.StartDebugHTTP(hostgateway.DebugHTTPConfig{
			ListenAddr:    srvCfg.DebugAddr,
			EnableMetrics: true,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		lg.Info("signal received, shutting down")
		cancel()
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		lg.Error("serve", zap.Error(err))
	}
	if debugSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = debugSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	lg.Info("goodbye")
}
