// internal/hostgateway/config.go
// Centralised loader for host gateway configuration. It complements the
// Config structs declared in gateway.go and server.go by populating them
// from (in precedence order):
//  1. Environment variables prefixed with GPGBRIDGE_HOST_
//  2. Optional YAML/TOML/JSON config file path
//  3. Values already set on the structs passed by the caller
//
// The loader keeps the dependency footprint small by using spf13/viper,
// already pulled in for the CLI layer.
package hostgateway

import (
	"crypto/tls"
	"time"

	"github.com/spf13/viper"

	"github.com/nimbusrelay/gpgbridge/internal/logging"
)

// ServerConfig parameterises the gRPC command-channel listener that fronts
// a Gateway.
type ServerConfig struct {
	ListenAddr    string      // host:port the gRPC server binds
	TLSConfig     *tls.Config // nil to serve plaintext (loopback-only deployments)
	AuthToken     string      // static bearer token; "" means channel auth is JWT-only or disabled
	JWTSecret     []byte      // HMAC secret for bearer JWTs; nil disables JWT auth
	JWTIssuer     string      // expected iss claim; "" accepts any issuer
	DebugAddr     string      // optional HTTP debug listener (/ws, /metrics); "" disables it
	AuditRedisDSN string      // optional redis://... DSN for the session audit store
}

// DefaultGatewayConfig returns production-ready defaults for Gateway.
func DefaultGatewayConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		SendTimeout:      30 * time.Second,
		MaxBufferBytes:   16 << 20,
	}
}

// DefaultServerConfig returns production-ready defaults for ServerConfig.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":4321",
	}
}

// LoadConfig merges file + env into both cfg pointers, using whatever is
// already set on cfg/srv (typically from CLI flags) as the default for each
// setting, so env or a config file only override an explicit flag, never
// silently lose it. filePath may be empty. envPrefix e.g. "GPGBRIDGE_HOST".
// tlsCertPath/tlsKeyPath are the flag-provided TLS pair (may be empty); they
// are loaded here rather than by the caller so env/file can still supply a
// pair when no flag was given.
func LoadConfig(cfg *Config, srv *ServerConfig, filePath, envPrefix, tlsCertPath, tlsKeyPath string) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		_ = v.ReadInConfig() // missing file is non-fatal
	}

	v.SetDefault("listen_addr", srv.ListenAddr)
	v.SetDefault("descriptor_path", cfg.DescriptorPath)
	v.SetDefault("debug_addr", srv.DebugAddr)
	v.SetDefault("auth_token", srv.AuthToken)
	v.SetDefault("audit_redis_dsn", srv.AuditRedisDSN)
	v.SetDefault("tls_cert", tlsCertPath)
	v.SetDefault("tls_key", tlsKeyPath)

	if s := v.GetString("listen_addr"); s != "" {
		srv.ListenAddr = s
	}
	if s := v.GetString("descriptor_path"); s != "" {
		cfg.DescriptorPath = s
	}
	if s := v.GetString("debug_addr"); s != "" {
		srv.DebugAddr = s
	}
	if s := v.GetString("auth_token"); s != "" {
		srv.AuthToken = s
	}
	if s := v.GetString("audit_redis_dsn"); s != "" {
		srv.AuditRedisDSN = s
	}

	certPath := v.GetString("tls_cert")
	keyPath := v.GetString("tls_key")
	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			logging.Sugar().Warnw("load TLS key pair, falling back to plaintext", "cert", certPath, "key", keyPath, "err", err)
		} else {
			srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		}
	}
}
