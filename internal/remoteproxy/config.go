// internal/remoteproxy/config.go
// Centralised configuration loader for the remote proxy binary: defaults
// plus an optional env/file merge via spf13/viper, already a transitive
// dependency of the CLI layer. Mirrors internal/hostgateway/config.go's
// precedence: an explicit value already set on the struct (typically from a
// CLI flag) is the default, env or a config file only override it when
// present.
package remoteproxy

import (
	"time"

	"github.com/spf13/viper"
)

// LoadedConfig is the full set of knobs the remote proxy binary needs,
// spanning the listener (ProxyConfig) and the host-gateway channel
// (ChannelConfig).
type LoadedConfig struct {
	SocketPath       string        `mapstructure:"socket_path"`
	LegacySocketMode bool          `mapstructure:"legacy_socket_mode"`
	GatewayAddr      string        `mapstructure:"gateway_addr"`
	AuthToken        string        `mapstructure:"auth_token"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
	JWTIssuer        string        `mapstructure:"jwt_issuer"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
	MaxBufferBytes   int           `mapstructure:"max_buffer_bytes"`
}

// DefaultConfig returns sensible defaults for a loopback deployment.
func DefaultConfig() LoadedConfig {
	return LoadedConfig{
		GatewayAddr:      "localhost:4321",
		HandshakeTimeout: 5 * time.Second,
		SendTimeout:      30 * time.Second,
		MaxBufferBytes:   16 << 20,
	}
}

// Load merges filePath and envPrefix-scoped environment variables onto top
// of cfg, which should already hold any CLI-flag-provided values. Only the
// socket_path, gateway_addr, auth_token, jwt_secret and jwt_issuer keys are
// merged: an empty field may be filled in by env or file, and a field
// already set survives unless env or file explicitly overrides it. The
// timeouts, buffer cap and legacy socket mode are returned as cfg holds them.
// envPrefix e.g. "GPGBRIDGE_REMOTE" maps GPGBRIDGE_REMOTE_GATEWAY_ADDR ->
// GatewayAddr. filePath may be empty, in which case only env vars apply.
func Load(cfg LoadedConfig, filePath, envPrefix string) LoadedConfig {
	v := viper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.AutomaticEnv()
	}
	if filePath != "" {
		v.SetConfigFile(filePath)
		_ = v.ReadInConfig() // missing file is non-fatal
	}

	v.SetDefault("socket_path", cfg.SocketPath)
	v.SetDefault("gateway_addr", cfg.GatewayAddr)
	v.SetDefault("auth_token", cfg.AuthToken)
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("jwt_issuer", cfg.JWTIssuer)

	if s := v.GetString("socket_path"); s != "" {
		cfg.SocketPath = s
	}
	if s := v.GetString("gateway_addr"); s != "" {
		cfg.GatewayAddr = s
	}
	if s := v.GetString("auth_token"); s != "" {
		cfg.AuthToken = s
	}
	if s := v.GetString("jwt_secret"); s != "" {
		cfg.JWTSecret = s
	}
	if s := v.GetString("jwt_issuer"); s != "" {
		cfg.JWTIssuer = s
	}
	return cfg
}

// ProxyConfigFrom adapts a LoadedConfig into a ProxyConfig.
func ProxyConfigFrom(lc LoadedConfig) ProxyConfig {
	return ProxyConfig{
		SocketPath:       lc.SocketPath,
		LegacySocketMode: lc.LegacySocketMode,
		Session: Config{
			HandshakeTimeout: lc.HandshakeTimeout,
			SendTimeout:      lc.SendTimeout,
			MaxBufferBytes:   lc.MaxBufferBytes,
		},
	}
}

// ChannelConfigFrom adapts a LoadedConfig into a ChannelConfig.
func ChannelConfigFrom(lc LoadedConfig) ChannelConfig {
	return ChannelConfig{
		Addr:      lc.GatewayAddr,
		AuthToken: lc.AuthToken,
		JWTSecret: []byte(lc.JWTSecret),
		JWTIssuer: lc.JWTIssuer,
	}
}
