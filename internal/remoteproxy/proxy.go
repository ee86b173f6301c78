// internal/remoteproxy/proxy.go
// Unix domain socket listener for the remote request proxy. Each accepted
// connection is handed to a fresh connSession and serviced on its own
// goroutine -- one goroutine per stream, logged and retried on transient
// accept errors via internal/util.Backoff rather than the heavier cenkalti
// policy reserved for the gRPC channel client in client.go.
package remoteproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/internal/util"
)

// LegacySocketMode, if set on ProxyConfig, widens the socket file
// permissions to 0o666, matching the laxer mode some deployments still rely
// on; it is opt-in only and logged loudly, never the default.
const (
	defaultSocketMode = 0o600
	legacySocketMode  = 0o666
	socketDirMode     = 0o700
)

// ListenerFactory abstracts binding the canonical agent socket path so tests
// can substitute an in-memory listener. Production code uses
// UnixListenerFactory.
type ListenerFactory interface {
	Listen(path string, legacyMode bool) (net.Listener, error)
}

// UnixListenerFactory binds a real Unix domain socket.
type UnixListenerFactory struct{}

// Listen creates path's parent directory (mode 0o700) if absent, removes a
// stale socket file left over from a previous run, binds, and chmods the
// resulting socket file.
func (UnixListenerFactory) Listen(path string, legacyMode bool) (net.Listener, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, socketDirMode); err != nil {
		return nil, fmt.Errorf("remoteproxy: create socket dir %q: %w", dir, err)
	}

	if _, err := os.Lstat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remoteproxy: remove stale socket %q: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("remoteproxy: listen %q: %w", path, err)
	}

	mode := os.FileMode(defaultSocketMode)
	if legacyMode {
		mode = legacySocketMode
		logging.Sugar().Warnw("remote agent socket using legacy world-writable mode; this is insecure", "path", path)
	}
	if err := os.Chmod(path, mode); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("remoteproxy: chmod socket %q: %w", path, err)
	}

	return ln, nil
}

// ProxyConfig parameterises a Proxy.
type ProxyConfig struct {
	SocketPath       string
	LegacySocketMode bool
	Factory          ListenerFactory // nil defaults to UnixListenerFactory{}
	Session          Config
}

// Proxy owns the Unix domain listener and hands off accepted connections.
type Proxy struct {
	cfg     ProxyConfig
	channel CommandChannel
	ln      net.Listener
}

// NewProxy binds cfg.SocketPath and returns a ready Proxy. channel is the
// CommandChannel every accepted connection's session will use to reach the
// host gateway.
func NewProxy(cfg ProxyConfig, channel CommandChannel) (*Proxy, error) {
	factory := cfg.Factory
	if factory == nil {
		factory = UnixListenerFactory{}
	}
	ln, err := factory.Listen(cfg.SocketPath, cfg.LegacySocketMode)
	if err != nil {
		return nil, err
	}
	return &Proxy{cfg: cfg, channel: channel, ln: ln}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, servicing each on its own goroutine. It always returns a non-nil
// error; a clean shutdown via Close returns a wrapped net.ErrClosed.
func (p *Proxy) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = p.Close()
	}()

	bo := util.NewBackoff()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("remoteproxy: listener closed: %w", err)
			}
			delay := bo.Next()
			logging.Sugar().Warnw("accept error, retrying", "err", err, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		bo.Reset()

		sess := newConnSession(conn, p.channel, p.cfg.Session)
		go sess.run(ctx)
	}
}

// Close closes the listener and unlinks the socket file.
func (p *Proxy) Close() error {
	err := p.ln.Close()
	if rmErr := os.Remove(p.cfg.SocketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = rmErr
		}
	}
	return err
}
