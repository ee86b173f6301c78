package remoteproxy

import (
	"context"
	"net"
	"testing"
	"time"
)

// memListenerFactory hands out an in-memory net.Listener backed by
// net.Pipe-connected pairs, avoiding a real filesystem socket in tests.
type memListener struct {
	conns  chan net.Conn
	closed chan struct{}
}

func newMemListener() *memListener {
	return &memListener{conns: make(chan net.Conn, 4), closed: make(chan struct{})}
}

func (l *memListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *memListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

func (l *memListener) Addr() net.Addr { return fakeAddr{} }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "mem" }
func (fakeAddr) String() string  { return "mem://test" }

type memListenerFactory struct {
	ln *memListener
}

func (f memListenerFactory) Listen(path string, legacyMode bool) (net.Listener, error) {
	return f.ln, nil
}

func TestProxyServesAcceptedConnections(t *testing.T) {
	ln := newMemListener()
	ch := &fakeChannel{
		greeting: []byte("OK\n"),
		responses: map[string][]byte{
			"GETINFO version\n": []byte("D 2.4.0\nOK\n"),
		},
	}

	p, err := NewProxy(ProxyConfig{
		SocketPath: "/tmp/unused-in-test.sock",
		Factory:    memListenerFactory{ln: ln},
	}, ch)
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- p.Serve(ctx) }()

	clientSide, serverSide := net.Pipe()
	ln.conns <- serverSide

	greeting := make([]byte, 3)
	if _, err := clientSide.Read(greeting); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if string(greeting) != "OK\n" {
		t.Fatalf("greeting = %q", greeting)
	}

	if _, err := clientSide.Write([]byte("GETINFO version\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := make([]byte, len("D 2.4.0\nOK\n"))
	if _, err := clientSide.Read(resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if string(resp) != "D 2.4.0\nOK\n" {
		t.Fatalf("resp = %q", resp)
	}

	_ = clientSide.Close()
	cancel()

	select {
	case <-serveErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
