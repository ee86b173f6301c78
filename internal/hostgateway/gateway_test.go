package hostgateway

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeAgentConn is an in-memory net.Conn standing in for the loopback TCP
// socket to a real gpg-agent, driven by a net.Pipe so the test can act as
// the agent side.
func newFakeAgentPair() (gatewaySide, agentSide net.Conn) {
	return net.Pipe()
}

func writeDescriptor(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "S.gpg-agent")
	nonce := bytes.Repeat([]byte{0x07}, 16)
	var buf bytes.Buffer
	buf.WriteString("63144\n")
	_ = port
	buf.Write(nonce)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

func newTestGateway(t *testing.T, dial func(network, addr string) (net.Conn, error)) *Gateway {
	t.Helper()
	cfg := Config{
		DescriptorPath:   writeDescriptor(t, 63144),
		HandshakeTimeout: time.Second,
		SendTimeout:      time.Second,
	}
	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.dial = dial
	return gw
}

func TestConnectHandshakeSuccess(t *testing.T) {
	gatewaySide, agentSide := newFakeAgentPair()
	defer agentSide.Close()

	gw := newTestGateway(t, func(network, addr string) (net.Conn, error) {
		return gatewaySide, nil
	})

	go func() {
		nonce := make([]byte, 16)
		_, _ = agentSide.Read(nonce)
		_, _ = agentSide.Write([]byte("OK Pleased to meet you\n"))
	}()

	id, greeting, err := gw.Connect("")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty allocated session id")
	}
	want := "OK Pleased to meet you\n"
	if string(greeting) != want {
		t.Fatalf("greeting = %q, want %q", greeting, want)
	}
	if gw.SessionCount() != 1 {
		t.Fatalf("SessionCount = %d, want 1", gw.SessionCount())
	}
}

func TestConnectDuplicateSessionID(t *testing.T) {
	gatewaySide, agentSide := newFakeAgentPair()
	defer agentSide.Close()

	gw := newTestGateway(t, func(network, addr string) (net.Conn, error) {
		return gatewaySide, nil
	})

	go func() {
		buf := make([]byte, 16)
		_, _ = agentSide.Read(buf)
		_, _ = agentSide.Write([]byte("OK\n"))
	}()

	if _, _, err := gw.Connect("fixed-id"); err != nil {
		t.Fatalf("first Connect: %v", err)
	}

	second, secondSide := newFakeAgentPair()
	defer secondSide.Close()
	gw.dial = func(network, addr string) (net.Conn, error) { return second, nil }

	_, _, err := gw.Connect("fixed-id")
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("err = %v, want ErrSessionExists", err)
	}
}

func TestConnectAgentRefused(t *testing.T) {
	gw := newTestGateway(t, func(network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	})

	_, _, err := gw.Connect("")
	if !errors.Is(err, ErrAgentConnectRefused) {
		t.Fatalf("err = %v, want ErrAgentConnectRefused", err)
	}
}

func TestSendRoundTrip(t *testing.T) {
	gatewaySide, agentSide := newFakeAgentPair()
	defer agentSide.Close()

	gw := newTestGateway(t, func(network, addr string) (net.Conn, error) {
		return gatewaySide, nil
	})

	go func() {
		nonce := make([]byte, 16)
		_, _ = agentSide.Read(nonce)
		_, _ = agentSide.Write([]byte("OK\n"))

		cmd := make([]byte, len("GETINFO version\n"))
		_, _ = agentSide.Read(cmd)
		_, _ = agentSide.Write([]byte("D 2.4.0\nOK\n"))
	}()

	id, _, err := gw.Connect("")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resp, err := gw.Send(id, []byte("GETINFO version\n"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "D 2.4.0\nOK\n"
	if string(resp) != want {
		t.Fatalf("resp = %q, want %q", resp, want)
	}
}

func TestSendUnknownSession(t *testing.T) {
	gw := newTestGateway(t, func(network, addr string) (net.Conn, error) {
		return nil, errors.New("unused")
	})
	_, err := gw.Send("no-such-session", []byte("X\n"))
	if !errors.Is(err, ErrNoSuchSession) {
		t.Fatalf("err = %v, want ErrNoSuchSession", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	gatewaySide, agentSide := newFakeAgentPair()
	defer agentSide.Close()

	gw := newTestGateway(t, func(network, addr string) (net.Conn, error) {
		return gatewaySide, nil
	})

	go func() {
		nonce := make([]byte, 16)
		_, _ = agentSide.Read(nonce)
		_, _ = agentSide.Write([]byte("OK\n"))
	}()

	id, _, err := gw.Connect("")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := gw.Disconnect(id); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := gw.Disconnect(id); err != nil {
		t.Fatalf("second Disconnect (should be no-op): %v", err)
	}
	if gw.SessionCount() != 0 {
		t.Fatalf("SessionCount = %d, want 0", gw.SessionCount())
	}
}
