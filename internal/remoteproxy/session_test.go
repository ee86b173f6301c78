package remoteproxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeChannel is an in-memory CommandChannel standing in for the real gRPC
// transport.
type fakeChannel struct {
	mu        sync.Mutex
	greeting  []byte
	responses map[string][]byte // keyed by the exact command block sent
	sent      [][]byte
	disconnected []string
}

func (f *fakeChannel) Connect(ctx context.Context, sessionID string) (string, []byte, error) {
	return "sess-1", f.greeting, nil
}

func (f *fakeChannel) Send(ctx context.Context, sessionID string, commandBlock []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), commandBlock...))
	if resp, ok := f.responses[string(commandBlock)]; ok {
		return resp, nil
	}
	return []byte("ERR 1 unknown command\n"), nil
}

func (f *fakeChannel) Disconnect(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, sessionID)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

// TestEndToEndInquireExchange reproduces spec's concrete scenario: a PKSIGN
// command that triggers an INQUIRE round before the final OK, verifying the
// exact byte stream delivered to the client.
func TestEndToEndInquireExchange(t *testing.T) {
	greeting := []byte("OK Pleased to meet you\n")
	ch := &fakeChannel{
		greeting: greeting,
		responses: map[string][]byte{
			"PKSIGN\n":           []byte("INQUIRE PASSPHRASE\n"),
			"D secret\nEND\n":    []byte("D <sig>\nOK\n"),
		},
	}

	clientSide, serverSide := net.Pipe()
	sess := newConnSession(serverSide, ch, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sess.run(ctx)
		close(done)
	}()

	var received bytes.Buffer
	readN := func(n int) []byte {
		buf := make([]byte, n)
		if _, err := io.ReadFull(clientSide, buf); err != nil {
			t.Fatalf("read: %v", err)
		}
		received.Write(buf)
		return buf
	}

	if g := readN(len(greeting)); !bytes.Equal(g, greeting) {
		t.Fatalf("greeting = %q, want %q", g, greeting)
	}

	if _, err := clientSide.Write([]byte("PKSIGN\n")); err != nil {
		t.Fatalf("write PKSIGN: %v", err)
	}

	inquire := []byte("INQUIRE PASSPHRASE\n")
	if g := readN(len(inquire)); !bytes.Equal(g, inquire) {
		t.Fatalf("inquire = %q, want %q", g, inquire)
	}

	if _, err := clientSide.Write([]byte("D secret\nEND\n")); err != nil {
		t.Fatalf("write D-block: %v", err)
	}

	final := []byte("D <sig>\nOK\n")
	if g := readN(len(final)); !bytes.Equal(g, final) {
		t.Fatalf("final = %q, want %q", g, final)
	}

	wantStream := append(append([]byte{}, inquire...), final...)
	gotStream := received.Bytes()[len(greeting):]
	if !bytes.Equal(gotStream, wantStream) {
		t.Fatalf("full stream after greeting = %q, want %q", gotStream, wantStream)
	}

	_ = clientSide.Close()
	<-done

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.disconnected) != 1 || ch.disconnected[0] != "sess-1" {
		t.Fatalf("expected exactly one disconnect for sess-1, got %v", ch.disconnected)
	}
}

// TestClientBufferCapTriggersError verifies the backpressure cap forces the
// session into the ERROR/CLOSING teardown path rather than growing the
// buffer unbounded.
func TestClientBufferCapTriggersError(t *testing.T) {
	ch := &fakeChannel{greeting: []byte("OK\n")}
	clientSide, serverSide := net.Pipe()
	sess := newConnSession(serverSide, ch, Config{MaxBufferBytes: 8})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sess.run(ctx)
		close(done)
	}()

	buf := make([]byte, 3)
	if _, err := io.ReadFull(clientSide, buf); err != nil {
		t.Fatalf("read greeting: %v", err)
	}

	// Never send a newline so the framer keeps buffering past the cap.
	if _, err := clientSide.Write([]byte("0123456789")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not tear down after exceeding buffer cap")
	}
	_ = clientSide.Close()
}
