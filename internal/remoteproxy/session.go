// internal/remoteproxy/session.go
// Drives one accepted client connection through the state machine in
// statemachine.go: reads client bytes, frames them with internal/assuan,
// dispatches complete commands/INQUIRE blocks over a CommandChannel to the
// host gateway, and writes the agent's verbatim reply back to the client.
// One goroutine per stream, explicit teardown on any error, driven by the
// explicit 13-state machine's named states rather than an implicit
// request/response loop.
package remoteproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nimbusrelay/gpgbridge/internal/assuan"
	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/internal/metrics"
)

// Config tunes per-connection timeouts and buffer limits. Zero values take
// sane production defaults.
type Config struct {
	// HandshakeTimeout bounds the initial Connect RPC. Default 5s.
	HandshakeTimeout time.Duration
	// SendTimeout bounds each Send RPC. Default 30s.
	SendTimeout time.Duration
	// MaxBufferBytes caps the per-connection client buffer. Default 16 MiB.
	MaxBufferBytes int
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = 16 << 20
	}
}

// connSession is one RequestProxy connection: a client socket, a dedicated
// session id on the host gateway, and the state machine driving between
// them. Not safe for concurrent use -- exactly one goroutine runs it; each
// session is a strictly sequential task.
type connSession struct {
	id      string
	client  net.Conn
	channel CommandChannel
	cfg     Config

	framer *assuan.Framer
	state  State

	pending []byte // framed command/inquire block awaiting dispatch
}

func newConnSession(client net.Conn, channel CommandChannel, cfg Config) *connSession {
	cfg.setDefaults()
	return &connSession{
		client:  client,
		channel: channel,
		cfg:     cfg,
		framer:  assuan.New(),
		state:   StateDisconnected,
	}
}

func (s *connSession) transition(ev Event) {
	next := Next(s.state, ev)
	metrics.StateTransitions.WithLabelValues(next.String()).Inc()
	logging.Sugar().Debugw("proxy state transition", "session_id", s.id, "event", ev.String(), "from", s.state.String(), "to", next.String())
	s.state = next
}

// run drives the full connection lifecycle to completion: accept, connect,
// command loop, teardown. It never returns an error -- every failure is
// absorbed by the state machine's ERROR/CLOSING/FATAL path and logged.
func (s *connSession) run(ctx context.Context) {
	s.transition(EvClientAccepted)
	s.transition(EvStartConnect)

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	id, greeting, err := s.channel.Connect(connectCtx, "")
	cancel()
	if err != nil {
		logging.Sugar().Warnw("agent connect failed", "err", err)
		s.transition(EvConnectFailed)
		s.teardown(ctx)
		return
	}
	s.id = id

	if _, err := s.client.Write(greeting); err != nil {
		logging.Sugar().Warnw("write greeting to client", "session_id", s.id, "err", err)
		s.transition(EvConnectFailed)
		s.teardown(ctx)
		return
	}
	s.transition(EvGreetingReceived)

	buf := make([]byte, 4096)
	for {
		switch s.state {
		case StateReady, StateBufferingCommand, StateBufferingInquire:
			if s.tryFrame() {
				continue
			}
			n, err := s.client.Read(buf)
			if n > 0 {
				s.framer.Push(buf[:n])
				if s.framer.Len() > s.cfg.MaxBufferBytes {
					logging.Sugar().Warnw("client buffer exceeded cap", "session_id", s.id)
					metrics.FramerErrors.Inc()
					s.transition(EvFramerError)
					continue
				}
				s.transition(EvClientBytes)
				continue
			}
			if err != nil {
				logging.Sugar().Debugw("client read", "session_id", s.id, "err", err)
				s.transition(EvFramerError)
				continue
			}

		case StateDataReady:
			s.dispatch(ctx)

		case StateError:
			s.transition(EvCleanupStart)

		case StateClosing:
			s.cleanup(ctx)
			return

		case StateFatal:
			logging.Sugar().Errorw("session abandoned after cleanup failure", "session_id", s.id)
			return

		default:
			// SENDING_TO_AGENT / WAITING_FOR_AGENT / SENDING_TO_CLIENT are
			// traversed synchronously inside dispatch(), and
			// CLIENT_CONNECTED / AGENT_CONNECTING before this loop starts;
			// reaching one here would be a logic error in this driver, not
			// a protocol event.
			logging.Sugar().Errorw("unexpected driver state", "session_id", s.id, "state", s.state.String())
			s.transition(EvFramerError)
		}
	}
}

// tryFrame attempts to extract the next frame appropriate to the current
// state without reading the socket again: after any dispatch, if the buffer
// already contains more bytes, the state machine processes the next framing
// step immediately. Returns true if it advanced the state (READY to
// BUFFERING_COMMAND when bytes are already buffered, or on to DATA_READY).
func (s *connSession) tryFrame() bool {
	switch s.state {
	case StateReady:
		if s.framer.Len() == 0 {
			return false
		}
		s.transition(EvClientBytes)
		return true
	case StateBufferingCommand:
		frame, ok := s.framer.ExtractCommand()
		if !ok {
			return false
		}
		s.pending = frame
		s.transition(EvCommandFramed)
		return true
	case StateBufferingInquire:
		frame, ok := s.framer.ExtractInquireBlock()
		if !ok {
			return false
		}
		s.pending = frame
		s.transition(EvInquireFramed)
		return true
	default:
		return false
	}
}

// dispatch sends s.pending to the agent over the command channel and writes
// the verbatim reply back to the client, driving SENDING_TO_AGENT ->
// WAITING_FOR_AGENT -> SENDING_TO_CLIENT -> READY|BUFFERING_INQUIRE. The
// underlying CommandChannel.Send call is itself synchronous request/response,
// so WAITING_FOR_AGENT is traversed without a separate blocking step of its
// own; the moment Send returns, clientWroteDuringWait checks the socket for
// bytes the client wrote while it was blocked, since a half-duplex client is
// not supposed to send its next command before the current one's response
// has arrived.
func (s *connSession) dispatch(ctx context.Context) {
	s.transition(EvDispatch)

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	resp, err := s.channel.Send(sendCtx, s.id, s.pending)
	cancel()
	s.pending = nil

	if err != nil {
		logging.Sugar().Warnw("agent send failed", "session_id", s.id, "err", err)
		if isDeadlineErr(err) {
			s.transition(EvWriteOk) // reached WAITING_FOR_AGENT...
			s.transition(EvAgentTimeout)
			return
		}
		s.transition(EvWriteErr)
		return
	}
	s.transition(EvWriteOk)

	if s.clientWroteDuringWait() {
		logging.Sugar().Warnw("client sent bytes while a command was in flight, protocol violation", "session_id", s.id)
		metrics.FramerErrors.Inc()
		s.transition(EvClientBytesDuringWait)
		return
	}
	s.transition(EvAgentResponse)

	if _, err := s.client.Write(resp); err != nil {
		logging.Sugar().Warnw("write response to client", "session_id", s.id, "err", err)
		s.transition(EvWriteErr)
		return
	}

	c := assuan.DetectResponseCompletion(resp)
	switch c.Kind {
	case assuan.KindInquire:
		s.transition(EvClassifyInquire)
	default:
		s.transition(EvClassifyOK)
	}
}

func isDeadlineErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// clientWroteDuringWait is a non-blocking check, run the instant dispatch's
// blocking Send call returns, for bytes the client wrote to the socket while
// that call was in flight. The half-duplex protocol forbids a client from
// sending its next command before it has received the full response to the
// one in flight; without this check those bytes would simply sit in the
// framer and silently become the start of the next command instead of
// tripping EvClientBytesDuringWait. Detection is bounded by when this runs:
// bytes that land on the wire after the check but before SENDING_TO_CLIENT
// finishes are still framed as the next command, same as any ordinary
// pipelining a fully quiescent client might do.
func (s *connSession) clientWroteDuringWait() bool {
	_ = s.client.SetReadDeadline(time.Now())
	defer s.client.SetReadDeadline(time.Time{})

	buf := make([]byte, 4096)
	n, err := s.client.Read(buf)
	if n > 0 {
		s.framer.Push(buf[:n])
		return true
	}
	if err != nil && !isTimeoutErr(err) {
		// Closed or broken socket: no violation to report here, the
		// ordinary read loop will observe the same error next iteration.
		return false
	}
	return false
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// teardown drives ERROR -> CLOSING -> DISCONNECTED directly, used for
// failures in the connect phase (a failed Connect RPC or a failed greeting
// write), before the ordinary run() loop gets a chance to do it.
func (s *connSession) teardown(ctx context.Context) {
	s.transition(EvCleanupStart)
	s.cleanup(ctx)
}

// cleanup implements the CLOSING state's three independent steps: close the
// client socket, disconnect the host-side session, and record the outcome.
// Each step's failure is logged and aggregated
// but does not block the others; CLOSING always reaches DISCONNECTED, even
// when a step fails, so this driver never fires EvCleanupErr.
func (s *connSession) cleanup(ctx context.Context) {
	var aggregate error

	if err := s.client.Close(); err != nil {
		aggregate = fmt.Errorf("client close: %w", err)
		logging.Sugar().Debugw("client socket close", "session_id", s.id, "err", err)
	}

	if s.id != "" {
		disconnectCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		if err := s.channel.Disconnect(disconnectCtx, s.id); err != nil {
			if aggregate != nil {
				aggregate = fmt.Errorf("%w; disconnect: %v", aggregate, err)
			} else {
				aggregate = fmt.Errorf("disconnect: %w", err)
			}
			logging.Sugar().Debugw("agent disconnect", "session_id", s.id, "err", err)
		}
		cancel()
	}

	if aggregate != nil {
		logging.Sugar().Warnw("session cleanup completed with errors", "session_id", s.id, "err", aggregate)
	}
	s.transition(EvCleanupOk)
	logging.Sugar().Infow("session closed", "session_id", s.id)
}
