// internal/rpc/messages.go
// Package rpc defines the wire contract for the cross-host command channel:
// three logical RPCs -- connect, send, disconnect -- carried over an
// opaque, pre-authenticated bidirectional channel. What lives here is the
// small, testable contract plus one concrete gRPC transport for it.
//
// Messages use plain Go structs marshalled with the JSON codec registered
// in codec.go rather than protoc-generated protobuf types: JSON encodes
// []byte fields as base64, so Assuan's binary-safety requirement is
// preserved without pulling in a protobuf compiler step. google.golang.org/
// protobuf is still used directly for the empty disconnect acknowledgement.
package rpc

// ConnectRequest asks the host gateway to open a new session. An empty
// SessionID means "allocate a fresh id"; a SessionID that is already
// registered is rejected rather than reused.
type ConnectRequest struct {
	SessionID string `json:"session_id"`
}

// ConnectResponse carries the (possibly newly allocated) session id and the
// verbatim Assuan greeting line(s) read from the agent.
type ConnectResponse struct {
	SessionID string `json:"session_id"`
	Greeting  []byte `json:"greeting"`
}

// SendRequest forwards one opaque command block — a single command line or
// a full "D ...\nEND\n" block — to the agent socket bound to SessionID.
type SendRequest struct {
	SessionID    string `json:"session_id"`
	CommandBlock []byte `json:"command_block"`
}

// SendResponse carries the verbatim bytes accumulated from the agent until
// DetectResponseCompletion reported a terminal response.
type SendResponse struct {
	Response []byte `json:"response"`
}

// DisconnectRequest tears a session down. Unknown ids succeed silently.
type DisconnectRequest struct {
	SessionID string `json:"session_id"`
}
