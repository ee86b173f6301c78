// internal/remoteproxy/statemachine.go
// Pure per-connection state machine for the remote request proxy. Kept free
// of I/O so the transition table itself is unit-testable without a socket;
// session.go drives an instance of it against a real client connection and
// CommandChannel, performing the actual reads/writes/dispatch that the
// transition table only names as events.
package remoteproxy

// State is one of the thirteen states a proxied connection moves through
// from acceptance to teardown.
type State int

const (
	StateDisconnected State = iota
	StateClientConnected
	StateAgentConnecting
	StateReady
	StateBufferingCommand
	StateBufferingInquire
	StateDataReady
	StateSendingToAgent
	StateWaitingForAgent
	StateSendingToClient
	StateError
	StateClosing
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateClientConnected:
		return "CLIENT_CONNECTED"
	case StateAgentConnecting:
		return "AGENT_CONNECTING"
	case StateReady:
		return "READY"
	case StateBufferingCommand:
		return "BUFFERING_COMMAND"
	case StateBufferingInquire:
		return "BUFFERING_INQUIRE"
	case StateDataReady:
		return "DATA_READY"
	case StateSendingToAgent:
		return "SENDING_TO_AGENT"
	case StateWaitingForAgent:
		return "WAITING_FOR_AGENT"
	case StateSendingToClient:
		return "SENDING_TO_CLIENT"
	case StateError:
		return "ERROR"
	case StateClosing:
		return "CLOSING"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Event is one of the named transitions in spec's state table. Events that
// carry no payload in the transition table itself are still modelled here so
// callers dispatch the runtime side effect (write greeting, classify
// response, ...) at the same point they record the transition.
type Event int

const (
	EvClientAccepted Event = iota
	EvStartConnect
	EvGreetingReceived
	EvConnectFailed
	EvClientBytes
	EvCommandFramed
	EvInquireFramed
	EvFramerError
	EvDispatch
	EvWriteOk
	EvWriteErr
	EvAgentResponse
	EvAgentTimeout
	EvAgentSocketErr
	EvClientBytesDuringWait
	EvClassifyOK
	EvClassifyInquire
	EvCleanupStart
	EvCleanupOk
	EvCleanupErr
)

func (e Event) String() string {
	names := [...]string{
		"ClientAccepted", "StartConnect", "GreetingReceived", "ConnectFailed",
		"ClientBytes", "CommandFramed", "InquireFramed", "FramerError",
		"Dispatch", "WriteOk", "WriteErr", "AgentResponse", "AgentTimeout",
		"AgentSocketErr", "ClientBytesDuringWait", "ClassifyOK", "ClassifyInquire",
		"CleanupStart", "CleanupOk", "CleanupErr",
	}
	if int(e) < len(names) {
		return names[e]
	}
	return "UNKNOWN"
}

var transitions = map[State]map[Event]State{
	StateDisconnected: {
		EvClientAccepted: StateClientConnected,
	},
	StateClientConnected: {
		EvStartConnect: StateAgentConnecting,
	},
	StateAgentConnecting: {
		EvGreetingReceived: StateReady,
		EvConnectFailed:    StateError,
	},
	StateReady: {
		EvClientBytes: StateBufferingCommand,
	},
	StateBufferingCommand: {
		EvClientBytes:   StateBufferingCommand,
		EvCommandFramed: StateDataReady,
		EvFramerError:   StateError,
	},
	StateBufferingInquire: {
		EvClientBytes:   StateBufferingInquire,
		EvInquireFramed: StateDataReady,
		EvFramerError:   StateError,
	},
	StateDataReady: {
		EvDispatch: StateSendingToAgent,
	},
	StateSendingToAgent: {
		EvWriteOk:  StateWaitingForAgent,
		EvWriteErr: StateError,
	},
	StateWaitingForAgent: {
		EvAgentResponse:         StateSendingToClient,
		EvAgentTimeout:          StateError,
		EvAgentSocketErr:        StateError,
		EvClientBytesDuringWait: StateError,
	},
	StateSendingToClient: {
		EvClassifyOK:      StateReady,
		EvClassifyInquire: StateBufferingInquire,
		EvWriteErr:        StateError,
	},
	StateError: {
		EvCleanupStart: StateClosing,
	},
	StateClosing: {
		EvCleanupOk:  StateDisconnected,
		EvCleanupErr: StateFatal,
	},
	// StateFatal has no outgoing transitions; it is terminal.
}

// Next returns the state reached by firing ev from s. An event not named in
// the transition table for s is, per spec, a protocol violation and the
// machine moves to StateError -- except from StateFatal, which absorbs every
// event and never leaves FATAL.
func Next(s State, ev Event) State {
	if s == StateFatal {
		return StateFatal
	}
	if m, ok := transitions[s]; ok {
		if n, ok := m[ev]; ok {
			return n
		}
	}
	return StateError
}
