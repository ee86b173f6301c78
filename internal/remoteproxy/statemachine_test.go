package remoteproxy

import "testing"

func TestNextHappyPath(t *testing.T) {
	steps := []struct {
		from State
		ev   Event
		want State
	}{
		{StateDisconnected, EvClientAccepted, StateClientConnected},
		{StateClientConnected, EvStartConnect, StateAgentConnecting},
		{StateAgentConnecting, EvGreetingReceived, StateReady},
		{StateReady, EvClientBytes, StateBufferingCommand},
		{StateBufferingCommand, EvClientBytes, StateBufferingCommand},
		{StateBufferingCommand, EvCommandFramed, StateDataReady},
		{StateDataReady, EvDispatch, StateSendingToAgent},
		{StateSendingToAgent, EvWriteOk, StateWaitingForAgent},
		{StateWaitingForAgent, EvAgentResponse, StateSendingToClient},
		{StateSendingToClient, EvClassifyOK, StateReady},
		{StateSendingToClient, EvClassifyInquire, StateBufferingInquire},
		{StateBufferingInquire, EvClientBytes, StateBufferingInquire},
		{StateBufferingInquire, EvInquireFramed, StateDataReady},
		{StateError, EvCleanupStart, StateClosing},
		{StateClosing, EvCleanupOk, StateDisconnected},
		{StateClosing, EvCleanupErr, StateFatal},
	}

	for _, st := range steps {
		got := Next(st.from, st.ev)
		if got != st.want {
			t.Errorf("Next(%s, %s) = %s, want %s", st.from, st.ev, got, st.want)
		}
	}
}

func TestNextFailurePaths(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
	}{
		{StateAgentConnecting, EvConnectFailed},
		{StateBufferingCommand, EvFramerError},
		{StateBufferingInquire, EvFramerError},
		{StateSendingToAgent, EvWriteErr},
		{StateWaitingForAgent, EvAgentTimeout},
		{StateWaitingForAgent, EvAgentSocketErr},
		{StateWaitingForAgent, EvClientBytesDuringWait},
		{StateSendingToClient, EvWriteErr},
	}
	for _, c := range cases {
		if got := Next(c.from, c.ev); got != StateError {
			t.Errorf("Next(%s, %s) = %s, want ERROR", c.from, c.ev, got)
		}
	}
}

func TestNextUnspecifiedEventIsProtocolViolation(t *testing.T) {
	// ClientBytes while WAITING_FOR_AGENT is the explicit half-duplex
	// violation; any other undocumented pairing must also land in ERROR.
	if got := Next(StateReady, EvAgentResponse); got != StateError {
		t.Errorf("unspecified event did not transition to ERROR, got %s", got)
	}
}

func TestNextFatalIsAbsorbing(t *testing.T) {
	for _, ev := range []Event{EvClientAccepted, EvCleanupOk, EvDispatch} {
		if got := Next(StateFatal, ev); got != StateFatal {
			t.Errorf("Next(FATAL, %s) = %s, want FATAL", ev, got)
		}
	}
}
