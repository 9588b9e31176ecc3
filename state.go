package voiceagent

// State is the session's connection/conversation phase as visible to the
// host. The three speaking states are display sub-phases of an active
// session; they do not gate protocol behavior.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateConnecting      State = "connecting"
	StateAwaitingWelcome State = "awaiting_welcome"
	StateConfiguring     State = "configuring"
	StateAwaitingReady   State = "awaiting_ready"
	StateIdle            State = "idle"
	StateUserSpeaking    State = "user_speaking"
	StateAgentSpeaking   State = "agent_speaking"
	StateClosing         State = "closing"
)

// Active reports whether the session has completed the handshake and the
// conversation is live.
func (s State) Active() bool {
	switch s {
	case StateIdle, StateUserSpeaking, StateAgentSpeaking:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}
