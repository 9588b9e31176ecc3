package voiceagent

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential means no API key could be resolved from options, the
	// environment, the credential store or the prompt.
	ErrNoCredential = errors.New("voiceagent: no credential")

	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("voiceagent: not connected")
)

// ProtocolError is an Error control message received from the agent
// service. The service closes the session after sending one.
type ProtocolError struct {
	Code        string
	Description string
}

func (e *ProtocolError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("agent error: %s", e.Description)
	}
	return fmt.Sprintf("agent error %s: %s", e.Code, e.Description)
}
