package events

import "fmt"

// Welcome is the first message the agent service sends on a new connection.
type Welcome struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

func (Welcome) Kind() string { return TypeWelcome }

// SettingsApplied acknowledges the settings payload.
type SettingsApplied struct {
	Type string `json:"type"`
}

func (SettingsApplied) Kind() string { return TypeSettingsApplied }

// Ready signals the agent is listening and the conversation may begin.
type Ready struct {
	Type string `json:"type"`
}

func (Ready) Kind() string { return TypeReady }

// Speech carries a transcript fragment of what the user said.
type Speech struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

func (Speech) Kind() string { return TypeSpeech }

// AgentResponse carries the agent's spoken text and, in some variants of the
// service, the synthesized audio inline as base64 instead of a binary frame.
type AgentResponse struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Audio string `json:"audio,omitempty"`
}

func (AgentResponse) Kind() string { return TypeAgentResponse }

// FunctionCallRequest asks the host to execute a registered function.
type FunctionCallRequest struct {
	Type           string         `json:"type"`
	FunctionCallID string         `json:"function_call_id"`
	FunctionName   string         `json:"function_name"`
	Input          map[string]any `json:"input"`
}

func (FunctionCallRequest) Kind() string { return TypeFunctionCallRequest }

// ConversationText is one entry of the conversation log.
type ConversationText struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (ConversationText) Kind() string { return TypeConversationText }

type UserStartedSpeaking struct {
	Type string `json:"type"`
}

func (UserStartedSpeaking) Kind() string { return TypeUserStartedSpeaking }

type AgentStartedSpeaking struct {
	Type string `json:"type"`
}

func (AgentStartedSpeaking) Kind() string { return TypeAgentStartedSpeaking }

type AgentAudioDone struct {
	Type string `json:"type"`
}

func (AgentAudioDone) Kind() string { return TypeAgentAudioDone }

// Error reports a fatal protocol or service failure; the service closes the
// session after sending it.
type Error struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description"`
}

func (Error) Kind() string { return TypeError }

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Description
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Close announces the service is about to close the connection.
type Close struct {
	Type string `json:"type"`
}

func (Close) Kind() string { return TypeClose }

// Raw holds any valid JSON control message whose type the client does not
// know. It is logged and otherwise ignored.
type Raw struct {
	Type string
	Data []byte
}

func (r *Raw) Kind() string { return r.Type }
