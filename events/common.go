package events

import (
	"encoding/json"
)

// Wire values of the "type" discriminator field.
const (
	// server -> client
	TypeWelcome              = "Welcome"
	TypeSettingsApplied      = "SettingsApplied"
	TypeReady                = "Ready"
	TypeSpeech               = "Speech"
	TypeAgentResponse        = "AgentResponse"
	TypeFunctionCallRequest  = "FunctionCallRequest"
	TypeConversationText     = "ConversationText"
	TypeUserStartedSpeaking  = "UserStartedSpeaking"
	TypeAgentStartedSpeaking = "AgentStartedSpeaking"
	TypeAgentAudioDone       = "AgentAudioDone"
	TypeError                = "Error"
	TypeClose                = "Close"

	// client -> server
	TypeSettings             = "SettingsConfiguration"
	TypeFunctionCallResponse = "FunctionCallResponse"
	TypeUpdateInstructions   = "UpdateInstructions"
	TypeUpdateSpeak          = "UpdateSpeak"
	TypeInjectAgentMessage   = "InjectAgentMessage"
	TypeKeepAlive            = "KeepAlive"
)

// Message is implemented by every control message carried on the transport.
// Kind returns the wire value of the message's "type" field.
type Message interface {
	Kind() string
}

// Frame is the result of classifying one inbound transport frame.
// Exactly one of Message or Audio is set.
type Frame struct {
	Message Message
	Audio   []byte
}

func (f Frame) IsAudio() bool {
	return f.Message == nil
}

type envelope struct {
	Type string `json:"type"`
}

// Classify decides whether an inbound frame is a control message or raw
// audio. The channel carries both kinds and they are distinguished only by
// parseability: anything that does not decode as a JSON control message is
// audio. A parse failure is therefore never an error.
func Classify(data []byte) Frame {
	msg, err := Decode(data)
	if err != nil {
		return Frame{Audio: data}
	}
	return Frame{Message: msg}
}

// Decode parses a text frame into its typed control message. Valid JSON
// with an unknown or missing "type" decodes into *Raw.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeWelcome:
		return Parse[Welcome](data)
	case TypeSettingsApplied:
		return Parse[SettingsApplied](data)
	case TypeReady:
		return Parse[Ready](data)
	case TypeSpeech:
		return Parse[Speech](data)
	case TypeAgentResponse:
		return Parse[AgentResponse](data)
	case TypeFunctionCallRequest:
		return Parse[FunctionCallRequest](data)
	case TypeConversationText:
		return Parse[ConversationText](data)
	case TypeUserStartedSpeaking:
		return Parse[UserStartedSpeaking](data)
	case TypeAgentStartedSpeaking:
		return Parse[AgentStartedSpeaking](data)
	case TypeAgentAudioDone:
		return Parse[AgentAudioDone](data)
	case TypeError:
		return Parse[Error](data)
	case TypeClose:
		return Parse[Close](data)
	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return &Raw{Type: env.Type, Data: raw}, nil
	}
}

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}
