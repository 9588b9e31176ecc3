package events

import "github.com/codewandler/voiceagent-go/tool"

// Settings is the configuration payload sent once after Welcome. It fixes
// both audio formats for the lifetime of the session and tells the agent
// what it is, how it speaks and which functions it may call.
type Settings struct {
	Type    string      `json:"type"`
	Audio   AudioConfig `json:"audio"`
	Agent   AgentConfig `json:"agent"`
	Context *Context    `json:"context,omitempty"`
}

func (Settings) Kind() string { return TypeSettings }

func NewSettings() Settings {
	return Settings{Type: TypeSettings}
}

type AudioConfig struct {
	Input  AudioFormat `json:"input"`
	Output AudioFormat `json:"output"`
}

// AudioFormat describes one direction of the PCM stream.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container,omitempty"`
}

const EncodingLinear16 = "linear16"

type AgentConfig struct {
	Listen ListenConfig `json:"listen"`
	Think  ThinkConfig  `json:"think"`
	Speak  SpeakConfig  `json:"speak"`
}

// ListenConfig selects the speech recognition model.
type ListenConfig struct {
	Model string `json:"model"`
}

// ThinkConfig selects the reasoning model, its instructions and the
// functions it is allowed to call.
type ThinkConfig struct {
	Provider     Provider          `json:"provider"`
	Model        string            `json:"model"`
	Instructions string            `json:"instructions,omitempty"`
	Functions    []tool.Definition `json:"functions,omitempty"`
}

type Provider struct {
	Type string `json:"type"`
}

// SpeakConfig selects the speech synthesis model.
type SpeakConfig struct {
	Model string `json:"model"`
}

// Context primes the conversation with prior messages, e.g. so a restarted
// session can pick up where the last one left off.
type Context struct {
	Messages []ContextMessage `json:"messages,omitempty"`
	Replay   bool             `json:"replay"`
}

type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
