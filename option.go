package voiceagent

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/voiceagent-go/events"
	"github.com/codewandler/voiceagent-go/tool"
)

const (
	ApiKeyEnvVarName    = "DEEPGRAM_API_KEY"
	ApiKeyEnvVarNameAlt = "VOICEAGENT_API_KEY"

	DefaultURL = "wss://agent.deepgram.com/agent"
)

// KeepAliveType selects the shape of the periodic liveness frame. Gateways
// differ on what they expect, so both are supported.
type KeepAliveType int

const (
	// KeepAliveMessage sends a {"type":"KeepAlive"} text frame.
	KeepAliveMessage KeepAliveType = iota
	// KeepAlivePing sends a websocket ping frame.
	KeepAlivePing
)

// ContextProvider supplies conversation context for the settings payload,
// e.g. a summary of the host workspace or the tail of a prior session.
type ContextProvider func() []events.ContextMessage

type clientConfig struct {
	url       string
	apiKey    string
	envVars   []string
	dotenv    bool
	credStore CredentialStore
	prompt    CredentialPrompt

	instruction   string
	listenModel   string
	thinkProvider string
	thinkModel    string
	speakModel    string

	sampleRate int // host device rate
	inputRate  int // upstream PCM rate
	outputRate int // downstream PCM rate
	latencyMS  int

	keepAliveInterval   time.Duration
	keepAliveType       KeepAliveType
	refillInterval      time.Duration
	bufferTarget        time.Duration
	speakingIdleTimeout time.Duration
	dialTimeout         time.Duration
	startTimeout        time.Duration

	functionAck     string
	contextProvider ContextProvider

	logger   *slog.Logger
	registry *tool.Registry
}

func (c *clientConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

func (c *clientConfig) validate() error {
	if c.url == "" {
		return fmt.Errorf("missing url")
	}
	if c.sampleRate <= 0 || c.inputRate <= 0 || c.outputRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}
	if c.latencyMS <= 0 {
		return fmt.Errorf("latency must be positive")
	}
	return nil
}

type ClientOption func(*clientConfig)

// WithURL points the client at a different agent endpoint, e.g. a
// self-hosted gateway or a test server.
func WithURL(url string) ClientOption {
	return func(o *clientConfig) {
		o.url = url
	}
}

func WithKey(apiKey string) ClientOption {
	return func(o *clientConfig) {
		o.apiKey = apiKey
	}
}

// WithEnvKey reads the API key from the first non-empty environment
// variable. The variable names are kept so a later WithDotEnv load can be
// retried against them.
func WithEnvKey(vars ...string) ClientOption {
	return func(o *clientConfig) {
		o.envVars = vars
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

// WithDotEnv loads a .env file before resolving the API key from the
// environment.
func WithDotEnv() ClientOption {
	return func(o *clientConfig) {
		o.dotenv = true
	}
}

// WithCredentialStore persists and recalls the API key between sessions.
func WithCredentialStore(store CredentialStore) ClientOption {
	return func(o *clientConfig) {
		o.credStore = store
	}
}

// WithCredentialPrompt asks the user for an API key when none can be
// resolved otherwise. The key is saved to the credential store if one is
// configured.
func WithCredentialPrompt(prompt CredentialPrompt) ClientOption {
	return func(o *clientConfig) {
		o.prompt = prompt
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithInstruction(instruction string) ClientOption {
	return func(o *clientConfig) {
		o.instruction = instruction
	}
}

func WithListenModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.listenModel = model
	}
}

func WithThinkModel(provider, model string) ClientOption {
	return func(o *clientConfig) {
		o.thinkProvider = provider
		o.thinkModel = model
	}
}

func WithSpeakModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.speakModel = model
	}
}

// WithSampleRate sets the host device sample rate for both Audio
// directions. The protocol rates are independent, see WithInputSampleRate
// and WithOutputSampleRate.
func WithSampleRate(sr int) ClientOption {
	return func(o *clientConfig) {
		o.sampleRate = sr
	}
}

// WithInputSampleRate sets the upstream PCM rate agreed in the settings
// handshake.
func WithInputSampleRate(sr int) ClientOption {
	return func(o *clientConfig) {
		o.inputRate = sr
	}
}

// WithOutputSampleRate sets the downstream PCM rate agreed in the settings
// handshake.
func WithOutputSampleRate(sr int) ClientOption {
	return func(o *clientConfig) {
		o.outputRate = sr
	}
}

// WithLatency sets the audio chunking granularity in milliseconds.
func WithLatency(latencyMS int) ClientOption {
	return func(o *clientConfig) {
		o.latencyMS = latencyMS
	}
}

func WithKeepAliveInterval(interval time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.keepAliveInterval = interval
	}
}

func WithKeepAliveType(t KeepAliveType) ClientOption {
	return func(o *clientConfig) {
		o.keepAliveType = t
	}
}

// WithRefillInterval sets the playback scheduler cadence.
func WithRefillInterval(interval time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.refillInterval = interval
	}
}

// WithBufferTarget sets how much audio the playback scheduler keeps ahead
// of real time.
func WithBufferTarget(target time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.bufferTarget = target
	}
}

// WithSpeakingIdleTimeout sets how long after the last raw audio chunk the
// agent is still considered speaking when no AgentAudioDone arrives. This
// is a display heuristic, not a protocol guarantee.
func WithSpeakingIdleTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.speakingIdleTimeout = d
	}
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.dialTimeout = d
	}
}

// WithStartTimeout bounds how long Start waits for the agent to become
// ready.
func WithStartTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.startTimeout = d
	}
}

// WithFunctionCallAck makes the client speak the given message while a
// function call runs, so the agent is not silent during slow handlers.
// Empty disables the acknowledgment.
func WithFunctionCallAck(message string) ClientOption {
	return func(o *clientConfig) {
		o.functionAck = message
	}
}

func WithContextProvider(provider ContextProvider) ClientOption {
	return func(o *clientConfig) {
		o.contextProvider = provider
	}
}

// WithRegistry replaces the client's function registry, e.g. to share one
// across clients.
func WithRegistry(registry *tool.Registry) ClientOption {
	return func(o *clientConfig) {
		o.registry = registry
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithURL(DefaultURL),
		WithListenModel("nova-2"),
		WithThinkModel("open_ai", "gpt-4o-mini"),
		WithSpeakModel("aura-asteria-en"),
		WithInstruction("You are a helpful voice assistant. Keep your answers short."),
		WithSampleRate(24_000),
		WithInputSampleRate(16_000),
		WithOutputSampleRate(24_000),
		WithLatency(200),
		WithKeepAliveInterval(30*time.Second),
		WithRefillInterval(defaultRefillInterval),
		WithBufferTarget(defaultBufferTarget),
		WithSpeakingIdleTimeout(3*time.Second),
		WithDialTimeout(10*time.Second),
		WithStartTimeout(30*time.Second),
		WithEnvKey(ApiKeyEnvVarName, ApiKeyEnvVarNameAlt),
	)
}
