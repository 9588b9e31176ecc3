package voiceagent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/voiceagent-go/events"
	"github.com/codewandler/voiceagent-go/internal/websocket"
	"github.com/codewandler/voiceagent-go/tool"
)

// Client is a voice agent session client. It owns the audio plumbing and the
// function registry, which both outlive any single session: Start opens a
// session against the agent endpoint, Stop tears it down, and the microphone
// and speaker streams obtained from Audio stay valid across reconnects.
//
// A Client must be created with New.
type Client struct {
	config   *clientConfig
	registry *tool.Registry
	logger   *slog.Logger
	io       *AudioIO

	mu   sync.Mutex
	sess *session

	pumpOnce sync.Once

	onState        func(s State)
	onTranscript   func(text string)
	onConversation func(role, content string)
	onError        func(err error)
	onEvent        func(e any)
}

// New creates a client. Without options it talks to the public agent endpoint
// with linear16 audio, 16kHz up and 24kHz down.
func New(opts ...ClientOption) *Client {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	registry := config.registry
	if registry == nil {
		registry = tool.NewRegistry()
	}

	return &Client{
		config:   config,
		registry: registry,
		logger:   config.logger,
		io:       NewAudioIO(config.sampleRate, config.inputRate, config.outputRate, config.latency()),
	}
}

// OnState registers a handler for session status changes.
func (c *Client) OnState(h func(s State)) { c.onState = h }

// OnTranscript registers a handler for streaming text: user speech
// transcripts and agent response text as they arrive.
func (c *Client) OnTranscript(h func(text string)) { c.onTranscript = h }

// OnConversation registers a handler for finalized conversation turns.
func (c *Client) OnConversation(h func(role, content string)) { c.onConversation = h }

// OnError registers a handler for session failures. It fires at most once
// per session, with the error that caused the teardown.
func (c *Client) OnError(h func(err error)) { c.onError = h }

// OnEvent registers a handler that receives every decoded server message,
// including the ones the client already acted on.
func (c *Client) OnEvent(h func(e any)) { c.onEvent = h }

// Register adds a function the agent may call. Must be called before Start,
// as the function list is announced once during session configuration.
func (c *Client) Register(name, description string, params tool.Parameters, h tool.Handler) error {
	return c.registry.Register(name, description, params, h)
}

// Registry exposes the function registry, for callers that prefer to manage
// registrations directly.
func (c *Client) Registry() *tool.Registry { return c.registry }

// Audio returns the speaker stream carrying agent speech and the microphone
// sink, both at the host device sample rate. They are safe for concurrent
// use with the session and keep working across Stop/Start cycles.
func (c *Client) Audio() (io.Reader, io.Writer) {
	return c.io.userOutputReader, c.io.userInputWriter
}

// State reports the current session status, StateDisconnected when no
// session is active.
func (c *Client) State() State {
	s := c.session()
	if s == nil {
		return StateDisconnected
	}
	return s.State()
}

func (c *Client) session() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) clearSession(s *session) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
}

// Start resolves a credential, connects and drives the session handshake. It
// returns once the agent reported ready, or with the error that ended the
// handshake early. The context governs the connection: cancelling it tears
// the session down, as do Stop, a server close and transport failure.
//
// Any previous session is stopped first.
func (c *Client) Start(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	key, err := c.resolveCredential()
	if err != nil {
		return err
	}

	c.Stop()

	sid, err := nanoid.New()
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}

	s := &session{
		c:       c,
		id:      sid,
		logger:  c.logger.With(slog.String("session_id", sid)),
		state:   StateDisconnected,
		done:    make(chan struct{}),
		bound:   make(chan struct{}),
		ready:   make(chan struct{}),
		pending: map[string]struct{}{},
	}

	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	s.setState(StateConnecting)

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Token %s", key))

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:         c.config.url,
		DialTimeout: c.config.dialTimeout,
		Headers:     headers,
		Logger:      s.logger,
		OnText:      s.onFrame,
		OnBinary:    s.onFrame,
	})
	if err != nil {
		s.cleanup(nil)
		return fmt.Errorf("connect %s: %w", c.config.url, err)
	}

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	// Frames hold at the bound gate until here, so the awaiting state is in
	// place before the first Welcome can be handled.
	s.setState(StateAwaitingWelcome)
	close(s.bound)

	// Stop may have raced the dial; the transport then belongs to nobody
	// and must be shut down here.
	select {
	case <-s.done:
		ws.Detach()
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = ws.Close(closeCtx)
		cancel()
		return errors.New("session closed during startup")
	default:
	}

	go func() {
		select {
		case <-ws.Done():
			s.cleanup(ws.Err())
		case <-s.done:
		}
	}()

	go s.keepAlive(c.config.keepAliveInterval, c.config.keepAliveType)

	c.pumpOnce.Do(func() { go c.micPump() })

	select {
	case <-s.ready:
		return nil
	case <-s.done:
		if err := s.closeErr(); err != nil {
			return fmt.Errorf("session closed during startup: %w", err)
		}
		return errors.New("session closed during startup")
	case <-time.After(c.config.startTimeout):
		s.cleanup(nil)
		return fmt.Errorf("agent not ready after %s", c.config.startTimeout)
	case <-ctx.Done():
		s.cleanup(nil)
		return ctx.Err()
	}
}

// Stop tears down the current session, if any. Safe to call at any time,
// from any goroutine, repeatedly.
func (c *Client) Stop() {
	if s := c.session(); s != nil {
		s.cleanup(nil)
	}
}

// UpdateInstructions replaces the agent's system instructions mid-session.
func (c *Client) UpdateInstructions(instructions string) error {
	return c.send(events.NewUpdateInstructions(instructions))
}

// UpdateSpeak switches the agent's voice mid-session.
func (c *Client) UpdateSpeak(model string) error {
	return c.send(events.NewUpdateSpeak(model))
}

// InjectMessage makes the agent speak the given message unprompted. Useful
// for greetings and asynchronous notifications.
func (c *Client) InjectMessage(message string) error {
	return c.send(events.NewInjectAgentMessage(message))
}

func (c *Client) send(msg events.Message) error {
	s := c.session()
	if s == nil {
		return ErrNotConnected
	}
	return s.send(msg)
}

// resolveCredential finds an API key before anything touches the network:
// explicit option, environment (optionally via dotenv), credential store,
// then an interactive prompt whose answer is persisted for next time.
func (c *Client) resolveCredential() (string, error) {
	cfg := c.config

	if cfg.apiKey != "" {
		return cfg.apiKey, nil
	}

	for _, name := range cfg.envVars {
		if key := os.Getenv(name); key != "" {
			cfg.apiKey = key
			return key, nil
		}
	}

	if cfg.dotenv {
		if err := godotenv.Load(); err == nil {
			for _, name := range cfg.envVars {
				if key := os.Getenv(name); key != "" {
					cfg.apiKey = key
					return key, nil
				}
			}
		}
	}

	if cfg.credStore != nil {
		key, err := cfg.credStore.Load()
		switch {
		case err == nil && key != "":
			cfg.apiKey = key
			return key, nil
		case err != nil && !errors.Is(err, ErrNoCredential):
			return "", fmt.Errorf("load credential: %w", err)
		}
	}

	if cfg.prompt != nil {
		key, err := cfg.prompt()
		if err != nil {
			return "", fmt.Errorf("credential prompt: %w", err)
		}
		if key == "" {
			return "", ErrNoCredential
		}
		if cfg.credStore != nil {
			if err := cfg.credStore.Save(key); err != nil {
				c.logger.Warn("failed to persist credential", slog.Any("err", err))
			}
		}
		cfg.apiKey = key
		return key, nil
	}

	return "", ErrNoCredential
}

// micPump moves fixed-duration microphone chunks upstream for as long as the
// client lives. Chunks read while no session is accepting audio are dropped,
// which keeps the microphone ring buffer draining during reconnects.
func (c *Client) micPump() {
	buf := make([]byte, getChunkSize(c.config.inputRate, c.config.latency(), 2, 1))

	for {
		n, err := c.io.agentInputReader.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Error("microphone read failed", slog.Any("err", err))
			}
			return
		}

		s := c.session()
		if s == nil || !s.micActive.Load() {
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		s.sendAudio(chunk)
	}
}

// session is one connection to the agent, from dial to teardown. All frame
// handling runs on the transport's processing goroutine, in arrival order;
// function handlers and playback run on goroutines of their own.
type session struct {
	c      *Client
	id     string
	logger *slog.Logger

	mu        sync.Mutex
	ws        *websocket.Client
	player    *Player
	state     State
	idleTimer *time.Timer
	err       error

	micActive atomic.Bool
	closing   atomic.Bool

	pendingMu sync.Mutex
	pending   map[string]struct{}

	done      chan struct{}
	bound     chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Debug("session status", slog.String("status", next.String()))
	if h := s.c.onState; h != nil {
		h(next)
	}
}

func (s *session) closeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) transport() *websocket.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws
}

func (s *session) send(msg events.Message) error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %T: %w", msg, err)
	}

	ws := s.transport()
	if ws == nil {
		return ErrNotConnected
	}
	ws.WriteText(data)
	return nil
}

func (s *session) sendAudio(chunk []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	if ws := s.transport(); ws != nil {
		ws.WriteBinary(chunk)
	}
}

// onFrame receives every transport frame, text and binary alike. Frames that
// decode as control messages drive the state machine; everything else is
// agent audio.
func (s *session) onFrame(data []byte) error {
	<-s.bound

	frame := events.Classify(data)
	if frame.IsAudio() {
		s.handleAudio(frame.Audio)
		return nil
	}

	s.handleMessage(frame.Message)
	return nil
}

func (s *session) handleMessage(msg events.Message) {
	switch m := msg.(type) {
	case *events.Welcome:
		s.logger.Info("session welcome", slog.String("request_id", m.RequestID))
		s.setState(StateConfiguring)
		if err := s.send(s.settings()); err != nil {
			s.logger.Error("failed to send settings", slog.Any("err", err))
		}

	case *events.SettingsApplied:
		s.setState(StateAwaitingReady)
		s.micActive.Store(true)

	case *events.Ready:
		s.setState(StateIdle)
		s.readyOnce.Do(func() { close(s.ready) })

	case *events.UserStartedSpeaking:
		// Barge-in. Mark the state first so the playback stop that the
		// flush triggers does not report a spurious idle.
		if s.State().Active() {
			s.setState(StateUserSpeaking)
		}
		s.stopSpeakingTimer()
		if p := s.currentPlayer(); p != nil {
			p.Flush()
		}
		s.c.io.ClearOutput()

	case *events.AgentStartedSpeaking:
		if s.State().Active() {
			s.setState(StateAgentSpeaking)
		}

	case *events.AgentAudioDone:
		s.stopSpeakingTimer()
		if s.State() == StateAgentSpeaking {
			s.setState(StateIdle)
		}

	case *events.Speech:
		if h := s.c.onTranscript; h != nil && m.Text != "" {
			h(m.Text)
		}

	case *events.AgentResponse:
		if h := s.c.onTranscript; h != nil && m.Text != "" {
			h(m.Text)
		}
		if m.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(m.Audio)
			if err != nil {
				s.logger.Error("bad response audio", slog.Any("err", err))
			} else {
				s.handleAudio(audio)
			}
		}

	case *events.ConversationText:
		if h := s.c.onConversation; h != nil {
			h(m.Role, m.Content)
		}

	case *events.FunctionCallRequest:
		s.dispatchFunctionCall(m)

	case *events.Error:
		s.cleanup(&ProtocolError{Code: m.Code, Description: m.Description})

	case *events.Close:
		s.logger.Info("close requested by server")
		s.cleanup(nil)

	case *events.Raw:
		s.logger.Debug("unhandled message", slog.String("type", m.Type))
	}

	if h := s.c.onEvent; h != nil {
		h(msg)
	}
}

func (s *session) handleAudio(chunk []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	s.ensurePlayer().Enqueue(chunk)
	s.touchSpeaking()
}

func (s *session) ensurePlayer() *Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		s.player = NewPlayer(PlayerConfig{
			Sink:           s.c.io.agentOutput,
			SampleRate:     s.c.config.outputRate,
			RefillInterval: s.c.config.refillInterval,
			BufferTarget:   s.c.config.bufferTarget,
			OnStarted:      s.playbackStarted,
			OnStopped:      s.playbackStopped,
			Logger:         s.logger,
		})
		go s.player.Run()
	}
	return s.player
}

func (s *session) currentPlayer() *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *session) playbackStarted() {
	if s.State() == StateIdle {
		s.setState(StateAgentSpeaking)
	}
}

func (s *session) playbackStopped() {
	if s.State() == StateAgentSpeaking {
		s.setState(StateIdle)
	}
}

// touchSpeaking marks the agent as speaking and re-arms the idle fallback.
// Some model configurations never send AgentAudioDone; without the fallback
// the session would report agent_speaking forever.
func (s *session) touchSpeaking() {
	if s.State().Active() {
		s.setState(StateAgentSpeaking)
	}

	d := s.c.config.speakingIdleTimeout
	if d <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(d, s.speakingTimeout)
	} else {
		s.idleTimer.Reset(d)
	}
}

func (s *session) speakingTimeout() {
	if s.State() == StateAgentSpeaking {
		s.setState(StateIdle)
	}
}

func (s *session) stopSpeakingTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
}

func (s *session) settings() events.Settings {
	cfg := s.c.config

	settings := events.NewSettings()
	settings.Audio = events.AudioConfig{
		Input: events.AudioFormat{
			Encoding:   events.EncodingLinear16,
			SampleRate: cfg.inputRate,
		},
		Output: events.AudioFormat{
			Encoding:   events.EncodingLinear16,
			SampleRate: cfg.outputRate,
			Container:  "none",
		},
	}
	settings.Agent = events.AgentConfig{
		Listen: events.ListenConfig{Model: cfg.listenModel},
		Think: events.ThinkConfig{
			Provider:     events.Provider{Type: cfg.thinkProvider},
			Model:        cfg.thinkModel,
			Instructions: cfg.instruction,
			Functions:    s.c.registry.Definitions(),
		},
		Speak: events.SpeakConfig{Model: cfg.speakModel},
	}

	if cfg.contextProvider != nil {
		if messages := cfg.contextProvider(); len(messages) > 0 {
			settings.Context = &events.Context{Messages: messages}
		}
	}
	return settings
}

// dispatchFunctionCall answers a function call request on its own goroutine.
// The optional spoken acknowledgment goes out first, from the frame handling
// goroutine, so it is on the wire before any result.
func (s *session) dispatchFunctionCall(req *events.FunctionCallRequest) {
	s.pendingMu.Lock()
	s.pending[req.FunctionCallID] = struct{}{}
	s.pendingMu.Unlock()

	if ack := s.c.config.functionAck; ack != "" {
		if err := s.send(events.NewInjectAgentMessage(ack)); err != nil {
			s.logger.Debug("failed to inject acknowledgment", slog.Any("err", err))
		}
	}

	s.logger.Info("function call",
		slog.String("function", req.FunctionName),
		slog.String("function_call_id", req.FunctionCallID))

	go func() {
		resp := s.c.registry.Dispatch(context.Background(), req.FunctionCallID, req.FunctionName, req.Input)

		s.pendingMu.Lock()
		delete(s.pending, resp.FunctionCallID)
		s.pendingMu.Unlock()

		if err := s.send(events.NewFunctionCallResponse(resp.FunctionCallID, resp.Output)); err != nil {
			s.logger.Debug("dropping function result for closed session",
				slog.String("function_call_id", resp.FunctionCallID))
			return
		}

		s.logger.Debug("function call answered",
			slog.String("function", req.FunctionName),
			slog.String("function_call_id", resp.FunctionCallID))
	}()
}

// pendingCalls reports how many function calls still await a result.
func (s *session) pendingCalls() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// keepAlive keeps the connection warm through long silences, with either
// protocol keep-alive messages or plain websocket pings.
func (s *session) keepAlive(interval time.Duration, kind KeepAliveType) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if kind == KeepAlivePing {
				if ws := s.transport(); ws != nil {
					ws.Ping([]byte("keepalive"))
				}
				continue
			}
			if err := s.send(events.NewKeepAlive()); err != nil {
				return
			}
		}
	}
}

// cleanup tears the session down exactly once: stop timers, close the
// transport, discard queued audio, report the cause and settle on
// disconnected. Reentrant calls, including from state callbacks, return
// immediately.
func (s *session) cleanup(cause error) {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}

	if cause != nil {
		s.logger.Warn("session failed", slog.Any("err", cause))
	}

	s.setState(StateClosing)

	s.mu.Lock()
	s.err = cause
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	player := s.player
	ws := s.ws
	s.mu.Unlock()

	close(s.done)
	s.micActive.Store(false)

	if ws != nil {
		ws.Detach()
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := ws.Close(closeCtx); err != nil {
			s.logger.Debug("transport close", slog.Any("err", err))
		}
		cancel()
	}

	if player != nil {
		player.Flush()
		player.Close()
	}
	s.c.io.ClearOutput()

	if cause != nil {
		if h := s.c.onError; h != nil {
			h(cause)
		}
	}

	s.setState(StateDisconnected)
	s.c.clearSession(s)
}
