package voiceagent

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultRefillInterval = 200 * time.Millisecond
	defaultBufferTarget   = 400 * time.Millisecond
)

// PlayerConfig configures a Player. Sink is the only required field.
type PlayerConfig struct {
	// Sink receives the PCM chunks in playback order.
	Sink io.Writer

	// SampleRate of the chunks written to Sink, 16-bit mono.
	SampleRate int

	// RefillInterval is the cadence of the refill loop.
	RefillInterval time.Duration

	// BufferTarget is how much audio the player keeps ahead of real time.
	BufferTarget time.Duration

	// OnStarted fires when playback transitions from idle to playing,
	// OnStopped on the reverse transition and on every Flush.
	OnStarted func()
	OnStopped func()

	Logger *slog.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Player smooths bursty chunk arrival into gap-free playback. It holds a
// FIFO of pending chunks and an estimate of how many milliseconds of audio
// the sink is still holding; the estimate decays with wall time and grows
// with every write. The refill loop tops the sink up whenever the estimate
// falls below the target, never further, so most queued audio stays in the
// queue where a flush can still discard it.
type Player struct {
	sink       io.Writer
	sampleRate int
	interval   time.Duration
	targetMS   float64
	onStarted  func()
	onStopped  func()
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	queue      [][]byte
	bufferedMS float64
	lastWrite  time.Time
	playing    bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewPlayer(config PlayerConfig) *Player {
	if config.SampleRate <= 0 {
		config.SampleRate = 24_000
	}
	if config.RefillInterval <= 0 {
		config.RefillInterval = defaultRefillInterval
	}
	if config.BufferTarget <= 0 {
		config.BufferTarget = defaultBufferTarget
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Player{
		sink:       config.Sink,
		sampleRate: config.SampleRate,
		interval:   config.RefillInterval,
		targetMS:   float64(config.BufferTarget) / float64(time.Millisecond),
		onStarted:  config.OnStarted,
		onStopped:  config.OnStopped,
		logger:     config.Logger,
		now:        config.Now,
		done:       make(chan struct{}),
	}
}

// Run drives the refill loop until Close. Call it on its own goroutine.
func (p *Player) Run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.refill()
		}
	}
}

// Enqueue appends a chunk to the pending queue. The first chunk against an
// idle player fires OnStarted.
func (p *Player) Enqueue(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	p.mu.Lock()
	p.queue = append(p.queue, chunk)
	started := !p.playing
	p.playing = true
	p.mu.Unlock()

	if started && p.onStarted != nil {
		p.onStarted()
	}
}

// Flush discards the queue and the timing state and fires OnStopped,
// whatever the prior state. Used for barge-in and session teardown.
func (p *Player) Flush() {
	p.mu.Lock()
	p.queue = nil
	p.bufferedMS = 0
	p.lastWrite = time.Time{}
	p.playing = false
	p.mu.Unlock()

	if p.onStopped != nil {
		p.onStopped()
	}
}

// Close stops the refill loop. Safe to call more than once.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// Buffered is the current estimate of audio the sink still holds.
func (p *Player) Buffered() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.buffered(p.now()) * float64(time.Millisecond))
}

func (p *Player) queueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// buffered is the decay model: whatever was buffered at the last write,
// minus the wall time elapsed since, clamped at zero. Callers hold p.mu.
func (p *Player) buffered(now time.Time) float64 {
	if p.lastWrite.IsZero() {
		return 0
	}
	b := p.bufferedMS - float64(now.Sub(p.lastWrite))/float64(time.Millisecond)
	if b < 0 {
		return 0
	}
	return b
}

// refill writes queued chunks to the sink until the buffered estimate
// reaches the target, and fires OnStopped when it observes the queue drain.
func (p *Player) refill() {
	now := p.now()
	stopped := false

	p.mu.Lock()
	for len(p.queue) > 0 && p.buffered(now) < p.targetMS {
		chunk := p.queue[0]
		p.queue = p.queue[1:]

		if _, err := p.sink.Write(chunk); err != nil {
			p.logger.Error("playback write failed", slog.Any("err", err))
			continue
		}

		p.bufferedMS = p.buffered(now) + chunkDurationMS(len(chunk), p.sampleRate)
		p.lastWrite = now
	}
	if len(p.queue) == 0 && p.playing {
		p.playing = false
		stopped = true
	}
	p.mu.Unlock()

	if stopped && p.onStopped != nil {
		p.onStopped()
	}
}

// chunkDurationMS converts a chunk length to milliseconds of 16-bit mono
// audio at the given rate.
func chunkDurationMS(n, sampleRate int) float64 {
	samples := float64(n) / 2
	return samples * 1000 / float64(sampleRate)
}
