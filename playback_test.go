package voiceagent

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock stands in for time.Now so refill cycles can be driven by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPlayerBurst(t *testing.T) {
	clock := newFakeClock()
	sink := &bytes.Buffer{}

	var started, stopped int
	p := NewPlayer(PlayerConfig{
		Sink:       sink,
		SampleRate: 16_000,
		OnStarted:  func() { started++ },
		OnStopped:  func() { stopped++ },
		Now:        clock.Now,
	})

	chunk := make([]byte, 3200) // 100ms at 16kHz
	p.Enqueue(chunk)
	p.Enqueue(chunk)
	p.Enqueue(chunk)

	require.Equal(t, 1, started)

	p.refill()

	assert.Equal(t, 9600, sink.Len())
	assert.Equal(t, 300*time.Millisecond, p.Buffered())
	assert.Equal(t, 1, stopped)

	// steady idle must not repeat the events
	p.refill()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestPlayerHoldsBufferTarget(t *testing.T) {
	clock := newFakeClock()
	sink := &bytes.Buffer{}

	p := NewPlayer(PlayerConfig{
		Sink:       sink,
		SampleRate: 24_000,
		Now:        clock.Now,
	})

	chunk := make([]byte, 4800) // 100ms at 24kHz
	for i := 0; i < 10; i++ {
		p.Enqueue(chunk)
	}

	p.refill()
	assert.Equal(t, 400*time.Millisecond, p.Buffered())
	assert.Equal(t, 4*4800, sink.Len())
	assert.Equal(t, 6, p.queueLen())

	// sink topped up, nothing to do
	p.refill()
	assert.Equal(t, 4*4800, sink.Len())

	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, p.Buffered())

	p.refill()
	assert.Equal(t, 6*4800, sink.Len())
	assert.Equal(t, 400*time.Millisecond, p.Buffered())

	// the estimate decays with wall time, clamped at zero
	clock.Advance(10 * time.Second)
	assert.Equal(t, time.Duration(0), p.Buffered())
}

func TestPlayerFlush(t *testing.T) {
	clock := newFakeClock()
	sink := &bytes.Buffer{}

	var stopped int
	p := NewPlayer(PlayerConfig{
		Sink:      sink,
		Now:       clock.Now,
		OnStopped: func() { stopped++ },
	})

	chunk := make([]byte, 4800)
	for i := 0; i < 5; i++ {
		p.Enqueue(chunk)
	}

	p.Flush()

	assert.Equal(t, 1, stopped)
	assert.Equal(t, 0, p.queueLen())
	assert.Equal(t, time.Duration(0), p.Buffered())
	assert.Equal(t, 0, sink.Len())

	// a flush on an already empty queue still reports the stop
	p.Flush()
	assert.Equal(t, 2, stopped)
}

func TestPlayerRestartsAfterDrain(t *testing.T) {
	clock := newFakeClock()
	sink := &bytes.Buffer{}

	var started, stopped int
	p := NewPlayer(PlayerConfig{
		Sink:      sink,
		OnStarted: func() { started++ },
		OnStopped: func() { stopped++ },
		Now:       clock.Now,
	})

	p.Enqueue(make([]byte, 4800))
	p.refill()

	require.Equal(t, 1, started)
	require.Equal(t, 1, stopped)

	p.Enqueue(make([]byte, 4800))
	assert.Equal(t, 2, started)
	assert.Equal(t, 1, stopped)
}

func TestPlayerShortChunkClamps(t *testing.T) {
	clock := newFakeClock()

	p := NewPlayer(PlayerConfig{
		Sink: &bytes.Buffer{},
		Now:  clock.Now,
	})

	p.Enqueue(make([]byte, 48)) // 1ms at 24kHz
	p.refill()

	clock.Advance(5 * time.Millisecond)
	assert.Equal(t, time.Duration(0), p.Buffered())
}

type failingWriter struct{ err error }

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestPlayerSinkErrorDropsChunk(t *testing.T) {
	clock := newFakeClock()

	p := NewPlayer(PlayerConfig{
		Sink: failingWriter{err: errors.New("device gone")},
		Now:  clock.Now,
	})

	p.Enqueue(make([]byte, 4800))
	p.Enqueue(make([]byte, 4800))
	p.refill()

	assert.Equal(t, 0, p.queueLen())
	assert.Equal(t, time.Duration(0), p.Buffered())
}

func TestPlayerRunClose(t *testing.T) {
	p := NewPlayer(PlayerConfig{
		Sink:           &bytes.Buffer{},
		RefillInterval: time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()

	p.Enqueue(make([]byte, 480))
	p.Close()
	p.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refill loop did not stop")
	}
}
