package voiceagent

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetChunkSize(t *testing.T) {
	assert.Equal(t, 3200, getChunkSize(16_000, 100*time.Millisecond, 2, 1))
	assert.Equal(t, 6400, getChunkSize(16_000, 200*time.Millisecond, 2, 1))
	assert.Equal(t, 9600, getChunkSize(24_000, 200*time.Millisecond, 2, 1))
}

// oneByteReader hands out a single byte per Read, the worst case for chunk
// aggregation.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestFixedChunkReaderAggregates(t *testing.T) {
	src := bytes.Repeat([]byte{0xAA, 0xBB}, 5) // 10 bytes
	r := NewFixedChunkReader(&oneByteReader{data: src}, 4)

	buf := make([]byte, 4)

	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, src[:4], buf[:n])

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, src[4:8], buf[:n])

	// the tail before EOF may be short
	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, src[8:], buf[:n])

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFixedChunkReaderSmallBuffer(t *testing.T) {
	r := NewFixedChunkReader(bytes.NewReader(make([]byte, 16)), 8)

	_, err := r.Read(make([]byte, 4))
	require.Error(t, err)
}

func TestFixedAudioChunkReader(t *testing.T) {
	src := make([]byte, 9600) // three 100ms chunks at 16kHz
	r := NewFixedAudioChunkReader(bytes.NewReader(src), 16_000, 100*time.Millisecond, 2, 1)

	buf := make([]byte, 3200)
	for i := 0; i < 3; i++ {
		n, err := r.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 3200, n)
	}

	_, err := r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}
