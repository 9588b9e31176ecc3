package voiceagent

import (
	"fmt"
	"io"
	"time"
)

// FixedChunkReader aggregates reads from r into chunks of exactly chunkSize
// bytes. Only the final chunk before EOF may be shorter. Upstream audio is
// sent in fixed-duration frames, so the microphone byte stream gets
// re-chunked through one of these.
type FixedChunkReader struct {
	r         io.Reader
	buf       []byte
	chunkSize int
	eof       bool
}

func NewFixedChunkReader(r io.Reader, chunkSize int) *FixedChunkReader {
	return &FixedChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
	}
}

// NewFixedAudioChunkReader sizes the chunk to the given duration of PCM
// audio.
func NewFixedAudioChunkReader(
	r io.Reader,
	sampleRate int,
	chunkDuration time.Duration,
	bytesPerSample int,
	channels int,
) *FixedChunkReader {
	return NewFixedChunkReader(r, getChunkSize(sampleRate, chunkDuration, bytesPerSample, channels))
}

// getChunkSize is the byte length of sampleDuration worth of PCM.
func getChunkSize(sampleRate int, sampleDuration time.Duration, bytesPerSample int, channels int) int {
	frames := int(float64(sampleRate) * sampleDuration.Seconds())
	return frames * bytesPerSample * channels
}

// Read returns one chunk. p must hold at least chunkSize bytes.
func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("read buffer must hold at least %d bytes", f.chunkSize)
	}

	// accumulate until a full chunk is available or the source runs dry
	for len(f.buf) < f.chunkSize && !f.eof {
		tmp := make([]byte, f.chunkSize)
		n, err := f.r.Read(tmp)
		if n > 0 {
			f.buf = append(f.buf, tmp[:n]...)
		}
		if err == io.EOF {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	n := f.chunkSize
	if len(f.buf) < n {
		n = len(f.buf)
	}

	copy(p, f.buf[:n])
	f.buf = f.buf[n:]

	return n, nil
}
