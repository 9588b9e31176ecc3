package voiceagent

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/faiface/beep"
)

// resampleQuality is the beep resampler quality (1 fastest .. 64 best).
const resampleQuality = 3

// PCMStreamer adapts a 16-bit little-endian mono PCM buffer to a beep
// streamer, duplicating the channel to stereo.
type PCMStreamer struct {
	data []int16
	pos  int
}

func NewPCMStreamer(b []byte) *PCMStreamer {
	samples := make([]int16, len(b)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return &PCMStreamer{data: samples}
}

func (s *PCMStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, false
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *PCMStreamer) Err() error { return nil }

// ResamplePCM converts 16-bit mono PCM from one sample rate to another.
func ResamplePCM(pcmData []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate == toRate {
		return pcmData, nil
	}

	streamer := NewPCMStreamer(pcmData)
	resampler := beep.Resample(resampleQuality, beep.SampleRate(fromRate), beep.SampleRate(toRate), streamer)

	buf := new(bytes.Buffer)
	sample := make([][2]float64, 1024)

	for {
		n, ok := resampler.Stream(sample)
		for i := 0; i < n; i++ {
			mono := (sample[i][0] + sample[i][1]) / 2.0
			int16Val := int16(mono * 32767)
			err := binary.Write(buf, binary.LittleEndian, int16Val)
			if err != nil {
				return nil, err
			}
		}
		if !ok {
			break
		}
	}

	return buf.Bytes(), nil
}

// ResampleWriter converts each written buffer from FromRate to ToRate
// before passing it to Sink. Equal rates pass through untouched.
//
// Each Write is resampled on its own, so buffers should hold whole chunks
// of audio rather than odd fragments.
type ResampleWriter struct {
	Sink     io.Writer
	FromRate int
	ToRate   int
}

func (w *ResampleWriter) Write(p []byte) (int, error) {
	if w.FromRate == w.ToRate {
		return w.Sink.Write(p)
	}

	out, err := ResamplePCM(p, w.FromRate, w.ToRate)
	if err != nil {
		return 0, err
	}
	if _, err := w.Sink.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
