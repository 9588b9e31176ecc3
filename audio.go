package voiceagent

import (
	"io"
	"time"

	"github.com/smallnest/ringbuffer"
)

// AudioIO wires the host's audio device rate to the protocol's fixed
// sample rates. The host reads agent speech and writes microphone audio at
// the device rate; the session reads upstream chunks and writes downstream
// audio at the protocol rates. Ring buffers decouple the two sides and
// resampling happens on the way in.
type AudioIO struct {
	agentBuffer *ringbuffer.RingBuffer
	micBuffer   *ringbuffer.RingBuffer

	userInputWriter  io.Writer // host writes mic audio, device rate
	userOutputReader io.Reader // host reads agent speech, device rate
	agentInputReader io.Reader // session reads upstream chunks, input rate
	agentOutput      io.Writer // playback sink, output rate in
}

func NewAudioIO(deviceRate, inputRate, outputRate int, latency time.Duration) *AudioIO {
	micBufferSize := getChunkSize(inputRate, latency, 2, 1) * 4
	micBuffer := ringbuffer.New(micBufferSize).SetBlocking(true)

	agentBufferSize := getChunkSize(deviceRate, 60*time.Second, 2, 1)
	agentBuffer := ringbuffer.New(agentBufferSize).SetBlocking(true)

	return &AudioIO{
		agentBuffer: agentBuffer,
		micBuffer:   micBuffer,

		// host side
		userOutputReader: agentBuffer,
		userInputWriter: &ResampleWriter{
			Sink:     micBuffer,
			FromRate: deviceRate,
			ToRate:   inputRate,
		},

		// session side
		agentInputReader: NewFixedAudioChunkReader(micBuffer, inputRate, latency, 2, 1),
		agentOutput: &ResampleWriter{
			Sink:     agentBuffer,
			FromRate: outputRate,
			ToRate:   deviceRate,
		},
	}
}

// ClearOutput drops all agent audio that has not reached the host yet.
// Used on barge-in and on teardown.
func (a *AudioIO) ClearOutput() {
	a.agentBuffer.Reset()
}
