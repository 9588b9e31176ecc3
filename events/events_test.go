package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("control message", func(t *testing.T) {
		f := Classify([]byte(`{"type":"Welcome","request_id":"req-7"}`))
		require.False(t, f.IsAudio())

		w, ok := f.Message.(*Welcome)
		require.True(t, ok)
		assert.Equal(t, "req-7", w.RequestID)
		assert.Equal(t, TypeWelcome, w.Kind())
	})

	t.Run("pcm bytes are audio", func(t *testing.T) {
		pcm := []byte{0x00, 0x01, 0xfe, 0xff, 0x10, 0x20}
		f := Classify(pcm)
		require.True(t, f.IsAudio())
		assert.Equal(t, pcm, f.Audio)
	})

	t.Run("truncated json is audio", func(t *testing.T) {
		f := Classify([]byte(`{"type":"Welco`))
		assert.True(t, f.IsAudio())
	})

	t.Run("unknown type is raw", func(t *testing.T) {
		f := Classify([]byte(`{"type":"SomethingNew","x":1}`))
		require.False(t, f.IsAudio())

		raw, ok := f.Message.(*Raw)
		require.True(t, ok)
		assert.Equal(t, "SomethingNew", raw.Type)
		assert.JSONEq(t, `{"type":"SomethingNew","x":1}`, string(raw.Data))
	})

	t.Run("missing type is raw", func(t *testing.T) {
		f := Classify([]byte(`{"hello":"world"}`))
		require.False(t, f.IsAudio())

		raw, ok := f.Message.(*Raw)
		require.True(t, ok)
		assert.Equal(t, "", raw.Type)
	})
}

func TestDecodeFunctionCallRequest(t *testing.T) {
	data := []byte(`{
		"type": "FunctionCallRequest",
		"function_call_id": "fc-123",
		"function_name": "get_weather",
		"input": {"city": "berlin", "days": 3}
	}`)

	msg, err := Decode(data)
	require.NoError(t, err)

	req, ok := msg.(*FunctionCallRequest)
	require.True(t, ok)
	assert.Equal(t, "fc-123", req.FunctionCallID)
	assert.Equal(t, "get_weather", req.FunctionName)
	assert.Equal(t, "berlin", req.Input["city"])
	assert.Equal(t, float64(3), req.Input["days"])
}

func TestErrorMessage(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"Error","code":"AUTH_FAILED","description":"invalid token"}`))
	require.NoError(t, err)

	e, ok := msg.(*Error)
	require.True(t, ok)
	assert.Contains(t, e.Error(), "AUTH_FAILED")
	assert.Contains(t, e.Error(), "invalid token")
}

func TestSettingsMarshal(t *testing.T) {
	s := NewSettings()
	s.Audio.Input = AudioFormat{Encoding: EncodingLinear16, SampleRate: 16_000}
	s.Audio.Output = AudioFormat{Encoding: EncodingLinear16, SampleRate: 24_000, Container: "none"}
	s.Agent.Listen.Model = "nova-2"
	s.Agent.Think.Provider.Type = "open_ai"
	s.Agent.Think.Model = "gpt-4o-mini"
	s.Agent.Speak.Model = "aura-asteria-en"

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, TypeSettings, m["type"])

	audio := m["audio"].(map[string]any)
	assert.Equal(t, "linear16", audio["input"].(map[string]any)["encoding"])
	assert.Equal(t, float64(16_000), audio["input"].(map[string]any)["sample_rate"])
	assert.Equal(t, "none", audio["output"].(map[string]any)["container"])

	agent := m["agent"].(map[string]any)
	assert.Equal(t, "nova-2", agent["listen"].(map[string]any)["model"])
	assert.Equal(t, "aura-asteria-en", agent["speak"].(map[string]any)["model"])
}

func TestOutboundConstructors(t *testing.T) {
	resp := NewFunctionCallResponse("fc-1", `{"success":true}`)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FunctionCallResponse","function_call_id":"fc-1","output":"{\"success\":true}"}`, string(data))

	ka, err := json.Marshal(NewKeepAlive())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"KeepAlive"}`, string(ka))
}
