package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	voiceagent "github.com/codewandler/voiceagent-go"
	"github.com/codewandler/voiceagent-go/events"
	"github.com/codewandler/voiceagent-go/tool"
	"github.com/gordonklaus/portaudio"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		phone       = false
		debug       = false
		sampleRate  = 24_000
		voice       = "aura-asteria-en"
		greeting    = "Hello! How can I help you today?"
		instruction = "You are a helpcenter agent and help the user."
	)

	flag.StringVar(&instruction, "instruction", instruction, "instruction to send to the agent.")
	flag.StringVar(&voice, "voice", voice, "agent voice model")
	flag.StringVar(&greeting, "greeting", greeting, "spoken greeting, empty to disable")
	flag.IntVar(&sampleRate, "sample-rate", sampleRate, "device sample rate")
	flag.BoolVar(&phone, "phone", false, "enable 8khz audio emulation.")
	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.Parse()

	if phone {
		sampleRate = 8_000
	}

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// audio
	must(portaudio.Initialize())
	defer portaudio.Terminate()

	device, err := NewDeviceIO(sampleRate)
	if err != nil {
		panic(err)
	}
	defer device.Close()

	store, err := voiceagent.NewFileCredentialStore()
	if err != nil {
		panic(err)
	}

	client := voiceagent.New(
		voiceagent.WithDefaultLogger(),
		voiceagent.WithDotEnv(),
		voiceagent.WithCredentialStore(store),
		voiceagent.WithCredentialPrompt(promptKey),
		voiceagent.WithInstruction(instruction),
		voiceagent.WithSpeakModel(voice),
		voiceagent.WithSampleRate(sampleRate),
	)

	must(client.Register("get_time", "Get current time", tool.NoParameters(),
		func(ctx context.Context, _ map[string]any) (any, error) {
			return time.Now().Format(time.RFC3339), nil
		}))
	must(client.Register("conversation_end", "End the conversation", tool.NoParameters(),
		func(ctx context.Context, _ map[string]any) (any, error) {
			// leave time for the result and the goodbye to go out
			time.AfterFunc(time.Second, stop)
			return "Goodbye", nil
		}))

	client.OnConversation(func(role, content string) {
		fmt.Printf("%s> %s\n", role, content)
	})
	client.OnError(func(err error) {
		slog.Error("session error", slog.Any("err", err))
	})
	client.OnEvent(func(e any) {
		if _, ok := e.(*events.UserStartedSpeaking); ok {
			// drop whatever is still queued for the speaker
			device.Clear()
		}
	})

	must(client.Start(ctx))
	defer client.Stop()

	if greeting != "" {
		must(client.InjectMessage(greeting))
	}

	speakerIn, micOut := client.Audio()

	// agent -> speaker
	go func() {
		buf := make([]byte, 640)
		for {
			n, err := speakerIn.Read(buf)
			if err != nil {
				if err.Error() == "reset called" {
					<-time.After(100 * time.Millisecond)
					continue
				}
				panic(err)
			}

			if _, err = device.Write(buf[:n]); err != nil {
				panic(err)
			}
		}
	}()

	// mic -> agent
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := device.Read(buf)
			if err != nil {
				panic(err)
			}

			if _, err = micOut.Write(buf[:n]); err != nil {
				panic(err)
			}
		}
	}()

	<-ctx.Done()
}

func promptKey() (string, error) {
	fmt.Print("api key: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
