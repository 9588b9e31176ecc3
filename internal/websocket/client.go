package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

type HandlerFunc func(data []byte) error

func Json[T any](j func(x T) error) HandlerFunc {
	return func(data []byte) error {
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}

		return j(t)
	}
}

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	OnText      HandlerFunc
	OnBinary    HandlerFunc
	Logger      *slog.Logger
}

type Client struct {
	conn     net.Conn
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	logger   *slog.Logger

	mu       sync.RWMutex
	onText   HandlerFunc
	onBinary HandlerFunc
	closeErr error
}

func (c *Client) setDone(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the connection is down, whichever side closed it.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection went down. It is nil for a clean close and
// meaningful only after Done is closed.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeErr
}

// Detach drops the text/binary handlers so no further frame callbacks run.
func (c *Client) Detach() {
	c.mu.Lock()
	c.onText = nil
	c.onBinary = nil
	c.mu.Unlock()
}

func (c *Client) handlers() (HandlerFunc, HandlerFunc) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onText, c.onBinary
}

func (c *Client) WriteText(data []byte) {
	c.Write(ws.OpText, data)
}

func (c *Client) WriteBinary(data []byte) {
	c.Write(ws.OpBinary, data)
}

func (c *Client) Ping(data []byte) {
	c.Write(ws.OpPing, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) {
	c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

func (c *Client) Close(ctx context.Context) error {
	c.SendClose(ws.StatusNormalClosure, "closing")
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.setDone(nil)
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

// Write enqueues a frame for the writer goroutine. Writes on a connection
// that is already down are dropped.
func (c *Client) Write(opcode ws.OpCode, data []byte) {
	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
	case <-c.done:
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	// 1) Handshake timeout only:
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	// 2) Dial + WebSocket handshake
	d := ws.Dialer{
		Timeout: config.DialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("handshake complete", slog.Any("handshake", hs))

	// Make sure to recycle the buffer if non-nil:
	if buf != nil {
		defer ws.PutReader(buf)
	}

	logger.Info("connected to websocket")

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		conn:     conn,
		out:      output,
		done:     make(chan struct{}),
		logger:   logger,
		onText:   config.OnText,
		onBinary: config.OnBinary,
	}

	// websocket -> input channel
	go func() {
		for {
			messages, err := wsutil.ReadServerMessage(conn, nil)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					client.setDone(nil)
					return
				}

				logger.Error("ws read failed", slog.Any("err", err))
				client.setDone(err)
				return
			}
			for _, msg := range messages {
				// Handle close here rather than downstream, so a close
				// acknowledgment ends the connection even while the
				// processing goroutine is busy tearing down.
				if msg.OpCode == ws.OpClose {
					logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
					client.setDone(nil)
					return
				}
				select {
				case input <- msg:
				case <-client.done:
					return
				}
			}
		}
	}()

	// output channel -> websocket
	go func() {
		for {
			select {
			case <-ctx.Done():
				client.setDone(ctx.Err())
				return
			case <-client.done:
				return
			case msg := <-output:
				err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload)
				if err != nil {
					logger.Error("ws write failed", slog.Any("err", err))
					client.setDone(err)
					return
				}

			}
		}
	}()

	// input channel processing
	go func() {
		for {
			select {
			case <-ctx.Done():
				client.setDone(ctx.Err())
				return
			case <-client.done:
				return
			case msg := <-input:

				if ws.OpCode.IsControl(msg.OpCode) {
					logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode))

					if msg.OpCode == ws.OpPing {
						// reply through the writer so data and control
						// frames never interleave on the wire
						client.Write(ws.OpPong, msg.Payload)
					}

					continue
				}

				onText, onBinary := client.handlers()

				switch msg.OpCode {
				case ws.OpText:
					logger.Debug("rcv: text", slog.String("text", string(msg.Payload)))
					if onText != nil {
						if err := onText(msg.Payload); err != nil {
							logger.Error("text message handler failed", slog.Any("err", err))
						}
					}

				case ws.OpBinary:
					logger.Debug("rcv: binary", slog.Int("len", len(msg.Payload)))
					if onBinary != nil {
						if err := onBinary(msg.Payload); err != nil {
							logger.Error("binary message handler failed", slog.Any("err", err))
						}
					}
				}
			}
		}
	}()

	client.Ping([]byte("ping"))

	return client, nil
}
