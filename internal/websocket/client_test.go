package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	received := make(chan string, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}

		go func() {
			defer conn.Close()

			if err := wsutil.WriteServerMessage(conn, ws.OpText, []byte(`{"hello":"world"}`)); err != nil {
				return
			}

			for {
				data, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if op == ws.OpText {
					received <- string(data)
				}
			}
		}()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	texts := make(chan map[string]any, 8)

	client, err := Connect(ctx, ClientConfig{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		DialTimeout: time.Second,
		OnText: Json(func(x map[string]any) error {
			texts <- x
			return nil
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	select {
	case x := <-texts:
		require.Equal(t, "world", x["hello"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for server text")
	}

	client.WriteText([]byte(`{"echo":1}`))
	select {
	case got := <-received:
		require.JSONEq(t, `{"echo":1}`, got)
	case <-ctx.Done():
		t.Fatal("timed out waiting for client text")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer closeCancel()
	require.NoError(t, client.Close(closeCtx))

	select {
	case <-client.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestClientDetach(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}

		go func() {
			defer conn.Close()
			for i := 0; i < 10; i++ {
				if err := wsutil.WriteServerMessage(conn, ws.OpText, []byte(`{}`)); err != nil {
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	calls := make(chan struct{}, 16)

	client, err := Connect(ctx, ClientConfig{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		OnText: func(data []byte) error {
			calls <- struct{}{}
			return nil
		},
	})
	require.NoError(t, err)

	select {
	case <-calls:
	case <-ctx.Done():
		t.Fatal("handler never called")
	}

	client.Detach()
	// drain whatever was in flight before the detach landed
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-calls:
			continue
		default:
		}
		break
	}

	select {
	case <-calls:
		t.Fatal("handler called after Detach")
	case <-time.After(100 * time.Millisecond):
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer closeCancel()
	_ = client.Close(closeCtx)
}

func TestWriteAfterCloseDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, ClientConfig{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	require.NoError(t, err)

	select {
	case <-client.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Done not closed after server dropped the connection")
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			client.WriteText([]byte("late"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writes blocked after close")
	}
}
