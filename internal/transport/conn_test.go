package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipe-chat/internal/chatclient"
	"github.com/gosuda/pipe-chat/internal/wire"
)

// echoServer upgrades with the given subprotocols, echoes text messages and
// closes normally when it receives "bye".
func echoServer(t *testing.T, subprotocols ...string) string {
	t.Helper()
	up := websocket.Upgrader{Subprotocols: subprotocols}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte("ignored"))
			_ = conn.WriteMessage(typ, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

func TestURL(t *testing.T) {
	tests := map[string]string{
		"localhost:10000":        "ws://localhost:10000/",
		" localhost:10000 ":      "ws://localhost:10000/",
		"ws://example.com:80/ws": "ws://example.com:80/ws",
		"http://example.com":     "ws://example.com/",
		"wss://example.com/chat": "ws://example.com/chat",
	}
	for in, want := range tests {
		got, err := URL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := URL("/only/a/path")
	assert.ErrorIs(t, err, chatclient.ErrAddressInvalid)
	_, err = URL("local host:10000")
	assert.ErrorIs(t, err, chatclient.ErrAddressInvalid)
}

func TestDialNegotiatesCodec(t *testing.T) {
	addr := echoServer(t, wire.Subprotocols()...)

	conn, err := Dialer{Codec: wire.JSON}.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, wire.JSON, conn.Codec())

	conn2, err := Dialer{}.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn2.Close()
	assert.Equal(t, wire.Pipe, conn2.Codec())
}

func TestDialFallsBackToPipe(t *testing.T) {
	addr := echoServer(t)

	conn, err := Dialer{Codec: wire.JSON}.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, wire.Pipe, conn.Codec())
}

func TestReadWriteAndClose(t *testing.T) {
	addr := echoServer(t)

	conn, err := Dialer{HandshakeTimeout: time.Second}.Dial(context.Background(), addr)
	require.NoError(t, err)

	require.NoError(t, conn.WriteText("alice|hello|12:00:00"))
	got, err := conn.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "alice|hello|12:00:00", got)

	require.NoError(t, conn.WriteText("bye"))
	_, err = conn.ReadText()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.WriteText("late"), ErrClosed)
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	_, err := Dialer{}.Dial(context.Background(), addr)
	assert.Error(t, err)
}

func TestDialHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dialer{}.Dial(ctx, echoServer(t))
	assert.Error(t, err)
}
