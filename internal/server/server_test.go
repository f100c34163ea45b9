package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipe-chat/internal/wire"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(Config{})
	hub.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(NewHandler("test-chat", hub))
	t.Cleanup(func() {
		srv.Close()
		hub.CloseAll()
		hub.Wait()
	})
	return srv, hub
}

func dialWS(t *testing.T, srv *httptest.Server, path, subprotocol string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	if subprotocol != "" {
		d.Subprotocols = []string{subprotocol}
	}
	conn, _, err := d.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(s)))
}

func expect(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

func TestJoinChatLeave(t *testing.T) {
	srv, hub := newTestServer(t)

	alice := dialWS(t, srv, "/", "")
	send(t, alice, "alice|JOIN|11:59:59")
	expect(t, alice, "SYSTEM|alice joined the chat|12:00:00")
	expect(t, alice, "USERLIST|1|alice")

	bob := dialWS(t, srv, "/ws", wire.JSON.Subprotocol())
	assert.Equal(t, wire.JSON.Subprotocol(), bob.Subprotocol())
	send(t, bob, `{"kind":"join","sender":"bob","time":"12:00:00"}`)
	expect(t, alice, "SYSTEM|bob joined the chat|12:00:00")
	expect(t, alice, "USERLIST|2|alice,bob")
	expect(t, bob, `{"kind":"system","sender":"SYSTEM","body":"bob joined the chat","time":"12:00:00"}`)
	expect(t, bob, `{"kind":"presence","count":2,"users":["alice","bob"]}`)
	assert.Equal(t, []string{"alice", "bob"}, hub.Usernames())

	send(t, alice, "alice|hello|12:00:01")
	expect(t, alice, "alice|hello|12:00:01")
	expect(t, bob, `{"kind":"chat","sender":"alice","body":"hello","time":"12:00:01"}`)

	send(t, bob, `{"kind":"chat","sender":"bob","body":"a|b","time":"12:00:02"}`)
	expect(t, alice, "bob|a¦b|12:00:02")
	expect(t, bob, `{"kind":"chat","sender":"bob","body":"a|b","time":"12:00:02"}`)

	send(t, alice, "alice|LEAVE|12:00:03")
	require.NoError(t, alice.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	expect(t, bob, `{"kind":"system","sender":"SYSTEM","body":"alice left the chat","time":"12:00:00"}`)
	expect(t, bob, `{"kind":"presence","count":1,"users":["bob"]}`)
	assert.Equal(t, 1, hub.Count())
}

func TestChatUsesJoinedName(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dialWS(t, srv, "/", "")
	send(t, conn, "<b>carol</b>|JOIN|12:00:00")
	expect(t, conn, "SYSTEM|carol joined the chat|12:00:00")
	expect(t, conn, "USERLIST|1|carol")

	send(t, conn, "mallory|hi|not-a-time")
	expect(t, conn, "carol|hi|12:00:00")
}

func TestIgnoredFrames(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dialWS(t, srv, "/", "")
	send(t, conn, "dave|JOIN|12:00:00")
	expect(t, conn, "SYSTEM|dave joined the chat|12:00:00")
	expect(t, conn, "USERLIST|1|dave")

	// Malformed, spoofed system, presence and blank chat frames produce nothing.
	send(t, conn, "garbage")
	send(t, conn, "SYSTEM|fake notice|12:00:00")
	send(t, conn, "USERLIST|9|x,y")
	send(t, conn, "dave|\x01\x02|12:00:00")
	send(t, conn, "dave|after|12:00:00")
	expect(t, conn, "dave|after|12:00:00")
}

func TestUnjoinedPeersGetNoBroadcasts(t *testing.T) {
	srv, _ := newTestServer(t)

	lurker := dialWS(t, srv, "/", "")
	erin := dialWS(t, srv, "/", "")
	send(t, erin, "erin|JOIN|12:00:00")
	expect(t, erin, "SYSTEM|erin joined the chat|12:00:00")

	require.NoError(t, lurker.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := lurker.ReadMessage()
	assert.Error(t, err)
}

func TestCloseAllSendsGoingAway(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dialWS(t, srv, "/", "")
	send(t, conn, "frank|JOIN|12:00:00")
	expect(t, conn, "SYSTEM|frank joined the chat|12:00:00")
	expect(t, conn, "USERLIST|1|frank")

	hub.CloseAll()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	hub.Wait()
}

func TestConnectionsRefusedAfterCloseAll(t *testing.T) {
	srv, hub := newTestServer(t)
	hub.CloseAll()

	conn := dialWS(t, srv, "/ws", "")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, hub.Count())

	done := make(chan struct{})
	go func() {
		hub.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked on a refused connection")
	}
}

func TestHTTPRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "<title>test-chat</title>")
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"alice":                        "alice",
		"  bob  ":                      "bob",
		"<b>carol</b>":                 "carol",
		"tom &amp; jerry":              "tom & jerry",
		"a|b,c":                        "abc",
		"":                             "anon",
		"<script>x</script>":           "anon",
		"abcdefghijklmnopqrstuvwxyz01": "abcdefghijklmnopqrstuvwx",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello\tworld\nagain", sanitizeText("hello\tworld\nagain\x00", 100))
	assert.Equal(t, "héllo 👋", sanitizeText("  héllo 👋  ", 100))
	assert.Equal(t, "abc", sanitizeText("abcdef", 3))
	assert.Equal(t, "", sanitizeText("\x01\x02", 100))
}
