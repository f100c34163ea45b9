package plain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/pipe-chat/internal/chatclient"
	"github.com/gosuda/pipe-chat/internal/wire"
)

type fakeConn struct {
	inbox  chan string
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan string, 8), closed: make(chan struct{})}
}

func (f *fakeConn) Codec() wire.Codec { return wire.Pipe }

func (f *fakeConn) WriteText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, s)
	return nil
}

func (f *fakeConn) ReadText() (string, error) {
	select {
	case s, ok := <-f.inbox:
		if !ok {
			return "", io.EOF
		}
		return s, nil
	case <-f.closed:
		return "", io.EOF
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func dialTo(conn *fakeConn) chatclient.DialFunc {
	return func(context.Context, string) (chatclient.Conn, error) { return conn, nil }
}

func runWithTimeout(t *testing.T, fn func() error) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- fn() }()
	select {
	case err := <-errc:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRunSendsLinesUntilQuit(t *testing.T) {
	conn := newFakeConn()
	conn.inbox <- "SYSTEM|alice joined the chat|12:00:00"
	conn.inbox <- "USERLIST|1|alice"

	var out bytes.Buffer
	in := strings.NewReader("hello\n\n/quit\nnever sent\n")
	err := runWithTimeout(t, func() error {
		return Run(context.Background(), in, &out, dialTo(conn), "alice", "localhost:10000")
	})
	require.NoError(t, err)

	frames := conn.frames()
	require.Len(t, frames, 3)
	assert.True(t, strings.HasPrefix(frames[0], "alice|JOIN|"))
	assert.True(t, strings.HasPrefix(frames[1], "alice|hello|"))
	assert.True(t, strings.HasPrefix(frames[2], "alice|LEAVE|"))
	assert.Contains(t, out.String(), "* connected")
}

func TestRunEOFDisconnects(t *testing.T) {
	conn := newFakeConn()
	var out bytes.Buffer
	err := runWithTimeout(t, func() error {
		return Run(context.Background(), strings.NewReader(""), &out, dialTo(conn), "alice", "localhost:10000")
	})
	require.NoError(t, err)

	frames := conn.frames()
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[1], "alice|LEAVE|"))
}

func TestRunRemoteClose(t *testing.T) {
	conn := newFakeConn()
	conn.inbox <- "bob|hi alice|12:00:01"
	close(conn.inbox)

	var out bytes.Buffer
	pr, pw := io.Pipe()
	defer pw.Close()
	err := runWithTimeout(t, func() error {
		return Run(context.Background(), pr, &out, dialTo(conn), "alice", "localhost:10000")
	})
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Contains(t, out.String(), "[12:00:01] bob: hi alice")
}

func TestRunDialFailure(t *testing.T) {
	dial := func(context.Context, string) (chatclient.Conn, error) {
		return nil, errors.New("connection refused")
	}
	var out bytes.Buffer
	err := runWithTimeout(t, func() error {
		return Run(context.Background(), strings.NewReader(""), &out, dial, "alice", "localhost:1")
	})
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Contains(t, out.String(), "! Connection error. Make sure the server is running.")
}

func TestRunValidation(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), strings.NewReader(""), &out, dialTo(newFakeConn()), " ", "localhost:10000")
	assert.ErrorIs(t, err, chatclient.ErrUsernameRequired)
	assert.Contains(t, out.String(), "! Please enter a username")
}

func TestRunContextCancel(t *testing.T) {
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	errc := make(chan error, 1)
	go func() { errc <- Run(ctx, pr, &out, dialTo(conn), "alice", "localhost:10000") }()

	require.Eventually(t, func() bool { return len(conn.frames()) == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	frames := conn.frames()
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[1], "alice|LEAVE|"))
}
