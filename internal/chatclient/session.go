package chatclient

import (
	"context"
	"sync"

	"github.com/gosuda/pipe-chat/internal/wire"
)

// Conn is an open text channel to a chat server.
type Conn interface {
	// Codec is the framing agreed with the server.
	Codec() wire.Codec
	WriteText(s string) error
	// ReadText blocks for the next text message. It returns io.EOF once the
	// server closed the channel cleanly.
	ReadText() (string, error)
	Close() error
}

// DialFunc opens a channel to addr. It must honour ctx cancellation.
type DialFunc func(ctx context.Context, addr string) (Conn, error)

// Session ties one display name to one connection handle. A session is
// created by Connect and torn down by cleanup; it is never reused.
type Session struct {
	id       uint64
	username string
	addr     string

	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSession(id uint64, username, addr string, cancel context.CancelFunc) *Session {
	return &Session{
		id:       id,
		username: username,
		addr:     addr,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (s *Session) Username() string { return s.username }
func (s *Session) Addr() string     { return s.addr }

func (s *Session) open() bool { return s.conn != nil }

// teardown cancels a pending dial, stops the transport goroutines from
// posting and closes the handle. Safe to call more than once.
func (s *Session) teardown() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}
