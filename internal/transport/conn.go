// Package transport carries chat frames over gorilla websocket connections.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/pipe-chat/internal/chatclient"
	"github.com/gosuda/pipe-chat/internal/wire"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("transport: connection closed")

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Dialer opens client connections. The zero value dials with pipe framing
// and no handshake timeout.
type Dialer struct {
	// Codec is offered to the server as a subprotocol. Servers that do not
	// pick it get pipe framing.
	Codec wire.Codec
	// HandshakeTimeout bounds the opening handshake. Zero means none.
	HandshakeTimeout time.Duration
}

// URL builds the websocket URL for a "host:port[/path]" address. Any scheme
// the user typed is replaced with ws.
func URL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	for _, prefix := range []string{"ws://", "wss://", "http://", "https://"} {
		addr = strings.TrimPrefix(addr, prefix)
	}
	host, path, _ := strings.Cut(addr, "/")
	if host == "" || strings.ContainsAny(host, " \t") {
		return "", fmt.Errorf("%w %q", chatclient.ErrAddressInvalid, addr)
	}
	u := url.URL{Scheme: "ws", Host: host, Path: "/" + path}
	if _, err := url.Parse(u.String()); err != nil {
		return "", fmt.Errorf("%w %q: %v", chatclient.ErrAddressInvalid, addr, err)
	}
	return u.String(), nil
}

func (d Dialer) Dial(ctx context.Context, addr string) (*Conn, error) {
	target, err := URL(addr)
	if err != nil {
		return nil, err
	}
	codec := d.Codec
	if codec == nil {
		codec = wire.Pipe
	}
	wd := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     []string{codec.Subprotocol()},
		Proxy:            websocket.DefaultDialer.Proxy,
	}
	ws, resp, err := wd.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	log.Debug().Str("url", target).Str("subprotocol", ws.Subprotocol()).Msg("[ws] handshake done")
	return NewConn(ws), nil
}

// DialFunc adapts Dial for chatclient.New.
func (d Dialer) DialFunc() chatclient.DialFunc {
	return func(ctx context.Context, addr string) (chatclient.Conn, error) {
		c, err := d.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Conn is a websocket connection that speaks one codec. Writes may come from
// any goroutine; reads must come from a single goroutine.
type Conn struct {
	ws    *websocket.Conn
	codec wire.Codec

	mu     sync.Mutex
	closed bool
}

// NewConn wraps ws, picking the codec from the negotiated subprotocol.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxFrameSize)
	return &Conn{ws: ws, codec: wire.ForSubprotocol(ws.Subprotocol())}
}

func (c *Conn) Codec() wire.Codec { return c.codec }

func (c *Conn) WriteText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

// ReadText returns the next text message. Binary messages are skipped. A
// normal close from the peer is reported as io.EOF.
func (c *Conn) ReadText() (string, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if IsNormalClose(err) {
				return "", io.EOF
			}
			return "", err
		}
		if typ == websocket.TextMessage {
			return string(data), nil
		}
	}
}

// Close sends a normal closure frame and closes the socket. Only the first
// call does anything.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.ws.Close()
}

// IsNormalClose reports whether err is a clean close initiated by either
// side.
func IsNormalClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
