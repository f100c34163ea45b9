// Package chatclient is the view-controller of the chat client: one
// session over one socket, UI events in, frames out, frames in, view
// updates out.
//
// Client is not safe for concurrent use. Its methods and Handle must run on
// a single loop; transport goroutines only post to Events.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/pipe-chat/internal/wire"
)

var (
	ErrUsernameRequired = errors.New("please enter a username")
	ErrAddressRequired  = errors.New("please enter server address")
	ErrUsernameInvalid  = errors.New(`username cannot contain "|", ",", "<", ">", "&" or control characters`)
	ErrUsernameTooLong  = errors.New("username must be at most 24 characters")
	ErrAlreadyConnected = errors.New("already connected")
	// ErrAddressInvalid marks dial failures caused by the address itself
	// rather than the network.
	ErrAddressInvalid = errors.New("invalid server address")
)

// MaxUsernameLen matches the server's cap on display names, in runes.
const MaxUsernameLen = 24

const (
	eventBufferSize = 64

	alertConnectionError = "Connection error. Make sure the server is running."
)

// Client owns at most one Session at a time.
type Client struct {
	view   View
	dial   DialFunc
	now    func() time.Time
	events chan Event

	state    State
	sess     *Session
	presence Presence
	seq      uint64
}

// Option customises a Client.
type Option func(*Client)

// WithClock replaces time.Now for frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(view View, dial DialFunc, opts ...Option) *Client {
	c := &Client{
		view:   view,
		dial:   dial,
		now:    time.Now,
		events: make(chan Event, eventBufferSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events delivers transport callbacks. Every received event must be passed
// to Handle on the client's loop.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) State() State       { return c.state }
func (c *Client) Presence() Presence { return c.presence }

// Session returns the live session, or nil when disconnected.
func (c *Client) Session() *Session { return c.sess }

// Connect validates the inputs and starts dialing addr. It returns before
// the channel is open; the outcome arrives through Events.
func (c *Client) Connect(username, addr string) error {
	username = strings.TrimSpace(username)
	addr = strings.TrimSpace(addr)

	if err := validate(username, addr); err != nil {
		c.view.Alert(capitalize(err.Error()))
		return err
	}
	if c.sess != nil {
		return ErrAlreadyConnected
	}

	c.seq++
	ctx, cancel := context.WithCancel(context.Background())
	sess := newSession(c.seq, username, addr, cancel)
	c.sess = sess
	c.setState(StateConnecting)

	go func() {
		conn, err := c.dial(ctx, addr)
		if err != nil {
			c.post(sess, dialFailed{id: sess.id, err: err})
			return
		}
		if !c.post(sess, opened{id: sess.id, conn: conn}) {
			_ = conn.Close()
		}
	}()
	return nil
}

func validate(username, addr string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if addr == "" {
		return ErrAddressRequired
	}
	// The server strips markup and delimiters from names. Anything it would
	// rewrite is refused here so echoed lines still match the local name.
	if strings.ContainsAny(username, "|,<>&") || strings.ContainsFunc(username, unicode.IsControl) {
		return ErrUsernameInvalid
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

// Disconnect says goodbye if a channel is open, closes it and resets the
// view. It is a no-op apart from the view reset when not connected.
func (c *Client) Disconnect() {
	if s := c.sess; s != nil && s.open() {
		if err := c.send(wire.Leave(s.username, c.now())); err != nil {
			log.Debug().Err(err).Msg("[ws] send leave")
		}
		_ = s.conn.Close()
	}
	c.cleanup()
}

// SendMessage sends text as a chat line. Blank text or a session that is
// not open is silently ignored.
func (c *Client) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" || c.sess == nil || !c.sess.open() || c.state != StateConnected {
		return nil
	}

	if err := c.send(wire.Chat(c.sess.username, text, c.now())); err != nil {
		if errors.Is(err, wire.ErrDelimiter) {
			c.view.Alert(`Messages cannot contain "|"`)
		}
		return err
	}
	c.view.ClearInput()
	return nil
}

func (c *Client) send(f wire.Frame) error {
	conn := c.sess.conn
	raw, err := conn.Codec().Encode(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Kind, err)
	}
	if err := conn.WriteText(raw); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Kind, err)
	}
	return nil
}

// Handle applies one transport event. Events that belong to a session that
// has already been torn down are discarded.
func (c *Client) Handle(ev Event) {
	if c.sess == nil || ev.sessionID() != c.sess.id {
		if o, ok := ev.(opened); ok {
			_ = o.conn.Close()
		}
		return
	}

	switch ev := ev.(type) {
	case opened:
		c.onOpen(ev.conn)
	case dialFailed:
		log.Error().Err(ev.err).Str("addr", c.sess.addr).Msg("[ws] failed to connect")
		if errors.Is(ev.err, ErrAddressInvalid) {
			c.view.Alert("Failed to connect: " + ev.err.Error())
		} else {
			c.view.Alert(alertConnectionError)
		}
		c.cleanup()
	case received:
		c.dispatch(ev.text)
	case closed:
		if ev.err != nil && !errors.Is(ev.err, io.EOF) {
			log.Error().Err(ev.err).Msg("[ws] connection error")
			c.view.Alert(alertConnectionError)
		} else {
			log.Info().Msg("[ws] connection closed")
		}
		c.cleanup()
	}
}

func (c *Client) onOpen(conn Conn) {
	s := c.sess
	s.conn = conn
	log.Info().Str("addr", s.addr).Str("wire", conn.Codec().Name()).Msg("[ws] connected to server")

	if err := c.send(wire.Join(s.username, c.now())); err != nil {
		log.Error().Err(err).Msg("[ws] send join")
		c.view.Alert(alertConnectionError)
		c.cleanup()
		return
	}
	c.setState(StateConnected)
	c.view.ShowChat()

	go c.read(s)
}

// read pumps inbound text into Events until the channel fails or the
// session is torn down.
func (c *Client) read(s *Session) {
	for {
		text, err := s.conn.ReadText()
		if err != nil {
			c.post(s, closed{id: s.id, err: err})
			return
		}
		if !c.post(s, received{id: s.id, text: text}) {
			return
		}
	}
}

func (c *Client) post(s *Session, ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// dispatch is the single inbound handler: decode, then switch on kind.
func (c *Client) dispatch(text string) {
	log.Debug().Str("frame", text).Msg("[ws] received")

	f, err := c.sess.conn.Codec().Decode(text)
	if err != nil {
		log.Debug().Err(err).Msg("[ws] dropped frame")
		return
	}
	switch f.Kind {
	case wire.KindPresence:
		c.setPresence(Presence{Count: f.Count, Users: f.Users})
	default:
		c.view.AddMessage(c.classify(f))
	}
}

func (c *Client) classify(f wire.Frame) Message {
	m := Message{Sender: f.Sender, Body: f.Body, Time: f.Time}
	switch {
	case f.Sender == wire.SystemSender:
		m.Class = ClassSystem
	case f.Sender == c.sess.username:
		m.Class = ClassSelf
	}
	return m
}

// cleanup returns to the disconnected state from anywhere. Idempotent.
func (c *Client) cleanup() {
	if c.sess != nil {
		c.sess.teardown()
		c.sess = nil
	}
	c.setState(StateDisconnected)
	c.view.ShowConnectForm()
	c.view.ClearMessages()
	c.setPresence(Presence{})
}

func (c *Client) setState(s State) {
	c.state = s
	c.view.SetStatus(s)
}

func (c *Client) setPresence(p Presence) {
	c.presence = p
	c.view.SetPresence(p)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
