// Package plain is a line-oriented chat front end for terminals without
// full-screen support and for scripting.
package plain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/pipe-chat/internal/chatclient"
)

// ErrDisconnected is returned when the session ends without the user asking
// for it.
var ErrDisconnected = errors.New("disconnected from server")

const quitCommand = "/quit"

type view struct {
	out io.Writer
}

func (v *view) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(v.out, format+"\n", args...); err != nil {
		log.Debug().Err(err).Msg("[plain] write output")
	}
}

func (v *view) SetStatus(s chatclient.State) { v.printf("* %s", s) }

func (v *view) ShowChat() { v.printf("* type a message and press enter, %s to leave", quitCommand) }

func (v *view) ShowConnectForm() {}

func (v *view) AddMessage(m chatclient.Message) {
	if m.Class == chatclient.ClassSystem {
		v.printf("* %s", m.Body)
		return
	}
	v.printf("[%s] %s: %s", m.Time, m.Sender, m.Body)
}

func (v *view) ClearMessages() {}

func (v *view) SetPresence(p chatclient.Presence) {
	if p.Count == 0 && len(p.Users) == 0 {
		return
	}
	v.printf("* online (%d): %s", p.Count, p.List())
}

func (v *view) ClearInput() {}

func (v *view) Alert(text string) { v.printf("! %s", text) }

// Run connects as username and relays lines from in until /quit, EOF or ctx
// is done. Input is not read until the channel is open.
func Run(ctx context.Context, in io.Reader, out io.Writer, dial chatclient.DialFunc, username, addr string) error {
	c := chatclient.New(&view{out: out}, dial)
	if err := c.Connect(username, addr); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)

	var lines <-chan string
	for {
		select {
		case <-ctx.Done():
			c.Disconnect()
			return nil
		case ev := <-c.Events():
			c.Handle(ev)
			switch c.State() {
			case chatclient.StateDisconnected:
				return ErrDisconnected
			case chatclient.StateConnected:
				if lines == nil {
					lines = scanLines(in, done)
				}
			}
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == quitCommand {
				c.Disconnect()
				return nil
			}
			if err := c.SendMessage(line); err != nil {
				log.Debug().Err(err).Msg("[plain] send message")
			}
		}
	}
}

func scanLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.Warn().Err(err).Msg("[plain] read input")
		}
	}()
	return lines
}
