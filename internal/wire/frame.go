// Package wire defines chat frames and the codecs that put them on a
// websocket text message.
package wire

import (
	"errors"
	"time"
)

// Kind discriminates frames.
type Kind string

const (
	KindJoin     Kind = "join"
	KindLeave    Kind = "leave"
	KindChat     Kind = "chat"
	KindSystem   Kind = "system"
	KindPresence Kind = "presence"
)

// SystemSender is the reserved sender of server-originated notices.
const SystemSender = "SYSTEM"

// TimeLayout is the HH:MM:SS layout carried in every timestamped frame.
const TimeLayout = "15:04:05"

var (
	ErrMalformed = errors.New("wire: malformed frame")
	ErrDelimiter = errors.New("wire: field contains a reserved delimiter")
	ErrKind      = errors.New("wire: unknown frame kind")
)

// Frame is one complete message on the channel. Count and Users are only
// meaningful for presence frames.
type Frame struct {
	Kind   Kind     `json:"kind"`
	Sender string   `json:"sender,omitempty"`
	Body   string   `json:"body,omitempty"`
	Time   string   `json:"time,omitempty"`
	Count  int      `json:"count,omitempty"`
	Users  []string `json:"users,omitempty"`
}

// Timestamp formats t the way frames carry it.
func Timestamp(t time.Time) string {
	return t.Format(TimeLayout)
}

func Join(user string, at time.Time) Frame {
	return Frame{Kind: KindJoin, Sender: user, Time: Timestamp(at)}
}

func Leave(user string, at time.Time) Frame {
	return Frame{Kind: KindLeave, Sender: user, Time: Timestamp(at)}
}

func Chat(user, body string, at time.Time) Frame {
	return Frame{Kind: KindChat, Sender: user, Body: body, Time: Timestamp(at)}
}

func System(body string, at time.Time) Frame {
	return Frame{Kind: KindSystem, Sender: SystemSender, Body: body, Time: Timestamp(at)}
}

// Presence builds a user list frame. Count always matches len(users).
func Presence(users []string) Frame {
	return Frame{Kind: KindPresence, Count: len(users), Users: users}
}
