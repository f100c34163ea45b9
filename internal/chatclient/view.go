package chatclient

import "strings"

// State is the connection state shown to the user.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// Class says how a rendered message relates to the local user.
type Class int

const (
	ClassOther Class = iota
	ClassSelf
	ClassSystem
)

func (c Class) String() string {
	switch c {
	case ClassSelf:
		return "self"
	case ClassSystem:
		return "system"
	}
	return "other"
}

// Message is a chat line ready to render. System messages render as plain
// text without sender or time.
type Message struct {
	Sender string
	Body   string
	Time   string
	Class  Class
}

// Presence is the latest user count and list received from the server.
type Presence struct {
	Count int
	Users []string
}

// List joins the user names for display.
func (p Presence) List() string {
	return strings.Join(p.Users, ", ")
}

// View is the UI surface driven by Client. All calls happen on the loop
// that calls Client methods.
type View interface {
	SetStatus(s State)
	// ShowChat switches to the chat area and focuses the message input.
	ShowChat()
	// ShowConnectForm switches back to the connect form.
	ShowConnectForm()
	AddMessage(m Message)
	ClearMessages()
	SetPresence(p Presence)
	ClearInput()
	// Alert shows a blocking, user-visible notice.
	Alert(text string)
}
