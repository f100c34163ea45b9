package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	joinToken     = "JOIN"
	leaveToken    = "LEAVE"
	userListToken = "USERLIST"

	fieldSep = "|"
	userSep  = ","
)

// Codec turns frames into websocket text payloads and back.
type Codec interface {
	// Name is the short name used on the command line.
	Name() string
	// Subprotocol is the Sec-WebSocket-Protocol value that selects the codec.
	Subprotocol() string
	Encode(f Frame) (string, error)
	Decode(raw string) (Frame, error)
}

var (
	// Pipe is the legacy "a|b|c" framing. It is the default when no
	// subprotocol was negotiated.
	Pipe Codec = pipeCodec{}
	// JSON carries one object per message with an explicit kind field.
	JSON Codec = jsonCodec{}
)

var codecs = []Codec{JSON, Pipe}

// ByName looks a codec up by its short name.
func ByName(name string) (Codec, error) {
	for _, c := range codecs {
		if c.Name() == strings.ToLower(strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown wire format %q (want pipe or json)", name)
}

// ForSubprotocol returns the codec for a negotiated subprotocol, falling
// back to Pipe when the peer did not pick one.
func ForSubprotocol(proto string) Codec {
	for _, c := range codecs {
		if c.Subprotocol() == proto {
			return c
		}
	}
	return Pipe
}

// Subprotocols lists every supported subprotocol in server preference order.
func Subprotocols() []string {
	out := make([]string, 0, len(codecs))
	for _, c := range codecs {
		out = append(out, c.Subprotocol())
	}
	return out
}

type pipeCodec struct{}

func (pipeCodec) Name() string        { return "pipe" }
func (pipeCodec) Subprotocol() string { return "pipechat.pipe" }

func (pipeCodec) Encode(f Frame) (string, error) {
	switch f.Kind {
	case KindPresence:
		for _, u := range f.Users {
			if strings.ContainsAny(u, fieldSep+userSep) {
				return "", fmt.Errorf("%w: username %q", ErrDelimiter, u)
			}
		}
		return userListToken + fieldSep + strconv.Itoa(f.Count) + fieldSep + strings.Join(f.Users, userSep), nil
	case KindJoin:
		return joinFields(f.Sender, joinToken, f.Time)
	case KindLeave:
		return joinFields(f.Sender, leaveToken, f.Time)
	case KindSystem:
		return joinFields(SystemSender, f.Body, f.Time)
	case KindChat:
		return joinFields(f.Sender, f.Body, f.Time)
	}
	return "", fmt.Errorf("%w: %q", ErrKind, f.Kind)
}

func joinFields(fields ...string) (string, error) {
	for _, v := range fields {
		if strings.Contains(v, fieldSep) {
			return "", fmt.Errorf("%w: %q", ErrDelimiter, v)
		}
	}
	return strings.Join(fields, fieldSep), nil
}

// Decode splits on every "|" and reads the first three fields; anything
// after them is ignored.
func (pipeCodec) Decode(raw string) (Frame, error) {
	parts := strings.Split(raw, fieldSep)
	if len(parts) < 3 {
		return Frame{}, fmt.Errorf("%w: %d fields", ErrMalformed, len(parts))
	}
	if parts[0] == userListToken {
		// A count that is not a non-negative integer reads as zero; the
		// list itself is still applied.
		count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || count < 0 {
			count = 0
		}
		var users []string
		if parts[2] != "" {
			users = strings.Split(parts[2], userSep)
		}
		return Frame{Kind: KindPresence, Count: count, Users: users}, nil
	}

	f := Frame{Kind: KindChat, Sender: parts[0], Body: parts[1], Time: parts[2]}
	switch {
	case f.Sender == SystemSender:
		f.Kind = KindSystem
	case f.Body == joinToken:
		f.Kind = KindJoin
	case f.Body == leaveToken:
		f.Kind = KindLeave
	}
	return f, nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) Subprotocol() string { return "pipechat.json" }

func (jsonCodec) Encode(f Frame) (string, error) {
	if !f.Kind.valid() {
		return "", fmt.Errorf("%w: %q", ErrKind, f.Kind)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func (jsonCodec) Decode(raw string) (Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !f.Kind.valid() {
		return Frame{}, fmt.Errorf("%w: %w %q", ErrMalformed, ErrKind, f.Kind)
	}
	if f.Kind == KindPresence && f.Count < 0 {
		return Frame{}, fmt.Errorf("%w: user count %d", ErrMalformed, f.Count)
	}
	if f.Kind == KindSystem && f.Sender == "" {
		f.Sender = SystemSender
	}
	return f, nil
}

func (k Kind) valid() bool {
	switch k {
	case KindJoin, KindLeave, KindChat, KindSystem, KindPresence:
		return true
	}
	return false
}
