package chatclient

// Event is a transport callback waiting to be applied on the client loop.
type Event interface {
	sessionID() uint64
}

type opened struct {
	id   uint64
	conn Conn
}

type dialFailed struct {
	id  uint64
	err error
}

type received struct {
	id   uint64
	text string
}

type closed struct {
	id  uint64
	err error
}

func (e opened) sessionID() uint64     { return e.id }
func (e dialFailed) sessionID() uint64 { return e.id }
func (e received) sessionID() uint64   { return e.id }
func (e closed) sessionID() uint64     { return e.id }
