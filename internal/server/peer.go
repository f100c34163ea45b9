package server

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/pipe-chat/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 20 * time.Second
	sendBufferSize = 64
	maxFrameSize   = 1 << 20

	closeNormal    = websocket.CloseNormalClosure
	closeGoingAway = websocket.CloseGoingAway
)

// peer is one websocket connection. readLoop runs on the handler goroutine,
// writeLoop on its own; every write to the socket happens in writeLoop.
type peer struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	codec wire.Codec
	send  chan wire.Frame

	done        chan struct{}
	once        sync.Once
	closeCode   int
	closeReason string
}

func newPeer(conn *websocket.Conn, hub *Hub) *peer {
	return &peer{
		id:        uuid.NewString(),
		hub:       hub,
		conn:      conn,
		codec:     wire.ForSubprotocol(conn.Subprotocol()),
		send:      make(chan wire.Frame, sendBufferSize),
		done:      make(chan struct{}),
		closeCode: closeNormal,
	}
}

func (p *peer) readLoop() {
	defer p.shutdown(closeNormal, "")
	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		typ, payload, err := p.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("peer", p.id).Msg("[ws] read message")
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		if typ != websocket.TextMessage {
			continue
		}
		f, err := p.codec.Decode(string(payload))
		if err != nil {
			log.Debug().Err(err).Str("peer", p.id).Msg("[ws] dropped frame")
			continue
		}
		p.hub.route(p, f)
	}
}

func (p *peer) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()
	for {
		select {
		case f := <-p.send:
			raw, err := p.encode(f)
			if err != nil {
				log.Debug().Err(err).Str("peer", p.id).Msg("[ws] encode frame")
				continue
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
				log.Debug().Err(err).Str("peer", p.id).Msg("[ws] write message")
				p.shutdown(closeNormal, "")
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.shutdown(closeNormal, "")
				return
			}
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(p.closeCode, p.closeReason),
				time.Now().Add(writeWait))
			return
		}
	}
}

// encode falls back to replacing "|" for pipe peers, so frames that came in
// over JSON still reach them.
func (p *peer) encode(f wire.Frame) (string, error) {
	raw, err := p.codec.Encode(f)
	if err == nil || !errors.Is(err, wire.ErrDelimiter) {
		return raw, err
	}
	f.Sender = strings.ReplaceAll(f.Sender, "|", "¦")
	f.Body = strings.ReplaceAll(f.Body, "|", "¦")
	return p.codec.Encode(f)
}

// push queues f without blocking; when the queue is full the oldest frame
// is dropped.
func (p *peer) push(f wire.Frame) {
	select {
	case <-p.done:
		return
	default:
	}
	for {
		select {
		case p.send <- f:
			return
		default:
		}
		select {
		case <-p.send:
		default:
		}
	}
}

// shutdown makes writeLoop send a close frame with code and exit. Only the
// first call counts.
func (p *peer) shutdown(code int, reason string) {
	p.once.Do(func() {
		p.closeCode = code
		p.closeReason = reason
		close(p.done)
	})
}
