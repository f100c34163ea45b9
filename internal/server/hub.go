// Package server is the chat room the client talks to: one hub of joined
// peers, websocket handling, and the embedded browser page.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/pipe-chat/internal/wire"
)

// DefaultMaxMessage is the default cap on chat text, in runes.
const DefaultMaxMessage = 10000

// Config tunes a Hub.
type Config struct {
	// MaxMessage caps chat text in runes. Zero means DefaultMaxMessage.
	MaxMessage int
}

// Hub tracks connected peers and the joined subset in join order. Only
// joined peers receive broadcasts.
type Hub struct {
	mu     sync.RWMutex
	peers  map[*peer]struct{}
	joined []*peer
	names  map[*peer]string
	// closing is set by CloseAll; later connections are refused.
	closing bool

	maxMessage int
	now        func() time.Time
	wg         sync.WaitGroup
}

func NewHub(cfg Config) *Hub {
	if cfg.MaxMessage <= 0 {
		cfg.MaxMessage = DefaultMaxMessage
	}
	return &Hub{
		peers:      map[*peer]struct{}{},
		names:      map[*peer]string{},
		maxMessage: cfg.MaxMessage,
		now:        time.Now,
	}
}

// attach registers p and counts its handler for Wait. It reports false once
// CloseAll has run.
func (h *Hub) attach(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.peers[p] = struct{}{}
	h.wg.Add(1)
	return true
}

// detach forgets p and reports the name it had joined with, if any.
func (h *Hub) detach(p *peer) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
	name, ok := h.names[p]
	if !ok {
		return "", false
	}
	delete(h.names, p)
	for i, q := range h.joined {
		if q == p {
			h.joined = append(h.joined[:i], h.joined[i+1:]...)
			break
		}
	}
	log.Info().Str("peer", p.id).Str("user", name).Int("total", len(h.joined)).Msg("[hub] client removed")
	return name, true
}

// Join registers p under name. A peer that joins again is renamed in place.
func (h *Hub) Join(p *peer, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.names[p]; !ok {
		h.joined = append(h.joined, p)
	}
	h.names[p] = name
	log.Info().Str("peer", p.id).Str("user", name).Int("total", len(h.joined)).Msg("[hub] client added")
}

func (h *Hub) nameOf(p *peer) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	name, ok := h.names[p]
	return name, ok
}

// Usernames lists joined users in join order.
func (h *Hub) Usernames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.joined))
	for _, p := range h.joined {
		out = append(out, h.names[p])
	}
	return out
}

// Count is the number of joined users.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.joined)
}

// Broadcast queues f for every joined peer.
func (h *Hub) Broadcast(f wire.Frame) {
	h.mu.RLock()
	targets := append([]*peer(nil), h.joined...)
	h.mu.RUnlock()
	for _, p := range targets {
		p.push(f)
	}
}

// BroadcastSystem sends a SYSTEM notice stamped with the current time.
func (h *Hub) BroadcastSystem(text string) {
	h.Broadcast(wire.System(text, h.now()))
}

// BroadcastUserList sends the current presence snapshot.
func (h *Hub) BroadcastUserList() {
	h.Broadcast(wire.Presence(h.Usernames()))
}

// route applies one decoded frame from p.
func (h *Hub) route(p *peer, f wire.Frame) {
	switch f.Kind {
	case wire.KindJoin:
		name := SanitizeName(f.Sender)
		h.Join(p, name)
		h.BroadcastSystem(fmt.Sprintf("%s joined the chat", name))
		h.BroadcastUserList()
	case wire.KindLeave:
		// The close path announces the departure.
	case wire.KindChat:
		text := sanitizeText(f.Body, h.maxMessage)
		if text == "" {
			return
		}
		sender, ok := h.nameOf(p)
		if !ok {
			sender = SanitizeName(f.Sender)
		}
		stamp := f.Time
		if _, err := time.Parse(wire.TimeLayout, stamp); err != nil {
			stamp = wire.Timestamp(h.now())
		}
		h.Broadcast(wire.Frame{Kind: wire.KindChat, Sender: sender, Body: text, Time: stamp})
	default:
		log.Debug().Str("peer", p.id).Str("kind", string(f.Kind)).Msg("[hub] ignored client frame")
	}
}

// leave runs once a peer's connection is gone.
func (h *Hub) leave(p *peer) {
	name, ok := h.detach(p)
	if !ok {
		return
	}
	h.BroadcastSystem(fmt.Sprintf("%s left the chat", name))
	h.BroadcastUserList()
}

// CloseAll asks every connection to close with a going-away frame.
// Connections attached afterwards are refused.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closing = true
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.shutdown(closeGoingAway, "server shutdown")
	}
}

// Wait blocks until every websocket handler has returned.
func (h *Hub) Wait() {
	h.wg.Wait()
}
