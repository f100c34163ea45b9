package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/pipe-chat/internal/wire"
)

type handler struct {
	name     string
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler builds the chat router. "/" serves the browser page, or
// upgrades when the request is a websocket handshake since legacy clients
// dial the bare host. "/ws" always upgrades.
func NewHandler(name string, hub *Hub) http.Handler {
	s := &handler{
		name: name,
		hub:  hub,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     wire.Subprotocols(),
		},
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ws", s.serveWS)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.serveWS(w, r)
			return
		}
		serveIndex(w, s.name)
	})
	return r
}

func (s *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("[ws] upgrade failed")
		return
	}

	p := newPeer(conn, s.hub)
	log.Info().Str("peer", p.id).Str("remote", r.RemoteAddr).Str("wire", p.codec.Name()).Msg("[ws] new connection")

	if !s.hub.attach(p) {
		msg := websocket.FormatCloseMessage(closeGoingAway, "server shutdown")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		log.Info().Str("peer", p.id).Msg("[ws] refused during shutdown")
		return
	}
	defer s.hub.wg.Done()
	defer s.hub.leave(p)

	go p.writeLoop()
	p.readLoop()
	log.Info().Str("peer", p.id).Msg("[ws] connection closed")
}
