// Package ws streams engine events to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"botswarm.ai/internal/events"
)

type Server struct {
	hub *events.Hub
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(hub *events.Hub, logger *log.Logger) *Server {
	return &Server{
		hub: hub,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Handler upgrades the connection and relays hub events until either side
// goes away. Subscribers joining mid-stream get no replay.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		subID, sub := s.hub.Subscribe(256)
		defer s.hub.Unsubscribe(subID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub:
					if !ok {
						_ = conn.Close()
						return
					}
					b, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: the feed is one-way, inbound frames are discarded, but
		// reading is what notices the peer going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}
}
