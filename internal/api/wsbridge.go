package api

import (
	"log"
	"net/http"

	"github.com/foremanhq/foreman/internal/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsBufferSize is not referenced by the bridge. How many pending events a
// slow browser client can queue is bounded by the sink buffer the event
// bus allocates in Register (100 events), after which the bus drops events
// for that client.
const wsBufferSize = 256

// handleWebSocket upgrades the connection and registers it as a push sink
// against the event bus (spec §4.3: "any push sink" subscribing on
// ChannelAll). One slow or disconnected client never blocks another.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[API] websocket upgrade failed: %v", err)
		return
	}

	clientID := uuid.New().String()
	ch := s.bus.Register(clientID)
	defer s.bus.Unregister(clientID)
	if err := s.bus.Subscribe(clientID, events.ChannelAll); err != nil {
		log.Printf("[API] failed to subscribe websocket client %s: %v", clientID, err)
		conn.Close()
		return
	}

	done := make(chan struct{})
	go wsReadPump(conn, done)
	wsWritePump(conn, ch, done)
}

func wsReadPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsWritePump(conn *websocket.Conn, ch <-chan events.Event, done <-chan struct{}) {
	defer conn.Close()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
