// Package ws exposes the broadcaster to WebSocket clients: connections
// register with the hub, manage per-topic subscriptions with filters via
// JSON control messages, and receive events pushed from their hub queue.
package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"aprswx/hub"
	"aprswx/packet"
	"aprswx/station"
)

// PacketHistory supplies recent packets for the initial push to a new
// connection. Implemented by the store; nil disables history.
type PacketHistory interface {
	RecentPackets(limit int) ([]*packet.Packet, error)
}

const initialDataLimit = 100

// Server is the WebSocket listener.
type Server struct {
	events   *hub.Hub
	tracker  *station.Tracker
	history  PacketHistory
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a server pushing events from the hub. tracker seeds new
// connections with current stations; history (optional) seeds them with
// recent packets.
func NewServer(listen string, events *hub.Hub, tracker *station.Tracker, history PacketHistory) *Server {
	s := &Server{
		events:  events,
		tracker: tracker,
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The browser frontend is served from elsewhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: listen, Handler: mux}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	if s.httpSrv.Addr == "" {
		return fmt.Errorf("ws: empty listen address")
	}
	go func() {
		log.Printf("ws: listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("ws: server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the listener down, closing client connections.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		log.Printf("ws: shutdown: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	client := newClient(conn, s.events)
	log.Printf("ws: client connected: %s", client.id)

	client.start()
	s.sendInitialData(client)
}

// sendInitialData pushes current stations and recent packets so a client has
// a populated view before live events arrive.
func (s *Server) sendInitialData(c *client) {
	if s.tracker != nil {
		c.sendJSON(controlFrame{
			Type:    "initial_stations",
			Payload: s.tracker.Snapshot(),
			Time:    time.Now().UTC(),
		})
	}
	if s.history != nil {
		packets, err := s.history.RecentPackets(initialDataLimit)
		if err != nil {
			log.Printf("ws: initial packets unavailable: %v", err)
			return
		}
		c.sendJSON(controlFrame{
			Type:    "initial_packets",
			Payload: packets,
			Time:    time.Now().UTC(),
		})
	}
}
