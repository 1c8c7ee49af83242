// Package server exposes a debug state stream: a WebSocket endpoint that
// pushes world snapshots to inspection tooling once per tick.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zeusync/kinetic/internal/core/observability/log"
	"github.com/zeusync/kinetic/internal/core/physics"
	"github.com/zeusync/kinetic/pkg/concurrent"
	"github.com/zeusync/kinetic/pkg/sequence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// framePayload is one broadcast message.
type framePayload struct {
	Tick   uint64                 `json:"tick"`
	Bodies []physics.BodySnapshot `json:"bodies"`
}

// StateStreamServer accepts WebSocket clients on /ws and fans world
// snapshots out to them. Slow clients are dropped rather than allowed to
// stall the broadcast.
type StateStreamServer struct {
	log  log.Log
	http *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewStateStreamServer(logger log.Log) *StateStreamServer {
	if logger == nil {
		logger = log.Nop()
	}
	return &StateStreamServer{
		log:     logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

func (s *StateStreamServer) Start(host string, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: mux,
	}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("state stream server stopped", log.Error(err))
		}
	}()
	s.log.Info("state stream listening", log.String("addr", s.http.Addr))
	return nil
}

func (s *StateStreamServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.mu.Unlock()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *StateStreamServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	s.log.Debug("stream client connected", log.String("remote", conn.RemoteAddr().String()))

	// Reads are drained so client close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	}()
}

// Broadcast sends a snapshot to every connected client.
func (s *StateStreamServer) Broadcast(tick uint64, bodies []physics.BodySnapshot) {
	payload, err := json.Marshal(framePayload{Tick: tick, Bodies: bodies})
	if err != nil {
		s.log.Error("snapshot encode failed", log.Error(err))
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	// One writer goroutine per client; a slow consumer cannot stall the
	// rest of the fan-out.
	concurrent.ParallelMust(sequence.From(conns), func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(conn)
		}
	})
}

// ClientCount returns the number of connected clients.
func (s *StateStreamServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *StateStreamServer) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.Close()
	}
	s.mu.Unlock()
}
