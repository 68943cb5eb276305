// Package relay exposes bus events to overlay clients over WebSocket and
// accepts their control messages.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/normanking/cortexsprite/internal/bus"
	"github.com/normanking/cortexsprite/internal/logging"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// Endpoint is the path overlay clients connect to
	Endpoint = "/events"
	// HealthEndpoint is the path for health checks
	HealthEndpoint = "/health"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// TypeLog is the message type of forwarded log entries
const TypeLog = "log"

var (
	// ErrRunning is returned when Start is called twice
	ErrRunning = errors.New("relay already running")
	// ErrStopped is returned by Start after Stop
	ErrStopped = errors.New("relay stopped")
)

// Message is the wire form in both directions
type Message struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

// Handler receives control messages sent by clients
type Handler func(Message)

// Server fans bus events out to every connected client. A client that
// cannot keep up is disconnected.
type Server struct {
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.RWMutex
	clients map[*client]struct{}
	handler Handler
	running bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a relay forwarding every event published on b
func New(b *bus.EventBus, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// overlays are served from arbitrary local origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With().Str("component", "relay").Logger(),
	}
	if b != nil {
		b.SubscribeMultiple(bus.AllEventTypes(), s.forward)
	}
	return s
}

// OnMessage registers the handler for client control messages
func (s *Server) OnMessage(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// ForwardLogs relays every entry written to l
func (s *Server) ForwardLogs(l *logging.Logger) {
	l.SetOnLog(func(e logging.LogEntry) {
		if err := s.Broadcast(TypeLog, e); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to relay log entry")
		}
	})
}

// Handler returns the relay's HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Endpoint, s.handleWebSocket)
	mux.HandleFunc(HealthEndpoint, s.handleHealth)
	return mux
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return ErrRunning
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relay listen %s: %w", addr, err)
	}
	s.running = true
	s.server = &http.Server{Handler: s.Handler()}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Relay server error")
		}
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Relay listening")
	return nil
}

// Stop disconnects every client and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	// clients and their pumps are only added under mu while not stopped
	s.mu.Lock()
	s.stopped = true
	for c := range s.clients {
		s.removeLocked(c)
	}
	srv := s.server
	s.running = false
	s.mu.Unlock()

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			err = fmt.Errorf("relay shutdown: %w", err)
		}
	}
	s.wg.Wait()
	return err
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends a message to every client without blocking
func (s *Server) Broadcast(msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	frame, err := json.Marshal(Message{Type: msgType, Data: raw})
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			s.logger.Warn().Str("type", msgType).Msg("Client too slow, disconnecting")
			s.removeLocked(c)
		}
	}
	return nil
}

func (s *Server) forward(e bus.Event) {
	if err := s.Broadcast(string(e.Type), e.Data); err != nil {
		s.logger.Warn().Err(err).Str("type", string(e.Type)).Msg("Failed to relay event")
	}
}

func (s *Server) removeLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(c)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "relay stopped", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay stopped"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.wg.Add(2)
	s.mu.Unlock()
	s.logger.Info().Str("remote", r.RemoteAddr).Int("clients", n).Msg("Client connected")

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) writePump(c *client) {
	defer s.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.remove(c)
				return
			}
		}
	}
}

func (s *Server) readPump(c *client) {
	defer s.wg.Done()
	defer func() {
		s.remove(c)
		s.logger.Info().Int("clients", s.Clients()).Msg("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			s.logger.Warn().Err(err).Msg("Ignoring malformed client message")
			continue
		}
		s.mu.RLock()
		h := s.handler
		s.mu.RUnlock()
		if h != nil {
			h(msg)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}{
		Status:  "healthy",
		Clients: s.Clients(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
