package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket configuration
const (
	MaxStreamClients      = 100
	StreamWriteTimeout    = 10 * time.Second
	StreamPongTimeout     = 60 * time.Second
	StreamPingInterval    = 30 * time.Second
	StreamSendBufferSize  = 64
	StreamBroadcastBuffer = 256
)

// AlertStreamMessage is the frame pushed to connected clients when
// alerts fire during an evaluation cycle.
type AlertStreamMessage struct {
	Type     string   `json:"type"`
	UserID   uint     `json:"user_id"`
	Messages []string `json:"messages"`
	Time     string   `json:"time"`
}

// streamClient is one connected WebSocket listener
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// StreamService fans alert events out to WebSocket clients. Each client
// only receives events for its own user.
type StreamService struct {
	clients    map[*streamClient]bool
	broadcast  chan AlertStreamMessage
	register   chan *streamClient
	unregister chan *streamClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// Global stream service instance
var GlobalStreamService *StreamService

// InitStreamService initializes the stream service and starts its hub
func InitStreamService() error {
	GlobalStreamService = NewStreamService()
	go GlobalStreamService.run()
	log.Info().Msg("Alert stream service initialized")
	return nil
}

// NewStreamService creates a stream service without starting the hub
func NewStreamService() *StreamService {
	return &StreamService{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan AlertStreamMessage, StreamBroadcastBuffer),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Shutdown closes every client connection and stops the hub
func (s *StreamService) Shutdown() {
	close(s.shutdown)

	s.mu.Lock()
	for client := range s.clients {
		close(client.send)
		client.conn.Close()
	}
	s.clients = make(map[*streamClient]bool)
	s.mu.Unlock()

	log.Info().Msg("Alert stream service shutdown complete")
}

// BroadcastAlerts queues an event frame for the given user's clients.
// Never blocks the evaluation cycle; frames are dropped when the hub
// is backed up.
func (s *StreamService) BroadcastAlerts(userID uint, messages []string) {
	msg := AlertStreamMessage{
		Type:     "alerts_triggered",
		UserID:   userID,
		Messages: messages,
		Time:     time.Now().Format(time.RFC3339),
	}

	select {
	case s.broadcast <- msg:
	default:
		log.Warn().Uint("user_id", userID).Msg("alert stream backlog full, frame dropped")
	}
}

// ClientCount returns the number of connected clients
func (s *StreamService) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// run is the hub loop
func (s *StreamService) run() {
	for {
		select {
		case <-s.shutdown:
			return

		case client := <-s.register:
			s.mu.Lock()
			if len(s.clients) >= MaxStreamClients {
				s.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				log.Warn().Int("max", MaxStreamClients).Msg("stream client rejected: at capacity")
				continue
			}
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			log.Info().Uint("user_id", client.userID).Int("total", count).Msg("stream client connected")

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			count := len(s.clients)
			s.mu.Unlock()
			log.Info().Uint("user_id", client.userID).Int("total", count).Msg("stream client disconnected")

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("marshal stream frame failed")
				continue
			}

			s.mu.Lock()
			var dead []*streamClient
			for client := range s.clients {
				if client.userID != msg.UserID {
					continue
				}
				select {
				case client.send <- data:
				default:
					dead = append(dead, client)
				}
			}
			for _, client := range dead {
				delete(s.clients, client)
				close(client.send)
			}
			s.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the request and attaches the client to the
// hub. The caller has already authenticated the user.
func (s *StreamService) HandleWebSocket(w http.ResponseWriter, r *http.Request, userID uint) {
	s.mu.RLock()
	atCapacity := len(s.clients) >= MaxStreamClients
	s.mu.RUnlock()

	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &streamClient{
		conn:   conn,
		send:   make(chan []byte, StreamSendBufferSize),
		userID: userID,
	}

	s.register <- client

	go client.writePump()
	go client.readPump(s)
}

// writePump writes frames and pings to the connection
func (c *streamClient) writePump() {
	ticker := time.NewTicker(StreamPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection to keep pong handling alive. Clients
// do not send commands; the stream is one-way.
func (c *streamClient) readPump(s *StreamService) {
	defer func() {
		s.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(StreamPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(StreamPongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("stream read error")
			}
			break
		}
	}
}
