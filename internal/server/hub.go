package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solarimager/internal/logger"
	"solarimager/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Hub fans job status messages out to connected browsers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a hub; call Run before publishing.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        logger.WithComponent("websocket"),
	}
}

// Run serves the hub channels until ctx is done, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("client connected", map[string]interface{}{"clients": n})

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("client disconnected", map[string]interface{}{"clients": n})

		case message := <-h.broadcast:
			h.send(websocket.TextMessage, message)

		case <-ping.C:
			h.send(websocket.PingMessage, nil)
		}
	}
}

func (h *Hub) send(kind int, message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(kind, message); err != nil {
			h.log.Debug("dropping websocket client", map[string]interface{}{"reason": err.Error()})
			delete(h.clients, client)
			client.Close()
		}
	}
}

// Message is the websocket envelope.
type Message struct {
	Type string     `json:"type"`
	Job  models.Job `json:"job"`
}

// Publish implements jobs.Publisher. Messages are dropped rather than
// blocking a job when no one drains the hub.
func (h *Hub) Publish(job models.Job) {
	data, err := json.Marshal(Message{Type: "job", Job: job})
	if err != nil {
		h.log.Warn("failed to encode job message", map[string]interface{}{"reason": err.Error()})
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("websocket queue full, dropping status message", map[string]interface{}{"job": job.ID})
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades a viewer connection and keeps reading until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", map[string]interface{}{"reason": err.Error()})
		return
	}
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
