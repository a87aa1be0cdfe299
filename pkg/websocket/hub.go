package websocket

import (
	"context"
	"sync"

	"zoomgo/pkg/logger"
)

// Hub tracks live clients per user so frames can reach every connection a
// user holds open.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     log,
	}
}

// Run processes registrations until ctx ends, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mutex.Unlock()
			h.logger.WithUserID(client.UserID).Debug("WebSocket client registered")

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.mutex.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					client.Close()
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mutex.Unlock()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.Close()
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients, ok := h.clients[client.UserID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.UserID)
	}
	h.logger.WithUserID(client.UserID).Debug("WebSocket client unregistered")
}

// SendToUser queues msg on every connection userID holds and reports how
// many accepted it.
func (h *Hub) SendToUser(userID string, msg Message) int {
	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	delivered := 0
	for _, client := range targets {
		if err := client.Send(msg); err == nil {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) ConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
