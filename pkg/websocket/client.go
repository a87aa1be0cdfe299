package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"zoomgo/pkg/logger"

	"github.com/gorilla/websocket"
)

const maxMessageSize = 512

var (
	ErrClientClosed = errors.New("websocket client closed")
	ErrSlowConsumer = errors.New("websocket client not keeping up")
)

// Message is one frame pushed to a client.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one upgraded connection. Frames queue on a bounded buffer; a
// client whose buffer is full is disconnected rather than blocking senders.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	config    Config
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *logger.Logger
	UserID    string
}

func newClient(hub *Hub, conn *websocket.Conn, config Config, userID string, log *logger.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		logger: log.WithUserID(userID),
		UserID: userID,
	}
}

// Send queues msg without blocking.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.logger.Warn("Dropping slow websocket client")
		c.Close()
		return ErrSlowConsumer
	}
}

// Done is closed once the client disconnects.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Serve runs the write pump and blocks in the read pump until the
// connection ends.
func (c *Client) Serve() {
	go c.writePump()
	c.readPump()
}

// readPump only services control frames; clients have nothing to say.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.hub.unregisterClient(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read failed")
			}
			return
		}
	}
}

// flush writes frames still queued when the client closes.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.config.WriteTimeout))
			return
		}
	}
}
