package websocket

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"zoomgo/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Config struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	EnableCompression bool
	AllowedOrigins    []string
}

func (c Config) withDefaults() Config {
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = (c.PongTimeout * 9) / 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
	return c
}

// Handler upgrades authenticated requests and registers them with the hub.
type Handler struct {
	hub      *Hub
	config   Config
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

func NewHandler(hub *Hub, config Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	config = config.withDefaults()

	return &Handler{
		hub:    hub,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			HandshakeTimeout:  config.HandshakeTimeout,
			EnableCompression: config.EnableCompression,
			CheckOrigin:       originChecker(config.AllowedOrigins),
		},
		logger: log,
	}
}

// Accept upgrades the request for userID. On failure the upgrader has
// already written the HTTP error.
func (h *Handler) Accept(c *gin.Context, userID string) (*Client, error) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).WithError(err).Warn("WebSocket upgrade failed")
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}

	client := newClient(h.hub, conn, h.config, userID, h.logger)
	h.hub.registerClient(client)
	return client, nil
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

// originChecker allows requests without an Origin header (native apps) and
// browser origins on the list. "*" allows all.
func originChecker(allowed []string) func(r *http.Request) bool {
	origins := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		origins[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return origins[u.Scheme+"://"+u.Host]
	}
}
