package mockapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	user string
	conn *websocket.Conn

	mu sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// hub tracks progress connections per user.
type hub struct {
	mu        sync.Mutex
	clients   map[*client]struct{}
	connected chan struct{}
}

func newHub() *hub {
	return &hub{
		clients:   make(map[*client]struct{}),
		connected: make(chan struct{}),
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	close(h.connected)
	h.connected = make(chan struct{})
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// waitFor blocks until user has a connection, the deadline passes or stop
// is closed.
func (h *hub) waitFor(user string, timeout time.Duration, stop <-chan struct{}) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		h.mu.Lock()
		for c := range h.clients {
			if c.user == user {
				h.mu.Unlock()
				return true
			}
		}
		connected := h.connected
		h.mu.Unlock()

		select {
		case <-connected:
		case <-deadline.C:
			return false
		case <-stop:
			return false
		}
	}
}

// broadcast pushes v to every connection of user.
func (h *hub) broadcast(user string, v any) {
	h.mu.Lock()
	var targets []*client
	for c := range h.clients {
		if c.user == user {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(v); err != nil {
			log.WithError(err).Debug("Mock progress push failed")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// progressSocket serves the push channel. The token comes from the query
// string since browsers cannot set headers on websocket handshakes.
func (s *Server) progressSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		fail(c, http.StatusUnauthorized, CodeUnauthorized, "token is required")
		return
	}
	cl, err := s.verifyToken(token)
	if err != nil {
		fail(c, http.StatusUnauthorized, CodeUnauthorized, "token is invalid or expired")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Mock websocket upgrade failed")
		return
	}

	cli := &client{user: cl.Subject, conn: conn}
	s.hub.add(cli)
	logger := log.WithField("user", cl.Subject)
	logger.Debug("Mock progress connection opened")

	done := make(chan struct{})
	defer func() {
		close(done)
		s.hub.remove(cli)
		conn.Close()
		logger.Debug("Mock progress connection closed")
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	})
	go func() {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := cli.ping(); err != nil {
					return
				}
			}
		}
	}()

	// Greeting without a task id; clients drop it.
	_ = cli.send(map[string]string{"type": "connected"})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
