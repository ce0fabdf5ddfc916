package progress

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/handiism/vasset-downloader/internal/model"
	"github.com/handiism/vasset-downloader/internal/session"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("progress channel closed")

// ConnState is the state of the channel's transport connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// Handler receives the events of one subscribed task.
//
// ChannelLost is called at most once per give-up, when the channel stops
// reconnecting while the subscription is still registered.
type Handler interface {
	HandleProgress(ev model.ProgressEvent)
	ChannelLost(err error)
}

// HandlerFunc adapts a function to Handler. It ignores channel loss.
type HandlerFunc func(ev model.ProgressEvent)

// HandleProgress calls f(ev).
func (f HandlerFunc) HandleProgress(ev model.ProgressEvent) { f(ev) }

// ChannelLost does nothing.
func (f HandlerFunc) ChannelLost(error) {}

// TokenSource supplies the bearer credential for the connection handshake.
type TokenSource interface {
	Token() string
}

// Options configures a Channel.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host/api/v1/ws/progress.
	URL string

	// Tokens provides the credential sent as the token query parameter.
	Tokens TokenSource

	// Dialer defaults to a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Backoff Backoff
}

// Channel multiplexes progress subscriptions over one websocket connection.
//
// The connection opens lazily on the first Subscribe and closes when the
// last subscription goes away. Events are routed to handlers by task id;
// the server pushes every task of the session and filtering happens here.
type Channel struct {
	url     string
	tokens  TokenSource
	dialer  *websocket.Dialer
	backoff Backoff

	mu         sync.Mutex
	subs       map[string]Handler
	state      ConnState
	conn       *websocket.Conn
	gen        uint64
	failures   int
	timer      *time.Timer
	cancelDial context.CancelFunc
	closed     bool

	// dispatchMu serializes handler calls across connection generations.
	dispatchMu sync.Mutex
}

// New creates a disconnected Channel.
func New(opts Options) *Channel {
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	return &Channel{
		url:     opts.URL,
		tokens:  opts.Tokens,
		dialer:  dialer,
		backoff: opts.Backoff.normalized(),
		subs:    make(map[string]Handler),
	}
}

// Subscribe registers h for events of taskID, replacing any previous
// handler for the same id, and opens the connection if needed.
//
// If the connection has to be opened and no credential is available,
// nothing is registered and session.ErrAuthRequired is returned.
func (c *Channel) Subscribe(taskID string, h Handler) error {
	if taskID == "" {
		return errors.New("progress: empty task id")
	}
	if h == nil {
		return errors.New("progress: nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	needsConnect := c.state == StateDisconnected && c.timer == nil
	var token string
	if needsConnect {
		token = c.token()
		if token == "" {
			log.WithField("task_id", taskID).Warn("No credential for progress channel")
			return session.ErrAuthRequired
		}
	}

	c.subs[taskID] = h
	log.WithField("task_id", taskID).Debug("Subscribed to progress")

	if needsConnect {
		c.connectLocked(token)
	}
	return nil
}

// Unsubscribe removes the handler for taskID. Removing the last handler
// closes the connection and cancels any pending reconnect.
func (c *Channel) Unsubscribe(taskID string) {
	c.mu.Lock()
	if _, ok := c.subs[taskID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, taskID)
	log.WithField("task_id", taskID).Debug("Unsubscribed from progress")

	var conn *websocket.Conn
	if len(c.subs) == 0 {
		conn = c.teardownLocked()
	}
	c.mu.Unlock()

	closeConn(conn)
}

// Close drops every subscription and closes the connection. The channel
// cannot be reused afterwards.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[string]Handler)
	conn := c.teardownLocked()
	c.mu.Unlock()

	closeConn(conn)
	return nil
}

// IsConnected reports whether the connection is open. It is advisory only.
func (c *Channel) IsConnected() bool {
	return c.State() == StateOpen
}

// State returns the connection state.
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscriptions returns the number of registered task ids.
func (c *Channel) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// connectLocked starts a new connection generation.
func (c *Channel) connectLocked(token string) {
	c.gen++
	gen := c.gen
	c.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	go c.dial(ctx, gen, token)
}

func (c *Channel) dial(ctx context.Context, gen uint64, token string) {
	logger := log.WithField("gen", gen)
	logger.Debug("Connecting to progress channel")

	conn, resp, err := c.dialer.DialContext(ctx, withToken(c.url, token), nil)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			logger.Warn("Progress channel rejected the credential")
		}
		logger.WithError(err).Warn("Progress channel connection failed")
		notify := c.failLocked(err)
		c.mu.Unlock()
		notify()
		return
	}

	c.conn = conn
	c.state = StateOpen
	c.failures = 0
	c.mu.Unlock()

	logger.Info("Progress channel connected")
	c.readLoop(gen, conn)
}

func (c *Channel) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropped(gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		log.WithError(err).Warn("Dropping progress payload")
		return
	}

	c.mu.Lock()
	h := c.subs[ev.TaskID]
	c.mu.Unlock()
	if h == nil {
		log.WithField("task_id", ev.TaskID).Debug("No subscriber for progress event")
		return
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	h.HandleProgress(ev)
}

// dropped handles the end of a read loop.
func (c *Channel) dropped(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// Deliberate teardown.
		c.mu.Unlock()
		return
	}
	conn := c.conn
	log.WithError(err).WithField("gen", gen).Warn("Progress channel disconnected")
	notify := c.failLocked(err)
	c.mu.Unlock()

	closeConn(conn)
	notify()
}

// failLocked records a failed dial or a dropped connection and schedules a
// reconnect while subscriptions remain. The returned func must be called
// after unlocking; it notifies handlers when the budget is exhausted.
func (c *Channel) failLocked(err error) func() {
	c.state = StateDisconnected
	c.conn = nil

	if len(c.subs) == 0 || c.closed {
		c.failures = 0
		return func() {}
	}

	if c.backoff.Exhausted(c.failures) {
		return c.giveUpLocked(err)
	}

	delay := c.backoff.Delay(c.failures)
	c.failures++
	gen := c.gen
	log.WithFields(log.Fields{"attempt": c.failures, "delay": delay}).Info("Reconnecting progress channel")
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	return func() {}
}

// giveUpLocked stops reconnecting. Subscriptions stay registered so a later
// Subscribe can revive the connection.
func (c *Channel) giveUpLocked(err error) func() {
	lost := &model.ChannelLostError{Attempts: c.failures, Err: err}
	c.failures = 0
	c.state = StateDisconnected

	handlers := make([]Handler, 0, len(c.subs))
	for _, h := range c.subs {
		handlers = append(handlers, h)
	}
	log.WithError(err).WithField("attempts", lost.Attempts).Error("Progress channel gave up reconnecting")

	return func() {
		c.dispatchMu.Lock()
		defer c.dispatchMu.Unlock()
		for _, h := range handlers {
			h.ChannelLost(lost)
		}
	}
}

func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}

	token := c.token()
	if token == "" {
		notify := c.giveUpLocked(session.ErrAuthRequired)
		c.mu.Unlock()
		notify()
		return
	}
	c.connectLocked(token)
	c.mu.Unlock()
}

// teardownLocked invalidates the current generation and returns the
// connection the caller must close after unlocking.
func (c *Channel) teardownLocked() *websocket.Conn {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.failures = 0
	if conn != nil {
		log.Info("Progress channel closed: no active subscriptions")
	}
	return conn
}

func closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func withToken(rawURL, token string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
