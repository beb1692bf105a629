package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

var errNotConnected = errors.New("scanner control channel not connected")

type commandMessage struct {
	Command string `json:"command"`
}

// Control holds the device command connection. Send only writes while the
// connection is open.
type Control struct {
	url       string
	dialer    *websocket.Dialer
	reconnect time.Duration
	log       logrus.FieldLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewControl(url string, opts ...Option) *Control {
	o := buildOptions(opts)
	return &Control{
		url:       url,
		dialer:    o.dialer,
		reconnect: o.reconnect,
		log:       o.log.WithField("component", "scanner_control"),
	}
}

// Run keeps the connection open until ctx is done.
func (c *Control) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithFields(logrus.Fields{"error": err, "retry_in": c.reconnect}).Warn("scanner control disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnect):
		}
	}
}

func (c *Control) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.setConn(conn)
	defer c.drop(conn)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.log.WithField("url", c.url).Info("connected to scanner control channel")
	// the device never answers; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *Control) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Control) drop(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	_ = conn.Close()
}

// Connected reports whether the channel is open.
func (c *Control) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes {"command": command}. It returns false without writing when
// the channel is not open, and drops the connection when the write fails.
func (c *Control) Send(ctx context.Context, command string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.log.WithFields(logrus.Fields{"command": command, "error": errNotConnected}).Warn("command dropped")
		return false
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(commandMessage{Command: command}); err != nil {
		c.log.WithFields(logrus.Fields{"command": command, "error": err}).Warn("command write failed")
		_ = c.conn.Close()
		c.conn = nil
		return false
	}
	return true
}

// Check reports the channel state for readiness probes.
func (c *Control) Check(context.Context) error {
	if !c.Connected() {
		return errNotConnected
	}
	return nil
}
