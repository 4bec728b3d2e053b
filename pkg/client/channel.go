package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	backoffFloor = 500 * time.Millisecond
	backoffCap   = 10 * time.Second
	writeTimeout = 5 * time.Second
	maxFrameSize = 1 << 20
)

type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// Conn is one established message connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens connections for channels.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with coder/websocket.
type WebsocketDialer struct {
	HTTPClient *http.Client
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(maxFrameSize)
	return wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}

// DefaultBackOff doubles from 500ms up to 10s without jitter.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffFloor
	b.Multiplier = 2
	b.MaxInterval = backoffCap
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Handler receives every well-formed inbound message, in arrival order.
type Handler func(protocol.ServerMessage)

// Hooks report connectivity. All are optional and run on the channel's
// goroutine.
type Hooks struct {
	OnOpen  func()
	OnClose func(err error)
	OnRetry func(attempt int, wait time.Duration)
}

// Channel keeps one room connection alive until Close. Unexpected drops are
// redialled after a backoff that resets once a dial succeeds.
type Channel struct {
	url     string
	dialer  Dialer
	handler Handler
	hooks   Hooks
	log     *zap.Logger

	mu      sync.Mutex
	conn    Conn
	state   ConnectionState
	attempt int
	backoff backoff.BackOff
	closing bool

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	onClose func(*Channel)
}

func newChannel(parent context.Context, url string, d Dialer, b backoff.BackOff, h Handler, hooks Hooks, log *zap.Logger) *Channel {
	ctx, cancel := context.WithCancel(parent)
	return &Channel{
		url:     url,
		dialer:  d,
		handler: h,
		hooks:   hooks,
		log:     log,
		state:   StateConnecting,
		backoff: b,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (c *Channel) URL() string { return c.url }

func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt is the number of consecutive failed dials or drops since the
// last successful open.
func (c *Channel) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Done is closed when the channel has stopped for good.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Send writes msg if the channel is open. It reports whether the frame was
// written.
func (c *Channel) Send(msg protocol.ClientMessage) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return false
	}

	payload, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("encode frame", zap.String("kind", string(msg.Kind())), zap.Error(err))
		return false
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, payload); err != nil {
		c.log.Debug("write frame", zap.Error(err))
		return false
	}
	return true
}

// Close stops the channel and any pending reconnect. Safe to call more than
// once and from a handler or hook.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.state = StateClosed
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Channel) run() {
	defer func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose(c)
		}
		close(c.done)
	}()

	for {
		conn, err := c.dialer.Dial(c.ctx, c.url)
		if err == nil {
			if !c.opened(conn) {
				_ = conn.Close()
				return
			}
			if c.hooks.OnOpen != nil {
				c.hooks.OnOpen()
			}

			err = c.readLoop(conn)

			c.mu.Lock()
			c.conn = nil
			closing := c.closing
			c.mu.Unlock()
			_ = conn.Close()

			if c.hooks.OnClose != nil {
				c.hooks.OnClose(err)
			}
			if closing {
				return
			}
		}
		if c.ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		wait := c.backoff.NextBackOff()
		c.state = StateReconnecting
		c.mu.Unlock()

		c.log.Info("reconnecting", zap.String("url", c.url), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		if c.hooks.OnRetry != nil {
			c.hooks.OnRetry(attempt, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// opened records a fresh connection and resets the retry state. It reports
// false if Close won the race.
func (c *Channel) opened(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	c.backoff.Reset()
	return true
}

func (c *Channel) readLoop(conn Conn) error {
	for {
		data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		msg, err := protocol.DecodeServer(data)
		if err != nil {
			c.log.Warn("dropping malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		c.handler(msg)
	}
}
