// Package channel keeps a websocket connection to the relay alive across
// drops, reconnecting with capped exponential backoff.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
)

// ErrNotOpen is returned by Send while the connection is down. Frames are
// never buffered for later delivery.
var ErrNotOpen = errors.New("channel: not open")

// State of the channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	DefaultReconnectBase = 3 * time.Second
	DefaultReconnectMax  = 30 * time.Second
	defaultWriteWait     = 10 * time.Second
)

// Options configures a Channel.
type Options struct {
	URL           string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	WriteWait     time.Duration
	Dialer        *websocket.Dialer
}

// Backoff returns the delay before reconnect attempt n (1-based):
// base * 1.5^(n-1), truncated to whole milliseconds and capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ms := math.Floor(float64(base.Milliseconds()) * math.Pow(1.5, float64(attempt-1)))
	if limit := float64(max.Milliseconds()); ms > limit {
		ms = limit
	}
	return time.Duration(ms) * time.Millisecond
}

// Channel is a self-healing relay connection. Handlers run on the channel's
// own goroutines and must not block for long.
type Channel struct {
	opts Options

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	attempt int
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc

	writeMu sync.Mutex

	onOpen        func()
	onStateChange func(open bool)
	onMessage     func([]byte)
}

// New creates a channel. It does not connect until Start.
func New(opts Options) *Channel {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = DefaultReconnectBase
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = DefaultReconnectMax
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Channel{opts: opts}
}

// OnOpen sets the handler fired after every successful (re)connect.
func (c *Channel) OnOpen(fn func()) { c.onOpen = fn }

// OnStateChange sets the handler fired when the channel goes up or down.
func (c *Channel) OnStateChange(fn func(open bool)) { c.onStateChange = fn }

// OnMessage sets the handler for inbound text frames.
func (c *Channel) OnMessage(fn func([]byte)) { c.onMessage = fn }

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins connecting. Cancelling ctx is equivalent to Stop.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateConnecting
	c.mu.Unlock()

	go func() {
		<-c.ctx.Done()
		c.Stop()
	}()
	go c.dial()
}

// Run starts the channel and blocks until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	c.Start(ctx)
	<-ctx.Done()
	c.Stop()
	return nil
}

// Stop closes the connection and cancels any pending reconnect. The channel
// cannot be restarted.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	wasOpen := c.state == StateOpen
	c.state = StateStopped
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	if wasOpen && c.onStateChange != nil {
		c.onStateChange(false)
	}
}

// Send marshals v and writes it as one text frame.
func (c *Channel) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes data as one text frame, or fails with ErrNotOpen.
func (c *Channel) SendRaw(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Channel) dial() {
	l := pkglog.Component("channel")

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateConnecting
	ctx := c.ctx
	c.mu.Unlock()

	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		l.Debug().Err(err).Str("url", c.opts.URL).Msg("relay dial failed")
		c.lost(nil)
		return
	}

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	c.mu.Unlock()

	l.Info().Str("url", c.opts.URL).Msg("relay connected")
	if c.onOpen != nil {
		c.onOpen()
	}
	if c.onStateChange != nil {
		c.onStateChange(true)
	}

	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn)
			return
		}
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

// lost handles an unexpected close of conn, or a failed dial when conn is
// nil, by arming the single reconnect timer.
func (c *Channel) lost(conn *websocket.Conn) {
	c.mu.Lock()
	if c.state == StateStopped || (conn != nil && c.conn != conn) {
		c.mu.Unlock()
		return
	}
	wasOpen := c.state == StateOpen
	if conn != nil {
		conn.Close()
	}
	c.conn = nil
	c.state = StateClosed
	c.attempt++
	delay := Backoff(c.attempt, c.opts.ReconnectBase, c.opts.ReconnectMax)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(delay, c.dial)
	attempt := c.attempt
	c.mu.Unlock()

	l := pkglog.Component("channel")
	l.Info().Int("attempt", attempt).Dur("retry_in", delay).Msg("relay connection lost")

	if wasOpen && c.onStateChange != nil {
		c.onStateChange(false)
	}
}
