package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/domain"
)

// DisconnectHandler is called once when a client leaves the hub.
type DisconnectHandler func(*Client, Departure)

// Client is one control connection.
type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *domain.Session

	ping              chan struct{}
	mu                sync.RWMutex
	closed            bool
	disconnectHandler DisconnectHandler
}

// NewClient creates a client with a pending session.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, hub.config.SendBuffer),
		Session: domain.NewSession(id),
		ping:    make(chan struct{}, 1),
	}
}

// SetDisconnectHandler sets the handler for client disconnection.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectHandler = handler
}

// SendMessage marshals message and queues it for this client.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

// enqueue never blocks: a full buffer or a closed client drops the frame.
func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		l := pkglog.Component("hub")
		l.Warn().Str(pkglog.FieldClientID, c.ID).Msg("send buffer full, frame dropped")
		return false
	}
}

func (c *Client) probe() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// shutdown closes the send queue; WritePump then closes the transport.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) departed(dep Departure) {
	c.mu.RLock()
	handler := c.disconnectHandler
	c.mu.RUnlock()
	if handler != nil {
		handler(c, dep)
	}
}

// ReadPump pumps frames from the connection to handler until the
// connection fails, then unregisters the client.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	if limit := c.Hub.config.MaxMessageSize; limit > 0 {
		c.Conn.SetReadLimit(limit)
	}
	c.Conn.SetPongHandler(func(string) error {
		c.Session.MarkAlive()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l := pkglog.Component("hub")
				l.Debug().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("websocket read error")
			}
			break
		}

		c.Session.UpdateActivity()
		handler(c, message)
	}
}

// WritePump pumps queued frames and liveness probes to the connection.
func (c *Client) WritePump() {
	writeWait := c.Hub.config.WriteWait
	defer c.Conn.Close()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-c.ping:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
