package hub

import (
	"encoding/json"
	"sync"
	"time"

	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/domain"
)

// Departure reasons passed to disconnect handlers.
const (
	ReasonClosed   = "closed"
	ReasonLiveness = "liveness"
	ReasonShutdown = "shutdown"
)

// Departure describes a session leaving the live table.
type Departure struct {
	UserID      string
	DisplayName string
	// Current is false when another connection has since announced the same
	// user id; such a departure must not be reported as the user leaving.
	Current bool
	Reason  string
}

// Hub owns the live session table. Registration, removal and the liveness
// sweep are serialised through Run, so a session is removed exactly once
// whichever path sees it go first.
type Hub struct {
	clients    map[string]*Client // clientID -> client
	users      map[string]*Client // userID -> client, active sessions only
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Config returns the websocket settings the hub was built with.
func (h *Hub) Config() config.WebSocketConfig {
	return h.config
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	l := pkglog.Component("hub")
	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Debug().Str(pkglog.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			dep, removed := h.removeLocked(client, ReasonClosed)
			h.mu.Unlock()
			if removed {
				l.Debug().Str(pkglog.FieldClientID, client.ID).Msg("client unregistered")
				client.departed(dep)
			}

		case <-ticker.C:
			h.Sweep()

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop ends Run and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Conn.Close()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Sweep runs one liveness pass: sessions that did not answer the previous
// probe are closed and reported as departed, the rest are re-armed and
// probed again. Run calls it on every tick.
func (h *Hub) Sweep() {
	l := pkglog.Component("hub")

	type gone struct {
		client *Client
		dep    Departure
	}
	var departed []gone
	probed := 0

	h.mu.Lock()
	for _, client := range h.clients {
		if !client.Session.Rearm() {
			if dep, removed := h.removeLocked(client, ReasonLiveness); removed {
				departed = append(departed, gone{client, dep})
			}
			continue
		}
		client.probe()
		probed++
	}
	h.mu.Unlock()

	for _, g := range departed {
		l.Info().Str(pkglog.FieldClientID, g.client.ID).Str(pkglog.FieldUserID, g.dep.UserID).Msg("liveness probe unanswered, session closed")
		g.client.departed(g.dep)
	}
	if len(departed) > 0 || probed > 0 {
		l.Debug().Int("probed", probed).Int("closed", len(departed)).Msg("liveness sweep")
	}
}

// removeLocked drops client from both indexes and terminates its transport.
// The caller must hold h.mu.
func (h *Hub) removeLocked(client *Client, reason string) (Departure, bool) {
	if !client.Session.Close() {
		return Departure{}, false
	}
	if existing, ok := h.clients[client.ID]; ok && existing == client {
		delete(h.clients, client.ID)
	}

	userID, displayName := client.Session.Identity()
	current := false
	if userID != "" {
		if bound, ok := h.users[userID]; ok && bound == client {
			delete(h.users, userID)
			current = true
		}
	}

	client.shutdown()
	return Departure{UserID: userID, DisplayName: displayName, Current: current, Reason: reason}, true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	var departed []*Client
	var deps []Departure
	for _, client := range h.clients {
		if dep, removed := h.removeLocked(client, ReasonShutdown); removed {
			departed = append(departed, client)
			deps = append(deps, dep)
		}
	}
	h.mu.Unlock()

	for i, client := range departed {
		client.departed(deps[i])
	}
}

// BindUser makes client the live session for userID. A previous binding
// held by another connection is replaced; that connection stays open but no
// longer receives signals for the id. It returns false if client is
// already closed.
func (h *Hub) BindUser(client *Client, userID, displayName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.Session.State() == domain.StateClosed {
		return false
	}
	if prev := client.Session.UserID(); prev != "" && prev != userID {
		if bound, ok := h.users[prev]; ok && bound == client {
			delete(h.users, prev)
		}
	}
	if !client.Session.Bind(userID, displayName) {
		return false
	}
	h.users[userID] = client
	return true
}

// ClientForUser returns the active session bound to userID.
func (h *Hub) ClientForUser(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.users[userID]
	if !ok || !client.Session.IsActive() {
		return nil, false
	}
	return client, true
}

// SendToUser enqueues message for the session bound to userID. It reports
// whether the frame was queued; unknown users and full buffers are misses.
func (h *Hub) SendToUser(userID string, message interface{}) (bool, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return false, err
	}
	client, ok := h.ClientForUser(userID)
	if !ok {
		return false, nil
	}
	return client.enqueue(data), nil
}

// BroadcastActive sends message to every active session except exclude
// (a client id). Full buffers drop the frame for that recipient only.
func (h *Hub) BroadcastActive(message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users))
	for _, client := range h.users {
		if client.ID != exclude {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(data)
	}
	return nil
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ActiveUserCount returns the number of announced sessions.
func (h *Hub) ActiveUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}
