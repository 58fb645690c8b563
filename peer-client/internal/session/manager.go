// Package session turns relay negotiation traffic into live peer sessions
// and carries digest-stamped chat messages over them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/domain"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/transport"
	"github.com/weiawesome/wes-io-live/peer-relay/peer-client/internal/ui"
	"github.com/weiawesome/wes-io-live/peer-relay/pkg/digest"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/peer-relay/pkg/protocol"
)

var (
	// ErrPeerNotConnected is returned by Send when no connected session
	// exists for the peer.
	ErrPeerNotConnected = errors.New("peer not connected")
	// ErrTooManyPeers is returned when a new session would exceed MaxPeers.
	ErrTooManyPeers = errors.New("too many peer sessions")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")
)

const (
	DefaultMaxPeers           = 50
	DefaultNegotiationTimeout = 30 * time.Second
	DefaultReapInterval       = 5 * time.Second
)

// SignalSender delivers frames to the relay. The resilient channel
// implements it.
type SignalSender interface {
	Send(v interface{}) error
}

// Identity is the local user as announced to the relay.
type Identity struct {
	UserID      string
	DisplayName string
}

// Options tunes a Manager. Zero values take defaults.
type Options struct {
	MaxPeers           int
	NegotiationTimeout time.Duration
	ReapInterval       time.Duration
	Hasher             digest.Hasher
	Now                func() time.Time
}

type peerSession struct {
	id           string
	name         string
	role         domain.Role
	state        domain.PeerState
	gen          uint64
	transport    transport.Transport
	createdAt    time.Time
	lastActivity time.Time
}

func (s *peerSession) snapshot() domain.PeerSnapshot {
	return domain.PeerSnapshot{
		PeerID:         s.id,
		DisplayName:    s.name,
		Role:           s.role,
		State:          s.state,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
	}
}

// Manager owns every peer session of the local user. At most one session
// exists per peer id; events from a session that has since been replaced
// are discarded by generation.
type Manager struct {
	self    Identity
	signals SignalSender
	factory transport.Factory
	bridge  ui.Bridge
	hasher  digest.Hasher
	opts    Options

	mu      sync.Mutex
	peers   map[string]*peerSession
	nextGen uint64
	closed  bool
}

// NewManager creates a Manager.
func NewManager(self Identity, signals SignalSender, factory transport.Factory, bridge ui.Bridge, opts Options) *Manager {
	if opts.MaxPeers <= 0 {
		opts.MaxPeers = DefaultMaxPeers
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.Hasher == nil {
		opts.Hasher = digest.SHA256{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		self:    self,
		signals: signals,
		factory: factory,
		bridge:  bridge,
		hasher:  opts.Hasher,
		opts:    opts,
		peers:   make(map[string]*peerSession),
	}
}

// Self returns the local identity.
func (m *Manager) Self() Identity {
	return m.self
}

// HandleEnvelope routes one relay frame.
func (m *Manager) HandleEnvelope(data []byte) error {
	l := pkglog.Component("session")

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		l.Warn().Err(err).Msg("dropping relay frame")
		return err
	}

	switch env.Kind {
	case protocol.KindPeerList:
		for _, p := range env.Peers {
			if p.UserID == "" || p.UserID == m.self.UserID {
				continue
			}
			if err := m.Connect(p.UserID, p.DisplayName); err != nil && !errors.Is(err, ErrClosed) {
				l.Warn().Err(err).Str(pkglog.FieldPeerID, p.UserID).Msg("connect failed")
			}
		}

	case protocol.KindSignal:
		if env.From == "" || len(env.Signal) == 0 {
			l.Warn().Msg("signal frame without sender or payload")
			return protocol.ErrMissingField
		}
		if err := m.HandleSignal(env.From, env.FromDisplayName, env.Signal); err != nil && !errors.Is(err, ErrClosed) {
			l.Warn().Err(err).Str(pkglog.FieldPeerID, env.From).Msg("signal rejected")
			return err
		}

	case protocol.KindPeerLeft:
		m.Teardown(env.UserID)

	case protocol.KindError:
		l.Warn().Str("code", env.Code).Str("message", env.Message).Msg("relay reported an error")

	case protocol.KindPong:

	default:
		l.Debug().Str(pkglog.FieldKind, env.Kind).Msg("ignoring relay frame")
	}
	return nil
}

// Connect starts an outgoing negotiation to a peer not yet known. Peers
// that already have a live session are left alone; use Renegotiate to
// replace one.
func (m *Manager) Connect(peerID, displayName string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.peers[peerID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, err := m.create(peerID, displayName, domain.RoleInitiator)
	return err
}

// Renegotiate tears down any session with peerID and starts a fresh
// outgoing negotiation.
func (m *Manager) Renegotiate(peerID string) error {
	m.mu.Lock()
	name := peerID
	if s, ok := m.peers[peerID]; ok {
		name = s.name
	}
	m.mu.Unlock()

	_, err := m.create(peerID, name, domain.RoleInitiator)
	return err
}

// HandleSignal feeds a negotiation payload from peerID. A payload for an
// unknown peer creates a responder session. An offer for a known peer is a
// new negotiation and supersedes the existing session, except when both
// sides offered at once: then the side with the lower user id keeps its
// own offer and the other side yields.
func (m *Manager) HandleSignal(peerID, displayName string, payload json.RawMessage) error {
	l := pkglog.Component("session")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	existing, ok := m.peers[peerID]
	var t transport.Transport
	supersede := !ok
	if ok {
		t = existing.transport
		if transport.IsOffer(payload) {
			glare := existing.role == domain.RoleInitiator && existing.state == domain.PeerNegotiating
			if glare && m.self.UserID < peerID {
				m.mu.Unlock()
				l.Debug().Str(pkglog.FieldPeerID, peerID).Msg("offer collision, keeping local offer")
				return nil
			}
			supersede = true
		}
	}
	m.mu.Unlock()

	if supersede {
		if displayName == "" {
			displayName = peerID
		}
		var err error
		t, err = m.create(peerID, displayName, domain.RoleResponder)
		if err != nil {
			return err
		}
	}
	if t == nil {
		return fmt.Errorf("session for %s has no transport", peerID)
	}
	return t.Signal(payload)
}

// create installs a new session for peerID, tearing down any previous one
// first. The transport is built outside the lock; if the session is
// superseded meanwhile the new transport is closed and discarded.
func (m *Manager) create(peerID, displayName string, role domain.Role) (transport.Transport, error) {
	l := pkglog.Component("session")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	old, replacing := m.peers[peerID]
	if !replacing && len(m.peers) >= m.opts.MaxPeers {
		m.mu.Unlock()
		return nil, ErrTooManyPeers
	}
	if replacing {
		delete(m.peers, peerID)
	}
	m.nextGen++
	now := m.opts.Now()
	s := &peerSession{
		id:           peerID,
		name:         displayName,
		role:         role,
		state:        domain.PeerNegotiating,
		gen:          m.nextGen,
		createdAt:    now,
		lastActivity: now,
	}
	m.peers[peerID] = s
	m.mu.Unlock()

	if replacing {
		m.retire(old)
	}

	t, err := m.factory.New(role == domain.RoleInitiator, m.handlers(peerID, s.gen))
	if err != nil {
		m.mu.Lock()
		if cur, ok := m.peers[peerID]; ok && cur.gen == s.gen {
			delete(m.peers, peerID)
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("create transport: %w", err)
	}

	m.mu.Lock()
	cur, ok := m.peers[peerID]
	live := ok && cur.gen == s.gen
	if live {
		cur.transport = t
	}
	m.mu.Unlock()
	if !live {
		t.Close()
		return nil, fmt.Errorf("session for %s superseded during setup", peerID)
	}

	l.Info().
		Str(pkglog.FieldPeerID, peerID).
		Str(pkglog.FieldRole, role.String()).
		Msg("peer session created")
	return t, nil
}

// retire closes a session that has already been removed from the table.
func (m *Manager) retire(s *peerSession) {
	wasConnected := s.state == domain.PeerConnected
	s.state = domain.PeerClosed
	if s.transport != nil {
		s.transport.Close()
	}
	if wasConnected && m.bridge != nil {
		m.bridge.OnPeerStateChanged(s.id, false)
	}
}

func (m *Manager) handlers(peerID string, gen uint64) transport.Handlers {
	return transport.Handlers{
		OnSignal: func(payload json.RawMessage) {
			if _, ok := m.current(peerID, gen); !ok {
				return
			}
			msg := protocol.NewOutboundSignal(peerID, m.self.UserID, m.self.DisplayName, payload)
			if err := m.signals.Send(msg); err != nil {
				l := pkglog.Component("session")
				l.Warn().Err(err).Str(pkglog.FieldPeerID, peerID).Msg("failed to send signal")
			}
		},
		OnOpen: func() {
			m.mu.Lock()
			s, ok := m.peers[peerID]
			if !ok || s.gen != gen || s.state != domain.PeerNegotiating {
				m.mu.Unlock()
				return
			}
			s.state = domain.PeerConnected
			s.lastActivity = m.opts.Now()
			m.mu.Unlock()

			l := pkglog.Component("session")
			l.Info().Str(pkglog.FieldPeerID, peerID).Msg("peer connected")
			if m.bridge != nil {
				m.bridge.OnPeerStateChanged(peerID, true)
			}
		},
		OnData: func(data []byte) {
			m.receive(peerID, gen, data)
		},
		OnClose: func(err error) {
			m.mu.Lock()
			s, ok := m.peers[peerID]
			if !ok || s.gen != gen {
				m.mu.Unlock()
				return
			}
			delete(m.peers, peerID)
			s.state = domain.PeerClosed
			m.mu.Unlock()

			l := pkglog.Component("session")
			l.Info().Err(err).Str(pkglog.FieldPeerID, peerID).Msg("peer session closed")
			if m.bridge != nil {
				m.bridge.OnPeerStateChanged(peerID, false)
			}
		},
	}
}

func (m *Manager) current(peerID string, gen uint64) (*peerSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.peers[peerID]
	if !ok || s.gen != gen {
		return nil, false
	}
	return s, true
}

// Teardown closes and removes the session for peerID, if any.
func (m *Manager) Teardown(peerID string) {
	m.mu.Lock()
	s, ok := m.peers[peerID]
	if ok {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()

	if ok {
		m.retire(s)
	}
}

// Send transmits content to a connected peer and returns the message as
// shown locally.
func (m *Manager) Send(peerID, content string) (*domain.ChatMessage, error) {
	m.mu.Lock()
	s, ok := m.peers[peerID]
	if !ok || s.state != domain.PeerConnected || s.transport == nil {
		m.mu.Unlock()
		return nil, ErrPeerNotConnected
	}
	t, gen := s.transport, s.gen
	m.mu.Unlock()

	msg := &domain.ChatMessage{
		ID:         uuid.New().String(),
		SenderID:   m.self.UserID,
		SenderName: m.self.DisplayName,
		Content:    content,
		Timestamp:  m.opts.Now(),
		Digest:     m.hasher.Digest([]byte(content)),
		Verified:   true,
		PeerID:     peerID,
	}
	data, err := json.Marshal(msg.ToWire())
	if err != nil {
		return nil, err
	}
	if err := t.Send(data); err != nil {
		return nil, fmt.Errorf("send to %s: %w", peerID, err)
	}

	m.touch(peerID, gen)
	return msg, nil
}

// Broadcast sends content to every connected peer and returns how many
// sends succeeded.
func (m *Manager) Broadcast(content string) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.peers))
	for id, s := range m.peers {
		if s.state == domain.PeerConnected {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	sent := 0
	for _, id := range ids {
		if _, err := m.Send(id, content); err == nil {
			sent++
		}
	}
	return sent
}

// Receive handles one data-channel payload from a connected peer. Malformed
// payloads are logged and dropped; digest mismatches are delivered with
// Verified=false.
func (m *Manager) Receive(peerID string, data []byte) (*domain.ChatMessage, error) {
	m.mu.Lock()
	s, ok := m.peers[peerID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrPeerNotConnected
	}
	gen := s.gen
	m.mu.Unlock()
	return m.receive(peerID, gen, data)
}

func (m *Manager) receive(peerID string, gen uint64, data []byte) (*domain.ChatMessage, error) {
	l := pkglog.Component("session")

	msg, err := domain.ParseWire(data)
	if err != nil {
		l.Warn().Err(err).Str(pkglog.FieldPeerID, peerID).Msg("dropping malformed chat message")
		return nil, err
	}

	m.mu.Lock()
	s, ok := m.peers[peerID]
	if !ok || s.gen != gen {
		m.mu.Unlock()
		return nil, ErrPeerNotConnected
	}
	s.lastActivity = m.opts.Now()
	name := s.name
	m.mu.Unlock()

	msg.PeerID = peerID
	msg.SenderName = name
	msg.Verified = m.hasher.Verify([]byte(msg.Content), msg.Digest)
	if !msg.Verified {
		l.Warn().Str(pkglog.FieldPeerID, peerID).Str("message_id", msg.ID).Msg("chat message failed digest check")
	}

	if m.bridge != nil {
		m.bridge.OnMessage(msg)
	}
	return msg, nil
}

func (m *Manager) touch(peerID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.peers[peerID]; ok && s.gen == gen {
		s.lastActivity = m.opts.Now()
	}
}

// Peers returns a snapshot of every session, ordered by peer id.
func (m *Manager) Peers() []domain.PeerSnapshot {
	m.mu.Lock()
	out := make([]domain.PeerSnapshot, 0, len(m.peers))
	for _, s := range m.peers {
		out = append(out, s.snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// IsConnected reports whether peerID has a connected session.
func (m *Manager) IsConnected(peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.peers[peerID]
	return ok && s.state == domain.PeerConnected
}

// PeerCount returns the number of live sessions.
func (m *Manager) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// ReapStale tears down sessions that have been negotiating for longer than
// maxAge and returns how many were removed.
func (m *Manager) ReapStale(maxAge time.Duration) int {
	cutoff := m.opts.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*peerSession
	for id, s := range m.peers {
		if s.state == domain.PeerNegotiating && s.createdAt.Before(cutoff) {
			delete(m.peers, id)
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	l := pkglog.Component("session")
	for _, s := range stale {
		l.Info().Str(pkglog.FieldPeerID, s.id).Msg("negotiation timed out")
		m.retire(s)
	}
	return len(stale)
}

// Run reaps stalled negotiations until ctx is done, then closes the manager.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return nil
		case <-ticker.C:
			m.ReapStale(m.opts.NegotiationTimeout)
		}
	}
}

// Close tears down every session. Later calls to Connect or HandleSignal
// fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	all := make([]*peerSession, 0, len(m.peers))
	for id, s := range m.peers {
		delete(m.peers, id)
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.retire(s)
	}
}
